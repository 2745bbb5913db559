package history

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quantfold/tickstream/pkg/errors"
)

const (
	// DefaultBaseURL is the provider's REST API root.
	DefaultBaseURL = "https://finnhub.io/api/v1"
	// DefaultTimeout bounds each REST request.
	DefaultTimeout = 15 * time.Second

	candleStatusOK     = "ok"
	candleStatusNoData = "no_data"
)

// Client fetches historical market data over REST. Safe for concurrent use.
type Client struct {
	rest *resty.Client
}

// NewClient creates a REST client authenticating with token. An empty
// baseURL selects the provider default.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if token == "" {
		return nil, errors.New(errors.ErrCodeMissingToken, "api token is required")
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetQueryParam("token", token)

	return &Client{rest: rest}, nil
}

// candleResponse is the wire shape of the candle endpoint: column-oriented
// arrays plus a status discriminator.
type candleResponse struct {
	Status string    `json:"s"`
	Open   []float64 `json:"o"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Close  []float64 `json:"c"`
	Volume []float64 `json:"v"`
	Time   []int64   `json:"t"`
}

// Candles fetches OHLCV bars for symbol at the given resolution within
// [from, to]. A "no_data" response yields an empty slice, not an error.
func (c *Client) Candles(ctx context.Context, symbol string, resolution Resolution, from, to time.Time) ([]Candle, error) {
	if symbol == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "symbol is required")
	}

	if err := resolution.Validate(); err != nil {
		return nil, err
	}

	var body candleResponse

	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":     symbol,
			"resolution": string(resolution),
			"from":       strconv.FormatInt(from.Unix(), 10),
			"to":         strconv.FormatInt(to.Unix(), 10),
		}).
		SetResult(&body).
		Get("/stock/candle")
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeRequestFailed, err, "candle request failed for %s", symbol)
	}

	if resp.IsError() {
		return nil, errors.Newf(errors.ErrCodeBadResponse, "candle request for %s returned %s", symbol, resp.Status())
	}

	switch body.Status {
	case candleStatusOK:
	case candleStatusNoData:
		return []Candle{}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeBadResponse, "unexpected candle status %q for %s", body.Status, symbol)
	}

	n := len(body.Time)
	if len(body.Open) != n || len(body.High) != n || len(body.Low) != n ||
		len(body.Close) != n || len(body.Volume) != n {
		return nil, errors.Newf(errors.ErrCodeBadResponse, "candle response columns are misaligned for %s", symbol)
	}

	candles := make([]Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = Candle{
			Open:      body.Open[i],
			High:      body.High[i],
			Low:       body.Low[i],
			Close:     body.Close[i],
			Volume:    body.Volume[i],
			Timestamp: time.Unix(body.Time[i], 0),
		}
	}

	return candles, nil
}

// Quote fetches the current quote for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	if symbol == "" {
		return Quote{}, errors.New(errors.ErrCodeMissingParameter, "symbol is required")
	}

	var quote Quote

	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&quote).
		Get("/quote")
	if err != nil {
		return Quote{}, errors.Wrapf(errors.ErrCodeRequestFailed, err, "quote request failed for %s", symbol)
	}

	if resp.IsError() {
		return Quote{}, errors.Newf(errors.ErrCodeBadResponse, "quote request for %s returned %s", symbol, resp.Status())
	}

	return quote, nil
}

// Symbols fetches the symbol directory for an exchange code, e.g. "US".
func (c *Client) Symbols(ctx context.Context, exchange string) ([]SymbolInfo, error) {
	if exchange == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "exchange is required")
	}

	var symbols []SymbolInfo

	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("exchange", exchange).
		SetResult(&symbols).
		Get("/stock/symbol")
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeRequestFailed, err, "symbol directory request failed for %s", exchange)
	}

	if resp.IsError() {
		return nil, errors.Newf(errors.ErrCodeBadResponse, "symbol directory request for %s returned %s", exchange, resp.Status())
	}

	return symbols, nil
}
