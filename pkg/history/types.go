// Package history implements the REST client for historical market data:
// OHLCV candles, point-in-time quotes and symbol directories.
package history

import (
	"time"

	"github.com/quantfold/tickstream/pkg/errors"
)

// Resolution is the candle aggregation interval. Values follow the
// provider's convention: minutes as numbers, then day/week/month letters.
type Resolution string

const (
	Resolution1Min   Resolution = "1"
	Resolution5Min   Resolution = "5"
	Resolution15Min  Resolution = "15"
	Resolution30Min  Resolution = "30"
	Resolution60Min  Resolution = "60"
	ResolutionDaily  Resolution = "D"
	ResolutionWeekly Resolution = "W"
	ResolutionMonth  Resolution = "M"
)

var validResolutions = map[Resolution]struct{}{
	Resolution1Min:   {},
	Resolution5Min:   {},
	Resolution15Min:  {},
	Resolution30Min:  {},
	Resolution60Min:  {},
	ResolutionDaily:  {},
	ResolutionWeekly: {},
	ResolutionMonth:  {},
}

// Validate checks the resolution against the provider's accepted set.
func (r Resolution) Validate() error {
	if _, ok := validResolutions[r]; !ok {
		return errors.Newf(errors.ErrCodeInvalidResolution, "unsupported resolution: %q", string(r))
	}

	return nil
}

// Candle is one OHLCV bar.
type Candle struct {
	// Open is the opening price of the bar.
	Open float64 `json:"open"`
	// High is the highest price of the bar.
	High float64 `json:"high"`
	// Low is the lowest price of the bar.
	Low float64 `json:"low"`
	// Close is the closing price of the bar.
	Close float64 `json:"close"`
	// Volume is the traded volume in the bar.
	Volume float64 `json:"volume"`
	// Timestamp is the bar's start time.
	Timestamp time.Time `json:"timestamp"`
}

// Quote is a point-in-time quote for a symbol.
type Quote struct {
	// Current is the last traded price.
	Current float64 `json:"c"`
	// High is the day's high.
	High float64 `json:"h"`
	// Low is the day's low.
	Low float64 `json:"l"`
	// Open is the day's opening price.
	Open float64 `json:"o"`
	// PreviousClose is the previous session's closing price.
	PreviousClose float64 `json:"pc"`
	// Timestamp is the quote time in seconds since the Unix epoch.
	Timestamp int64 `json:"t"`
}

// Time returns the quote time as a time.Time.
func (q Quote) Time() time.Time {
	return time.Unix(q.Timestamp, 0)
}

// SymbolInfo describes one instrument in an exchange's symbol directory.
type SymbolInfo struct {
	// Symbol is the exchange-qualified identifier used for subscriptions.
	Symbol string `json:"symbol"`
	// DisplaySymbol is the human-facing ticker.
	DisplaySymbol string `json:"displaySymbol"`
	// Description is the instrument's long name.
	Description string `json:"description"`
	// Type is the instrument class, e.g. "Common Stock".
	Type string `json:"type"`
	// Currency is the trading currency.
	Currency string `json:"currency"`
}
