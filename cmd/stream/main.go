package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/quantfold/tickstream/pkg/history"
	"github.com/quantfold/tickstream/pkg/stream"
)

// resolveOptions builds stream options from the config file (when given) and
// the command line flags, with flags taking precedence.
func resolveOptions(cmd *cli.Command) (stream.Options, error) {
	opts := stream.DefaultOptions()

	if configPath := cmd.String("config"); configPath != "" {
		loaded, err := stream.LoadOptions(configPath)
		if err != nil {
			return stream.Options{}, err
		}

		opts = loaded
	}

	if token := cmd.String("token"); token != "" {
		opts.Token = token
	}

	if endpoint := cmd.String("endpoint"); endpoint != "" {
		opts.Endpoint = endpoint
	}

	if capacity := cmd.Int("capacity"); capacity > 0 {
		opts.HistoryCapacity = int(capacity)
	}

	return opts, nil
}

// runAction streams live trades for the given symbols to stdout until
// interrupted.
func runAction(ctx context.Context, cmd *cli.Command) error {
	symbols := cmd.StringSlice("symbol")
	if len(symbols) == 0 {
		return fmt.Errorf("at least one --symbol is required")
	}

	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	onTick := stream.TickHandlerFunc(func(view stream.TickView) error {
		fmt.Printf("%s  %-12s  %12.4f  vol %10.2f  (window %d)\n",
			view.Time().Format("15:04:05.000"), view.Symbol(), view.Price(), view.Volume(), len(view.History()))

		return nil
	})

	sub, err := stream.Connect(ctx, symbols, onTick, opts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer sub.Close()

	log.Printf("streaming %v, press Ctrl+C to stop", symbols)

	<-ctx.Done()

	log.Printf("shutting down: %d events dropped, %d malformed messages skipped",
		sub.DroppedEvents(), sub.DecodeFailures())

	return nil
}

// candlesAction fetches historical OHLCV bars and prints them.
func candlesAction(ctx context.Context, cmd *cli.Command) error {
	symbol := cmd.String("ticker")
	resolution := history.Resolution(cmd.String("resolution"))
	from := cmd.Timestamp("from")
	to := cmd.Timestamp("to")

	client, err := history.NewClient(cmd.String("base-url"), cmd.String("token"), 0)
	if err != nil {
		return err
	}

	candles, err := client.Candles(ctx, symbol, resolution, from, to)
	if err != nil {
		return fmt.Errorf("failed to fetch candles: %w", err)
	}

	if len(candles) == 0 {
		log.Printf("no data for %s in the requested range", symbol)

		return nil
	}

	for _, candle := range candles {
		fmt.Printf("%s  o %10.4f  h %10.4f  l %10.4f  c %10.4f  v %12.2f\n",
			candle.Timestamp.Format("2006-01-02 15:04"), candle.Open, candle.High, candle.Low, candle.Close, candle.Volume)
	}

	return nil
}

// quoteAction fetches and prints the current quote for a symbol.
func quoteAction(ctx context.Context, cmd *cli.Command) error {
	symbol := cmd.String("ticker")

	client, err := history.NewClient(cmd.String("base-url"), cmd.String("token"), 0)
	if err != nil {
		return err
	}

	quote, err := client.Quote(ctx, symbol)
	if err != nil {
		return fmt.Errorf("failed to fetch quote: %w", err)
	}

	fmt.Printf("%s: %.4f (open %.4f, high %.4f, low %.4f, prev close %.4f) at %s\n",
		symbol, quote.Current, quote.Open, quote.High, quote.Low, quote.PreviousClose,
		quote.Time().Format(time.RFC3339))

	return nil
}

// symbolsAction lists the symbol directory for an exchange.
func symbolsAction(ctx context.Context, cmd *cli.Command) error {
	client, err := history.NewClient(cmd.String("base-url"), cmd.String("token"), 0)
	if err != nil {
		return err
	}

	symbols, err := client.Symbols(ctx, cmd.String("exchange"))
	if err != nil {
		return fmt.Errorf("failed to fetch symbols: %w", err)
	}

	for _, info := range symbols {
		fmt.Printf("%-16s %-10s %s\n", info.Symbol, info.Currency, info.Description)
	}

	return nil
}

// schemaAction prints the JSON schema of the stream configuration file.
func schemaAction(_ context.Context, _ *cli.Command) error {
	schema, err := stream.OptionsSchema()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	tokenFlag := &cli.StringFlag{
		Name:    "token",
		Aliases: []string{"k"},
		Usage:   "Provider API token",
		Sources: cli.EnvVars("FINNHUB_TOKEN"),
	}

	baseURLFlag := &cli.StringFlag{
		Name:  "base-url",
		Usage: "REST API base URL (defaults to the provider's)",
	}

	tickerFlag := &cli.StringFlag{
		Name:     "ticker",
		Aliases:  []string{"t"},
		Usage:    "Instrument symbol",
		Required: true,
	}

	cmd := &cli.Command{
		Name:  "tickstream",
		Usage: "Stream and fetch market data",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Stream live trades for one or more symbols",
				Flags: []cli.Flag{
					tokenFlag,
					&cli.StringSliceFlag{
						Name:    "symbol",
						Aliases: []string{"s"},
						Usage:   "Symbol to subscribe to (repeatable)",
					},
					&cli.StringFlag{
						Name:    "endpoint",
						Aliases: []string{"e"},
						Usage:   "Websocket endpoint (defaults to the provider's)",
					},
					&cli.IntFlag{
						Name:  "capacity",
						Usage: "Rolling history length per symbol",
					},
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to a YAML configuration file",
					},
				},
				Action: runAction,
			},
			{
				Name:  "candles",
				Usage: "Fetch historical OHLCV bars",
				Flags: []cli.Flag{
					tokenFlag,
					baseURLFlag,
					tickerFlag,
					&cli.StringFlag{
						Name:    "resolution",
						Aliases: []string{"r"},
						Usage:   "Bar resolution: 1, 5, 15, 30, 60, D, W, M",
						Value:   string(history.ResolutionDaily),
					},
					&cli.TimestampFlag{
						Name:     "from",
						Usage:    "Range start in `YYYY-MM-DD` format",
						Required: true,
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
					&cli.TimestampFlag{
						Name:  "to",
						Usage: "Range end in `YYYY-MM-DD` format. Defaults to now.",
						Value: time.Now(),
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
				},
				Action: candlesAction,
			},
			{
				Name:   "quote",
				Usage:  "Fetch the current quote for a symbol",
				Flags:  []cli.Flag{tokenFlag, baseURLFlag, tickerFlag},
				Action: quoteAction,
			},
			{
				Name:  "symbols",
				Usage: "List the symbol directory for an exchange",
				Flags: []cli.Flag{
					tokenFlag,
					baseURLFlag,
					&cli.StringFlag{
						Name:    "exchange",
						Aliases: []string{"x"},
						Usage:   "Exchange code, e.g. US",
						Value:   "US",
					},
				},
				Action: symbolsAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the configuration file",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
