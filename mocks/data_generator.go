// Package mocks provides deterministic market data generators for tests,
// benchmarks and the mock streaming server.
package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/quantfold/tickstream/pkg/history"
	"github.com/quantfold/tickstream/pkg/stream"
)

// DataGenerator generates realistic tick and candle series for testing.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how market data is generated.
type GeneratorConfig struct {
	// Symbol is the instrument identifier (e.g., "AAPL", "BINANCE:BTCUSDT")
	Symbol string
	// StartTime is the beginning of the series
	StartTime time.Time
	// Interval is the duration between consecutive points
	Interval time.Duration
	// Count is the number of points to generate
	Count int
	// InitialPrice is the starting price
	InitialPrice float64
	// Volatility controls price movement per point (0.002 = 0.2%)
	Volatility float64
	// Trend is the drift factor (-0.01 to 0.01 for bearish to bullish)
	Trend float64
	// VolumeBase is the average volume per point
	VolumeBase float64
	// VolumeVariance is the variance in volume (0.0 to 1.0)
	VolumeVariance float64
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:         "TEST",
		StartTime:      time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		Interval:       time.Second,
		Count:          1000,
		InitialPrice:   100.0,
		Volatility:     0.002,
		Trend:          0.0,
		VolumeBase:     100,
		VolumeVariance: 0.3,
	}
}

// normal draws one standard-normal sample via the Box-Muller transform.
func (g *DataGenerator) normal() float64 {
	u1 := g.rng.Float64()
	u2 := g.rng.Float64()

	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// GenerateTicks creates a tick series following a geometric Brownian motion
// model. Timestamps are strictly increasing by the configured interval.
func (g *DataGenerator) GenerateTicks(config GeneratorConfig) []stream.Tick {
	ticks := make([]stream.Tick, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime

	for i := 0; i < config.Count; i++ {
		priceChange := config.Volatility * g.normal()
		drift := config.Trend / float64(config.Count)

		price := currentPrice * (1 + priceChange + drift)
		if price <= 0 {
			price = currentPrice * 0.99
		}

		volumeVariation := 1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance

		volume := config.VolumeBase * volumeVariation
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		ticks[i] = stream.Tick{
			Symbol:    config.Symbol,
			Price:     roundToDecimals(price, 4),
			Volume:    roundToDecimals(volume, 2),
			Timestamp: currentTime.UnixMilli(),
		}

		currentPrice = price
		currentTime = currentTime.Add(config.Interval)
	}

	return ticks
}

// GenerateCandles creates an OHLCV bar series with the same price model.
func (g *DataGenerator) GenerateCandles(config GeneratorConfig) []history.Candle {
	candles := make([]history.Candle, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime

	for i := 0; i < config.Count; i++ {
		open := currentPrice

		priceChange := config.Volatility * g.normal()
		drift := config.Trend / float64(config.Count)

		closePrice := open * (1 + priceChange + drift)
		if closePrice <= 0 {
			closePrice = open * 0.99
		}

		highExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)
		lowExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)

		high := math.Max(open, closePrice) + highExtension

		low := math.Min(open, closePrice) - lowExtension
		if low <= 0 {
			low = math.Min(open, closePrice) * 0.99
		}

		volumeVariation := 1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance

		volume := config.VolumeBase * volumeVariation
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		candles[i] = history.Candle{
			Open:      roundToDecimals(open, 4),
			High:      roundToDecimals(high, 4),
			Low:       roundToDecimals(low, 4),
			Close:     roundToDecimals(closePrice, 4),
			Volume:    roundToDecimals(volume, 2),
			Timestamp: currentTime,
		}

		currentPrice = closePrice
		currentTime = currentTime.Add(config.Interval)
	}

	return candles
}

// GenerateMultiSymbol generates ticks for multiple symbols, interleaved in
// time order the way a live stream delivers them.
func (g *DataGenerator) GenerateMultiSymbol(symbols []string, baseConfig GeneratorConfig) []stream.Tick {
	perSymbol := make([][]stream.Tick, len(symbols))

	for i, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		// Vary initial price and volatility slightly per symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		perSymbol[i] = g.GenerateTicks(config)
	}

	interleaved := make([]stream.Tick, 0, baseConfig.Count*len(symbols))
	for i := 0; i < baseConfig.Count; i++ {
		for s := range symbols {
			interleaved = append(interleaved, perSymbol[s][i])
		}
	}

	return interleaved
}

// GenerateTicks1K is a convenience function producing 1,000 ticks with a
// fixed seed for reproducibility.
func GenerateTicks1K(symbol string) []stream.Tick {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Symbol = symbol
	config.Count = 1000

	return gen.GenerateTicks(config)
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
