package mocks

import (
	"testing"
)

func TestDataGenerator_GenerateTicks(t *testing.T) {
	gen := NewDataGenerator(42) // Fixed seed for reproducibility
	config := DefaultConfig()
	config.Count = 100

	ticks := gen.GenerateTicks(config)

	if len(ticks) != 100 {
		t.Errorf("expected 100 ticks, got %d", len(ticks))
	}

	// Verify timestamps are strictly increasing
	for i := 1; i < len(ticks); i++ {
		if ticks[i].Timestamp <= ticks[i-1].Timestamp {
			t.Errorf("timestamps not strictly increasing at index %d", i)
		}
	}

	// Verify symbol is set correctly
	for i, tick := range ticks {
		if tick.Symbol != config.Symbol {
			t.Errorf("expected symbol %s at index %d, got %s", config.Symbol, i, tick.Symbol)
		}
	}

	// Verify prices and volumes are positive
	for i, tick := range ticks {
		if tick.Price <= 0 {
			t.Errorf("invalid price at index %d: %f", i, tick.Price)
		}
		if tick.Volume < 0 {
			t.Errorf("invalid volume at index %d: %f", i, tick.Volume)
		}
	}

	// Verify time intervals
	expectedInterval := config.Interval.Milliseconds()
	for i := 1; i < len(ticks); i++ {
		actualInterval := ticks[i].Timestamp - ticks[i-1].Timestamp
		if actualInterval != expectedInterval {
			t.Errorf("unexpected interval at index %d: expected %d, got %d",
				i, expectedInterval, actualInterval)
		}
	}
}

func TestDataGenerator_GenerateCandles(t *testing.T) {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 100

	candles := gen.GenerateCandles(config)

	if len(candles) != 100 {
		t.Errorf("expected 100 candles, got %d", len(candles))
	}

	// Verify OHLC values are positive
	for i, c := range candles {
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			t.Errorf("invalid OHLC values at index %d: O=%f H=%f L=%f C=%f",
				i, c.Open, c.High, c.Low, c.Close)
		}
	}

	// Verify High >= Low
	for i, c := range candles {
		if c.High < c.Low {
			t.Errorf("High < Low at index %d: H=%f L=%f", i, c.High, c.Low)
		}
	}

	// Verify chronological order
	for i := 1; i < len(candles); i++ {
		if !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			t.Errorf("candles not in chronological order at index %d", i)
		}
	}
}

func TestDataGenerator_Reproducibility(t *testing.T) {
	// Same seed should produce same results
	gen1 := NewDataGenerator(42)
	gen2 := NewDataGenerator(42)

	config := DefaultConfig()
	config.Count = 10

	ticks1 := gen1.GenerateTicks(config)
	ticks2 := gen2.GenerateTicks(config)

	for i := range ticks1 {
		if ticks1[i].Price != ticks2[i].Price {
			t.Errorf("ticks not reproducible at index %d: got %f and %f",
				i, ticks1[i].Price, ticks2[i].Price)
		}
	}
}

func TestDataGenerator_DifferentSeeds(t *testing.T) {
	gen1 := NewDataGenerator(42)
	gen2 := NewDataGenerator(123)

	config := DefaultConfig()
	config.Count = 10

	ticks1 := gen1.GenerateTicks(config)
	ticks2 := gen2.GenerateTicks(config)

	same := true
	for i := range ticks1 {
		if ticks1[i].Price != ticks2[i].Price {
			same = false
			break
		}
	}

	if same {
		t.Error("different seeds produced identical series")
	}
}

func TestDataGenerator_MultiSymbolInterleaving(t *testing.T) {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 10

	symbols := []string{"AAPL", "MSFT"}
	ticks := gen.GenerateMultiSymbol(symbols, config)

	if len(ticks) != 20 {
		t.Errorf("expected 20 ticks, got %d", len(ticks))
	}

	// Symbols alternate within each time slot
	for i := 0; i < len(ticks); i += 2 {
		if ticks[i].Symbol != "AAPL" || ticks[i+1].Symbol != "MSFT" {
			t.Errorf("unexpected symbol order at index %d: %s, %s",
				i, ticks[i].Symbol, ticks[i+1].Symbol)
		}
	}
}
