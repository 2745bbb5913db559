// Package stream implements the real-time market data subscription engine:
// a long-lived websocket connection multiplexing per-symbol trade
// subscriptions, with bounded rolling history per symbol and non-blocking
// callback dispatch.
package stream

import (
	"time"
)

// Tick is one trade observation for a symbol. Immutable once decoded.
// The wire format uses the provider's short field names.
type Tick struct {
	// Symbol is the exchange-qualified instrument identifier.
	Symbol string `json:"s"`
	// Price is the trade price.
	Price float64 `json:"p"`
	// Volume is the traded volume.
	Volume float64 `json:"v"`
	// Timestamp is the trade time in milliseconds since the Unix epoch.
	Timestamp int64 `json:"t"`
}

// Time returns the trade time as a time.Time.
func (t Tick) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// TickHandler consumes one tick. A returned error is reported through the
// subscription's error callback; it never stops dispatch.
type TickHandler interface {
	HandleTick(view TickView) error
}

// TickHandlerFunc adapts a plain function to a TickHandler.
type TickHandlerFunc func(view TickView) error

// HandleTick implements TickHandler.
func (f TickHandlerFunc) HandleTick(view TickView) error {
	return f(view)
}

// TickView is the read-only view handed to tick handlers. It exposes the
// tick itself plus an accessor for the symbol's rolling history snapshot.
type TickView struct {
	tick  Tick
	store *HistoryStore
}

// Symbol returns the tick's symbol.
func (v TickView) Symbol() string { return v.tick.Symbol }

// Price returns the tick's trade price.
func (v TickView) Price() float64 { return v.tick.Price }

// Volume returns the tick's traded volume.
func (v TickView) Volume() float64 { return v.tick.Volume }

// Time returns the tick's trade time.
func (v TickView) Time() time.Time { return v.tick.Time() }

// Tick returns the underlying tick value.
func (v TickView) Tick() Tick { return v.tick }

// History returns a snapshot of the symbol's rolling history, oldest first.
// The snapshot is a copy and safe to keep past the handler invocation.
func (v TickView) History() []Tick {
	snapshot, ok := v.store.Get(v.tick.Symbol)
	if !ok {
		return nil
	}

	return snapshot
}
