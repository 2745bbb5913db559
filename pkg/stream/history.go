package stream

import (
	"github.com/moznion/go-optional"
)

// SymbolHistory is a fixed-capacity rolling buffer of ticks for one symbol.
// Appending to a full buffer evicts the oldest tick, strictly by arrival
// order: out-of-order timestamps are possible and the history is kept in
// stream order, not time order.
//
// SymbolHistory is not safe for concurrent use; it is owned by a
// HistoryStore, which synchronizes access.
type SymbolHistory struct {
	symbol string
	buf    []Tick
	head   int // index of the oldest tick
	size   int
}

// NewSymbolHistory creates a history for symbol with the given capacity.
// Capacity must be at least 1; the HistoryStore validates it upstream.
func NewSymbolHistory(symbol string, capacity int) *SymbolHistory {
	if capacity < 1 {
		capacity = 1
	}

	return &SymbolHistory{
		symbol: symbol,
		buf:    make([]Tick, capacity),
		head:   0,
		size:   0,
	}
}

// Append adds a tick, evicting the oldest when the buffer is full. O(1).
func (h *SymbolHistory) Append(tick Tick) {
	if h.size < len(h.buf) {
		h.buf[(h.head+h.size)%len(h.buf)] = tick
		h.size++

		return
	}

	h.buf[h.head] = tick
	h.head = (h.head + 1) % len(h.buf)
}

// Snapshot returns a copy of the buffered ticks, oldest first. The copy is
// safe for the caller to read without further locking.
func (h *SymbolHistory) Snapshot() []Tick {
	out := make([]Tick, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}

	return out
}

// Latest returns the most recently appended tick, if any.
func (h *SymbolHistory) Latest() optional.Option[Tick] {
	if h.size == 0 {
		return optional.None[Tick]()
	}

	return optional.Some(h.buf[(h.head+h.size-1)%len(h.buf)])
}

// Len returns the number of buffered ticks.
func (h *SymbolHistory) Len() int { return h.size }

// Capacity returns the fixed capacity set at creation.
func (h *SymbolHistory) Capacity() int { return len(h.buf) }

// Symbol returns the symbol this history belongs to.
func (h *SymbolHistory) Symbol() string { return h.symbol }
