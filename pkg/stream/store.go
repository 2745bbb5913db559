package stream

import (
	"sort"
	"sync"

	"github.com/moznion/go-optional"
)

// HistoryStore owns the mapping from symbol to SymbolHistory. It is the only
// state shared between the receive path (writer) and handler code (readers),
// so every operation is synchronized. Locking is per symbol: one symbol's
// contention never blocks another's.
type HistoryStore struct {
	mu               sync.RWMutex
	entries          map[string]*historyEntry
	defaultCapacity  int
	capacityBySymbol map[string]int
}

type historyEntry struct {
	mu      sync.Mutex
	history *SymbolHistory
}

// NewHistoryStore creates a store. defaultCapacity applies to any symbol
// without an explicit capacity in capacityBySymbol.
func NewHistoryStore(defaultCapacity int, capacityBySymbol map[string]int) *HistoryStore {
	if defaultCapacity < 1 {
		defaultCapacity = 1
	}

	return &HistoryStore{
		entries:          make(map[string]*historyEntry),
		defaultCapacity:  defaultCapacity,
		capacityBySymbol: capacityBySymbol,
	}
}

// entry returns the symbol's entry, creating it lazily.
func (s *HistoryStore) entry(symbol string) *historyEntry {
	s.mu.RLock()
	e, ok := s.entries[symbol]
	s.mu.RUnlock()

	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok = s.entries[symbol]; ok {
		return e
	}

	capacity := s.defaultCapacity
	if c, ok := s.capacityBySymbol[symbol]; ok {
		capacity = c
	}

	e = &historyEntry{
		history: NewSymbolHistory(symbol, capacity),
	}
	s.entries[symbol] = e

	return e
}

// Track ensures a history exists for symbol. Called on subscribe so that
// Get succeeds before the first tick arrives.
func (s *HistoryStore) Track(symbol string) {
	s.entry(symbol)
}

// RecordTick appends the tick to its symbol's history, creating the history
// on first sight of the symbol. Never blocks on network I/O.
func (s *HistoryStore) RecordTick(tick Tick) {
	e := s.entry(tick.Symbol)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.history.Append(tick)
}

// Get returns a snapshot of the symbol's history, oldest first. The second
// return is false when the symbol is not tracked.
func (s *HistoryStore) Get(symbol string) ([]Tick, bool) {
	s.mu.RLock()
	e, ok := s.entries[symbol]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.history.Snapshot(), true
}

// Latest returns the most recent tick for symbol, if any.
func (s *HistoryStore) Latest(symbol string) optional.Option[Tick] {
	s.mu.RLock()
	e, ok := s.entries[symbol]
	s.mu.RUnlock()

	if !ok {
		return optional.None[Tick]()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.history.Latest()
}

// Remove drops the symbol's history. Idempotent.
func (s *HistoryStore) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, symbol)
}

// Symbols returns the tracked symbols in sorted order.
func (s *HistoryStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.entries))
	for symbol := range s.entries {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	return symbols
}

// Clear drops all histories.
func (s *HistoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*historyEntry)
}
