package stream

import (
	"sort"
	"sync"
)

// SubscriptionRegistry tracks the desired set of subscribed symbols and their
// handler bindings. It is safe to mutate from arbitrary goroutines while the
// receive loop reads it, and it is the source of truth for reconnect replay:
// on every transition to Connected the full active set is diffed against a
// freshly-empty remote state and re-subscribed.
type SubscriptionRegistry struct {
	mu       sync.RWMutex
	bindings map[string]TickHandler
}

// NewSubscriptionRegistry creates an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		bindings: make(map[string]TickHandler),
	}
}

// Bind binds handler to each symbol and returns the symbols that were not
// previously bound. Binding an already-bound symbol replaces its handler
// without reporting it as new, so exactly one subscribe protocol message is
// sent per symbol.
func (r *SubscriptionRegistry) Bind(symbols []string, handler TickHandler) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var newly []string

	for _, symbol := range symbols {
		if _, ok := r.bindings[symbol]; !ok {
			newly = append(newly, symbol)
		}

		r.bindings[symbol] = handler
	}

	return newly
}

// Unbind removes the binding for each symbol and returns the symbols that
// were actually bound. Unbinding an unknown symbol is a no-op.
func (r *SubscriptionRegistry) Unbind(symbols []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string

	for _, symbol := range symbols {
		if _, ok := r.bindings[symbol]; ok {
			removed = append(removed, symbol)
			delete(r.bindings, symbol)
		}
	}

	return removed
}

// Handler returns the handler bound to symbol, if any.
func (r *SubscriptionRegistry) Handler(symbol string) (TickHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.bindings[symbol]

	return handler, ok
}

// ActiveSymbols returns the currently bound symbols in sorted order.
func (r *SubscriptionRegistry) ActiveSymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.bindings))
	for symbol := range r.bindings {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	return symbols
}

// Len returns the number of bound symbols.
func (r *SubscriptionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.bindings)
}
