package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func noopHandler() TickHandler {
	return TickHandlerFunc(func(TickView) error { return nil })
}

func TestRegistryBindReportsNewSymbols(t *testing.T) {
	r := NewSubscriptionRegistry()

	newly := r.Bind([]string{"AAPL", "MSFT"}, noopHandler())
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, newly)
}

func TestRegistryBindIsIdempotent(t *testing.T) {
	r := NewSubscriptionRegistry()

	first := TickHandlerFunc(func(TickView) error { return nil })
	second := TickHandlerFunc(func(TickView) error { return nil })

	newly := r.Bind([]string{"AAPL"}, first)
	assert.Equal(t, []string{"AAPL"}, newly)

	// Re-binding replaces the handler but reports nothing new, so no
	// duplicate protocol message is sent.
	newly = r.Bind([]string{"AAPL"}, second)
	assert.Empty(t, newly)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryUnbindUnknownSymbolIsNoOp(t *testing.T) {
	r := NewSubscriptionRegistry()

	removed := r.Unbind([]string{"NEVER-SUBSCRIBED"})
	assert.Empty(t, removed)
}

func TestRegistryUnbindReportsRemoved(t *testing.T) {
	r := NewSubscriptionRegistry()
	r.Bind([]string{"AAPL", "MSFT"}, noopHandler())

	removed := r.Unbind([]string{"AAPL", "GOOG"})
	assert.Equal(t, []string{"AAPL"}, removed)
	assert.Equal(t, []string{"MSFT"}, r.ActiveSymbols())
}

func TestRegistryHandlerLookup(t *testing.T) {
	r := NewSubscriptionRegistry()

	_, ok := r.Handler("AAPL")
	assert.False(t, ok)

	r.Bind([]string{"AAPL"}, noopHandler())

	handler, ok := r.Handler("AAPL")
	assert.True(t, ok)
	assert.NotNil(t, handler)
}

func TestRegistryActiveSymbolsSorted(t *testing.T) {
	r := NewSubscriptionRegistry()
	r.Bind([]string{"MSFT", "AAPL", "GOOG"}, noopHandler())

	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, r.ActiveSymbols())
}
