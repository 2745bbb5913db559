package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/quantfold/tickstream/internal/logger"
	"github.com/quantfold/tickstream/pkg/errors"
)

// Subscription is the caller-facing handle composing the history store, the
// subscription registry, the stream connection and the dispatcher. All
// lifecycle is threaded through this instance; there is no ambient
// connection state.
type Subscription struct {
	opts Options
	log  *logger.Logger

	store      *HistoryStore
	registry   *SubscriptionRegistry
	dispatcher *Dispatcher
	conn       *StreamConnection

	defaultHandler TickHandler

	closeOnce sync.Once
	closed    atomic.Bool
}

// Connect validates opts, opens the streaming connection and subscribes to
// the initial symbols with onTick bound as the handler for all of them.
// Configuration errors fail fast, before any connection attempt.
func Connect(ctx context.Context, symbols []string, onTick TickHandler, opts Options) (*Subscription, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to create logger", err)
	}

	transport, err := newWSTransport(opts.Endpoint, opts.Token, opts.DialTimeout)
	if err != nil {
		return nil, err
	}

	return connectWith(ctx, symbols, onTick, opts, transport, log)
}

// connectWith is the injection point for tests: it accepts an arbitrary
// transport and logger.
func connectWith(ctx context.Context, symbols []string, onTick TickHandler, opts Options,
	transport Transport, log *logger.Logger,
) (*Subscription, error) {
	onError := opts.OnError
	if onError == nil {
		onError = func(err error) {
			log.Warn("stream error", zap.Error(err))
		}
	}

	store := NewHistoryStore(opts.HistoryCapacity, opts.HistoryCapacityBySymbol)
	registry := NewSubscriptionRegistry()

	dispatcher := newDispatcher(store, registry, log, onError, opts.CallbackQueueDepth, opts.OverflowPolicy)
	dispatcher.Start()

	conn := newStreamConnection(transport, log, connConfig{
		maxReconnectAttempts: opts.MaxReconnectAttempts,
		heartbeatTimeout:     opts.HeartbeatTimeout,
		reconnectMinDelay:    opts.ReconnectMinDelay,
		reconnectMaxDelay:    opts.ReconnectMaxDelay,
	})

	sub := &Subscription{
		opts:           opts,
		log:            log,
		store:          store,
		registry:       registry,
		dispatcher:     dispatcher,
		conn:           conn,
		defaultHandler: onTick,
	}

	conn.onEvent = dispatcher.Enqueue
	conn.onError = onError
	conn.onConnected = sub.replaySubscriptions

	sub.bind(symbols, onTick)

	if err := conn.Start(ctx); err != nil {
		dispatcher.Close()

		return nil, err
	}

	return sub, nil
}

// bind records the symbols in the registry and pre-creates their histories,
// without sending protocol messages.
func (s *Subscription) bind(symbols []string, handler TickHandler) []string {
	if handler == nil {
		handler = s.defaultHandler
	}

	newly := s.registry.Bind(symbols, handler)
	for _, symbol := range symbols {
		s.store.Track(symbol)
	}

	return newly
}

// replaySubscriptions reconciles the desired symbol set against a fresh
// remote state. Runs on every transition to Connected, which makes
// reconnection transparent to the caller.
func (s *Subscription) replaySubscriptions() {
	symbols := s.registry.ActiveSymbols()
	for _, symbol := range symbols {
		if err := s.conn.Send(subscribeMessage(symbol)); err != nil {
			s.log.Warn("failed to send subscribe", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	if len(symbols) > 0 {
		s.log.Info("replayed subscriptions", zap.Int("count", len(symbols)))
	}
}

// Subscribe binds handler to the symbols and sends one subscribe message per
// newly bound symbol. A nil handler reuses the handler given to Connect.
// Subscribing an already-subscribed symbol replaces its binding without a
// duplicate protocol message. While the connection is down the messages are
// queued or covered by the reconnect replay.
func (s *Subscription) Subscribe(symbols []string, handler TickHandler) error {
	if s.closed.Load() {
		return errors.New(errors.ErrCodeConnectionClosed, "subscription is closed")
	}

	newly := s.bind(symbols, handler)
	for _, symbol := range newly {
		if err := s.conn.Send(subscribeMessage(symbol)); err != nil {
			return err
		}
	}

	return nil
}

// Unsubscribe removes the symbols' bindings and histories and sends one
// unsubscribe message per symbol that was actually subscribed. Unknown
// symbols are a no-op.
func (s *Subscription) Unsubscribe(symbols []string) {
	removed := s.registry.Unbind(symbols)
	for _, symbol := range removed {
		s.store.Remove(symbol)

		if err := s.conn.Send(unsubscribeMessage(symbol)); err != nil {
			s.log.Warn("failed to send unsubscribe", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

// History returns a snapshot of the symbol's rolling history, oldest first.
func (s *Subscription) History(symbol string) ([]Tick, bool) {
	return s.store.Get(symbol)
}

// Latest returns the most recent tick seen for symbol, if any.
func (s *Subscription) Latest(symbol string) optional.Option[Tick] {
	return s.store.Latest(symbol)
}

// ActiveSymbols returns the currently subscribed symbols in sorted order.
func (s *Subscription) ActiveSymbols() []string {
	return s.registry.ActiveSymbols()
}

// State returns the connection state.
func (s *Subscription) State() ConnectionState {
	return s.conn.State()
}

// DroppedEvents returns the number of events lost to callback queue overflow.
func (s *Subscription) DroppedEvents() uint64 {
	return s.dispatcher.Dropped()
}

// DecodeFailures returns the number of malformed inbound messages skipped.
func (s *Subscription) DecodeFailures() uint64 {
	return s.conn.DecodeFailures()
}

// Close stops the receive loop, closes the transport and stops handler
// dispatch. Idempotent: a second call is a no-op. Unless
// RetainHistoryOnClose is set, per-symbol history is released. After Close
// returns no handler is invoked again, even for events still buffered.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		_ = s.conn.Close()
		s.dispatcher.Close()

		if !s.opts.RetainHistoryOnClose {
			s.store.Clear()
		}

		_ = s.log.Sync()
	})

	return nil
}
