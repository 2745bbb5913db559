package stream

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/quantfold/tickstream/internal/logger"
	"github.com/quantfold/tickstream/pkg/errors"
)

// Dispatcher consumes decoded events on a single worker goroutine, records
// trades into the history store and invokes the bound handlers. A bounded
// queue decouples it from the receive loop, so a slow handler never stalls
// tick ingestion; the queue's overflow policy bounds the damage instead.
//
// The single worker preserves per-connection event order. Handler errors and
// panics are caught at the call boundary and reported; dispatch continues
// with the next event.
type Dispatcher struct {
	store    *HistoryStore
	registry *SubscriptionRegistry
	log      *logger.Logger
	onError  func(error)
	policy   OverflowPolicy

	queue   chan Event
	dropped atomic.Uint64

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// newDispatcher creates a dispatcher with a queue of the given depth.
func newDispatcher(store *HistoryStore, registry *SubscriptionRegistry, log *logger.Logger,
	onError func(error), depth int, policy OverflowPolicy,
) *Dispatcher {
	if depth < 1 {
		depth = 1
	}

	return &Dispatcher{
		store:    store,
		registry: registry,
		log:      log,
		onError:  onError,
		policy:   policy,
		queue:    make(chan Event, depth),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (d *Dispatcher) Start() {
	go d.run()
}

// Enqueue adds an event without ever blocking the caller. When the queue is
// full the overflow policy decides which event is lost; drops are counted.
// Events enqueued after Close are discarded.
func (d *Dispatcher) Enqueue(event Event) {
	select {
	case <-d.stopped:
		return
	default:
	}

	select {
	case d.queue <- event:
		return
	default:
	}

	if d.policy == DropNewest {
		d.dropped.Add(1)
		d.log.Warn("callback queue full, dropping newest event", zap.String("type", string(event.Type)))

		return
	}

	// Drop-oldest: evict one, then retry. The receive loop is the only
	// producer, so the retry cannot race another Enqueue.
	select {
	case <-d.queue:
		d.dropped.Add(1)
		d.log.Warn("callback queue full, dropped oldest event")
	default:
	}

	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to queue overflow.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops the worker and waits for it to exit. Events still buffered are
// not delivered: after Close returns, no handler runs again.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() {
		close(d.stopped)
	})

	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case <-d.stopped:
			return
		default:
		}

		select {
		case <-d.stopped:
			return
		case event := <-d.queue:
			d.process(event)
		}
	}
}

func (d *Dispatcher) process(event Event) {
	switch event.Type {
	case EventTrade:
		for _, tick := range event.Trades {
			d.dispatchTick(tick)
		}
	case EventAck:
		d.log.Debug("subscription acknowledged", zap.String("symbol", event.Message))
	case EventUnknown:
		d.log.Debug("ignoring unrecognized message", zap.String("type", event.Message))
	case EventPing, EventServerError:
		// Handled on the connection; never queued.
	}
}

// dispatchTick records one tick and invokes its handler. A tick for a
// symbol no longer in the registry raced an unsubscribe: it is recorded
// nowhere and triggers nothing.
func (d *Dispatcher) dispatchTick(tick Tick) {
	handler, ok := d.registry.Handler(tick.Symbol)
	if !ok {
		return
	}

	d.store.RecordTick(tick)

	view := TickView{tick: tick, store: d.store}
	d.invoke(handler, view)
}

func (d *Dispatcher) invoke(handler TickHandler, view TickView) {
	defer func() {
		if r := recover(); r != nil {
			d.onError(errors.Newf(errors.ErrCodeCallbackPanic, "tick handler panicked: %v", r))
		}
	}()

	if err := handler.HandleTick(view); err != nil {
		d.onError(errors.Wrapf(errors.ErrCodeCallbackFailed, err, "tick handler failed for %s", view.Symbol()))
	}
}
