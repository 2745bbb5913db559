package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/quantfold/tickstream/internal/logger"
	"github.com/quantfold/tickstream/pkg/errors"
)

// ConnectionState is the lifecycle state of a StreamConnection. It is owned
// exclusively by the connection; other components observe it via State().
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
)

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// connConfig is the subset of Options the connection needs.
type connConfig struct {
	maxReconnectAttempts int
	heartbeatTimeout     time.Duration
	reconnectMinDelay    time.Duration
	reconnectMaxDelay    time.Duration
}

// StreamConnection owns the transport lifecycle: connect, send, the receive
// loop, reconnect with exponential backoff, and close. The receive loop is
// the only caller of DecodeMessage and the only writer of ConnectionState.
type StreamConnection struct {
	transport Transport
	log       *logger.Logger
	cfg       connConfig

	// onEvent receives every decoded event except pings, in arrival order.
	onEvent func(Event)
	// onConnected fires on every transition to Connected, before queued
	// messages are flushed. The facade replays subscribes here.
	onConnected func()
	// onError observes transport and protocol errors without terminating
	// the connection unless the error is fatal.
	onError func(error)

	state atomic.Int32

	pendingMu sync.Mutex
	pending   [][]byte // control messages queued while not connected

	lastActivity   atomic.Int64 // unix nanos of the last inbound message
	decodeFailures atomic.Uint64

	closeOnce sync.Once
	closing   chan struct{} // closed when Close begins
	done      chan struct{} // closed when the run loop exits
}

// newStreamConnection wires a connection around transport. The hooks must be
// set before Start.
func newStreamConnection(transport Transport, log *logger.Logger, cfg connConfig) *StreamConnection {
	c := &StreamConnection{
		transport:   transport,
		log:         log,
		cfg:         cfg,
		onEvent:     func(Event) {},
		onConnected: func() {},
		onError:     func(error) {},
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.state.Store(int32(StateDisconnected))

	return c
}

// State returns the current connection state.
func (c *StreamConnection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *StreamConnection) setState(s ConnectionState) {
	c.state.Store(int32(s))
}

// DecodeFailures returns the count of malformed inbound messages skipped by
// the receive loop.
func (c *StreamConnection) DecodeFailures() uint64 {
	return c.decodeFailures.Load()
}

// Start connects synchronously (retrying within the attempt budget) and
// launches the receive loop and the liveness watchdog.
func (c *StreamConnection) Start(ctx context.Context) error {
	c.setState(StateConnecting)

	if err := c.connect(ctx); err != nil {
		c.setState(StateDisconnected)

		return err
	}

	go c.run(ctx)
	go c.watchdog()

	return nil
}

// Send writes a control message if connected, queues it while connecting or
// disconnected, and fails once the connection is closing.
func (c *StreamConnection) Send(data []byte) error {
	switch c.State() {
	case StateClosing, StateClosed:
		return errors.New(errors.ErrCodeConnectionClosed, "connection is closed")
	case StateConnected:
		return c.transport.WriteMessage(data)
	default:
		c.pendingMu.Lock()
		c.pending = append(c.pending, data)
		c.pendingMu.Unlock()

		return nil
	}
}

// Close transitions to Closed and is idempotent. Closing the transport
// unblocks the receive loop even when the peer is wedged; Close waits a
// bounded time for the loop to exit.
func (c *StreamConnection) Close() error {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		close(c.closing)
		_ = c.transport.Close()

		select {
		case <-c.done:
		case <-time.After(5 * time.Second):
			c.log.Warn("receive loop did not exit before close deadline")
		}

		c.setState(StateClosed)
	})

	return nil
}

// connect dials with exponential backoff until it succeeds, the attempt
// budget is exhausted, or the connection is closed.
func (c *StreamConnection) connect(ctx context.Context) error {
	c.setState(StateConnecting)

	b := &backoff.Backoff{
		Min:    c.cfg.reconnectMinDelay,
		Max:    c.cfg.reconnectMaxDelay,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; ; attempt++ {
		err := c.transport.Connect(ctx)
		if err == nil {
			c.lastActivity.Store(time.Now().UnixNano())
			c.setState(StateConnected)
			c.log.Info("stream connected", zap.Int("attempt", attempt))

			// Replay the desired subscription set against the fresh
			// remote state, then flush anything queued meanwhile.
			c.onConnected()
			c.flushPending()

			return nil
		}

		c.log.Warn("connect attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if c.cfg.maxReconnectAttempts > 0 && attempt >= c.cfg.maxReconnectAttempts {
			return errors.Wrapf(errors.ErrCodeRetriesExhausted, err, "giving up after %d attempts", attempt)
		}

		select {
		case <-time.After(b.Duration()):
		case <-c.closing:
			return errors.New(errors.ErrCodeConnectionClosed, "connection closed while reconnecting")
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCodeConnectFailed, "context cancelled while connecting", ctx.Err())
		}
	}
}

func (c *StreamConnection) flushPending() {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = nil
	c.pendingMu.Unlock()

	for _, data := range pending {
		if err := c.transport.WriteMessage(data); err != nil {
			c.log.Warn("failed to flush queued message", zap.Error(err))
		}
	}
}

// run owns the receive loop across reconnects.
func (c *StreamConnection) run(ctx context.Context) {
	defer close(c.done)

	for {
		err := c.readLoop()

		select {
		case <-c.closing:
			return
		default:
		}

		if errors.IsFatal(err) {
			// Fatal protocol error: close permanently, no reconnect.
			_ = c.transport.Close()
			c.setState(StateClosed)

			return
		}

		c.onError(err)
		_ = c.transport.Close()

		if err := c.connect(ctx); err != nil {
			c.setState(StateDisconnected)
			c.onError(err)

			return
		}
	}
}

// readLoop reads and decodes messages until the transport errors. Decode
// failures are counted and skipped; they never tear the stream down.
func (c *StreamConnection) readLoop() error {
	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			return err
		}

		c.lastActivity.Store(time.Now().UnixNano())

		event, err := DecodeMessage(data)
		if err != nil {
			c.decodeFailures.Add(1)
			c.log.Warn("skipping malformed message", zap.Error(err))

			continue
		}

		switch event.Type {
		case EventPing:
			// Liveness only; never reaches the dispatcher.
		case EventServerError:
			serverErr := classifyServerError(event.Message)
			c.onError(serverErr)

			if errors.IsFatal(serverErr) {
				return serverErr
			}
		case EventTrade, EventAck, EventUnknown:
			c.onEvent(event)
		}
	}
}

// watchdog forces a reconnect when the connection stays silent longer than
// the heartbeat timeout.
func (c *StreamConnection) watchdog() {
	if c.cfg.heartbeatTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(c.cfg.heartbeatTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-c.closing:
			return
		case <-c.done:
			return
		case <-ticker.C:
			if c.State() != StateConnected {
				continue
			}

			elapsed := time.Since(time.Unix(0, c.lastActivity.Load()))
			if elapsed < c.cfg.heartbeatTimeout {
				continue
			}

			c.log.Warn("no message within heartbeat timeout, forcing reconnect",
				zap.Duration("elapsed", elapsed))
			c.onError(errors.Newf(errors.ErrCodeHeartbeatTimeout,
				"no message for %s", elapsed.Round(time.Millisecond)))

			// Closing the transport makes the receive loop error out and
			// take the reconnect path.
			_ = c.transport.Close()
		}
	}
}

// classifyServerError maps a server-reported error message to a structured
// error. Credential rejections are fatal; everything else stays non-fatal
// and leaves the connection open.
func classifyServerError(message string) error {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "auth") || strings.Contains(lower, "api key") || strings.Contains(lower, "token") {
		return errors.Newf(errors.ErrCodeAuthRejected, "provider rejected credentials: %s", message)
	}

	return errors.Newf(errors.ErrCodeServerError, "provider error: %s", message)
}
