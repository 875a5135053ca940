package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Transport carries raw protocol frames.
//
// ReadMessage is only ever called from a single goroutine. WriteMessage may
// be called concurrently and implementations must serialize writes. Close
// must unblock a ReadMessage in progress.
type Transport interface {
	Open(ctx context.Context) error
	WriteMessage(ctx context.Context, data []byte) error
	ReadMessage(ctx context.Context) ([]byte, error)
	Close() error
}

// Events that mean the inspected target is gone.
const (
	eventInspectorDetached = "Inspector.detached"
	eventTargetDetached    = "Target.detachedFromTarget"
)

// reply is what the read loop hands to a waiting SendCommand.
type reply struct {
	msg Message
	err error
}

// Conn correlates commands with responses and dispatches events over a
// Transport.
type Conn struct {
	transport Transport
	logger    *slog.Logger
	bus       *Bus

	// lifecycle serializes Connect and Disconnect.
	lifecycle sync.Mutex

	nextID atomic.Int64

	mu        sync.Mutex
	connected bool
	closing   bool
	pending   map[int64]chan reply
	done      chan struct{}

	detached chan error
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger used for protocol tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

// NewConn creates a Conn over t. Nothing is opened until Connect.
func NewConn(t Transport, opts ...Option) *Conn {
	c := &Conn{
		transport: t,
		bus:       NewBus(),
		pending:   make(map[int64]chan reply),
		detached:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Connect opens the transport and starts the read loop. Calling Connect on
// an established connection returns nil without touching the transport.
func (c *Conn) Connect(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.transport.Open(ctx); err != nil {
		return fmt.Errorf("devtools: open transport: %w", err)
	}

	// A stale detach from a previous session must not leak into this one.
	select {
	case <-c.detached:
	default:
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.connected = true
	c.closing = false
	c.done = done
	c.mu.Unlock()

	go c.readLoop(done)

	c.logger.Debug("devtools connection established")
	return nil
}

// Connected reports whether the connection is usable.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect closes the transport, rejects pending commands with
// ErrConnectionClosed and drops every event subscription. It is a no-op on a
// connection that was never established.
func (c *Conn) Disconnect() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	done := c.done
	if done == nil {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.connected = false
	c.mu.Unlock()

	err := c.transport.Close()
	<-done

	c.mu.Lock()
	c.rejectPendingLocked(ErrConnectionClosed)
	c.done = nil
	c.closing = false
	c.mu.Unlock()

	c.bus.Reset()
	c.logger.Debug("devtools connection closed")

	if err != nil {
		return fmt.Errorf("devtools: close transport: %w", err)
	}
	return nil
}

// Detached delivers an error wrapping ErrDetached when the target goes
// away mid-session. Nothing is sent for a Disconnect initiated locally.
func (c *Conn) Detached() <-chan error {
	return c.detached
}

// SendCommand sends method with params and waits for the matching response.
// It returns the raw result, a *ProtocolError for an error response, or an
// *ExceptionError when the result reports a thrown page exception.
func (c *Conn) SendCommand(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot send %s", ErrNotConnected, method)
	}
	id := c.nextID.Add(1)
	ch := make(chan reply, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	frame, err := json.Marshal(command{ID: id, Method: method, Params: params})
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("devtools: encode %s: %w", method, err)
	}

	c.logger.Debug("protocol command", "method", method, "id", id)
	if err := c.transport.WriteMessage(ctx, frame); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("devtools: send %s: %w", method, err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("devtools: %s: %w", method, r.err)
		}
		if r.msg.Error != nil {
			perr := *r.msg.Error
			perr.Method = method
			return nil, &perr
		}
		if exc := exceptionDetails(r.msg.Result); exc != nil {
			return nil, &ExceptionError{Method: method, Details: *exc}
		}
		return r.msg.Result, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, fmt.Errorf("devtools: %s: %w", method, ctx.Err())
	}
}

// On subscribes h to every event named method.
func (c *Conn) On(method string, h Handler) *Subscription {
	return c.bus.Subscribe(method, h)
}

// Once subscribes h to the next event named method.
func (c *Conn) Once(method string, h Handler) *Subscription {
	return c.bus.SubscribeOnce(method, h)
}

// Off cancels a subscription made with On or Once.
func (c *Conn) Off(s *Subscription) {
	s.Cancel()
}

// ListenerCount returns the number of live subscribers for method.
func (c *Conn) ListenerCount(method string) int {
	return c.bus.Len(method)
}

func (c *Conn) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) readLoop(done chan struct{}) {
	defer close(done)

	for {
		data, err := c.transport.ReadMessage(context.Background())
		if err != nil {
			c.fail(err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("dropping malformed protocol frame", "error", err)
			continue
		}

		switch {
		case msg.IsEvent():
			c.dispatch(msg)
		case msg.ID != 0:
			c.resolve(msg)
		default:
			c.logger.Debug("ignoring protocol frame without id or method")
		}
	}
}

func (c *Conn) resolve(msg Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("response for unknown command", "id", msg.ID)
		return
	}
	ch <- reply{msg: msg}
}

func (c *Conn) dispatch(msg Message) {
	if msg.Method == eventInspectorDetached || msg.Method == eventTargetDetached {
		var p struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(msg.Params, &p) //nolint:errcheck // reason is informational
		c.signalDetached(fmt.Errorf("%w: %s %s", ErrDetached, msg.Method, p.Reason))
	}
	c.bus.Publish(msg.Method, msg.Params)
}

// fail handles the read loop terminating. Pending commands are rejected with
// the transport error; if the session was not being closed locally, the
// detach is also reported out of band.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	closing := c.closing
	c.connected = false
	if closing {
		c.mu.Unlock()
		return
	}
	c.rejectPendingLocked(err)
	c.mu.Unlock()

	c.logger.Error("devtools connection lost", "error", err)
	c.signalDetached(fmt.Errorf("%w: %w", ErrDetached, err))
}

func (c *Conn) signalDetached(err error) {
	select {
	case c.detached <- err:
	default:
	}
}

func (c *Conn) rejectPendingLocked(err error) {
	for id, ch := range c.pending {
		ch <- reply{err: err}
		delete(c.pending, id)
	}
}

// IsDetached reports whether err signals a lost target.
func IsDetached(err error) bool {
	return errors.Is(err, ErrDetached)
}
