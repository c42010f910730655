package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaykit/relay-go/contracts"
	"github.com/relaykit/relay-go/endpoint"
)

type callResult struct {
	payload json.RawMessage
	err     error
}

// Bridge presents a synchronous call contract over the asynchronous channel:
// Call blocks its caller until the correlated reply arrives, the context
// expires, or the bridge is closed. It is safe for concurrent callers; each
// waiter is signaled through its own channel.
type Bridge struct {
	tag     string
	msgType string
	conn    endpoint.Connection
	logger  *slog.Logger

	defaultTimeout time.Duration
	maxPending     int

	mu      sync.Mutex
	pending map[string]chan callResult
	closed  bool
}

// Option configures the Bridge
type Option func(*config)

type config struct {
	logger         *slog.Logger
	defaultTimeout time.Duration
	maxPending     int
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithDefaultTimeout bounds calls whose context carries no deadline
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.defaultTimeout = timeout
	}
}

// WithMaxPendingCalls limits the number of concurrently outstanding calls
func WithMaxPendingCalls(max int) Option {
	return func(c *config) {
		c.maxPending = max
	}
}

// New creates a bridge and registers it with the connection
func New(conn endpoint.Connection, tag string, msgType string, opts ...Option) (*Bridge, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection cannot be nil")
	}
	if tag == "" {
		return nil, fmt.Errorf("tag cannot be empty")
	}
	if msgType == "" {
		return nil, fmt.Errorf("message type cannot be empty")
	}

	cfg := &config{
		logger:         slog.Default(),
		defaultTimeout: 30 * time.Second,
		maxPending:     1000,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	b := &Bridge{
		tag:            tag,
		msgType:        msgType,
		conn:           conn,
		logger:         cfg.logger,
		defaultTimeout: cfg.defaultTimeout,
		maxPending:     cfg.maxPending,
		pending:        make(map[string]chan callResult),
	}

	if err := conn.RegisterInterface(tag, b); err != nil {
		return nil, fmt.Errorf("failed to register bridge for tag %s: %w", tag, err)
	}

	return b, nil
}

// Call sends the payload downstream and blocks until the correlated reply
// arrives, the context is done, or the bridge is closed. Teardown surfaces as
// contracts.ErrCancelled, distinguishable from any genuine reply.
func (b *Bridge) Call(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, contracts.ErrClosed
	}
	if b.maxPending > 0 && len(b.pending) >= b.maxPending {
		b.mu.Unlock()
		return nil, fmt.Errorf("too many pending calls on tag %s", b.tag)
	}

	id := uuid.New().String()
	ch := make(chan callResult, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	if b.defaultTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.defaultTimeout)
			defer cancel()
		}
	}

	if err := b.conn.SendMessage(ctx, b.tag, b.msgType, payload, id); err != nil {
		b.discard(id)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.payload, nil
	case <-ctx.Done():
		if !b.discard(id) {
			// The resolver won the race and has already committed a result
			// into the buffered channel.
			res := <-ch
			if res.err != nil {
				return nil, res.err
			}
			return res.payload, nil
		}
		return nil, ctx.Err()
	}
}

// Deliver implements endpoint.Handler. Result write and waiter wakeup travel
// together through the buffered channel; the id is consumed under the lock so
// whichever of reply delivery and teardown observes it first wins.
func (b *Bridge) Deliver(msgType string, payload json.RawMessage, correlationID string) error {
	if msgType != b.msgType {
		return &contracts.TypeMismatchError{Tag: b.tag, Want: b.msgType, Got: msgType}
	}

	b.mu.Lock()
	ch, ok := b.pending[correlationID]
	if ok {
		delete(b.pending, correlationID)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("dropping reply with no pending call",
			"tag", b.tag,
			"correlationId", correlationID,
		)
		return nil
	}

	ch <- callResult{payload: payload}
	return nil
}

// discard removes a pending id, reporting whether it was still present.
func (b *Bridge) discard(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	return ok
}

// PendingCalls returns the number of callers currently blocked
func (b *Bridge) PendingCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close unregisters the bridge and wakes every blocked caller with
// contracts.ErrCancelled. Close is idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	waiters := b.pending
	b.pending = make(map[string]chan callResult)
	b.mu.Unlock()

	b.conn.UnregisterInterface(b.tag, b)

	for _, ch := range waiters {
		ch <- callResult{err: contracts.ErrCancelled}
	}

	if len(waiters) > 0 {
		b.logger.Debug("cancelled blocked callers on close",
			"tag", b.tag,
			"count", len(waiters),
		)
	}
	return nil
}
