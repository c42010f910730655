package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relaykit/relay-go/contracts"
	"github.com/relaykit/relay-go/endpoint"
	"github.com/relaykit/relay-go/internal/reliability"
	"github.com/relaykit/relay-go/serialization"
)

// Transport implements endpoint.Connection over a WebSocket. Envelopes travel
// as JSON text frames. A single read loop is the only delivery path: it
// dispatches each inbound envelope to the handler registered for its tag, so
// per-tag delivery is single threaded.
type Transport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu      sync.Mutex
	writeTimeout time.Duration

	handlerMu sync.RWMutex
	handlers  map[string]endpoint.Handler

	done      chan struct{}
	closeOnce sync.Once
}

// TransportOption configures the Transport
type TransportOption func(*transportConfig)

type transportConfig struct {
	logger       *slog.Logger
	dialer       *websocket.Dialer
	retryPolicy  reliability.RetryPolicy
	writeTimeout time.Duration
}

// WithTransportLogger sets the logger
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(c *transportConfig) {
		c.logger = logger
	}
}

// WithDialer sets a custom websocket dialer
func WithDialer(dialer *websocket.Dialer) TransportOption {
	return func(c *transportConfig) {
		c.dialer = dialer
	}
}

// WithConnectRetryPolicy sets the backoff applied while dialing
func WithConnectRetryPolicy(policy reliability.RetryPolicy) TransportOption {
	return func(c *transportConfig) {
		c.retryPolicy = policy
	}
}

// WithWriteTimeout bounds each frame write
func WithWriteTimeout(timeout time.Duration) TransportOption {
	return func(c *transportConfig) {
		c.writeTimeout = timeout
	}
}

// Dial connects to a relay server and starts the read loop
func Dial(ctx context.Context, url string, options ...TransportOption) (*Transport, error) {
	cfg := &transportConfig{
		logger:       slog.Default(),
		dialer:       websocket.DefaultDialer,
		retryPolicy:  reliability.NewExponentialBackoff(250*time.Millisecond, 5*time.Second, 2.0, 5),
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range options {
		opt(cfg)
	}

	var conn *websocket.Conn
	err := reliability.Retry(ctx, cfg.retryPolicy, func() error {
		c, _, dialErr := cfg.dialer.DialContext(ctx, url, nil)
		if dialErr != nil {
			cfg.logger.Warn("websocket dial failed", "url", url, "error", dialErr)
			return dialErr
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	t := &Transport{
		conn:         conn,
		logger:       cfg.logger,
		writeTimeout: cfg.writeTimeout,
		handlers:     make(map[string]endpoint.Handler),
		done:         make(chan struct{}),
	}

	go t.readLoop()

	cfg.logger.Info("websocket transport connected", "url", url)
	return t, nil
}

// SendMessage implements endpoint.Connection
func (t *Transport) SendMessage(ctx context.Context, tag string, msgType string, payload json.RawMessage, correlationID string) error {
	env := &contracts.Envelope{
		Tag:           tag,
		Type:          msgType,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: correlationID,
		Payload:       payload,
	}

	data, err := serialization.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.done:
		return fmt.Errorf("transport is closed")
	default:
	}

	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// RegisterInterface implements endpoint.Connection
func (t *Transport) RegisterInterface(tag string, handler endpoint.Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()

	if _, exists := t.handlers[tag]; exists {
		return fmt.Errorf("tag %s already registered", tag)
	}
	t.handlers[tag] = handler
	return nil
}

// UnregisterInterface implements endpoint.Connection
func (t *Transport) UnregisterInterface(tag string, handler endpoint.Handler) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()

	if registered, ok := t.handlers[tag]; ok && registered == handler {
		delete(t.handlers, tag)
	}
}

// readLoop is the single delivery path for inbound messages.
func (t *Transport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
			default:
				t.logger.Error("websocket read failed", "error", err)
			}
			return
		}

		env, err := serialization.DecodeEnvelope(data)
		if err != nil {
			t.logger.Error("dropping malformed envelope", "error", err)
			continue
		}

		t.handlerMu.RLock()
		handler, ok := t.handlers[env.Tag]
		t.handlerMu.RUnlock()

		if !ok {
			t.logger.Debug("no handler registered for tag", "tag", env.Tag)
			continue
		}

		// Delivery errors are local to one message and never stop the loop.
		if err := handler.Deliver(env.Type, env.Payload, env.CorrelationID); err != nil {
			t.logger.Error("delivery failed",
				"tag", env.Tag,
				"messageType", env.Type,
				"error", err,
			)
		}
	}
}

// Close shuts the transport down. Idempotent.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)

		t.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		t.conn.SetWriteDeadline(deadline)
		t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()

		err = t.conn.Close()
	})
	return err
}
