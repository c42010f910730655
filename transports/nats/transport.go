package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/relaykit/relay-go/contracts"
	"github.com/relaykit/relay-go/endpoint"
	"github.com/relaykit/relay-go/serialization"
)

const defaultSubjectPrefix = "relay"

type registration struct {
	handler endpoint.Handler
	sub     *nats.Subscription
}

// Transport implements endpoint.Connection over a NATS connection. Each tag
// maps to one subject under the configured prefix; envelopes travel as JSON
// message data. The caller owns the *nats.Conn.
type Transport struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger

	mu            sync.Mutex
	registrations map[string]*registration
	closed        bool
}

// TransportOption configures the Transport
type TransportOption func(*Transport)

// WithSubjectPrefix sets the subject prefix tags are mapped under
func WithSubjectPrefix(prefix string) TransportOption {
	return func(t *Transport) {
		t.prefix = prefix
	}
}

// WithTransportLogger sets the logger
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport wraps an established NATS connection
func NewTransport(nc *nats.Conn, options ...TransportOption) (*Transport, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}

	t := &Transport{
		nc:            nc,
		prefix:        defaultSubjectPrefix,
		logger:        slog.Default(),
		registrations: make(map[string]*registration),
	}
	for _, opt := range options {
		opt(t)
	}

	return t, nil
}

func (t *Transport) subject(tag string) string {
	return t.prefix + "." + tag
}

// SendMessage implements endpoint.Connection
func (t *Transport) SendMessage(ctx context.Context, tag string, msgType string, payload json.RawMessage, correlationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

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

	if err := t.nc.Publish(t.subject(tag), data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", t.subject(tag), err)
	}
	return nil
}

// RegisterInterface implements endpoint.Connection
func (t *Transport) RegisterInterface(tag string, handler endpoint.Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}
	if _, exists := t.registrations[tag]; exists {
		return fmt.Errorf("tag %s already registered", tag)
	}

	sub, err := t.nc.Subscribe(t.subject(tag), func(msg *nats.Msg) {
		env, err := serialization.DecodeEnvelope(msg.Data)
		if err != nil {
			t.logger.Error("dropping malformed envelope", "tag", tag, "error", err)
			return
		}

		if err := handler.Deliver(env.Type, env.Payload, env.CorrelationID); err != nil {
			t.logger.Error("delivery failed",
				"tag", tag,
				"messageType", env.Type,
				"error", err,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", t.subject(tag), err)
	}

	t.registrations[tag] = &registration{handler: handler, sub: sub}
	return nil
}

// UnregisterInterface implements endpoint.Connection
func (t *Transport) UnregisterInterface(tag string, handler endpoint.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	reg, ok := t.registrations[tag]
	if !ok || reg.handler != handler {
		return
	}
	delete(t.registrations, tag)

	if err := reg.sub.Unsubscribe(); err != nil {
		t.logger.Warn("failed to unsubscribe", "tag", tag, "error", err)
	}
}

// Close drops every registration. The underlying NATS connection is left to
// its owner. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for tag, reg := range t.registrations {
		if err := reg.sub.Unsubscribe(); err != nil {
			t.logger.Warn("failed to unsubscribe", "tag", tag, "error", err)
		}
	}
	t.registrations = make(map[string]*registration)
	return nil
}
