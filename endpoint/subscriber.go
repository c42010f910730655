package endpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/relaykit/relay-go/contracts"
)

// Callback receives the payload of each inbound message that passes the
// endpoint's type check.
type Callback func(payload json.RawMessage)

// Subscriber routes inbound messages on one tag to a user callback.
type Subscriber struct {
	Endpoint
	cb Callback

	// mu serializes delivery against unsubscription so the callback never
	// runs after Unsubscribe has returned. Do not call Unsubscribe from
	// inside the callback.
	mu           sync.Mutex
	unsubscribed bool
}

// SubscriberOption configures the Subscriber
type SubscriberOption func(*subscriberConfig)

type subscriberConfig struct {
	logger *slog.Logger
}

// WithSubscriberLogger sets the logger
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(c *subscriberConfig) {
		c.logger = logger
	}
}

// NewSubscriber creates a subscriber and registers it with the connection
func NewSubscriber(conn Connection, tag string, msgType string, cb Callback, opts ...SubscriberOption) (*Subscriber, error) {
	if cb == nil {
		return nil, contracts.ErrNilCallback
	}

	config := &subscriberConfig{}
	for _, opt := range opts {
		opt(config)
	}

	base, err := newEndpoint(conn, tag, msgType, config.logger)
	if err != nil {
		return nil, err
	}

	s := &Subscriber{
		Endpoint: base,
		cb:       cb,
	}

	if err := conn.RegisterInterface(tag, s); err != nil {
		return nil, fmt.Errorf("failed to register subscriber for tag %s: %w", tag, err)
	}

	s.logger.Debug("subscribed", "tag", tag, "messageType", msgType)
	return s, nil
}

// Deliver implements Handler. The declared type must match the endpoint's
// expected type; mismatches fail this delivery only.
func (s *Subscriber) Deliver(msgType string, payload json.RawMessage, _ string) error {
	if err := s.checkType(msgType); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribed {
		return nil
	}

	s.cb(payload)
	return nil
}

// Unsubscribe removes the endpoint from the connection's registry. Afterwards
// no more messages are given to the callback. Calling it again, or after the
// connection has already dropped the tag, is a no-op.
func (s *Subscriber) Unsubscribe() {
	s.mu.Lock()
	if s.unsubscribed {
		s.mu.Unlock()
		return
	}
	s.unsubscribed = true
	s.mu.Unlock()

	s.conn.UnregisterInterface(s.tag, s)
	s.logger.Debug("unsubscribed", "tag", s.tag)
}

// Close makes Subscriber satisfy the common endpoint closer contract
func (s *Subscriber) Close() error {
	s.Unsubscribe()
	return nil
}
