package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/relaykit/relay-go/contracts"
)

// Service issues correlated calls over the shared channel and resolves each
// continuation on the matching inbound reply. Call never blocks the caller.
type Service struct {
	Endpoint
	pending       *pendingTable
	cancelHandler func(correlationID string)
	closeOnce     sync.Once
}

// ServiceOption configures the Service
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	logger        *slog.Logger
	cancelHandler func(correlationID string)
}

// WithServiceLogger sets the logger
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

// WithCancelHandler installs a handler invoked once per call still pending
// when the service is closed. Without it, pending continuations are dropped
// silently.
func WithCancelHandler(handler func(correlationID string)) ServiceOption {
	return func(c *serviceConfig) {
		c.cancelHandler = handler
	}
}

// NewService creates a service endpoint and registers it with the connection
func NewService(conn Connection, tag string, msgType string, opts ...ServiceOption) (*Service, error) {
	config := &serviceConfig{}
	for _, opt := range opts {
		opt(config)
	}

	base, err := newEndpoint(conn, tag, msgType, config.logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		Endpoint:      base,
		pending:       newPendingTable(),
		cancelHandler: config.cancelHandler,
	}

	if err := conn.RegisterInterface(tag, s); err != nil {
		return nil, fmt.Errorf("failed to register service for tag %s: %w", tag, err)
	}

	return s, nil
}

// Call sends a request downstream tagged with a fresh correlation id and
// returns that id immediately. Exactly one of the following later happens to
// onResult: it is invoked once with the reply payload, or it is discarded
// when the service is closed before the reply arrives.
func (s *Service) Call(ctx context.Context, payload json.RawMessage, onResult ResultFunc) (string, error) {
	if onResult == nil {
		return "", contracts.ErrNilCallback
	}

	id := uuid.New().String()
	if err := s.pending.insert(id, onResult); err != nil {
		return "", err
	}

	if err := s.conn.SendMessage(ctx, s.tag, s.msgType, payload, id); err != nil {
		s.pending.remove(id)
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	s.logger.Debug("call issued", "tag", s.tag, "correlationId", id)
	return id, nil
}

// Deliver implements Handler. Replies referencing an id that is no longer
// pending are dropped without effect.
func (s *Service) Deliver(msgType string, payload json.RawMessage, correlationID string) error {
	if err := s.checkType(msgType); err != nil {
		return err
	}

	onResult, ok := s.pending.resolve(correlationID)
	if !ok {
		s.logger.Debug("dropping reply with no pending call",
			"tag", s.tag,
			"correlationId", correlationID,
		)
		return nil
	}

	onResult(payload)
	return nil
}

// PendingCalls returns the number of calls awaiting a reply
func (s *Service) PendingCalls() int {
	return s.pending.len()
}

// Close unregisters the endpoint and cancels all outstanding calls. Their
// continuations are never invoked; the cancel handler, if configured, is told
// which correlation ids were dropped. Close is idempotent.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.conn.UnregisterInterface(s.tag, s)

		dropped := s.pending.drain()
		if s.cancelHandler != nil {
			for id := range dropped {
				s.cancelHandler(id)
			}
		}

		if len(dropped) > 0 {
			s.logger.Debug("cancelled pending calls on close",
				"tag", s.tag,
				"count", len(dropped),
			)
		}
	})
	return nil
}
