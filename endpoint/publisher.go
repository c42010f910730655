package endpoint

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/relaykit/relay-go/contracts"
)

// Publisher is a stateless fire-and-forget endpoint. It never registers for
// inbound delivery and never waits for a result.
type Publisher struct {
	Endpoint
}

// PublisherOption configures the Publisher
type PublisherOption func(*publisherConfig)

type publisherConfig struct {
	logger *slog.Logger
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(c *publisherConfig) {
		c.logger = logger
	}
}

// NewPublisher creates a publisher bound to a tag and message type
func NewPublisher(conn Connection, tag string, msgType string, opts ...PublisherOption) (*Publisher, error) {
	config := &publisherConfig{}
	for _, opt := range opts {
		opt(config)
	}

	base, err := newEndpoint(conn, tag, msgType, config.logger)
	if err != nil {
		return nil, err
	}

	return &Publisher{Endpoint: base}, nil
}

// Publish sends a payload downstream with no correlation id. Transport
// failures are returned as-is; nothing is retried here.
func (p *Publisher) Publish(ctx context.Context, payload json.RawMessage) error {
	err := p.conn.SendMessage(ctx, p.tag, p.msgType, payload, contracts.NoCorrelation)
	if err != nil {
		return err
	}

	p.logger.Debug("message published",
		"tag", p.tag,
		"messageType", p.msgType,
	)
	return nil
}
