package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/relaykit/relay-go/contracts"
	"github.com/relaykit/relay-go/endpoint"
	"github.com/relaykit/relay-go/serialization"
)

const defaultExchange = "relay.messages"

type consumerState struct {
	handler endpoint.Handler
	channel *amqp.Channel
	cancel  context.CancelFunc
}

// Transport implements endpoint.Connection over RabbitMQ. Messages are
// published to one topic exchange with the tag as routing key; each
// registered tag gets its own exclusive queue and consumer channel, so
// delivery per tag stays single threaded.
type Transport struct {
	conn     *amqp.Connection
	exchange string
	logger   *slog.Logger

	publishMu sync.Mutex
	publishCh *amqp.Channel

	mu        sync.Mutex
	consumers map[string]*consumerState
	closed    bool
}

// TransportOption configures the Transport
type TransportOption func(*transportConfig)

type transportConfig struct {
	exchange string
	logger   *slog.Logger
}

// WithExchange sets the exchange name
func WithExchange(exchange string) TransportOption {
	return func(c *transportConfig) {
		c.exchange = exchange
	}
}

// WithTransportLogger sets the logger
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(c *transportConfig) {
		c.logger = logger
	}
}

// NewTransport connects to RabbitMQ and declares the relay exchange
func NewTransport(connectionString string, options ...TransportOption) (*Transport, error) {
	cfg := &transportConfig{
		exchange: defaultExchange,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	conn, err := amqp.Dial(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	publishCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = publishCh.ExchangeDeclare(cfg.exchange, "topic", true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.exchange, err)
	}

	return &Transport{
		conn:      conn,
		exchange:  cfg.exchange,
		logger:    cfg.logger,
		publishCh: publishCh,
		consumers: make(map[string]*consumerState),
	}, nil
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

	body, err := serialization.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	t.publishMu.Lock()
	defer t.publishMu.Unlock()

	err = t.publishCh.PublishWithContext(ctx, t.exchange, tag, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", tag, err)
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
	if _, exists := t.consumers[tag]; exists {
		return fmt.Errorf("tag %s already registered", tag)
	}

	channel, err := t.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	queue, err := channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		channel.Close()
		return fmt.Errorf("failed to declare queue for tag %s: %w", tag, err)
	}

	if err := channel.QueueBind(queue.Name, tag, t.exchange, false, nil); err != nil {
		channel.Close()
		return fmt.Errorf("failed to bind queue for tag %s: %w", tag, err)
	}

	deliveries, err := channel.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		channel.Close()
		return fmt.Errorf("failed to consume for tag %s: %w", tag, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.consumers[tag] = &consumerState{handler: handler, channel: channel, cancel: cancel}

	go t.consumeLoop(ctx, tag, handler, deliveries)
	return nil
}

// consumeLoop is the delivery path for one tag.
func (t *Transport) consumeLoop(ctx context.Context, tag string, handler endpoint.Handler, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				t.logger.Debug("delivery channel closed", "tag", tag)
				return
			}

			env, err := serialization.DecodeEnvelope(delivery.Body)
			if err != nil {
				t.logger.Error("dropping malformed envelope", "tag", tag, "error", err)
				continue
			}

			if err := handler.Deliver(env.Type, env.Payload, env.CorrelationID); err != nil {
				t.logger.Error("delivery failed",
					"tag", tag,
					"messageType", env.Type,
					"error", err,
				)
			}
		}
	}
}

// UnregisterInterface implements endpoint.Connection
func (t *Transport) UnregisterInterface(tag string, handler endpoint.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.consumers[tag]
	if !ok || state.handler != handler {
		return
	}
	delete(t.consumers, tag)

	state.cancel()
	if err := state.channel.Close(); err != nil {
		t.logger.Warn("failed to close consumer channel", "tag", tag, "error", err)
	}
}

// Close shuts down every consumer and the connection. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	consumers := t.consumers
	t.consumers = make(map[string]*consumerState)
	t.mu.Unlock()

	for tag, state := range consumers {
		state.cancel()
		if err := state.channel.Close(); err != nil {
			t.logger.Warn("failed to close consumer channel", "tag", tag, "error", err)
		}
	}

	t.publishMu.Lock()
	t.publishCh.Close()
	t.publishMu.Unlock()

	return t.conn.Close()
}
