// Copyright 2024 Relay Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package relay

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/relaykit/relay-go/bridge"
	"github.com/relaykit/relay-go/endpoint"
	"github.com/relaykit/relay-go/serialization"
)

// Client is the main entry point for relay-go. It wraps one Connection and a
// type registry and hands out endpoints bound to tags. Message types are
// resolved through the registry at construction time, so an unknown type
// fails the constructor rather than a later call.
type Client struct {
	conn     endpoint.Connection
	registry serialization.TypeRegistry
	logger   *slog.Logger

	mu        sync.Mutex
	endpoints []io.Closer
	closed    bool
}

// ClientOption configures the Client
type ClientOption func(*clientConfig)

type clientConfig struct {
	registry serialization.TypeRegistry
	logger   *slog.Logger
}

// WithLogger sets the logger used by the client and the endpoints it creates
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithTypeRegistry sets the registry used to resolve message type identifiers
func WithTypeRegistry(registry serialization.TypeRegistry) ClientOption {
	return func(c *clientConfig) {
		c.registry = registry
	}
}

// NewClient creates a client over an established connection
func NewClient(conn endpoint.Connection, options ...ClientOption) (*Client, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection cannot be nil")
	}

	cfg := &clientConfig{
		registry: serialization.NewTypeRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	return &Client{
		conn:     conn,
		registry: cfg.registry,
		logger:   cfg.logger,
	}, nil
}

// TypeRegistry returns the registry used to resolve message types
func (c *Client) TypeRegistry() serialization.TypeRegistry {
	return c.registry
}

// resolveType validates a "pkg/Name" identifier against the registry.
func (c *Client) resolveType(msgType string) error {
	if err := serialization.ValidateTypeName(msgType); err != nil {
		return err
	}
	if !c.registry.IsRegistered(msgType) {
		return fmt.Errorf("message type %s not registered", msgType)
	}
	return nil
}

func (c *Client) track(ep io.Closer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		ep.Close()
		return fmt.Errorf("client is closed")
	}
	c.endpoints = append(c.endpoints, ep)
	return nil
}

// Publisher creates a fire-and-forget publisher for a tag
func (c *Client) Publisher(tag string, msgType string) (*endpoint.Publisher, error) {
	if err := c.resolveType(msgType); err != nil {
		return nil, err
	}
	return endpoint.NewPublisher(c.conn, tag, msgType,
		endpoint.WithPublisherLogger(c.logger),
	)
}

// Subscriber creates a subscriber delivering inbound payloads to cb
func (c *Client) Subscriber(tag string, msgType string, cb endpoint.Callback) (*endpoint.Subscriber, error) {
	if err := c.resolveType(msgType); err != nil {
		return nil, err
	}
	sub, err := endpoint.NewSubscriber(c.conn, tag, msgType, cb,
		endpoint.WithSubscriberLogger(c.logger),
	)
	if err != nil {
		return nil, err
	}
	if err := c.track(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Service creates an asynchronous call endpoint for a tag
func (c *Client) Service(tag string, msgType string, opts ...endpoint.ServiceOption) (*endpoint.Service, error) {
	if err := c.resolveType(msgType); err != nil {
		return nil, err
	}
	allOpts := append([]endpoint.ServiceOption{endpoint.WithServiceLogger(c.logger)}, opts...)
	svc, err := endpoint.NewService(c.conn, tag, msgType, allOpts...)
	if err != nil {
		return nil, err
	}
	if err := c.track(svc); err != nil {
		return nil, err
	}
	return svc, nil
}

// Bridge creates a synchronous call endpoint for a tag
func (c *Client) Bridge(tag string, msgType string, opts ...bridge.Option) (*bridge.Bridge, error) {
	if err := c.resolveType(msgType); err != nil {
		return nil, err
	}
	allOpts := append([]bridge.Option{bridge.WithLogger(c.logger)}, opts...)
	b, err := bridge.New(c.conn, tag, msgType, allOpts...)
	if err != nil {
		return nil, err
	}
	if err := c.track(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Close disposes every endpoint the client created. Outstanding service calls
// are cancelled, blocked bridge callers are woken with a cancellation error.
// Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	endpoints := c.endpoints
	c.endpoints = nil
	c.mu.Unlock()

	var firstErr error
	for _, ep := range endpoints {
		if err := ep.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.logger.Debug("client closed", "endpoints", len(endpoints))
	return firstErr
}
