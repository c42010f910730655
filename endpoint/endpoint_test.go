package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeConn records outbound sends and lets tests push inbound deliveries to
// whichever handler is registered for a tag.
type fakeConn struct {
	mu       sync.Mutex
	sent     []sentMessage
	handlers map[string]Handler
	sendErr  error
}

type sentMessage struct {
	Tag           string
	Type          string
	Payload       json.RawMessage
	CorrelationID string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		handlers: make(map[string]Handler),
	}
}

func (f *fakeConn) SendMessage(ctx context.Context, tag string, msgType string, payload json.RawMessage, correlationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{Tag: tag, Type: msgType, Payload: payload, CorrelationID: correlationID})
	return nil
}

func (f *fakeConn) RegisterInterface(tag string, handler Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.handlers[tag]; exists {
		return fmt.Errorf("tag %s already registered", tag)
	}
	f.handlers[tag] = handler
	return nil
}

func (f *fakeConn) UnregisterInterface(tag string, handler Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if registered, ok := f.handlers[tag]; ok && registered == handler {
		delete(f.handlers, tag)
	}
}

// deliver simulates the connection's delivery path.
func (f *fakeConn) deliver(tag string, msgType string, payload json.RawMessage, correlationID string) error {
	f.mu.Lock()
	handler, ok := f.handlers[tag]
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("no handler for tag %s", tag)
	}
	return handler.Deliver(msgType, payload, correlationID)
}

func (f *fakeConn) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeConn) registered(tag string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.handlers[tag]
	return ok
}

func TestNewEndpointValidation(t *testing.T) {
	conn := newFakeConn()

	t.Run("rejects nil connection", func(t *testing.T) {
		_, err := newEndpoint(nil, "tag", "test/Foo", nil)
		assert.Error(t, err)
	})

	t.Run("rejects empty tag", func(t *testing.T) {
		_, err := newEndpoint(conn, "", "test/Foo", nil)
		assert.Error(t, err)
	})

	t.Run("rejects empty message type", func(t *testing.T) {
		_, err := newEndpoint(conn, "tag", "", nil)
		assert.Error(t, err)
	})

	t.Run("exposes identity", func(t *testing.T) {
		e, err := newEndpoint(conn, "tag1", "test/Foo", nil)
		assert.NoError(t, err)
		assert.Equal(t, "tag1", e.Tag())
		assert.Equal(t, "test/Foo", e.MessageType())
	})
}
