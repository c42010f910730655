package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/relaykit/relay-go/contracts"
	"github.com/relaykit/relay-go/endpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	sent     int
	handlers map[string]endpoint.Handler
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string]endpoint.Handler)}
}

func (f *fakeConn) SendMessage(ctx context.Context, tag string, msgType string, payload json.RawMessage, correlationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return nil
}

func (f *fakeConn) RegisterInterface(tag string, handler endpoint.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.handlers[tag]; exists {
		return fmt.Errorf("tag %s already registered", tag)
	}
	f.handlers[tag] = handler
	return nil
}

func (f *fakeConn) UnregisterInterface(tag string, handler endpoint.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if registered, ok := f.handlers[tag]; ok && registered == handler {
		delete(f.handlers, tag)
	}
}

type pingMessage struct {
	contracts.BaseMessage
	Value int `json:"value"`
}

func newTestClient(t *testing.T) (*Client, *fakeConn) {
	t.Helper()

	conn := newFakeConn()
	client, err := NewClient(conn)
	require.NoError(t, err)
	require.NoError(t, client.TypeRegistry().Register("test/Ping", pingMessage{}))
	return client, conn
}

func TestClientEndpointConstruction(t *testing.T) {
	t.Run("unregistered message type fails construction", func(t *testing.T) {
		client, _ := newTestClient(t)

		_, err := client.Publisher("topic1", "test/Unknown")
		assert.ErrorContains(t, err, "not registered")

		_, err = client.Subscriber("topic1", "test/Unknown", func(json.RawMessage) {})
		assert.ErrorContains(t, err, "not registered")

		_, err = client.Service("srv1", "test/Unknown")
		assert.ErrorContains(t, err, "not registered")

		_, err = client.Bridge("srv1", "test/Unknown")
		assert.ErrorContains(t, err, "not registered")
	})

	t.Run("malformed type identifier fails construction", func(t *testing.T) {
		client, _ := newTestClient(t)

		_, err := client.Publisher("topic1", "Ping")
		assert.Error(t, err)
	})

	t.Run("registered type constructs endpoints", func(t *testing.T) {
		client, conn := newTestClient(t)

		pub, err := client.Publisher("topic1", "test/Ping")
		require.NoError(t, err)
		require.NoError(t, pub.Publish(context.Background(), json.RawMessage(`{"value":1}`)))
		assert.Equal(t, 1, conn.sent)

		_, err = client.Subscriber("topic2", "test/Ping", func(json.RawMessage) {})
		assert.NoError(t, err)

		_, err = client.Service("srv1", "test/Ping")
		assert.NoError(t, err)

		_, err = client.Bridge("srv2", "test/Ping")
		assert.NoError(t, err)
	})
}

func TestClientClose(t *testing.T) {
	t.Run("closes every endpoint it created", func(t *testing.T) {
		client, conn := newTestClient(t)

		_, err := client.Subscriber("topic1", "test/Ping", func(json.RawMessage) {})
		require.NoError(t, err)
		svc, err := client.Service("srv1", "test/Ping")
		require.NoError(t, err)
		b, err := client.Bridge("srv2", "test/Ping")
		require.NoError(t, err)

		errCh := make(chan error, 1)
		go func() {
			_, callErr := b.Call(context.Background(), json.RawMessage(`{}`))
			errCh <- callErr
		}()
		require.Eventually(t, func() bool { return b.PendingCalls() == 1 }, time.Second, time.Millisecond)

		require.NoError(t, client.Close())

		select {
		case callErr := <-errCh:
			assert.ErrorIs(t, callErr, contracts.ErrCancelled)
		case <-time.After(time.Second):
			t.Fatal("bridge caller still blocked after client close")
		}

		conn.mu.Lock()
		remaining := len(conn.handlers)
		conn.mu.Unlock()
		assert.Equal(t, 0, remaining)

		_, err = svc.Call(context.Background(), json.RawMessage(`{}`), func(json.RawMessage) {})
		assert.ErrorIs(t, err, contracts.ErrClosed)
	})

	t.Run("is idempotent", func(t *testing.T) {
		client, _ := newTestClient(t)
		require.NoError(t, client.Close())
		require.NoError(t, client.Close())
	})

	t.Run("rejects new endpoints after close", func(t *testing.T) {
		client, _ := newTestClient(t)
		require.NoError(t, client.Close())

		_, err := client.Service("srv1", "test/Ping")
		assert.ErrorContains(t, err, "client is closed")
	})
}
