package endpoint

import (
	"encoding/json"
	"testing"

	"github.com/relaykit/relay-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberDeliver(t *testing.T) {
	t.Run("invokes callback with payload on type match", func(t *testing.T) {
		conn := newFakeConn()
		var received []string
		_, err := NewSubscriber(conn, "topic1", "test/Foo", func(payload json.RawMessage) {
			received = append(received, string(payload))
		})
		require.NoError(t, err)

		err = conn.deliver("topic1", "test/Foo", json.RawMessage(`{"n":1}`), "")
		assert.NoError(t, err)
		require.Len(t, received, 1)
		assert.JSONEq(t, `{"n":1}`, received[0])
	})

	t.Run("type mismatch fails the delivery and skips the callback", func(t *testing.T) {
		conn := newFakeConn()
		invocations := 0
		_, err := NewSubscriber(conn, "topic1", "test/Foo", func(json.RawMessage) {
			invocations++
		})
		require.NoError(t, err)

		err = conn.deliver("topic1", "test/Bar", json.RawMessage(`{}`), "")
		require.Error(t, err)
		assert.True(t, contracts.IsTypeMismatch(err))

		var tm *contracts.TypeMismatchError
		require.ErrorAs(t, err, &tm)
		assert.Equal(t, "test/Foo", tm.Want)
		assert.Equal(t, "test/Bar", tm.Got)
		assert.Equal(t, 0, invocations)
	})

	t.Run("rejects nil callback", func(t *testing.T) {
		conn := newFakeConn()
		_, err := NewSubscriber(conn, "topic1", "test/Foo", nil)
		assert.Error(t, err)
	})
}

func TestSubscriberUnsubscribe(t *testing.T) {
	t.Run("removes the registration", func(t *testing.T) {
		conn := newFakeConn()
		sub, err := NewSubscriber(conn, "topic1", "test/Foo", func(json.RawMessage) {})
		require.NoError(t, err)
		require.True(t, conn.registered("topic1"))

		sub.Unsubscribe()
		assert.False(t, conn.registered("topic1"))
	})

	t.Run("is idempotent", func(t *testing.T) {
		conn := newFakeConn()
		sub, err := NewSubscriber(conn, "topic1", "test/Foo", func(json.RawMessage) {})
		require.NoError(t, err)

		sub.Unsubscribe()
		assert.NotPanics(t, func() {
			sub.Unsubscribe()
			sub.Unsubscribe()
		})
	})

	t.Run("tolerates the connection having dropped the tag already", func(t *testing.T) {
		conn := newFakeConn()
		sub, err := NewSubscriber(conn, "topic1", "test/Foo", func(json.RawMessage) {})
		require.NoError(t, err)

		// Another owner took the tag over.
		conn.UnregisterInterface("topic1", sub)
		assert.NotPanics(t, func() { sub.Unsubscribe() })
	})

	t.Run("no callback after unsubscribe returns", func(t *testing.T) {
		conn := newFakeConn()
		invocations := 0
		sub, err := NewSubscriber(conn, "topic1", "test/Foo", func(json.RawMessage) {
			invocations++
		})
		require.NoError(t, err)

		sub.Unsubscribe()

		// Even a delivery that slipped past unregistration is suppressed.
		err = sub.Deliver("test/Foo", json.RawMessage(`{}`), "")
		assert.NoError(t, err)
		assert.Equal(t, 0, invocations)
	})
}
