package endpoint

import (
	"encoding/json"
	"testing"

	"github.com/relaykit/relay-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingTable(t *testing.T) {
	t.Run("resolve removes the entry", func(t *testing.T) {
		table := newPendingTable()
		require.NoError(t, table.insert("id1", func(json.RawMessage) {}))
		assert.Equal(t, 1, table.len())

		fn, ok := table.resolve("id1")
		assert.True(t, ok)
		assert.NotNil(t, fn)
		assert.Equal(t, 0, table.len())

		_, ok = table.resolve("id1")
		assert.False(t, ok)
	})

	t.Run("remove reports presence", func(t *testing.T) {
		table := newPendingTable()
		require.NoError(t, table.insert("id1", func(json.RawMessage) {}))

		assert.True(t, table.remove("id1"))
		assert.False(t, table.remove("id1"))
	})

	t.Run("drain closes the table", func(t *testing.T) {
		table := newPendingTable()
		require.NoError(t, table.insert("id1", func(json.RawMessage) {}))
		require.NoError(t, table.insert("id2", func(json.RawMessage) {}))

		drained := table.drain()
		assert.Len(t, drained, 2)
		assert.Equal(t, 0, table.len())

		err := table.insert("id3", func(json.RawMessage) {})
		assert.ErrorIs(t, err, contracts.ErrClosed)
	})
}
