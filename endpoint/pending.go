package endpoint

import (
	"encoding/json"
	"sync"

	"github.com/relaykit/relay-go/contracts"
)

// ResultFunc is the continuation invoked with the payload of a matching reply.
type ResultFunc func(payload json.RawMessage)

// pendingTable maps in-flight correlation ids to their continuations. An id
// is present iff a call was sent and no reply or cancellation has consumed it
// yet; exactly one of resolve/remove/drain removes a given id. The lock is
// scoped to the owning endpoint instance.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]ResultFunc
	closed  bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		entries: make(map[string]ResultFunc),
	}
}

// insert registers a continuation under a fresh correlation id.
func (t *pendingTable) insert(id string, fn ResultFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return contracts.ErrClosed
	}
	t.entries[id] = fn
	return nil
}

// resolve removes and returns the continuation for id. The second return is
// false for late or duplicate replies.
func (t *pendingTable) resolve(id string) (ResultFunc, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return fn, ok
}

// remove discards the entry for id, reporting whether it was still pending.
func (t *pendingTable) remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return ok
}

// drain marks the table closed and returns every outstanding entry.
func (t *pendingTable) drain() map[string]ResultFunc {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	drained := t.entries
	t.entries = make(map[string]ResultFunc)
	return drained
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
