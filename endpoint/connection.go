package endpoint

import (
	"context"
	"encoding/json"
)

// Handler receives inbound messages for a registered tag. Deliver is invoked
// by the connection's single delivery path; a non-nil error is local to that
// delivery and must not stop the dispatch loop.
type Handler interface {
	Deliver(msgType string, payload json.RawMessage, correlationID string) error
}

// Connection is the narrow capability interface endpoints consume from the
// underlying transport. Implementations multiplex logical tags over one
// physical channel and dispatch inbound messages to the handler registered
// for their tag.
type Connection interface {
	// SendMessage sends a payload downstream on the given tag. An empty
	// correlationID means the message does not expect a reply.
	SendMessage(ctx context.Context, tag string, msgType string, payload json.RawMessage, correlationID string) error

	// RegisterInterface registers the handler for a tag. At most one handler
	// may be registered per tag.
	RegisterInterface(tag string, handler Handler) error

	// UnregisterInterface removes the handler for a tag. Unregistering a tag
	// that is not registered, or a handler that no longer owns the tag, is a
	// no-op.
	UnregisterInterface(tag string, handler Handler)
}
