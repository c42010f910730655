package endpoint

import (
	"fmt"
	"log/slog"

	"github.com/relaykit/relay-go/contracts"
)

// Endpoint holds the identity every concrete endpoint is built on: the tag it
// is multiplexed under, the message type it speaks, and the connection it
// sends through. Immutable after construction.
type Endpoint struct {
	tag     string
	msgType string
	conn    Connection
	logger  *slog.Logger
}

func newEndpoint(conn Connection, tag string, msgType string, logger *slog.Logger) (Endpoint, error) {
	if conn == nil {
		return Endpoint{}, fmt.Errorf("connection cannot be nil")
	}
	if tag == "" {
		return Endpoint{}, fmt.Errorf("tag cannot be empty")
	}
	if msgType == "" {
		return Endpoint{}, fmt.Errorf("message type cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Endpoint{
		tag:     tag,
		msgType: msgType,
		conn:    conn,
		logger:  logger,
	}, nil
}

// Tag returns the logical channel identifier this endpoint is bound to
func (e *Endpoint) Tag() string {
	return e.tag
}

// MessageType returns the message type this endpoint was constructed with
func (e *Endpoint) MessageType() string {
	return e.msgType
}

// checkType validates the declared type of an inbound message against the
// endpoint's expected type.
func (e *Endpoint) checkType(got string) error {
	if got != e.msgType {
		return &contracts.TypeMismatchError{Tag: e.tag, Want: e.msgType, Got: got}
	}
	return nil
}
