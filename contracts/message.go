package contracts

import (
	"time"
)

// Message is the base interface for everything sent through an endpoint.
type Message interface {
	GetID() string
	GetTimestamp() time.Time
	GetType() string
	GetCorrelationID() string
	SetCorrelationID(correlationID string)
}

// Request represents a service invocation that expects a reply.
type Request interface {
	Message
	GetReplyTag() string
}

// Reply represents a response to an earlier request.
type Reply interface {
	Message
	IsSuccess() bool
	GetError() error
}
