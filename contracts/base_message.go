package contracts

import (
	"time"

	"github.com/google/uuid"
)

// BaseMessage provides common fields for all message types
type BaseMessage struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// NewBaseMessage creates a new base message with generated ID and current timestamp
func NewBaseMessage(messageType string) BaseMessage {
	return BaseMessage{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      messageType,
	}
}

// GetID returns the message ID
func (m BaseMessage) GetID() string {
	return m.ID
}

// GetTimestamp returns the message timestamp
func (m BaseMessage) GetTimestamp() time.Time {
	return m.Timestamp
}

// GetType returns the message type
func (m BaseMessage) GetType() string {
	return m.Type
}

// GetCorrelationID returns the correlation ID
func (m BaseMessage) GetCorrelationID() string {
	return m.CorrelationID
}

// SetCorrelationID sets the correlation ID
func (m *BaseMessage) SetCorrelationID(correlationID string) {
	m.CorrelationID = correlationID
}

// BaseRequest provides common fields for request messages
type BaseRequest struct {
	BaseMessage
	ReplyTag string `json:"replyTag,omitempty"`
}

// GetReplyTag returns the tag replies should be delivered on
func (r BaseRequest) GetReplyTag() string {
	return r.ReplyTag
}

// NewBaseRequest creates a new request with generated ID and current timestamp
func NewBaseRequest(messageType string) BaseRequest {
	return BaseRequest{
		BaseMessage: NewBaseMessage(messageType),
	}
}

// BaseReply provides common fields for reply messages
type BaseReply struct {
	BaseMessage
	Success bool `json:"success"`
}

// IsSuccess returns whether the reply indicates success
func (r BaseReply) IsSuccess() bool {
	return r.Success
}

// GetError returns nil for successful replies (can be overridden)
func (r BaseReply) GetError() error {
	return nil
}

// NewBaseReply creates a new reply correlated with an earlier request
func NewBaseReply(correlationID string) BaseReply {
	reply := BaseReply{
		BaseMessage: NewBaseMessage("Reply"),
		Success:     true,
	}
	reply.SetCorrelationID(correlationID)
	return reply
}
