package contracts

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseMessage(t *testing.T) {
	msg := NewBaseMessage("test/Ping")

	assert.NotEmpty(t, msg.GetID())
	assert.Equal(t, "test/Ping", msg.GetType())
	assert.False(t, msg.GetTimestamp().IsZero())
	assert.Equal(t, NoCorrelation, msg.GetCorrelationID())

	msg.SetCorrelationID("corr-1")
	assert.Equal(t, "corr-1", msg.GetCorrelationID())

	other := NewBaseMessage("test/Ping")
	assert.NotEqual(t, msg.GetID(), other.GetID())
}

func TestBaseReply(t *testing.T) {
	reply := NewBaseReply("corr-1")

	assert.True(t, reply.IsSuccess())
	assert.NoError(t, reply.GetError())
	assert.Equal(t, "corr-1", reply.GetCorrelationID())
}

func TestTypeMismatchError(t *testing.T) {
	err := &TypeMismatchError{Tag: "topic1", Want: "test/Foo", Got: "test/Bar"}

	assert.Equal(t, "tag topic1: unexpected message type test/Bar, want test/Foo", err.Error())
	assert.True(t, IsTypeMismatch(err))
	assert.True(t, IsTypeMismatch(fmt.Errorf("delivery failed: %w", err)))
	assert.False(t, IsTypeMismatch(errors.New("other")))
	assert.False(t, IsTypeMismatch(nil))
}
