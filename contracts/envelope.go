package contracts

import (
	"encoding/json"
)

// NoCorrelation is the sentinel carried by messages that do not expect a
// reply, such as plain publishes.
const NoCorrelation = ""

// Envelope wraps a payload for transport over the shared channel. Tag selects
// the logical sub-channel multiplexed over the physical connection.
type Envelope struct {
	Tag           string          `json:"tag"`
	Type          string          `json:"type"`
	Timestamp     string          `json:"timestamp,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}
