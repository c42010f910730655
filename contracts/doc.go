// Package contracts defines the message model shared by all relay endpoints:
// the Message interface, base implementations with generated IDs, the wire
// Envelope, and the error taxonomy for type mismatches and cancellation.
package contracts
