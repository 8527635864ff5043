// Package domain holds the wire-level message model shared by every other
// package in this module: commands, events, versioned events, and the
// envelope that carries delivery metadata alongside them.
//
// Grounded on the teacher's pkg/domain/event.go and pkg/domain/command.go,
// collapsed into a single non-protobuf model since the serializer contract
// (pkg/serializer) keeps the wire format opaque.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is the common identity shared by every command and event:
// a unique ID and the time it was created.
type Message interface {
	MessageID() string
	OccurredAt() time.Time
}

// NewID generates a unique message identifier.
func NewID() string {
	return uuid.NewString()
}

// Envelope wraps a message with delivery metadata: the message's own ID,
// repeated here for convenience, and the correlation ID linking it back to
// the command that ultimately caused it (spec §3 "Envelope<T>").
type Envelope[T Message] struct {
	MessageID     string
	CorrelationID string
	TraceID       string
	Payload       T
}

// NewEnvelope builds an envelope for a payload. MessageID is taken from
// the payload; correlationID and traceID are stored as given, so the
// caller is the one that derives the correlation id (a command's own ID,
// or an event's CorrelationID).
func NewEnvelope[T Message](payload T, correlationID, traceID string) Envelope[T] {
	return Envelope[T]{
		MessageID:     payload.MessageID(),
		CorrelationID: correlationID,
		TraceID:       traceID,
		Payload:       payload,
	}
}
