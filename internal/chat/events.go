package chat

import (
	"github.com/google/uuid"

	"github.com/lethehaiau/floatplane-zero-agent/internal/store"
)

// EventType names the events of a chat turn's output stream.
type EventType string

const (
	// EventUserMessage carries the persisted user message; always first.
	EventUserMessage EventType = "user_message"

	// EventContentDelta carries one increment of new assistant text.
	EventContentDelta EventType = "content_delta"

	// EventDone carries the persisted assistant message; terminal.
	EventDone EventType = "done"

	// EventError carries a failure detail; terminal, in place of done.
	EventError EventType = "error"
)

// Event is one unit of the turn's output stream. Payload marshals to the
// event's JSON body.
type Event struct {
	Type    EventType
	Payload any
}

// Delta is the content_delta payload.
type Delta struct {
	Chunk string `json:"chunk"`
}

// Done is the done payload.
type Done struct {
	MessageID uuid.UUID      `json:"message_id"`
	Message   *store.Message `json:"message"`
}

// ErrorDetail is the error payload.
type ErrorDetail struct {
	Detail string `json:"detail"`
}

// EmitFunc delivers one event to the caller. It blocks until the event is
// handed off, giving the stream natural backpressure; a non-nil error means
// the caller is gone and forwarding must stop.
type EmitFunc func(Event) error
