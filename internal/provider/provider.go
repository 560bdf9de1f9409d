// Package provider abstracts streaming LLM backends behind a small Gateway
// interface.
//
// A Gateway turns one request into either a complete text (Complete) or a
// lazy fragment stream (Stream). Fragments carry plain text or a piece of a
// tool call; adapters normalize each backend's wire shape into this one
// form so the orchestration layer never sees provider-specific types.
package provider

import (
	"context"
	"errors"
	"iter"

	"github.com/google/jsonschema-go/jsonschema"
)

// Message roles shared across providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrNoCompletion indicates the backend returned a response with no usable
// candidate.
var ErrNoCompletion = errors.New("provider returned no completion")

// Message is one entry of the model context.
type Message struct {
	Role    string
	Content string

	// ToolCalls is set on assistant messages that requested tool execution.
	ToolCalls []ToolCall

	// ToolCallID links a RoleTool message to the call it answers.
	ToolCallID string
}

// ToolCall is a complete tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ToolDelta is a streamed piece of a tool call. The first fragment for an
// index establishes ID and Name; later fragments for the same index append
// Arguments text.
type ToolDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Fragment is one unit of a response stream: either text or a tool delta,
// never both.
type Fragment struct {
	Text string
	Tool *ToolDelta
}

// ToolSchema describes a tool offered to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// Params are generation parameters applied to a request.
type Params struct {
	Temperature float32
	MaxTokens   int
}

// Request is a single model invocation.
type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolSchema
	Params   Params
}

// Gateway is a streaming LLM backend. Implementations must be safe for
// concurrent use.
type Gateway interface {
	// Complete runs the request to completion and returns the full text.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream returns a lazy fragment sequence. Iteration performs the
	// network call; an error fragment terminates the sequence.
	Stream(ctx context.Context, req Request) iter.Seq2[Fragment, error]
}
