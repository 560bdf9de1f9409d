// Package tools implements the functions the model may call during a chat
// turn, plus the registry the orchestrator dispatches through.
package tools

import (
	"context"

	"github.com/lethehaiau/floatplane-zero-agent/internal/provider"
)

// Tool is a function the model can invoke. Execute never returns an error:
// failures degrade to a result the model can work with (typically an empty
// JSON array), because a broken tool must not kill the conversation.
type Tool interface {
	Name() string
	Schema() provider.ToolSchema
	Execute(ctx context.Context, rawArgs string) string
}

// Registry holds the available tools by name. Populated at startup,
// read-only afterward.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry over the given tools.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Get returns the named tool, or false if the model hallucinated one.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns the tool schemas in registration order, for the first
// provider call of a turn.
func (r *Registry) Schemas() []provider.ToolSchema {
	schemas := make([]provider.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}
