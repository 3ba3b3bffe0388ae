package tools

import (
	"context"
	"encoding/json"

	"github.com/ksktechai/livecontext-ai/internal/llm"
)

// Tool defines the interface for tools that can be called by the agent
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a description of what the tool does
	Description() string

	// Parameters returns the JSON Schema for the tool's parameters
	Parameters() json.RawMessage

	// Source returns the human label of the service backing the tool
	Source() string

	// Execute runs the tool with the given arguments and returns the raw JSON result
	Execute(ctx context.Context, args llm.Arguments, correlationID string) (json.RawMessage, error)
}

// Invoker calls a named tool on a named remote service.
// *gateway.Gateway satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, service, tool string, params map[string]any, correlationID string) (json.RawMessage, error)
}
