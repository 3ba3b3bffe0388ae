package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ksktechai/livecontext-ai/internal/gateway"
	"github.com/ksktechai/livecontext-ai/internal/llm"
)

// UnknownSource labels evidence for tools the registry does not know.
const UnknownSource = "Unknown"

// Registry manages available tools for the agent.
// Registration order is preserved so Definitions is stable.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry
// Returns an error if a tool with the same name already exists
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tool names in registration order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Source returns the evidence label for a tool name, or UnknownSource.
func (r *Registry) Source(name string) string {
	if tool, ok := r.Get(name); ok {
		return tool.Source()
	}
	return UnknownSource
}

// Definitions converts all registered tools to the function-calling format
// sent with every model request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definitions := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		definitions = append(definitions, llm.ToolDefinition{
			Type: "function",
			Function: llm.Function{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return definitions
}

// Dispatch executes the named tool. An unregistered name fails with
// gateway.KindUnknownTool; callers treat that like any other tool failure.
func (r *Registry) Dispatch(ctx context.Context, name string, args llm.Arguments, correlationID string) (json.RawMessage, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, gateway.NewError(gateway.KindUnknownTool, "unknown tool: "+name).
			WithContext("tool", name)
	}
	return tool.Execute(ctx, args, correlationID)
}
