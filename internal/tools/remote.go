package tools

import (
	"context"
	"encoding/json"

	"github.com/ksktechai/livecontext-ai/internal/llm"
)

// Descriptor is the static description of a tool served by a remote service.
//
// Translate maps model-supplied arguments to the remote parameter object and
// must never fail; missing or malformed fields fall back to defaults.
type Descriptor struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Service     string
	RemoteTool  string
	Source      string
	Translate   func(args llm.Arguments) map[string]any
}

// RemoteTool executes a Descriptor through an Invoker.
type RemoteTool struct {
	desc    Descriptor
	invoker Invoker
}

// NewRemoteTool binds a descriptor to the invoker that will carry its calls.
func NewRemoteTool(desc Descriptor, invoker Invoker) *RemoteTool {
	return &RemoteTool{desc: desc, invoker: invoker}
}

func (t *RemoteTool) Name() string { return t.desc.Name }
func (t *RemoteTool) Description() string { return t.desc.Description }
func (t *RemoteTool) Parameters() json.RawMessage { return t.desc.Parameters }
func (t *RemoteTool) Source() string { return t.desc.Source }

// Service returns the service key the tool is dispatched to.
func (t *RemoteTool) Service() string { return t.desc.Service }

func (t *RemoteTool) Execute(ctx context.Context, args llm.Arguments, correlationID string) (json.RawMessage, error) {
	params := map[string]any{}
	if t.desc.Translate != nil {
		params = t.desc.Translate(args)
	}
	return t.invoker.Invoke(ctx, t.desc.Service, t.desc.RemoteTool, params, correlationID)
}
