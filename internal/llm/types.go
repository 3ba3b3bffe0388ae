package llm

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ksktechai/livecontext-ai/pkg/log"
)

// Message roles used in a conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message
//
// Role: "user", "assistant" or "tool"
// Content: Text content of the message
// ToolCalls: Tool invocations requested by the assistant, if any
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// HasToolCalls reports whether the message requests at least one tool.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its arguments.
type FunctionCall struct {
	Name      string    `json:"name"`
	Arguments Arguments `json:"arguments"`
}

// Arguments is the decoded argument object of a tool call.
// Backends send either a JSON object or a string holding one; both decode here.
// Anything else decodes to an empty object so the tool runs with its defaults.
type Arguments map[string]any

func (a *Arguments) UnmarshalJSON(data []byte) error {
	*a = Arguments{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil || strings.TrimSpace(encoded) == "" {
			return nil
		}
		data = []byte(encoded)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn("Ignoring malformed tool arguments, using defaults: raw=%s err=%v", truncate(string(data), maxErrorBody), err)
		return nil
	}
	if m != nil {
		*a = m
	}
	return nil
}

// ToolDefinition advertises one tool to the model in OpenAI function format.
type ToolDefinition struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function describes a callable tool and its JSON-schema parameters.
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// ChatResponse is the non-streaming reply of POST /api/chat.
type ChatResponse struct {
	Model      string  `json:"model"`
	CreatedAt  string  `json:"created_at,omitempty"`
	Message    Message `json:"message"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`
	Error      string  `json:"error,omitempty"`
}
