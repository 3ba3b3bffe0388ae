package agent

import (
	"time"

	"github.com/ksktechai/livecontext-ai/internal/llm"
)

// Fallback reasons carried on a degraded ChatResult.
const (
	ReasonMockMode           = "mock_mode"
	ReasonModelError         = "model_error"
	ReasonSerializationError = "serialization_error"
)

// Evidence records the outcome of one tool call attempt.
type Evidence struct {
	// Type is the tool name
	Type string `json:"type"`

	// Source is the human label of the backing service
	Source string `json:"source"`

	Timestamp time.Time `json:"timestamp"`

	// Summary is the truncated result, or the error description on failure
	Summary string `json:"summary"`
}

// ChatResult is the terminal output of one chat session.
type ChatResult struct {
	Answer        string     `json:"answer"`
	Evidence      []Evidence `json:"evidence"`
	CorrelationID string     `json:"correlationId"`

	// Degraded is true when the answer came from the fallback responder
	Degraded       bool   `json:"degraded"`
	FallbackReason string `json:"fallbackReason,omitempty"`

	// Iterations is the number of model calls made
	Iterations int `json:"iterations"`
}

// ToolCallRecord records a single tool call and its result
type ToolCallRecord struct {
	// ToolName is the name of the tool that was called
	ToolName string

	// Arguments passed to the tool
	Arguments llm.Arguments

	// Content is the text folded back into the history as a tool message
	Content string

	// Err is set when the call failed
	Err error

	// CompletedAt is when the call returned
	CompletedAt time.Time
}

// IsError reports whether the tool call failed.
func (r ToolCallRecord) IsError() bool {
	return r.Err != nil
}
