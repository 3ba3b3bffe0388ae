package persistence

import (
	"time"

	"github.com/ksktechai/livecontext-ai/internal/agent"
)

// ChatRecord is one audited chat session.
type ChatRecord struct {
	ID             int64            `json:"id"`
	CorrelationID  string           `json:"correlationId"`
	Question       string           `json:"question"`
	Answer         string           `json:"answer"`
	Degraded       bool             `json:"degraded"`
	FallbackReason string           `json:"fallbackReason,omitempty"`
	Iterations     int              `json:"iterations"`
	Evidence       []agent.Evidence `json:"evidence"`
	CreatedAt      time.Time        `json:"createdAt"`
}
