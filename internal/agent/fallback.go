package agent

import (
	"fmt"
	"time"
)

// FallbackMarker prefixes every fallback answer.
const FallbackMarker = "Mock response:"

var fallbackTimestamp = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// Fallback builds the canned result used in mock mode and when the model
// cannot be reached. It never fails.
func Fallback(question, correlationID, reason string) *ChatResult {
	answer := fmt.Sprintf("%s I received your question about: \"%s\". "+
		"In a real scenario, I would use MCP tools to fetch market data, news, and weather"+
		" information to answer your question.", FallbackMarker, question)

	return &ChatResult{
		Answer: answer,
		Evidence: []Evidence{{
			Type:      "market",
			Source:    "Mock Market Data",
			Timestamp: fallbackTimestamp,
			Summary:   "Sample market quote data (mock)",
		}},
		CorrelationID:  correlationID,
		Degraded:       true,
		FallbackReason: reason,
	}
}
