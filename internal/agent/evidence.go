package agent

import (
	"time"
)

// DefaultSummaryLimit is the number of result characters kept in an evidence summary.
const DefaultSummaryLimit = 100

// Collector is the append-only evidence list of one session. Not safe for
// concurrent use; the loop records a batch only after it has joined.
type Collector struct {
	limit   int
	entries []Evidence
}

// NewCollector creates a collector truncating summaries to limit characters.
func NewCollector(limit int) *Collector {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	return &Collector{limit: limit, entries: make([]Evidence, 0)}
}

// Record appends one entry for a tool call attempt.
func (c *Collector) Record(record ToolCallRecord, source string) {
	summary := "Tool result: " + Summarize(record.Content, c.limit)
	if record.IsError() {
		summary = "Tool error: " + record.Err.Error()
	}

	c.entries = append(c.entries, Evidence{
		Type:      record.ToolName,
		Source:    source,
		Timestamp: record.CompletedAt.UTC().Truncate(time.Millisecond),
		Summary:   summary,
	})
}

// Entries returns a copy of the recorded evidence in recording order.
func (c *Collector) Entries() []Evidence {
	out := make([]Evidence, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Collector) Len() int {
	return len(c.entries)
}

// Summarize keeps the first limit characters of s, marking a cut with "...".
func Summarize(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
