package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ksktechai/livecontext-ai/internal/llm"
	"github.com/ksktechai/livecontext-ai/pkg/log"
)

// Placeholder answers when the model leaves nothing usable.
const (
	NoResponseAnswer = "No response from LLM"

	// UnableAnswer is returned at the iteration cap when there is no assistant
	// message, and also when the newest one has empty content.
	UnableAnswer = "Unable to generate response"
)

// DefaultMaxIterations caps model calls per session.
const DefaultMaxIterations = 5

// ChatModel sends a history plus tool catalog to the model. *llm.Client satisfies it.
type ChatModel interface {
	Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.ChatResponse, error)
}

// Dispatcher advertises and executes tools. *tools.Registry satisfies it.
type Dispatcher interface {
	Definitions() []llm.ToolDefinition
	Dispatch(ctx context.Context, name string, args llm.Arguments, correlationID string) (json.RawMessage, error)
	Source(name string) string
}

// Orchestrator manages the agent loop for tool calling
type Orchestrator struct {
	model         ChatModel
	tools         Dispatcher
	maxIterations int
	summaryLimit  int
	tracer        trace.Tracer
	now           func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(model ChatModel, tools Dispatcher, maxIterations, summaryLimit int) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if summaryLimit <= 0 {
		summaryLimit = DefaultSummaryLimit
	}
	return &Orchestrator{
		model:         model,
		tools:         tools,
		maxIterations: maxIterations,
		summaryLimit:  summaryLimit,
		tracer:        otel.Tracer(tracerName),
		now:           time.Now,
	}
}

// Run executes the agent loop for one question.
//
// Tool failures are folded into the history and never returned. The returned
// error is always a model call failure; callers route it to Fallback.
func (o *Orchestrator) Run(ctx context.Context, question, correlationID string) (*ChatResult, error) {
	start := o.now()
	history := []llm.Message{
		{Role: llm.RoleUser, Content: question},
	}
	evidence := NewCollector(o.summaryLimit)
	toolDefs := o.tools.Definitions()

	for iteration := 0; ; iteration++ {
		if iteration >= o.maxIterations {
			log.Warn("[llm_max_iterations] Reached maximum tool iterations | maxIterations=%d correlationId=%s",
				o.maxIterations, correlationID)
			return o.finish(lastAssistantContent(history), evidence, correlationID, iteration, outcomeMaxIterations, start), nil
		}

		log.Debug("[llm_chat_request] Sending chat request to LLM | iteration=%d messageCount=%d correlationId=%s",
			iteration, len(history), correlationID)

		resp, err := o.model.Chat(ctx, history, toolDefs)
		if err != nil {
			return nil, fmt.Errorf("model call failed at iteration %d: %w", iteration+1, err)
		}

		message := resp.Message
		if message.Role == "" {
			message.Role = llm.RoleAssistant
		}
		history = append(history, message)

		if !message.HasToolCalls() {
			answer := message.Content
			if answer == "" {
				answer = NoResponseAnswer
			}
			return o.finish(answer, evidence, correlationID, iteration+1, outcomeAnswered, start), nil
		}

		log.Info("[llm_tool_calls_detected] LLM requested tool calls | toolCount=%d iteration=%d correlationId=%s",
			len(message.ToolCalls), iteration, correlationID)

		for _, record := range o.executeBatch(ctx, message.ToolCalls, correlationID) {
			history = append(history, llm.Message{Role: llm.RoleTool, Content: record.Content})
			evidence.Record(record, o.tools.Source(record.ToolName))
		}
	}
}

func (o *Orchestrator) finish(answer string, evidence *Collector, correlationID string, iterations int, outcome string, start time.Time) *ChatResult {
	duration := o.now().Sub(start)
	recordSession(outcome, iterations, duration)

	log.Info("[llm_request_success] LLM request completed | outcome=%s responseLength=%d duration_ms=%d iterations=%d evidenceCount=%d correlationId=%s",
		outcome, len(answer), duration.Milliseconds(), iterations, evidence.Len(), correlationID)

	return &ChatResult{
		Answer:        answer,
		Evidence:      evidence.Entries(),
		CorrelationID: correlationID,
		Iterations:    iterations,
	}
}

// executeBatch runs every requested call concurrently and returns the records
// in request order once all of them have completed.
func (o *Orchestrator) executeBatch(ctx context.Context, calls []llm.ToolCall, correlationID string) []ToolCallRecord {
	records := make([]ToolCallRecord, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			records[i] = o.executeTool(ctx, call, correlationID)
			return nil
		})
	}
	_ = g.Wait()

	return records
}

func (o *Orchestrator) executeTool(ctx context.Context, call llm.ToolCall, correlationID string) ToolCallRecord {
	name := call.Function.Name
	ctx, span := o.tracer.Start(ctx, "agent.tool_call", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("correlation_id", correlationID),
	))
	defer span.End()

	log.Info("[llm_executing_tool] Executing tool requested by LLM | tool=%s arguments=%s correlationId=%s",
		name, argumentsString(call.Function.Arguments), correlationID)

	result, err := o.tools.Dispatch(ctx, name, call.Function.Arguments, correlationID)
	record := ToolCallRecord{
		ToolName:    name,
		Arguments:   call.Function.Arguments,
		CompletedAt: o.now(),
	}
	if err != nil {
		log.Error("[llm_tool_execution_error] Tool execution failed | tool=%s error=%v correlationId=%s",
			name, err, correlationID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool call failed")
		record.Err = err
		record.Content = "Error executing tool: " + err.Error()
		return record
	}

	record.Content = string(result)
	return record
}

// lastAssistantContent scans history from the end for the newest assistant message.
func lastAssistantContent(history []llm.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != llm.RoleAssistant {
			continue
		}
		if history[i].Content == "" {
			return UnableAnswer
		}
		return history[i].Content
	}
	return UnableAnswer
}

func argumentsString(args llm.Arguments) string {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(args))
	}
	return string(data)
}
