package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ksktechai/livecontext-ai/internal/llm"
	"github.com/ksktechai/livecontext-ai/pkg/log"
)

// Agent answers one question per call. Chat never fails; degraded answers are
// flagged on the result.
type Agent interface {
	Chat(ctx context.Context, question, correlationID string) *ChatResult
}

// Recorder persists finished sessions for auditing.
type Recorder interface {
	SaveChat(ctx context.Context, question string, result *ChatResult) error
}

// LLMAgent implements the Agent interface using an LLM with tool calling
type LLMAgent struct {
	model         ChatModel
	tools         Dispatcher
	mockMode      bool
	maxIterations int
	summaryLimit  int
	recorder      Recorder
	tracer        trace.Tracer
}

type Option func(*LLMAgent)

// WithMockMode bypasses the model and tools and always answers with Fallback.
func WithMockMode(enabled bool) Option {
	return func(a *LLMAgent) {
		a.mockMode = enabled
	}
}

func WithMaxIterations(n int) Option {
	return func(a *LLMAgent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

func WithSummaryLimit(n int) Option {
	return func(a *LLMAgent) {
		if n > 0 {
			a.summaryLimit = n
		}
	}
}

// WithRecorder stores every finished session. Recording errors are logged only.
func WithRecorder(r Recorder) Option {
	return func(a *LLMAgent) {
		a.recorder = r
	}
}

// NewLLMAgent creates a new LLM-based agent. A nil model behaves like mock mode.
func NewLLMAgent(model ChatModel, tools Dispatcher, opts ...Option) *LLMAgent {
	a := &LLMAgent{
		model:         model,
		tools:         tools,
		maxIterations: DefaultMaxIterations,
		summaryLimit:  DefaultSummaryLimit,
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Chat runs one bounded session for question. An empty correlationID is
// replaced by a generated one.
func (a *LLMAgent) Chat(ctx context.Context, question, correlationID string) *ChatResult {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	start := time.Now()

	ctx, span := a.tracer.Start(ctx, "agent.chat", trace.WithAttributes(
		attribute.String("correlation_id", correlationID),
		attribute.Int("question_length", len(question)),
		attribute.Bool("mock_mode", a.mockMode),
	))
	defer span.End()

	log.Info("[llm_request_start] Starting LLM chat request | model=%s questionLength=%d mockMode=%t correlationId=%s",
		modelName(a.model), len(question), a.mockMode, correlationID)

	var result *ChatResult
	if a.mockMode || a.model == nil {
		result = a.fallback(question, correlationID, ReasonMockMode, start)
	} else {
		orchestrator := NewOrchestrator(a.model, a.tools, a.maxIterations, a.summaryLimit)
		res, err := orchestrator.Run(ctx, question, correlationID)
		if err != nil {
			log.Error("[llm_request_error] LLM request failed | error=%v duration_ms=%d correlationId=%s",
				err, time.Since(start).Milliseconds(), correlationID)
			span.RecordError(err)
			result = a.fallback(question, correlationID, fallbackReason(err), start)
		} else {
			result = res
		}
	}

	span.SetAttributes(
		attribute.Bool("degraded", result.Degraded),
		attribute.Int("iterations", result.Iterations),
		attribute.Int("evidence_count", len(result.Evidence)),
	)

	a.record(ctx, question, result)
	return result
}

func (a *LLMAgent) fallback(question, correlationID, reason string, start time.Time) *ChatResult {
	log.Warn("[llm_fallback] Returning fallback response | reason=%s correlationId=%s", reason, correlationID)
	fallbacksTotal.WithLabelValues(reason).Inc()
	recordSession(outcomeFallback, 0, time.Since(start))
	return Fallback(question, correlationID, reason)
}

func (a *LLMAgent) record(ctx context.Context, question string, result *ChatResult) {
	if a.recorder == nil {
		return
	}
	// the audit row is written even when the caller has gone away
	if err := a.recorder.SaveChat(context.WithoutCancel(ctx), question, result); err != nil {
		log.Warn("Failed to record chat: correlationId=%s err=%v", result.CorrelationID, err)
	}
}

func fallbackReason(err error) string {
	if errors.Is(err, llm.ErrEncodeRequest) {
		return ReasonSerializationError
	}
	return ReasonModelError
}

func modelName(m ChatModel) string {
	if named, ok := m.(interface{ Model() string }); ok {
		return named.Model()
	}
	return "none"
}
