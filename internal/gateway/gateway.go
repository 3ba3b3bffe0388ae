package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ksktechai/livecontext-ai/pkg/log"
)

// CorrelationHeader carries the correlation token on every outbound call.
const CorrelationHeader = "X-Correlation-Id"

const maxErrorBody = 512

// Endpoint is a configured tool service.
type Endpoint struct {
	BaseURL string
	Timeout time.Duration
}

// ToolRequest is the body posted to <baseUrl>/tools/<tool>.
type ToolRequest struct {
	Tool          string         `json:"tool"`
	Parameters    map[string]any `json:"parameters"`
	CorrelationID string         `json:"correlationId,omitempty"`
}

// Gateway invokes named tools on named services over HTTP.
// The endpoint table is fixed at construction; Gateway is safe for concurrent use.
type Gateway struct {
	endpoints  map[string]Endpoint
	httpClient *http.Client
	tracer     trace.Tracer
}

type Option func(*Gateway)

// WithHTTPClient replaces the transport. Per-service timeouts are still applied
// through the request context.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = c
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = t
	}
}

// New creates a Gateway over the given service endpoints.
func New(endpoints map[string]Endpoint, opts ...Option) *Gateway {
	table := make(map[string]Endpoint, len(endpoints))
	for key, ep := range endpoints {
		ep.BaseURL = strings.TrimRight(ep.BaseURL, "/")
		table[strings.ToLower(key)] = ep
	}
	g := &Gateway{
		endpoints:  table,
		httpClient: &http.Client{},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Services returns the configured service keys in sorted order.
func (g *Gateway) Services() []string {
	keys := make([]string, 0, len(g.endpoints))
	for k := range g.endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (g *Gateway) resolve(service string) (Endpoint, error) {
	ep, ok := g.endpoints[strings.ToLower(service)]
	if !ok || ep.BaseURL == "" {
		return Endpoint{}, NewError(KindUnknownService, fmt.Sprintf("unknown tool service %q", service)).
			WithContext("service", service)
	}
	return ep, nil
}

// Invoke posts {tool, parameters, correlationId} to <baseUrl>/tools/<tool> and
// returns the response body, which must be valid JSON.
//
// The service timeout caps the whole round trip including the body read.
// Failures are *Error values with Kind UnknownService, Timeout, NetworkError,
// ServerError or DecodeError.
func (g *Gateway) Invoke(ctx context.Context, service, tool string, params map[string]any, correlationID string) (json.RawMessage, error) {
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, "gateway.invoke", trace.WithAttributes(
		attribute.String("tool.service", service),
		attribute.String("tool.name", tool),
		attribute.String("correlation_id", correlationID),
	))
	defer span.End()

	result, err := g.invoke(ctx, service, tool, params, correlationID)
	duration := time.Since(start)
	recordCall(service, tool, duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
		log.Error("[tool_call_error] Tool call failed | service=%s tool=%s error=%v duration_ms=%d correlationId=%s",
			service, tool, err, duration.Milliseconds(), correlationID)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	log.Info("[tool_call_success] Tool call succeeded | service=%s tool=%s duration_ms=%d correlationId=%s",
		service, tool, duration.Milliseconds(), correlationID)
	return result, nil
}

func (g *Gateway) invoke(ctx context.Context, service, tool string, params map[string]any, correlationID string) (json.RawMessage, error) {
	ep, err := g.resolve(service)
	if err != nil {
		return nil, err
	}

	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(ToolRequest{
		Tool:          tool,
		Parameters:    params,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, NewErrorWithCause(KindDecode, "failed to encode tool request", err).
			WithContext("tool", tool)
	}

	url := ep.BaseURL + "/tools/" + tool
	log.Info("[tool_call_start] Calling tool | service=%s tool=%s url=%s body=%s correlationId=%s",
		service, tool, url, string(payload), correlationID)

	callCtx, cancel := withTimeout(ctx, ep.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewErrorWithCause(KindNetwork, "failed to create request", err).
			WithContext("url", url)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if correlationID != "" {
		req.Header.Set(CorrelationHeader, correlationID)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, transportError(callCtx, "request failed", err, service, ep.Timeout)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(callCtx, "failed to read response", err, service, ep.Timeout)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewError(KindServer, fmt.Sprintf("tool %s returned status %d", tool, resp.StatusCode)).
			WithContext("status", resp.StatusCode).
			WithContext("body", truncate(string(body), maxErrorBody))
	}

	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, NewError(KindDecode, fmt.Sprintf("tool %s returned malformed JSON", tool)).
			WithContext("body", truncate(string(body), maxErrorBody))
	}

	return json.RawMessage(trimmed), nil
}

// Health issues GET <baseUrl>/health under the service timeout.
func (g *Gateway) Health(ctx context.Context, service string) error {
	ep, err := g.resolve(service)
	if err != nil {
		return err
	}

	callCtx, cancel := withTimeout(ctx, ep.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, ep.BaseURL+"/health", nil)
	if err != nil {
		return NewErrorWithCause(KindNetwork, "failed to create request", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return transportError(callCtx, "health check failed", err, service, ep.Timeout)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewError(KindServer, fmt.Sprintf("health check returned status %d", resp.StatusCode)).
			WithContext("service", service)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// transportError separates a timeout of the call context from other transport failures.
func transportError(callCtx context.Context, msg string, err error, service string, timeout time.Duration) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return NewErrorWithCause(KindTimeout, fmt.Sprintf("%s: exceeded %s", msg, timeout), err).
			WithContext("service", service)
	}
	return NewErrorWithCause(KindNetwork, msg, err).
		WithContext("service", service)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
