package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrEncodeRequest marks failures to serialize the outbound chat request.
var ErrEncodeRequest = errors.New("failed to marshal request")

const maxErrorBody = 512

// Client talks to an Ollama-compatible chat endpoint.
// Thread-safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
	tracer     trace.Tracer
}

// NewClient creates a new model client with the given configuration
//
// Example:
//
//	client, err := llm.NewClient(&llm.Config{
//		BaseURL: "http://localhost:11434",
//		Model:   "llama3.1",
//		Timeout: time.Minute,
//	})
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("invalid configuration: config is nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Client{
		config:  config,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Endpoint returns the chat URL the client posts to.
func (c *Client) Endpoint() string {
	return c.baseURL + "/api/chat"
}

// Chat sends the full history plus the tool catalog and returns the model's reply.
//
// ctx: Context for the request
// messages: Conversation history, oldest first
// tools: Tool definitions advertised to the model; may be empty
//
// Returns the parsed response or an error on transport, status or decode failure.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*ChatResponse, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "llm.chat", trace.WithAttributes(
		attribute.String("llm.model", c.config.Model),
		attribute.Int("llm.message_count", len(messages)),
		attribute.Int("llm.tool_count", len(tools)),
	))
	defer span.End()

	request := ChatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   false,
		Tools:    tools,
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, "/api/chat", request)
	recordModelCall(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		return nil, fmt.Errorf("chat request failed: %w", err)
	}

	span.SetAttributes(attribute.Int("llm.tool_calls", len(resp.Message.ToolCalls)))
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// makeRequest makes a raw HTTP request to the model API
func (c *Client) makeRequest(ctx context.Context, method, path string, payload interface{}) (*ChatResponse, error) {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncodeRequest, err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.config.GetHeaders() {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, fmt.Errorf("request timed out: %w", err)
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(responseBody), maxErrorBody))
	}

	var chatResponse ChatResponse
	if err := json.Unmarshal(responseBody, &chatResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if chatResponse.Error != "" {
		return nil, fmt.Errorf("model error: %s", chatResponse.Error)
	}

	return &chatResponse, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
