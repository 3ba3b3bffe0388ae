package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ksktechai/livecontext-ai/internal/gateway"
	"github.com/ksktechai/livecontext-ai/internal/llm"
	"github.com/ksktechai/livecontext-ai/internal/tools"
)

// modelServer replays canned /api/chat replies in order and captures requests.
type modelServer struct {
	*httptest.Server
	calls    int32
	mu       sync.Mutex
	requests []llm.ChatRequest
}

func newModelServer(t *testing.T, replies ...string) *modelServer {
	t.Helper()
	ms := &modelServer{}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req llm.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ms.mu.Lock()
		ms.requests = append(ms.requests, req)
		ms.mu.Unlock()

		n := int(atomic.AddInt32(&ms.calls, 1))
		if n > len(replies) {
			http.Error(w, "no more replies", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(replies[n-1]))
	}))
	t.Cleanup(ms.Close)
	return ms
}

func (ms *modelServer) request(i int) llm.ChatRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.requests[i]
}

func toolCallReply(content string, calls ...string) string {
	return fmt.Sprintf(`{"model":"test-model","message":{"role":"assistant","content":%q,"tool_calls":[%s]},"done":true}`,
		content, strings.Join(calls, ","))
}

func call(name, args string) string {
	return fmt.Sprintf(`{"function":{"name":%q,"arguments":%s}}`, name, args)
}

func finalReply(content string) string {
	return fmt.Sprintf(`{"model":"test-model","message":{"role":"assistant","content":%q},"done":true}`, content)
}

func newClient(t *testing.T, url string) *llm.Client {
	t.Helper()
	client, err := llm.NewClient(&llm.Config{BaseURL: url, Model: "test-model", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

// catalogFor routes every configured service to the same tool server.
func catalogFor(url string, services ...string) *tools.Registry {
	endpoints := make(map[string]gateway.Endpoint, len(services))
	for _, s := range services {
		endpoints[s] = gateway.Endpoint{BaseURL: url, Timeout: 2 * time.Second}
	}
	return tools.DefaultCatalog(gateway.New(endpoints))
}

type fakeRecorder struct {
	mu       sync.Mutex
	question string
	results  []*ChatResult
	err      error
}

func (f *fakeRecorder) SaveChat(_ context.Context, question string, result *ChatResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.question = question
	f.results = append(f.results, result)
	return f.err
}

func TestLLMAgent_Chat_QuoteScenario(t *testing.T) {
	var toolCalls int32
	toolServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&toolCalls, 1)
		assert.Equal(t, "/tools/get_quote", r.URL.Path)
		assert.Equal(t, "corr-aapl", r.Header.Get(gateway.CorrelationHeader))

		var body gateway.ToolRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "AAPL.US", body.Parameters["symbol"])
		_, _ = w.Write([]byte(`{"price": 150.0}`))
	}))
	defer toolServer.Close()

	model := newModelServer(t,
		toolCallReply("", call("get_quote", `{"symbol":"AAPL.US"}`)),
		finalReply("The price of AAPL is 150.0"),
	)

	recorder := &fakeRecorder{}
	agent := NewLLMAgent(newClient(t, model.URL), catalogFor(toolServer.URL, "market"), WithRecorder(recorder))

	result := agent.Chat(context.Background(), "Price of AAPL?", "corr-aapl")

	assert.Equal(t, "The price of AAPL is 150.0", result.Answer)
	assert.Equal(t, "corr-aapl", result.CorrelationID)
	assert.False(t, result.Degraded)
	assert.Empty(t, result.FallbackReason)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, int32(1), atomic.LoadInt32(&toolCalls))

	require.Len(t, result.Evidence, 1)
	ev := result.Evidence[0]
	assert.Equal(t, tools.GetQuote, ev.Type)
	assert.Equal(t, "Market MCP", ev.Source)
	assert.Equal(t, `Tool result: {"price": 150.0}`, ev.Summary)
	assert.False(t, ev.Timestamp.IsZero())

	// second request carries the full history and the same catalog
	second := model.request(1)
	require.Len(t, second.Messages, 3)
	assert.Equal(t, llm.RoleUser, second.Messages[0].Role)
	assert.Equal(t, llm.RoleAssistant, second.Messages[1].Role)
	require.Len(t, second.Messages[1].ToolCalls, 1)
	assert.Equal(t, "get_quote", second.Messages[1].ToolCalls[0].Function.Name)
	assert.Equal(t, llm.RoleTool, second.Messages[2].Role)
	assert.JSONEq(t, `{"price": 150.0}`, second.Messages[2].Content)
	assert.Equal(t, model.request(0).Tools, second.Tools)
	assert.Len(t, second.Tools, 3)

	require.Len(t, recorder.results, 1)
	assert.Equal(t, "Price of AAPL?", recorder.question)
	assert.Same(t, result, recorder.results[0])
}

func TestLLMAgent_Chat_MalformedArgumentsUseDefaults(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{name: "plain string", args: `"AAPL"`},
		{name: "array", args: `[1,2]`},
		{name: "number", args: `42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var symbol atomic.Value
			toolServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body gateway.ToolRequest
				if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
					symbol.Store(fmt.Sprint(body.Parameters["symbol"]))
				}
				_, _ = w.Write([]byte(`{"price": 150.0}`))
			}))
			defer toolServer.Close()

			model := newModelServer(t,
				toolCallReply("", call("get_quote", tt.args)),
				finalReply("The price of AAPL is 150.0"),
			)

			agent := NewLLMAgent(newClient(t, model.URL), catalogFor(toolServer.URL, "market"))
			result := agent.Chat(context.Background(), "Price of AAPL?", "corr-malformed")

			assert.Equal(t, "The price of AAPL is 150.0", result.Answer)
			assert.False(t, result.Degraded)
			assert.Empty(t, result.FallbackReason)
			assert.Equal(t, int32(2), atomic.LoadInt32(&model.calls))
			assert.Equal(t, "AAPL.US", symbol.Load())

			require.Len(t, result.Evidence, 1)
			assert.Equal(t, tools.GetQuote, result.Evidence[0].Type)
			assert.Equal(t, `Tool result: {"price": 150.0}`, result.Evidence[0].Summary)
		})
	}
}

func TestLLMAgent_Chat_StopsAtIterationCap(t *testing.T) {
	toolServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price": 1}`))
	}))
	defer toolServer.Close()

	replies := make([]string, 6)
	for i := range replies {
		replies[i] = toolCallReply(fmt.Sprintf("step %d", i+1), call("get_quote", `{"symbol":"MSFT.US"}`))
	}
	model := newModelServer(t, replies...)

	agent := NewLLMAgent(newClient(t, model.URL), catalogFor(toolServer.URL, "market"))
	result := agent.Chat(context.Background(), "keep going", "")

	assert.Equal(t, int32(5), atomic.LoadInt32(&model.calls))
	assert.Equal(t, "step 5", result.Answer)
	assert.Len(t, result.Evidence, 5)
	assert.Equal(t, 5, result.Iterations)
	assert.False(t, result.Degraded)
}

func TestLLMAgent_Chat_ConnectionRefusedFallsBack(t *testing.T) {
	var toolCalls int32
	toolServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&toolCalls, 1)
	}))
	defer toolServer.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	before := testutil.ToFloat64(fallbacksTotal.WithLabelValues(ReasonModelError))

	agent := NewLLMAgent(newClient(t, deadURL), catalogFor(toolServer.URL, "market"))
	result := agent.Chat(context.Background(), "What moved the market today?", "corr-down")

	assert.Contains(t, result.Answer, "What moved the market today?")
	assert.Contains(t, result.Answer, FallbackMarker)
	require.Len(t, result.Evidence, 1)
	assert.Equal(t, "Mock Market Data", result.Evidence[0].Source)
	assert.Equal(t, "corr-down", result.CorrelationID)
	assert.True(t, result.Degraded)
	assert.Equal(t, ReasonModelError, result.FallbackReason)
	assert.Zero(t, result.Iterations)
	assert.Zero(t, atomic.LoadInt32(&toolCalls))
	assert.Equal(t, before+1, testutil.ToFloat64(fallbacksTotal.WithLabelValues(ReasonModelError)))
}

func TestLLMAgent_Chat_ModelFailureMidSession(t *testing.T) {
	toolServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"headline": "rates"}`))
	}))
	defer toolServer.Close()

	// second model call runs out of replies and gets a 500
	model := newModelServer(t, toolCallReply("", call("search_news", `{"query":"rates"}`)))

	agent := NewLLMAgent(newClient(t, model.URL), catalogFor(toolServer.URL, "news"))
	result := agent.Chat(context.Background(), "rates news?", "")

	assert.True(t, result.Degraded)
	assert.Equal(t, ReasonModelError, result.FallbackReason)
	require.Len(t, result.Evidence, 1)
	assert.Equal(t, "Sample market quote data (mock)", result.Evidence[0].Summary)
	assert.Equal(t, int32(2), atomic.LoadInt32(&model.calls))
}

func TestLLMAgent_Chat_MockModeMakesNoCalls(t *testing.T) {
	model := newModelServer(t, finalReply("never"))
	var toolCalls int32
	toolServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&toolCalls, 1)
	}))
	defer toolServer.Close()

	agent := NewLLMAgent(newClient(t, model.URL), catalogFor(toolServer.URL, "market"), WithMockMode(true))

	first := agent.Chat(context.Background(), "anything", "")
	second := agent.Chat(context.Background(), "anything", "")

	assert.Zero(t, atomic.LoadInt32(&model.calls))
	assert.Zero(t, atomic.LoadInt32(&toolCalls))
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Evidence, second.Evidence)
	assert.Equal(t, ReasonMockMode, first.FallbackReason)

	_, err := uuid.Parse(first.CorrelationID)
	assert.NoError(t, err)
	assert.NotEqual(t, first.CorrelationID, second.CorrelationID)
}

func TestLLMAgent_Chat_NilModelUsesFallback(t *testing.T) {
	agent := NewLLMAgent(nil, tools.NewRegistry())
	result := agent.Chat(context.Background(), "q", "c")

	assert.True(t, result.Degraded)
	assert.Equal(t, ReasonMockMode, result.FallbackReason)
}

func TestLLMAgent_Chat_UnknownToolIsLocal(t *testing.T) {
	model := newModelServer(t,
		toolCallReply("", call("get_crypto", `{"coin":"BTC"}`)),
		finalReply("I could not look that up."),
	)

	agent := NewLLMAgent(newClient(t, model.URL), tools.DefaultCatalog(gateway.New(nil)))
	result := agent.Chat(context.Background(), "BTC price?", "")

	assert.Equal(t, "I could not look that up.", result.Answer)
	assert.False(t, result.Degraded)
	require.Len(t, result.Evidence, 1)
	assert.Equal(t, "get_crypto", result.Evidence[0].Type)
	assert.Equal(t, tools.UnknownSource, result.Evidence[0].Source)
	assert.True(t, strings.HasPrefix(result.Evidence[0].Summary, "Tool error: "))

	toolMsg := model.request(1).Messages[2]
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Content, "Error executing tool:")
	assert.Contains(t, toolMsg.Content, "UnknownTool")
}

func TestLLMAgent_Chat_ToolServerErrorIsLocal(t *testing.T) {
	toolServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer toolServer.Close()

	model := newModelServer(t,
		toolCallReply("", call("get_weather", `{"latitude":1,"longitude":2}`)),
		finalReply("Weather is unavailable."),
	)

	agent := NewLLMAgent(newClient(t, model.URL), catalogFor(toolServer.URL, "weather"))
	result := agent.Chat(context.Background(), "weather?", "")

	assert.Equal(t, "Weather is unavailable.", result.Answer)
	require.Len(t, result.Evidence, 1)
	assert.Equal(t, "Weather MCP", result.Evidence[0].Source)
	assert.Contains(t, result.Evidence[0].Summary, "ServerError")
}

func TestLLMAgent_Chat_ConcurrentBatchKeepsRequestOrder(t *testing.T) {
	var inFlight, maxInFlight int32
	release := make(chan struct{})
	var once sync.Once

	toolServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		if n == 3 {
			once.Do(func() { close(release) })
		}
		select {
		case <-release:
		case <-time.After(time.Second):
		}
		// finish in reverse of request order
		if strings.HasSuffix(r.URL.Path, "get_quote") {
			time.Sleep(60 * time.Millisecond)
		}
		atomic.AddInt32(&inFlight, -1)
		_, _ = fmt.Fprintf(w, `{"path": %q}`, r.URL.Path)
	}))
	defer toolServer.Close()

	model := newModelServer(t,
		toolCallReply("",
			call("get_quote", `{"symbol":"AAPL.US"}`),
			call("search_news", `{"query":"apple"}`),
			call("get_weather", `{"latitude":37.3,"longitude":-122.0}`),
		),
		finalReply("done"),
	)

	agent := NewLLMAgent(newClient(t, model.URL), catalogFor(toolServer.URL, "market", "news", "weather"))
	result := agent.Chat(context.Background(), "Apple overview", "")

	assert.Equal(t, int32(3), atomic.LoadInt32(&maxInFlight))
	require.Len(t, result.Evidence, 3)
	assert.Equal(t, tools.GetQuote, result.Evidence[0].Type)
	assert.Equal(t, tools.SearchNews, result.Evidence[1].Type)
	assert.Equal(t, tools.GetWeather, result.Evidence[2].Type)

	history := model.request(1).Messages
	require.Len(t, history, 5)
	assert.Contains(t, history[2].Content, "/tools/get_quote")
	assert.Contains(t, history[3].Content, "/tools/search")
	assert.Contains(t, history[4].Content, "/tools/get_forecast")
}

type stubModel struct {
	replies []llm.Message
	err     error
	calls   int
}

func (s *stubModel) Chat(_ context.Context, _ []llm.Message, _ []llm.ToolDefinition) (*llm.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	reply := s.replies[s.calls]
	s.calls++
	return &llm.ChatResponse{Message: reply}, nil
}

func TestLLMAgent_Chat_SerializationErrorReason(t *testing.T) {
	model := &stubModel{err: fmt.Errorf("chat request failed: %w", fmt.Errorf("%w: bad value", llm.ErrEncodeRequest))}
	agent := NewLLMAgent(model, tools.NewRegistry())

	result := agent.Chat(context.Background(), "q", "")
	assert.True(t, result.Degraded)
	assert.Equal(t, ReasonSerializationError, result.FallbackReason)
}

func TestLLMAgent_Chat_CancelledContextFallsBack(t *testing.T) {
	model := newModelServer(t, finalReply("late"))
	agent := NewLLMAgent(newClient(t, model.URL), tools.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := agent.Chat(ctx, "q", "")
	assert.True(t, result.Degraded)
	assert.Equal(t, ReasonModelError, result.FallbackReason)
}

func TestLLMAgent_Chat_RecorderErrorIgnored(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("disk full")}
	agent := NewLLMAgent(&stubModel{replies: []llm.Message{{Role: llm.RoleAssistant, Content: "fine"}}},
		tools.NewRegistry(), WithRecorder(recorder))

	result := agent.Chat(context.Background(), "q", "")
	assert.Equal(t, "fine", result.Answer)
	assert.Len(t, recorder.results, 1)
}

func TestLLMAgent_Chat_EmptyContentPlaceholders(t *testing.T) {
	model := &stubModel{replies: []llm.Message{{Role: llm.RoleAssistant}}}
	result := NewLLMAgent(model, tools.NewRegistry()).Chat(context.Background(), "q", "")
	assert.Equal(t, NoResponseAnswer, result.Answer)
	assert.Equal(t, 1, result.Iterations)

	looping := llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{Function: llm.FunctionCall{Name: "missing"}}},
	}
	model = &stubModel{replies: []llm.Message{looping, looping}}
	result = NewLLMAgent(model, tools.NewRegistry(), WithMaxIterations(2)).Chat(context.Background(), "q", "")
	assert.Equal(t, UnableAnswer, result.Answer)
	assert.Equal(t, 2, result.Iterations)
	assert.Len(t, result.Evidence, 2)
}

func TestLLMAgent_Chat_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	model := &stubModel{replies: []llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{Function: llm.FunctionCall{Name: "missing"}}}},
		{Role: llm.RoleAssistant, Content: "ok"},
	}}
	NewLLMAgent(model, tools.NewRegistry()).Chat(context.Background(), "q", "corr-span")

	names := make([]string, 0)
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "agent.chat")
	assert.Contains(t, names, "agent.tool_call")
}
