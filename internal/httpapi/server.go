package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ksktechai/livecontext-ai/internal/agent"
	"github.com/ksktechai/livecontext-ai/internal/persistence"
	"github.com/ksktechai/livecontext-ai/internal/probe"
	"github.com/ksktechai/livecontext-ai/pkg/icron"
)

type chatLister interface {
	ListRecent(ctx context.Context, limit int) ([]persistence.ChatRecord, error)
}

type statusReporter interface {
	Statuses() []probe.Status
	Triggers(now time.Time) (icron.TriggerInfo, error)
}

type Server struct {
	agent    agent.Agent
	audit    chatLister
	prober   statusReporter
	validate *validator.Validate

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithAudit enables GET /api/chats.
func WithAudit(audit chatLister) Option {
	return func(s *Server) {
		s.audit = audit
	}
}

// WithProbe enables GET /api/tools/status.
func WithProbe(prober statusReporter) Option {
	return func(s *Server) {
		s.prober = prober
	}
}

func NewServer(a agent.Agent, opts ...Option) *Server {
	s := &Server{
		agent:    a,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.mux, "livecontext.http")
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/tools/status", s.handleToolStatus)
	s.mux.HandleFunc("/api/chats", s.handleListChats)
	s.mux.Handle("/metrics", promhttp.Handler())
}
