package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ksktechai/livecontext-ai/internal/agent"
	"github.com/ksktechai/livecontext-ai/internal/config"
	"github.com/ksktechai/livecontext-ai/internal/gateway"
	"github.com/ksktechai/livecontext-ai/internal/httpapi"
	"github.com/ksktechai/livecontext-ai/internal/llm"
	"github.com/ksktechai/livecontext-ai/internal/persistence"
	"github.com/ksktechai/livecontext-ai/internal/probe"
	"github.com/ksktechai/livecontext-ai/internal/tools"
	"github.com/ksktechai/livecontext-ai/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronRunner interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

type components struct {
	scheduler scheduler
	cron      *cron.Cron
	http      *httpapi.Server
	store     *persistence.SQLiteStore
}

func (c *components) Close() error {
	return c.store.Close()
}

func main() {
	// a missing .env is fine; the environment alone is enough
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))

	shutdownTracing, err := setupTracing(cfg.System.TraceStdout)
	if err != nil {
		log.Fatal("Failed to set up tracing: %v", err)
	}

	app, err := build(cfg)
	if err != nil {
		log.Fatal("Failed to build application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := runWithComponents(ctx, cfg, app.scheduler, app.cron, app.http)

	if err := app.Close(); err != nil {
		log.Error("Failed to close audit store: %v", err)
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Error("Failed to flush traces: %v", err)
	}

	if runErr != nil {
		log.Fatal("Server stopped with error: %v", runErr)
	}
	log.Info("Server stopped")
}

// build wires the gateway, tool catalog, model client, agent, audit store,
// probe and HTTP server from cfg.
func build(cfg *config.Config) (*components, error) {
	endpoints := make(map[string]gateway.Endpoint)
	for service, ep := range cfg.Tools.Endpoints() {
		endpoints[service] = gateway.Endpoint{BaseURL: ep.URL, Timeout: ep.Timeout}
	}
	gw := gateway.New(endpoints, gateway.WithHTTPClient(&http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}))
	catalog := tools.DefaultCatalog(gw)
	log.Info("Tool services configured: %v", gw.Services())

	agentOpts := []agent.Option{
		agent.WithMockMode(cfg.LLM.MockMode),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithSummaryLimit(cfg.Agent.SummaryLimit),
	}

	var model agent.ChatModel
	if !cfg.LLM.MockMode {
		client, err := llm.NewClient(&llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create model client: %w", err)
		}
		model = client
		log.Info("Model client ready: endpoint=%s model=%s", client.Endpoint(), client.Model())
	} else {
		log.Warn("Mock mode enabled: chat answers use the fallback responder")
	}

	app := &components{
		cron: cron.New(cron.WithSeconds()),
	}

	var serverOpts []httpapi.Option
	if cfg.System.AuditEnabled {
		store, err := persistence.NewSQLiteStore(cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		app.store = store
		agentOpts = append(agentOpts, agent.WithRecorder(store))
		serverOpts = append(serverOpts, httpapi.WithAudit(store))
	}

	if cfg.Probe.Enabled {
		prober := probe.New(gw, app.cron, cfg.Probe.CronExpr)
		app.scheduler = prober
		serverOpts = append(serverOpts, httpapi.WithProbe(prober))
	}

	app.http = httpapi.NewServer(agent.NewLLMAgent(model, catalog, agentOpts...), serverOpts...)
	return app, nil
}

func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, cronEngine cronRunner, httpSrv httpServer) error {
	if sched != nil {
		if err := sched.Schedule(ctx); err != nil {
			return fmt.Errorf("schedule probe: %w", err)
		}
	}
	cronEngine.Start()
	defer cronEngine.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}
