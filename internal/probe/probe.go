// Package probe periodically checks that every configured tool service answers
// GET /health and keeps the latest result per service.
package probe

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ksktechai/livecontext-ai/pkg/icron"
	"github.com/ksktechai/livecontext-ai/pkg/log"
)

var serviceUp = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "livecontext",
		Subsystem: "probe",
		Name:      "service_up",
		Help:      "1 when the last health probe of the tool service succeeded.",
	},
	[]string{"service"},
)

// Checker reports the health of named services. *gateway.Gateway satisfies it.
type Checker interface {
	Services() []string
	Health(ctx context.Context, service string) error
}

// Status is the latest probe outcome for one service.
type Status struct {
	Service   string    `json:"service"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
	LatencyMS int64     `json:"latencyMs"`
}

type Prober struct {
	checker  Checker
	cron     *cron.Cron
	cronExpr string
	now      func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	statuses map[string]Status
}

func New(checker Checker, cronEngine *cron.Cron, cronExpr string) *Prober {
	return &Prober{
		checker:  checker,
		cron:     cronEngine,
		cronExpr: cronExpr,
		now:      time.Now,
		statuses: make(map[string]Status),
	}
}

// Schedule registers the probe on the cron engine. The engine is started by the caller.
func (p *Prober) Schedule(ctx context.Context) error {
	if p.cron == nil {
		return fmt.Errorf("cron engine is nil")
	}
	_, err := p.cron.AddFunc(p.cronExpr, func() {
		p.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule probe: %w", err)
	}
	if info, err := p.Triggers(p.now()); err == nil {
		log.Info("Scheduled tool health probe: cron=%s services=%v firstRunIn=%s",
			p.cronExpr, p.checker.Services(), info.TimeUntilNext.Round(time.Second))
	}
	return nil
}

// RunOnce probes every service concurrently. Calls that overlap a run in
// progress wait for it and share its result.
func (p *Prober) RunOnce(ctx context.Context) []Status {
	v, _, _ := p.group.Do("probe", func() (any, error) {
		return p.probeAll(ctx), nil
	})
	return v.([]Status)
}

func (p *Prober) probeAll(ctx context.Context) []Status {
	services := p.checker.Services()
	results := make([]Status, len(services))

	var g errgroup.Group
	for i, service := range services {
		i, service := i, service
		g.Go(func() error {
			results[i] = p.probe(ctx, service)
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	for _, st := range results {
		p.statuses[st.Service] = st
	}
	p.mu.Unlock()

	return results
}

func (p *Prober) probe(ctx context.Context, service string) Status {
	start := p.now()
	err := p.checker.Health(ctx, service)
	st := Status{
		Service:   service,
		Healthy:   err == nil,
		CheckedAt: p.now().UTC(),
		LatencyMS: p.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		st.Error = err.Error()
		serviceUp.WithLabelValues(service).Set(0)
		log.Warn("[probe_result] Tool service unhealthy | service=%s latency_ms=%d error=%v", service, st.LatencyMS, err)
		return st
	}
	serviceUp.WithLabelValues(service).Set(1)
	log.Debug("[probe_result] Tool service healthy | service=%s latency_ms=%d", service, st.LatencyMS)
	return st
}

// Statuses returns the latest known status per service, sorted by service.
func (p *Prober) Statuses() []Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Status, 0, len(p.statuses))
	for _, st := range p.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Service < out[j].Service
	})
	return out
}

// Triggers returns the scheduled fire times around now. Last is zero when the
// schedule has not fired within the past year.
func (p *Prober) Triggers(now time.Time) (icron.TriggerInfo, error) {
	info, err := icron.GetTriggerInfo(p.cronExpr, now)
	if err != nil {
		return icron.TriggerInfo{}, fmt.Errorf("failed to get cron schedule: %w", err)
	}
	return *info, nil
}
