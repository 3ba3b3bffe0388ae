package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const tracerName = "livecontext.gateway"

var (
	// toolCallDuration measures tool round trips.
	//
	// Labels:
	//   - service: "market", "news", "weather", "system"
	//   - status: "success" or "error"
	toolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "livecontext",
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Duration of tool gateway calls in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service", "status"},
	)

	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "livecontext",
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Total number of tool gateway calls.",
		},
		[]string{"service", "tool", "status"},
	)

	// toolErrorsTotal uses Kind.String() as error_kind to keep cardinality fixed.
	toolErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "livecontext",
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Total tool gateway errors by kind.",
		},
		[]string{"service", "error_kind"},
	)
)

func recordCall(service, tool string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		toolErrorsTotal.WithLabelValues(service, KindOf(err).String()).Inc()
	}
	toolCallDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	toolCallsTotal.WithLabelValues(service, tool, status).Inc()
}
