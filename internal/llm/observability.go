package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const tracerName = "livecontext.llm"

var (
	modelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "livecontext",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of model chat calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	modelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "livecontext",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of model chat calls.",
		},
		[]string{"status"},
	)
)

func recordModelCall(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	modelCallDuration.WithLabelValues(status).Observe(duration.Seconds())
	modelCallsTotal.WithLabelValues(status).Inc()
}
