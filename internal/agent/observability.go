package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const tracerName = "livecontext.agent"

// Session outcomes.
const (
	outcomeAnswered      = "answered"
	outcomeMaxIterations = "max_iterations"
	outcomeFallback      = "fallback"
)

var (
	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "livecontext",
			Subsystem: "agent",
			Name:      "sessions_total",
			Help:      "Total chat sessions by outcome.",
		},
		[]string{"outcome"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "livecontext",
			Subsystem: "agent",
			Name:      "fallbacks_total",
			Help:      "Total fallback responses by reason.",
		},
		[]string{"reason"},
	)

	sessionIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "livecontext",
			Subsystem: "agent",
			Name:      "session_iterations",
			Help:      "Model calls per chat session.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8, 13},
		},
	)

	sessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "livecontext",
			Subsystem: "agent",
			Name:      "session_duration_seconds",
			Help:      "Duration of chat sessions in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

func recordSession(outcome string, iterations int, duration time.Duration) {
	sessionsTotal.WithLabelValues(outcome).Inc()
	sessionIterations.Observe(float64(iterations))
	sessionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
