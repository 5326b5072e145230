package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "retailqa_build_info",
			Help: "Build information of retailqa",
		},
		[]string{"version", "commit", "date"},
	)

	Attempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailqa_resolution_attempts_total",
			Help: "Resolution attempts by outcome (success or error kind)",
		},
		[]string{"outcome"},
	)

	Sessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailqa_sessions_total",
			Help: "Finished question sessions by termination",
		},
		[]string{"termination"},
	)

	AttemptsPerSession = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retailqa_session_attempts",
			Help:    "Resolution attempts used per session",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retailqa_session_duration_seconds",
			Help:    "Wall time of a question session",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)
)

// Observer records controller events into the package collectors.
type Observer struct{}

func (Observer) AttemptFinished(outcome string) {
	Attempts.WithLabelValues(outcome).Inc()
}

func (Observer) SessionFinished(termination string, attempts int, elapsed time.Duration) {
	Sessions.WithLabelValues(termination).Inc()
	AttemptsPerSession.Observe(float64(attempts))
	SessionDuration.Observe(elapsed.Seconds())
}
