package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_sessions_started_total",
			Help: "Total number of interviews started",
		},
		[]string{"skill_level"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "interview_active_sessions",
			Help: "Number of sessions currently held in the registry",
		},
	)

	AnswersEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "interview_answers_evaluated_total",
			Help: "Total number of answers evaluated",
		},
	)

	// Fallbacks counts substitutions of a deterministic result for a failed external call.
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_fallbacks_total",
			Help: "Total number of fallback paths taken, by operation",
		},
		[]string{"operation"},
	)

	Reports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_reports_total",
			Help: "Total number of reports generated",
		},
		[]string{"kind"},
	)

	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_protocol_errors_total",
			Help: "Total number of client requests rejected, by error code",
		},
		[]string{"code"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interview_llm_call_duration_seconds",
			Help:    "Duration of external generation and evaluation calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"operation"},
	)
)
