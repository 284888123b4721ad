package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrattend_verifications_total",
			Help: "Check-in verifications by outcome and rejection reason",
		},
		[]string{"outcome", "reason"},
	)

	VerifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qrattend_verify_duration_seconds",
			Help:    "Duration of the verification pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	TokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qrattend_tokens_issued_total",
			Help: "QR tokens minted by teachers",
		},
	)

	BindingsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrattend_bindings_committed_total",
			Help: "First-use identity bindings written, by kind",
		},
		[]string{"kind"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrattend_events_consumed_total",
			Help: "Queue events handled by the worker",
		},
		[]string{"type", "result"},
	)
)
