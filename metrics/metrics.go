// Package metrics registers the Prometheus instruments exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ComplaintsCreated counts complaints filed, by intake source.
	ComplaintsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jansunwai_complaints_created_total",
		Help: "Complaints filed, by source (api, intake).",
	}, []string{"source"})

	// Transitions counts applied state transitions.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jansunwai_transitions_total",
		Help: "Applied complaint state transitions.",
	}, []string{"from", "to"})

	// TransitionConflicts counts optimistic-concurrency losses, including ones
	// a retry later won.
	TransitionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jansunwai_transition_conflicts_total",
		Help: "Row-version conflicts on complaint mutations.",
	})

	// Escalations counts scheduler escalations by target level.
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jansunwai_escalations_total",
		Help: "Scheduler escalations, by target level.",
	}, []string{"to_level"})

	// AutoClosed counts complaints closed by the sweep.
	AutoClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jansunwai_auto_closed_total",
		Help: "Complaints auto-closed after the sign-off window elapsed.",
	})

	// ClassifierFallbacks counts classifications that landed in the manual
	// routing queue (model failure or low confidence).
	ClassifierFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jansunwai_classifier_fallbacks_total",
		Help: "Classifications routed to the manual queue.",
	})

	// IntakeMessages counts inbound conversational messages by outcome.
	IntakeMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jansunwai_intake_messages_total",
		Help: "Inbound intake messages, by outcome (handled, rate_limited, rejected).",
	}, []string{"outcome"})

	// RequestDuration observes HTTP handler latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jansunwai_request_duration_seconds",
		Help:    "HTTP request duration by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)
