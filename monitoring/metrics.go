package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_flow_transitions_total",
			Help: "Coordinator state transitions",
		},
		[]string{"from", "to"},
	)

	remoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_remote_requests_total",
			Help: "Calls to the remote donation service by outcome",
		},
		[]string{"operation", "outcome"},
	)

	remoteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "donation_remote_request_duration_seconds",
			Help:    "Latency of calls to the remote donation service",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)

	callbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_callbacks_total",
			Help: "Callback notifications by how they were handled",
		},
		[]string{"outcome"},
	)

	staleResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "donation_stale_responses_total",
			Help: "Responses dropped because their flow was abandoned",
		},
	)
)

// Callback outcomes.
const (
	CallbackAccepted  = "accepted"
	CallbackForeign   = "foreign"
	CallbackMalformed = "malformed"
	CallbackNoID      = "missing_transaction_id"
	CallbackIgnored   = "ignored_state"
)

// Monitor records flow metrics. A nil *Monitor is valid and records nothing.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) TrackTransition(from, to string) {
	if m == nil {
		return
	}
	flowTransitions.WithLabelValues(from, to).Inc()
}

func (m *Monitor) TrackRemoteCall(operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	remoteRequests.WithLabelValues(operation, outcome).Inc()
	remoteLatency.WithLabelValues(operation).Observe(took.Seconds())
}

func (m *Monitor) TrackCallback(outcome string) {
	if m == nil {
		return
	}
	callbacks.WithLabelValues(outcome).Inc()
}

func (m *Monitor) TrackStaleResponse() {
	if m == nil {
		return
	}
	staleResponses.Inc()
}
