package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// IntentRequestsTotal counts orchestrator operations by outcome.
	IntentRequestsTotal *prometheus.CounterVec
	// IntentStatusTotal counts processor intent statuses seen by the reducer.
	IntentStatusTotal *prometheus.CounterVec
	// IntentDuration records orchestrator latency in milliseconds.
	IntentDuration *prometheus.HistogramVec
	// WebhookEventsTotal counts inbound processor webhooks by type and outcome.
	WebhookEventsTotal *prometheus.CounterVec
	// RateLimitRejectedTotal counts requests refused by admission control.
	RateLimitRejectedTotal *prometheus.CounterVec
	// TasksEnqueuedTotal counts background tasks handed to the queue.
	TasksEnqueuedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		IntentRequestsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_requests_total",
			Help:      "Count of payment form operations by outcome.",
		}, []string{"operation", "result"}))
		IntentStatusTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_status_total",
			Help:      "Count of intent statuses returned by the processor.",
		}, []string{"status"}))
		IntentDuration = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intent_duration_ms",
			Help:      "Latency of payment form operations in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"operation"}))
		WebhookEventsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Count of processed processor webhooks by type and outcome.",
		}, []string{"type", "result"}))
		RateLimitRejectedTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_rejected_total",
			Help:      "Requests rejected by rate limiting.",
		}, []string{"route"}))
		TasksEnqueuedTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_enqueued_total",
			Help:      "Background tasks enqueued by type and outcome.",
		}, []string{"type", "result"}))
	})
}
