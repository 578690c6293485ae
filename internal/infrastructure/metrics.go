package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tracker"

// WebhookMetrics instruments outbound webhook deliveries.
type WebhookMetrics struct {
	Deliveries      *prometheus.CounterVec
	RetriesEnqueued prometheus.Counter
	Duration        prometheus.Histogram
	Dropped         prometheus.Counter
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	const subsystem = "webhooks"
	m := &WebhookMetrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deliveries_total",
			Help:      "Number of webhook delivery attempts by outcome",
		}, []string{"outcome"}),
		RetriesEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retries_scheduled_total",
			Help:      "Number of webhook retries scheduled",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_duration_seconds",
			Help:      "Latency of webhook delivery attempts",
			Buckets:   prometheus.DefBuckets,
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jobs_dropped_total",
			Help:      "Number of delivery jobs dropped because the worker pool was stopped",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Deliveries, m.RetriesEnqueued, m.Duration, m.Dropped)
	}
	return m
}

// TrialMetrics instruments the trial monitor.
type TrialMetrics struct {
	Cycles   *prometheus.CounterVec
	Warnings prometheus.Counter
	Expired  prometheus.Counter
	Failures prometheus.Counter
}

func NewTrialMetrics(reg prometheus.Registerer) *TrialMetrics {
	const subsystem = "trials"
	m := &TrialMetrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_total",
			Help:      "Number of trial monitor cycles by result",
		}, []string{"result"}),
		Warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "warnings_sent_total",
			Help:      "Number of trial warning emails sent",
		}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "expired_total",
			Help:      "Number of trials expired",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "user_failures_total",
			Help:      "Number of per-user failures during trial cycles",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Cycles, m.Warnings, m.Expired, m.Failures)
	}
	return m
}

// HTTPMetrics instruments the API.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	const subsystem = "http"
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration)
	}
	return m
}
