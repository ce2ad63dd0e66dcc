package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors shared by the API and the worker.
type Metrics struct {
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	inbound         *prometheus.CounterVec
	sweepTickets    *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	feedback        *prometheus.CounterVec
	subscriptionOps *prometheus.CounterVec
}

// NewMetrics registers collectors on reg. A nil registerer uses the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "Total count of HTTP requests received.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "Histogram of request durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "Errors returned by handlers, by domain error code.",
		}, []string{"method", "path", "code"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_inbound_messages_total",
			Help: "Inbound messages by source and outcome.",
		}, []string{"source", "outcome"}),
		sweepTickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sweep_tickets_total",
			Help: "Tickets visited by the reassignment sweep, by result.",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_sweep_duration_seconds",
			Help:    "Duration of reassignment sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_feedback_total",
			Help: "Feedback submissions by rating.",
		}, []string{"rating"}),
		subscriptionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_graph_subscription_ops_total",
			Help: "Graph subscription create/renew operations by result.",
		}, []string{"op", "result"}),
	}
	reg.MustRegister(m.requests, m.duration, m.errors, m.inbound, m.sweepTickets, m.sweepDuration, m.feedback, m.subscriptionOps)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, statusLabel(status)).Inc()
	m.duration.WithLabelValues(method, path).Observe(seconds)
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// RecordInbound counts a processed inbound message.
func (m *Metrics) RecordInbound(source, outcome string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(source, outcome).Inc()
}

// RecordSweep records the outcome counters of one sweep run.
func (m *Metrics) RecordSweep(checked, reassigned, skipped, failed int, seconds float64) {
	if m == nil {
		return
	}
	m.sweepTickets.WithLabelValues("checked").Add(float64(checked))
	m.sweepTickets.WithLabelValues("reassigned").Add(float64(reassigned))
	m.sweepTickets.WithLabelValues("skipped").Add(float64(skipped))
	m.sweepTickets.WithLabelValues("error").Add(float64(failed))
	m.sweepDuration.Observe(seconds)
}

// RecordFeedback counts a stored feedback submission.
func (m *Metrics) RecordFeedback(rating int) {
	if m == nil {
		return
	}
	m.feedback.WithLabelValues(statusLabel(rating)).Inc()
}

// RecordSubscription counts Graph subscription maintenance.
func (m *Metrics) RecordSubscription(op, result string) {
	if m == nil {
		return
	}
	m.subscriptionOps.WithLabelValues(op, result).Inc()
}
