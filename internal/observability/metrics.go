package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the Prometheus collectors for the API and the workflows.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests          *prometheus.CounterVec
	requestLatency    *prometheus.HistogramVec
	errors            *prometheus.CounterVec
	workflowRuns      *prometheus.CounterVec
	stepAttempts      *prometheus.CounterVec
	classifierLatency prometheus.Histogram
	notifications     *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_http_errors_total",
			Help: "HTTP errors by route, method and error code.",
		}, []string{"route", "method", "code"}),
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_workflow_runs_total",
			Help: "Finished workflow runs by workflow and outcome.",
		}, []string{"workflow", "outcome"}),
		stepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_step_attempts_total",
			Help: "Workflow step attempts by step and result.",
		}, []string{"step", "result"}),
		classifierLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_classifier_latency_seconds",
			Help:    "Latency of classifier calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_notifications_total",
			Help: "Notification deliveries by channel and result.",
		}, []string{"channel", "result"}),
	}

	reg.MustRegister(
		m.requests,
		m.requestLatency,
		m.errors,
		m.workflowRuns,
		m.stepAttempts,
		m.classifierLatency,
		m.notifications,
	)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordWorkflowRun counts a finished run.
func (m *Metrics) RecordWorkflowRun(workflow, outcome string) {
	if m == nil {
		return
	}
	m.workflowRuns.WithLabelValues(workflow, outcome).Inc()
}

// RecordStepAttempt counts one execution attempt of a workflow step.
func (m *Metrics) RecordStepAttempt(step, result string) {
	if m == nil {
		return
	}
	m.stepAttempts.WithLabelValues(step, result).Inc()
}

// RecordClassifierLatency observes the duration of a classifier call.
func (m *Metrics) RecordClassifierLatency(duration time.Duration) {
	if m == nil {
		return
	}
	m.classifierLatency.Observe(duration.Seconds())
}

// RecordNotification counts a delivery attempt on a channel.
func (m *Metrics) RecordNotification(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}
