package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kp-forecasting/forecast-client/common/clients"
)

const (
	namespace = "forecast"
	subsystem = "client"
)

// ClientMetrics exposes Prometheus collectors for forecast client activity.
// It implements clients.Recorder.
type ClientMetrics struct {
	requestDuration *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	polls           *prometheus.CounterVec
	waitDuration    *prometheus.HistogramVec
	workflows       *prometheus.CounterVec
	active          prometheus.Gauge
}

var _ clients.Recorder = (*ClientMetrics)(nil)

// MustNewClientMetrics registers the collectors with reg and panics on conflicts.
// Tests should pass a fresh prometheus.NewRegistry().
func MustNewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &ClientMetrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP exchanges with the forecast service.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op", "code"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "retries_total",
				Help:      "Transient failures that were retried.",
			},
			[]string{"op"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "polls_total",
				Help:      "Task status snapshots observed while waiting, by state.",
			},
			[]string{"state"},
		),
		waitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "wait_duration_seconds",
				Help:      "Time spent waiting for tasks to reach a terminal state.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"outcome"},
		),
		workflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "workflows_total",
				Help:      "Submit-wait-fetch workflows finished, by outcome.",
			},
			[]string{"outcome"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "workflows_active",
				Help:      "Workflows currently in flight.",
			},
		),
	}

	reg.MustRegister(m.requestDuration, m.retries, m.polls, m.waitDuration, m.workflows, m.active)
	return m
}

// ObserveRequest records one HTTP exchange; code 0 is reported as "error"
func (m *ClientMetrics) ObserveRequest(op string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requestDuration.WithLabelValues(op, label).Observe(elapsed.Seconds())
}

// ObserveRetry counts a retried transient failure
func (m *ClientMetrics) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

// ObservePoll counts a status snapshot
func (m *ClientMetrics) ObservePoll(state clients.TaskState) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(string(state)).Inc()
}

// ObserveWait records how long a wait took and how it ended
func (m *ClientMetrics) ObserveWait(kind clients.Kind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.WithLabelValues(outcome(kind)).Observe(elapsed.Seconds())
}

// WorkflowStarted marks a workflow in flight and returns the func that ends it
func (m *ClientMetrics) WorkflowStarted() func(err error) {
	if m == nil {
		return func(error) {}
	}
	m.active.Inc()
	return func(err error) {
		m.active.Dec()
		m.workflows.WithLabelValues(workflowOutcome(err)).Inc()
	}
}

func outcome(kind clients.Kind) string {
	if kind == "" {
		return "success"
	}
	return string(kind)
}

func workflowOutcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind := clients.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}
