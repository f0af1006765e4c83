package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "automation_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automation_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "automation_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	executionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automation_layer",
			Subsystem: "executions",
			Name:      "finished_total",
			Help:      "Total number of workflow executions by final status.",
		},
		[]string{"status"},
	)

	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "automation_layer",
			Subsystem: "executions",
			Name:      "duration_seconds",
			Help:      "Duration of workflow executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"status"},
	)

	actionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automation_layer",
			Subsystem: "actions",
			Name:      "runs_total",
			Help:      "Total number of action handler invocations.",
		},
		[]string{"type", "success"},
	)

	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automation_layer",
			Subsystem: "webhooks",
			Name:      "deliveries_total",
			Help:      "Total number of inbound webhook deliveries by outcome.",
		},
		[]string{"outcome"},
	)

	triggerMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automation_layer",
			Subsystem: "triggers",
			Name:      "matches_total",
			Help:      "Total number of workflows matched per trigger type.",
		},
		[]string{"trigger_type"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		executionsFinished,
		executionDuration,
		actionRuns,
		webhookDeliveries,
		triggerMatches,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordExecutionFinished records a workflow execution reaching a resting
// status (COMPLETED, FAILED, or PAUSED).
func RecordExecutionFinished(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	executionsFinished.WithLabelValues(status).Inc()
	executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordActionRun records one action handler invocation.
func RecordActionRun(actionType string, success bool) {
	result := "false"
	if success {
		result = "true"
	}
	actionRuns.WithLabelValues(actionType, result).Inc()
}

// RecordWebhookDelivery records the outcome of an inbound webhook delivery.
// Outcome is "accepted" or the rejection reason.
func RecordWebhookDelivery(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	webhookDeliveries.WithLabelValues(outcome).Inc()
}

// RecordTriggerMatch records one workflow matched for an event.
func RecordTriggerMatch(triggerType string) {
	triggerMatches.WithLabelValues(triggerType).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 {
		return "/"
	}
	if parts[0] != "workflows" && parts[0] != "executions" && parts[0] != "clients" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	if len(parts) == 2 {
		return "/" + parts[0] + "/:id"
	}
	return "/" + parts[0] + "/:id/" + parts[2]
}
