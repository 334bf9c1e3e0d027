// Package metrics declares the Prometheus collectors shared by the worker
// and the ops router. Everything registers on the default registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll outcomes.
const (
	OutcomeRan     = "ran"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	// Polls by job and outcome. "skipped" means another replica held the lock.
	Polls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_automation_polls_total",
			Help: "Background poll attempts partitioned by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_automation_poll_duration_seconds",
			Help:    "Wall time of a background poll",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// Step executions by result: success, failed (transport error), error
	// (recipient could not be processed).
	CampaignSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_automation_campaign_steps_total",
			Help: "Campaign step executions partitioned by result",
		},
		[]string{"result"},
	)

	CampaignEnrollments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_automation_campaign_enrollments_total",
			Help: "Recipients created when campaigns start",
		},
	)

	// Dynamic list membership changes (added, removed).
	SegmentChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_automation_segment_changes_total",
			Help: "Dynamic list membership changes partitioned by direction",
		},
		[]string{"change"},
	)

	ScoringRuleMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_automation_scoring_rule_matches_total",
			Help: "Lead scoring rules matched partitioned by trigger",
		},
		[]string{"trigger"},
	)

	Assignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_automation_assignments_total",
			Help: "Lead assignments partitioned by strategy",
		},
		[]string{"strategy"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_automation_http_requests_total",
			Help: "Ops HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_automation_http_request_duration_seconds",
			Help:    "Ops HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObservePoll records one poll attempt.
func ObservePoll(job, outcome string, took time.Duration) {
	Polls.WithLabelValues(job, outcome).Inc()
	if outcome != OutcomeSkipped {
		PollDuration.WithLabelValues(job).Observe(took.Seconds())
	}
}

// Middleware records request counts and latencies. Labels use the matched
// route pattern to keep cardinality low.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
