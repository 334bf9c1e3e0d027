// Package api serves the ops HTTP surface of the worker: health, metrics,
// manual job triggers and the per-contact entry points.
package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/ignite/crm-automation/internal/criteria"
	"github.com/ignite/crm-automation/internal/domain"
	"github.com/ignite/crm-automation/internal/pkg/httputil"
	"github.com/ignite/crm-automation/internal/pkg/logger"
	"github.com/ignite/crm-automation/internal/service/assignment"
	"github.com/ignite/crm-automation/internal/service/scoring"
	"github.com/ignite/crm-automation/internal/service/suppression"
)

// JobRunner runs a named poll job once, under the same lock the poller uses.
type JobRunner interface {
	RunNow(ctx context.Context, name string) (bool, error)
}

type CampaignStarter interface {
	StartCampaign(ctx context.Context, campaignID string) bool
}

type RuleEvaluator interface {
	EvaluateRules(ctx context.Context, triggerType, contactID string, eventData *criteria.Payload) *scoring.Result
}

type LeadAssigner interface {
	AssignLead(ctx context.Context, contactID string) *assignment.Assignment
}

// SuppressionManager is the subset of the suppression service exposed over HTTP.
type SuppressionManager interface {
	Suppress(ctx context.Context, email string, reason domain.SuppressionReason) error
	Remove(ctx context.Context, email string) error
	List(ctx context.Context, filter suppression.ListFilter) ([]domain.SuppressionEntry, int, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Handlers contains all ops HTTP handlers. Nil dependencies leave their
// routes unregistered.
type Handlers struct {
	jobs         JobRunner
	campaigns    CampaignStarter
	scoring      RuleEvaluator
	assignment   LeadAssigner
	suppressions SuppressionManager
	checks       map[string]HealthCheck
	started      time.Time
}

// Deps bundles the services behind the handlers.
type Deps struct {
	Jobs         JobRunner
	Campaigns    CampaignStarter
	Scoring      RuleEvaluator
	Assignment   LeadAssigner
	Suppressions SuppressionManager
	Checks       map[string]HealthCheck
}

// NewHandlers creates a new Handlers instance
func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		jobs:         d.Jobs,
		campaigns:    d.Campaigns,
		scoring:      d.Scoring,
		assignment:   d.Assignment,
		suppressions: d.Suppressions,
		checks:       d.Checks,
		started:      time.Now(),
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheck reports 200 when every dependency answers, 503 otherwise.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Uptime: time.Since(h.started).Round(time.Second).String()}
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		names := make([]string, 0, len(h.checks))
		for name := range h.checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := h.checks[name](ctx); err != nil {
				logger.Warn("[api] health check failed", "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, resp)
}
