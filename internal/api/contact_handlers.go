package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/crm-automation/internal/criteria"
	"github.com/ignite/crm-automation/internal/pkg/httputil"
	"github.com/ignite/crm-automation/internal/service/assignment"
)

const maxEventBytes = 1 << 20

// RecordEvent applies the scoring rules for {trigger} to the contact. The
// request body, when present, is the event payload that rule conditions
// read.
func (h *Handlers) RecordEvent(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "id")
	trigger := chi.URLParam(r, "trigger")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes+1))
	if err != nil {
		httputil.BadRequest(w, "read body: "+err.Error())
		return
	}
	if len(body) > maxEventBytes {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "event payload too large")
		return
	}

	var payload *criteria.Payload
	if strings.TrimSpace(string(body)) != "" {
		payload, err = criteria.ParsePayload(body)
		if err != nil {
			httputil.BadRequest(w, "invalid JSON: "+err.Error())
			return
		}
	}

	res := h.scoring.EvaluateRules(r.Context(), trigger, contactID, payload)
	if res == nil {
		httputil.NotFound(w, "contact not scored")
		return
	}
	httputil.OK(w, res)
}

type assignResponse struct {
	Assigned bool `json:"assigned"`
	*assignment.Assignment
}

// AssignLead routes the contact through the assignment rules. A contact
// no rule could place is reported with assigned=false.
func (h *Handlers) AssignLead(w http.ResponseWriter, r *http.Request) {
	a := h.assignment.AssignLead(r.Context(), chi.URLParam(r, "id"))
	httputil.OK(w, assignResponse{Assigned: a != nil, Assignment: a})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
