package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/crm-automation/internal/domain"
	"github.com/ignite/crm-automation/internal/pkg/httputil"
	"github.com/ignite/crm-automation/internal/service/suppression"
)

type suppressRequest struct {
	Email  string                   `json:"email"`
	Reason domain.SuppressionReason `json:"reason"`
}

type suppressionList struct {
	Entries []domain.SuppressionEntry `json:"entries"`
	Total   int                       `json:"total"`
}

func validReason(r domain.SuppressionReason) bool {
	switch r {
	case "", domain.ReasonHardBounce, domain.ReasonComplaint, domain.ReasonUnsubscribe, domain.ReasonManual:
		return true
	}
	return false
}

// ListSuppressions pages through the suppression list. Query parameters:
// reason, search, limit, offset.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := suppression.ListFilter{Reason: q.Get("reason"), Search: q.Get("search")}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "invalid "+key)
			return
		}
		*dst = n
	}

	entries, total, err := h.suppressions.List(r.Context(), filter)
	if err != nil {
		httputil.InternalError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.SuppressionEntry{}
	}
	httputil.OK(w, suppressionList{Entries: entries, Total: total})
}

// Suppress adds an address. Re-adding an existing address is a no-op.
func (h *Handlers) Suppress(w http.ResponseWriter, r *http.Request) {
	var req suppressRequest
	if !httputil.Decode(w, r, &req, false) {
		return
	}
	if !validReason(req.Reason) {
		httputil.BadRequest(w, "unknown reason")
		return
	}
	err := h.suppressions.Suppress(r.Context(), req.Email, req.Reason)
	switch {
	case errors.Is(err, suppression.ErrEmailMissing):
		httputil.BadRequest(w, err.Error())
	case err != nil:
		httputil.InternalError(w, r, err)
	default:
		httputil.NoContent(w)
	}
}

func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	err := h.suppressions.Remove(r.Context(), chi.URLParam(r, "email"))
	switch {
	case errors.Is(err, suppression.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, suppression.ErrEmailMissing):
		httputil.BadRequest(w, err.Error())
	case err != nil:
		httputil.InternalError(w, r, err)
	default:
		httputil.NoContent(w)
	}
}
