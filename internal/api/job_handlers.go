package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/crm-automation/internal/pkg/httputil"
	"github.com/ignite/crm-automation/internal/pkg/logger"
	"github.com/ignite/crm-automation/internal/worker"
)

type jobResponse struct {
	Job string `json:"job"`
	Ran bool   `json:"ran"`
}

// RunJob runs a poll job synchronously. When another instance holds the
// job's lock nothing runs and 409 is returned.
func (h *Handlers) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")
	logger.Info("[api] manual job trigger", "job", name, "request_id", requestID(r))

	ran, err := h.jobs.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, worker.ErrUnknownJob):
		httputil.NotFound(w, "unknown job")
	case err != nil:
		httputil.InternalError(w, r, err)
	case !ran:
		httputil.JSON(w, http.StatusConflict, jobResponse{Job: name})
	default:
		httputil.OK(w, jobResponse{Job: name, Ran: true})
	}
}
