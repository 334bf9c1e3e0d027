package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/crm-automation/internal/pkg/httputil"
)

type startResponse struct {
	CampaignID string `json:"campaign_id"`
	Started    bool   `json:"started"`
}

// StartCampaign moves a draft or scheduled campaign to active and enrolls
// its list. The reason a start was refused is in the worker log.
func (h *Handlers) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.campaigns.StartCampaign(r.Context(), id) {
		httputil.JSON(w, http.StatusConflict, startResponse{CampaignID: id})
		return
	}
	httputil.OK(w, startResponse{CampaignID: id, Started: true})
}
