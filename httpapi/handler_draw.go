package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/r3e-network/lottery-core/internal/errors"
	"github.com/r3e-network/lottery-core/pipeline"
)

// drawRequest is the Draw RPC's JSON request body (spec §6).
type drawRequest struct {
	UserID          string `json:"user_id"`
	CampaignID      string `json:"campaign_id"`
	DrawType        string `json:"draw_type"`
	ClientRequestID string `json:"client_request_id"`
	Role            string `json:"role"`
}

func (h *Handler) handleDraw(w http.ResponseWriter, r *http.Request) {
	var req drawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServiceError(w, errors.New("CFG_CONFIG_VIOLATION", "invalid request body", http.StatusBadRequest))
		return
	}
	if req.UserID == "" || req.CampaignID == "" || req.ClientRequestID == "" {
		writeServiceError(w, errors.New("CFG_CONFIG_VIOLATION", "user_id, campaign_id, and client_request_id are required", http.StatusBadRequest))
		return
	}

	resp, err := h.pipeline.Decide(r.Context(), pipeline.Request{
		UserID:          req.UserID,
		CampaignID:      req.CampaignID,
		DrawType:        req.DrawType,
		ClientRequestID: req.ClientRequestID,
		Role:            req.Role,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
