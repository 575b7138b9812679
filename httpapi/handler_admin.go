package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/r3e-network/lottery-core/domain/campaign"
	"github.com/r3e-network/lottery-core/domain/prize"
	"github.com/r3e-network/lottery-core/internal/errors"
)

func (h *Handler) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaign_id"]
	var payload struct {
		RemainingBudget int64 `json:"remaining_budget"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeServiceError(w, errors.New("CFG_CONFIG_VIOLATION", "invalid request body", http.StatusBadRequest))
		return
	}

	err := h.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		return h.store.UpdateCampaignBudget(r.Context(), tx, campaignID, payload.RemainingBudget)
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreatePricingVersion(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaign_id"]
	var payload struct {
		RawConfig json.RawMessage `json:"raw_config"`
		Author    string          `json:"author"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeServiceError(w, errors.New("CFG_CONFIG_VIOLATION", "invalid request body", http.StatusBadRequest))
		return
	}
	cfg, err := h.store.CreatePricingVersion(r.Context(), campaignID, payload.RawConfig, payload.Author)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (h *Handler) handleScheduleActivation(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaign_id"]
	var payload struct {
		Version     int64     `json:"version"`
		EffectiveAt time.Time `json:"effective_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeServiceError(w, errors.New("CFG_CONFIG_VIOLATION", "invalid request body", http.StatusBadRequest))
		return
	}
	if err := h.store.ScheduleActivation(r.Context(), campaignID, payload.Version, payload.EffectiveAt); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "scheduled"})
}

func (h *Handler) handleActivateVersion(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaign_id"]
	var payload struct {
		Version int64  `json:"version"`
		Author  string `json:"author"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeServiceError(w, errors.New("CFG_CONFIG_VIOLATION", "invalid request body", http.StatusBadRequest))
		return
	}

	err := h.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		return h.store.ActivateVersion(r.Context(), tx, campaignID, payload.Version, payload.Author)
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

func (h *Handler) handleRollbackVersion(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaign_id"]
	var payload struct {
		Version int64  `json:"version"`
		Author  string `json:"author"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeServiceError(w, errors.New("CFG_CONFIG_VIOLATION", "invalid request body", http.StatusBadRequest))
		return
	}

	var rolledBack *campaign.PricingConfig
	err := h.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		var txErr error
		rolledBack, txErr = h.store.RollbackToVersion(r.Context(), tx, campaignID, payload.Version, payload.Author)
		return txErr
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rolledBack)
}

func (h *Handler) handleUpsertPrize(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID            string     `json:"id"`
		CampaignID    string     `json:"campaign_id"`
		Name          string     `json:"name"`
		Tier          prize.Tier `json:"tier"`
		WinWeight     int64      `json:"win_weight"`
		ValuePoints   int64      `json:"value_points"`
		StockQuantity *int64     `json:"stock_quantity"`
		PerDayCap     *int64     `json:"per_day_cap"`
		Status        string     `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeServiceError(w, errors.New("CFG_CONFIG_VIOLATION", "invalid request body", http.StatusBadRequest))
		return
	}
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	status := prize.Status(payload.Status)
	if status == "" {
		status = prize.StatusActive
	}

	p := prize.Prize{
		ID: payload.ID, CampaignID: payload.CampaignID, Name: payload.Name, Tier: payload.Tier,
		WinWeight: payload.WinWeight, ValuePoints: payload.ValuePoints,
		StockQuantity: payload.StockQuantity, PerDayCap: payload.PerDayCap, Status: status,
	}
	if err := h.store.UpsertPrize(r.Context(), p); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleUpsertQuotaRule(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID         string           `json:"id"`
		Scope      prize.QuotaScope `json:"scope"`
		ScopeKey   string           `json:"scope_key"`
		DailyLimit int64            `json:"daily_limit"`
		Priority   int              `json:"priority"`
		ValidFrom  time.Time        `json:"valid_from"`
		ValidUntil time.Time        `json:"valid_until"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeServiceError(w, errors.New("CFG_CONFIG_VIOLATION", "invalid request body", http.StatusBadRequest))
		return
	}
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	rule := prize.QuotaRule{
		ID: payload.ID, Scope: payload.Scope, ScopeKey: payload.ScopeKey,
		DailyLimit: payload.DailyLimit, Priority: payload.Priority,
		ValidFrom: payload.ValidFrom, ValidUntil: payload.ValidUntil,
	}
	if err := h.store.UpsertQuotaRule(r.Context(), rule); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}
