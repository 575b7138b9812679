// Package httpapi exposes the lottery decision core over HTTP: the Draw RPC,
// the admin RPCs for campaign/pricing/prize/quota configuration, and the
// operational /metrics and /healthz endpoints. Routing and middleware
// wiring follow the teacher's gorilla/mux + infrastructure/middleware
// convention (router.Use chain, mux.MiddlewareFunc per concern).
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/r3e-network/lottery-core/internal/httpmid"
	"github.com/r3e-network/lottery-core/internal/logging"
	"github.com/r3e-network/lottery-core/internal/metrics"
	"github.com/r3e-network/lottery-core/pipeline"
	"github.com/r3e-network/lottery-core/store/postgres"
)

// Handler bundles the HTTP surface's collaborators.
type Handler struct {
	pipeline *pipeline.Pipeline
	store    *postgres.Store
	logger   *logging.Logger
	metrics  *metrics.Metrics
	health   *HealthChecker
}

// Config controls the router's admin auth and throttle policy.
type Config struct {
	AdminBearerTokenHash string
	RateLimitPerSecond   float64
	RateLimitBurst       int
}

// NewRouter builds the complete mux.Router with every endpoint mounted and
// the standard middleware chain applied.
func NewRouter(p *pipeline.Pipeline, store *postgres.Store, logger *logging.Logger, m *metrics.Metrics, health *HealthChecker, cfg Config) http.Handler {
	h := &Handler{pipeline: p, store: store, logger: logger, metrics: m, health: health}

	r := mux.NewRouter()
	r.Use(httpmid.Logging(logger))
	r.Use(httpmid.Recovery(logger))
	r.Use(httpmid.Metrics(m))

	if cfg.RateLimitPerSecond > 0 {
		limiter := httpmid.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
		r.Use(limiter.Handler)
	}

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/draw", h.handleDraw).Methods(http.MethodPost)

	admin := r.PathPrefix("/v1/admin").Subrouter()
	admin.Use(httpmid.AdminAuth(cfg.AdminBearerTokenHash))
	admin.HandleFunc("/campaigns/{campaign_id}/budget", h.handleUpdateBudget).Methods(http.MethodPost)
	admin.HandleFunc("/campaigns/{campaign_id}/pricing/versions", h.handleCreatePricingVersion).Methods(http.MethodPost)
	admin.HandleFunc("/campaigns/{campaign_id}/pricing/schedule", h.handleScheduleActivation).Methods(http.MethodPost)
	admin.HandleFunc("/campaigns/{campaign_id}/pricing/activate", h.handleActivateVersion).Methods(http.MethodPost)
	admin.HandleFunc("/campaigns/{campaign_id}/pricing/rollback", h.handleRollbackVersion).Methods(http.MethodPost)
	admin.HandleFunc("/prizes", h.handleUpsertPrize).Methods(http.MethodPost)
	admin.HandleFunc("/quota-rules", h.handleUpsertQuotaRule).Methods(http.MethodPost)

	return r
}
