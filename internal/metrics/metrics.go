// Package metrics provides Prometheus metrics collection for the lottery
// decision core: HTTP surface metrics plus the business counters that feed
// the Budget Pressure Controller and operator dashboards.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics.
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics.
	ErrorsTotal *prometheus.CounterVec

	// Draw pipeline metrics.
	DrawsTotal            *prometheus.CounterVec // tier, budget_tier, pressure_tier
	DrawDuration          *prometheus.HistogramVec
	CorrectionsTriggered  *prometheus.CounterVec // correction name
	BudgetConsumedTotal   *prometheus.CounterVec // campaign_id
	PrizeValueTotal       *prometheus.CounterVec // campaign_id, tier
	OutboxDepth           prometheus.Gauge
	OutboxDeadLetterTotal prometheus.Counter

	// Store metrics.
	StoreQueriesTotal    *prometheus.CounterVec
	StoreQueryDuration   *prometheus.HistogramVec
	StoreConnectionsOpen prometheus.Gauge

	// Service health.
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance registered on the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "http_requests_in_flight", Help: "Current number of HTTP requests being processed"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total number of errors"},
			[]string{"service", "code", "operation"},
		),
		DrawsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "lottery_draws_total", Help: "Total committed draws by outcome"},
			[]string{"campaign_id", "tier", "budget_tier", "pressure_tier", "pipeline_type"},
		),
		DrawDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lottery_draw_duration_seconds",
				Help:    "End-to-end draw decision duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 3},
			},
			[]string{"campaign_id", "stage"},
		),
		CorrectionsTriggered: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "lottery_corrections_triggered_total", Help: "Correction module trigger counts"},
			[]string{"campaign_id", "correction"},
		),
		BudgetConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "lottery_budget_consumed_points_total", Help: "Total value-points consumed from campaign budgets"},
			[]string{"campaign_id"},
		),
		PrizeValueTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "lottery_prize_value_points_total", Help: "Total value-points issued to users"},
			[]string{"campaign_id", "tier"},
		),
		OutboxDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "lottery_outbox_depth", Help: "Pending prize-issuance outbox entries"},
		),
		OutboxDeadLetterTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "lottery_outbox_dead_letter_total", Help: "Outbox entries moved to the dead-letter queue"},
		),
		StoreQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "store_queries_total", Help: "Total number of store queries"},
			[]string{"service", "operation", "status"},
		),
		StoreQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_query_duration_seconds",
				Help:    "Store query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		StoreConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "store_connections_open", Help: "Current number of open store connections"},
		),
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "service_uptime_seconds", Help: "Service uptime in seconds"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service information"},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.DrawsTotal,
			m.DrawDuration,
			m.CorrectionsTriggered,
			m.BudgetConsumedTotal,
			m.PrizeValueTotal,
			m.OutboxDepth,
			m.OutboxDeadLetterTotal,
			m.StoreQueriesTotal,
			m.StoreQueryDuration,
			m.StoreConnectionsOpen,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", environment()).Set(1)
	return m
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error by taxonomy code.
func (m *Metrics) RecordError(service, code, operation string) {
	m.ErrorsTotal.WithLabelValues(service, code, operation).Inc()
}

// RecordDraw records a committed draw decision.
func (m *Metrics) RecordDraw(campaignID, tier, budgetTier, pressureTier, pipelineType string) {
	m.DrawsTotal.WithLabelValues(campaignID, tier, budgetTier, pressureTier, pipelineType).Inc()
}

// RecordDrawStage records the duration of one pipeline stage.
func (m *Metrics) RecordDrawStage(campaignID, stage string, duration time.Duration) {
	m.DrawDuration.WithLabelValues(campaignID, stage).Observe(duration.Seconds())
}

// RecordCorrection records that a correction module fired.
func (m *Metrics) RecordCorrection(campaignID, correction string) {
	m.CorrectionsTriggered.WithLabelValues(campaignID, correction).Inc()
}

// RecordBudgetConsumed records value-points deducted from a campaign budget.
func (m *Metrics) RecordBudgetConsumed(campaignID string, points int64) {
	m.BudgetConsumedTotal.WithLabelValues(campaignID).Add(float64(points))
}

// RecordPrizeValue records value-points issued for a committed tier.
func (m *Metrics) RecordPrizeValue(campaignID, tier string, points int64) {
	m.PrizeValueTotal.WithLabelValues(campaignID, tier).Add(float64(points))
}

// RecordStoreQuery records a store round-trip.
func (m *Metrics) RecordStoreQuery(service, operation, status string, duration time.Duration) {
	m.StoreQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.StoreQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// SetStoreConnections sets the number of open store connections.
func (m *Metrics) SetStoreConnections(count int) {
	m.StoreConnectionsOpen.Set(float64(count))
}

// SetOutboxDepth sets the current pending outbox entry count.
func (m *Metrics) SetOutboxDepth(depth int) {
	m.OutboxDepth.Set(float64(depth))
}

// RecordOutboxDeadLetter records an entry moving to the dead-letter queue.
func (m *Metrics) RecordOutboxDeadLetter() {
	m.OutboxDeadLetterTotal.Inc()
}

// UpdateUptime updates the service uptime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter.
func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }

// DecrementInFlight decrements the in-flight requests counter.
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

func environment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled returns whether Prometheus metrics should be exposed.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return environment() != "production"
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New("lottery-core")
	}
	return globalMetrics
}
