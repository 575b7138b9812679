package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewWithRegistry("lottery-core-test", prometheus.NewRegistry())
}

func TestRecordDrawIncrementsCounter(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordDraw("camp-1", "T1", "B3", "P0", "single")
	m.RecordDraw("camp-1", "T1", "B3", "P0", "single")

	got := testutil.ToFloat64(m.DrawsTotal.WithLabelValues("camp-1", "T1", "B3", "P0", "single"))
	if got != 2 {
		t.Fatalf("expected 2 recorded draws, got %v", got)
	}
}

func TestRecordCorrectionIncrementsByName(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordCorrection("camp-1", "pity")
	m.RecordCorrection("camp-1", "anti_high")
	m.RecordCorrection("camp-1", "pity")

	if got := testutil.ToFloat64(m.CorrectionsTriggered.WithLabelValues("camp-1", "pity")); got != 2 {
		t.Fatalf("expected pity count 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.CorrectionsTriggered.WithLabelValues("camp-1", "anti_high")); got != 1 {
		t.Fatalf("expected anti_high count 1, got %v", got)
	}
}

func TestRecordBudgetConsumedAndPrizeValueAccumulate(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordBudgetConsumed("camp-1", 900)
	m.RecordBudgetConsumed("camp-1", 100)
	m.RecordPrizeValue("camp-1", "T2", 500)

	if got := testutil.ToFloat64(m.BudgetConsumedTotal.WithLabelValues("camp-1")); got != 1000 {
		t.Fatalf("expected budget consumed total 1000, got %v", got)
	}
	if got := testutil.ToFloat64(m.PrizeValueTotal.WithLabelValues("camp-1", "T2")); got != 500 {
		t.Fatalf("expected prize value total 500, got %v", got)
	}
}

func TestInFlightIncrementAndDecrement(t *testing.T) {
	m := newTestMetrics(t)
	m.IncrementInFlight()
	m.IncrementInFlight()
	m.DecrementInFlight()

	if got := testutil.ToFloat64(m.RequestsInFlight); got != 1 {
		t.Fatalf("expected in-flight count 1, got %v", got)
	}
}

func TestSetOutboxDepthAndRecordDeadLetter(t *testing.T) {
	m := newTestMetrics(t)
	m.SetOutboxDepth(7)
	m.RecordOutboxDeadLetter()
	m.RecordOutboxDeadLetter()

	if got := testutil.ToFloat64(m.OutboxDepth); got != 7 {
		t.Fatalf("expected outbox depth 7, got %v", got)
	}
	if got := testutil.ToFloat64(m.OutboxDeadLetterTotal); got != 2 {
		t.Fatalf("expected 2 dead-lettered entries, got %v", got)
	}
}

func TestUpdateUptimeReflectsElapsedTime(t *testing.T) {
	m := newTestMetrics(t)
	start := time.Now().Add(-5 * time.Second)
	m.UpdateUptime(start)

	got := testutil.ToFloat64(m.ServiceUptime)
	if got < 4.5 || got > 10 {
		t.Fatalf("expected uptime roughly 5s, got %v", got)
	}
}

func TestEnvironmentDefaultsToDevelopment(t *testing.T) {
	if got := environment(); got != "development" {
		t.Fatalf("expected development when APP_ENV is unset, got %q", got)
	}
}

func TestEnvironmentReadsAndLowercasesAppEnv(t *testing.T) {
	t.Setenv("APP_ENV", "PRODUCTION")
	if got := environment(); got != "production" {
		t.Fatalf("expected lowercased production, got %q", got)
	}
}

func TestEnabledDefaultsOffInProductionOnlyWhenUnset(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	if Enabled() {
		t.Fatal("expected metrics disabled by default in production when METRICS_ENABLED is unset")
	}

	t.Setenv("APP_ENV", "staging")
	if !Enabled() {
		t.Fatal("expected metrics enabled by default outside production when METRICS_ENABLED is unset")
	}
}

func TestEnabledHonorsExplicitOverride(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("METRICS_ENABLED", "true")
	if !Enabled() {
		t.Fatal("expected an explicit METRICS_ENABLED=true to override the production default")
	}

	t.Setenv("METRICS_ENABLED", "false")
	if Enabled() {
		t.Fatal("expected an explicit METRICS_ENABLED=false to disable metrics")
	}
}
