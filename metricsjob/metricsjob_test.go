package metricsjob

import "testing"

func TestNewFillsScheduleAndEMADefaults(t *testing.T) {
	j := New(nil, nil, nil, Config{})

	if j.cfg.Schedule != "@every 1h" {
		t.Fatalf("expected default schedule '@every 1h', got %q", j.cfg.Schedule)
	}
	if j.cfg.LuckDebtAlpha != 0.02 {
		t.Fatalf("expected default alpha 0.02, got %v", j.cfg.LuckDebtAlpha)
	}
	if j.cfg.LuckDebtTarget != 0.35 {
		t.Fatalf("expected default target 0.35, got %v", j.cfg.LuckDebtTarget)
	}
}

func TestNewPreservesExplicitConfig(t *testing.T) {
	j := New(nil, nil, nil, Config{Schedule: "@every 5m", LuckDebtAlpha: 0.1, LuckDebtTarget: 0.5, DecisionRetentionHours: 72})

	if j.cfg.Schedule != "@every 5m" || j.cfg.LuckDebtAlpha != 0.1 || j.cfg.LuckDebtTarget != 0.5 || j.cfg.DecisionRetentionHours != 72 {
		t.Fatalf("expected explicit config to be preserved untouched, got %+v", j.cfg)
	}
}

func TestNewTreatsNonPositiveEMAValuesAsUnset(t *testing.T) {
	j := New(nil, nil, nil, Config{LuckDebtAlpha: -1, LuckDebtTarget: 0})

	if j.cfg.LuckDebtAlpha != 0.02 {
		t.Fatalf("expected a negative alpha to fall back to the default, got %v", j.cfg.LuckDebtAlpha)
	}
	if j.cfg.LuckDebtTarget != 0.35 {
		t.Fatalf("expected a zero target to fall back to the default, got %v", j.cfg.LuckDebtTarget)
	}
}
