package campaign

import (
	"testing"
	"time"
)

func TestCampaignActive(t *testing.T) {
	cases := []struct {
		status Status
		want   bool
	}{
		{StatusActive, true},
		{StatusDraft, false},
		{StatusPaused, false},
		{StatusEnded, false},
	}
	for _, c := range cases {
		camp := Campaign{Status: c.status}
		if got := camp.Active(); got != c.want {
			t.Errorf("status %v: Active() = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestCampaignValidateRemainingExceedsTotal(t *testing.T) {
	c := Campaign{TotalBudget: 100, RemainingBudget: 150}
	if err := c.Validate(); err == nil {
		t.Fatal("expected a CONFIG_VIOLATION when remaining_budget exceeds total_budget")
	}
}

func TestCampaignValidateNegativeRemainingUnderBudgetPool(t *testing.T) {
	c := Campaign{BudgetMode: BudgetModeBudgetPool, TotalBudget: 100, RemainingBudget: -1}
	if err := c.Validate(); err == nil {
		t.Fatal("expected a CONFIG_VIOLATION for negative remaining_budget under budget_pool mode")
	}
}

func TestCampaignValidateOK(t *testing.T) {
	c := Campaign{BudgetMode: BudgetModeBudgetPool, TotalBudget: 100, RemainingBudget: 50}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestConsumeBudgetNoOpUnderUnlimited(t *testing.T) {
	c := Campaign{BudgetMode: BudgetModeUnlimited, RemainingBudget: 10}
	if err := c.ConsumeBudget(1000); err != nil {
		t.Fatalf("expected no error under unlimited mode, got %v", err)
	}
	if c.RemainingBudget != 10 {
		t.Fatalf("expected remaining_budget untouched under unlimited mode, got %d", c.RemainingBudget)
	}
}

func TestConsumeBudgetDebitsUnderBudgetPool(t *testing.T) {
	c := Campaign{BudgetMode: BudgetModeBudgetPool, RemainingBudget: 100}
	if err := c.ConsumeBudget(40); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.RemainingBudget != 60 {
		t.Fatalf("expected remaining_budget 60, got %d", c.RemainingBudget)
	}
}

func TestConsumeBudgetRejectsOverdraw(t *testing.T) {
	c := Campaign{BudgetMode: BudgetModeBudgetPool, RemainingBudget: 10}
	if err := c.ConsumeBudget(11); err == nil {
		t.Fatal("expected a CONFIG_VIOLATION when consumption would drive remaining_budget negative")
	}
	if c.RemainingBudget != 10 {
		t.Fatalf("expected remaining_budget unchanged on rejected consumption, got %d", c.RemainingBudget)
	}
}

func TestParsePricingDefaultsMissingFieldsToZero(t *testing.T) {
	p := ParsePricing([]byte(`{"single_cost": 10}`))
	if p.SingleCost != 10 {
		t.Fatalf("expected single_cost 10, got %d", p.SingleCost)
	}
	if p.Multi10Cost != 0 || p.Multi10Discount != 0 {
		t.Fatalf("expected missing fields to default to zero, got %+v", p)
	}
}

func TestCostForSingleDraw(t *testing.T) {
	pc := PricingConfig{RawConfig: []byte(`{"single_cost": 100, "multi_10_cost": 900, "multi_10_discount": 100000}`)}
	if got := pc.CostFor("single"); got != 100 {
		t.Fatalf("expected single draw cost 100, got %d", got)
	}
}

// multi_10_discount is expressed in ppm off multi_10_cost: a 10% (100_000
// ppm) discount on a 900-point multi10 bundle costs 810.
func TestCostForMulti10AppliesPPMDiscount(t *testing.T) {
	pc := PricingConfig{RawConfig: []byte(`{"single_cost": 100, "multi_10_cost": 900, "multi_10_discount": 100000}`)}
	if got := pc.CostFor("multi10"); got != 810 {
		t.Fatalf("expected discounted multi10 cost 810, got %d", got)
	}
}

func TestCostForMulti10NoDiscount(t *testing.T) {
	pc := PricingConfig{RawConfig: []byte(`{"multi_10_cost": 1000}`)}
	if got := pc.CostFor("multi10"); got != 1000 {
		t.Fatalf("expected undiscounted multi10 cost 1000, got %d", got)
	}
}

func TestValidateScheduleRejectsPastEffectiveAt(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	pc := PricingConfig{Status: PricingStatusScheduled, EffectiveAt: now.Add(-time.Hour)}
	if err := pc.ValidateSchedule(now); err == nil {
		t.Fatal("expected a CONFIG_VIOLATION for a scheduled activation not strictly in the future")
	}
}

func TestValidateScheduleAcceptsFutureEffectiveAt(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	pc := PricingConfig{Status: PricingStatusScheduled, EffectiveAt: now.Add(time.Hour)}
	if err := pc.ValidateSchedule(now); err != nil {
		t.Fatalf("expected no error for a future effective_at, got %v", err)
	}
}

func TestValidateScheduleIgnoresNonScheduledStatus(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	pc := PricingConfig{Status: PricingStatusActive, EffectiveAt: now.Add(-time.Hour)}
	if err := pc.ValidateSchedule(now); err != nil {
		t.Fatalf("expected ValidateSchedule to only apply to scheduled configs, got %v", err)
	}
}
