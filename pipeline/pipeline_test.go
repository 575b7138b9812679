package pipeline

import (
	"testing"

	"github.com/r3e-network/lottery-core/domain/correction"
	"github.com/r3e-network/lottery-core/domain/prize"
)

func TestBaseWeightsProjectsTierRulesToWeightedTiers(t *testing.T) {
	rules := []prize.TierRule{
		{TierName: prize.TierHigh, TierWeight: 100_000},
		{TierName: prize.TierLow, TierWeight: 900_000},
	}
	weights := baseWeights(rules)
	if len(weights) != 2 || weights[0].Tier != prize.TierHigh || weights[0].Weight != 100_000 {
		t.Fatalf("unexpected weights: %+v", weights)
	}
}

func TestFindPrizeSkipsIneligibleMatches(t *testing.T) {
	zero := int64(0)
	prizes := []prize.Prize{
		{ID: "p1", Status: prize.StatusActive, WinWeight: 10, StockQuantity: &zero},
		{ID: "p2", Status: prize.StatusActive, WinWeight: 10},
	}
	if got := findPrize(prizes, "p1", nil); got != nil {
		t.Fatalf("expected nil for a depleted-stock prize, got %+v", got)
	}
	if got := findPrize(prizes, "p2", nil); got == nil || got.ID != "p2" {
		t.Fatalf("expected to find eligible prize p2, got %+v", got)
	}
}

func TestFindPrizeReturnsNilWhenIDAbsent(t *testing.T) {
	prizes := []prize.Prize{{ID: "p1", Status: prize.StatusActive, WinWeight: 10}}
	if got := findPrize(prizes, "missing", nil); got != nil {
		t.Fatalf("expected nil for an absent id, got %+v", got)
	}
}

func TestFindPrizeSkipsPrizeAtItsDayCap(t *testing.T) {
	cap := int64(2)
	prizes := []prize.Prize{{ID: "p1", Status: prize.StatusActive, WinWeight: 10, PerDayCap: &cap}}
	if got := findPrize(prizes, "p1", map[string]int64{"p1": 2}); got != nil {
		t.Fatalf("expected nil for a prize at its day cap, got %+v", got)
	}
	if got := findPrize(prizes, "p1", map[string]int64{"p1": 1}); got == nil {
		t.Fatal("expected to find the prize still under its day cap")
	}
}

func TestCorrectionTriggeredFindsNamedTriggeredOutcome(t *testing.T) {
	trace := []correction.Outcome{
		{Name: "pity", Triggered: false},
		{Name: "anti_high", Triggered: true},
	}
	if !correctionTriggered(trace, "anti_high") {
		t.Fatal("expected anti_high to be reported as triggered")
	}
	if correctionTriggered(trace, "pity") {
		t.Fatal("expected pity to be reported as not triggered")
	}
	if correctionTriggered(trace, "luck_debt") {
		t.Fatal("expected an absent outcome name to report as not triggered")
	}
}
