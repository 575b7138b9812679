package executor

import (
	"testing"

	"github.com/r3e-network/lottery-core/domain/correction"
	"github.com/r3e-network/lottery-core/domain/prize"
	"github.com/r3e-network/lottery-core/domain/selector"
)

func TestRetryDemotionPicksFromNextTier(t *testing.T) {
	e := &Executor{}
	in := Input{
		RNG: selector.NewSeededRNG(42),
		PrizesByTier: map[prize.Tier][]prize.Prize{
			prize.TierMid: {{ID: "mid-1", Tier: prize.TierMid, Status: prize.StatusActive, WinWeight: 10}},
		},
	}
	next, selected := e.retryDemotion(in, prize.TierHigh)
	if next != prize.TierMid || selected == nil || selected.ID != "mid-1" {
		t.Fatalf("expected demotion to mid-1, got tier=%v selected=%+v", next, selected)
	}
}

func TestRetryDemotionFromFallbackHasNowhereToGo(t *testing.T) {
	e := &Executor{}
	next, selected := e.retryDemotion(Input{}, prize.TierFallback)
	if next != "" || selected != nil {
		t.Fatalf("expected no demotion target from fallback, got tier=%v selected=%+v", next, selected)
	}
}

func TestRetryDemotionNoEligiblePrizeInNextTier(t *testing.T) {
	e := &Executor{}
	in := Input{
		RNG:          selector.NewSeededRNG(42),
		PrizesByTier: map[prize.Tier][]prize.Prize{},
	}
	next, selected := e.retryDemotion(in, prize.TierHigh)
	if next != prize.TierMid || selected != nil {
		t.Fatalf("expected a demotion target with no eligible prize, got tier=%v selected=%+v", next, selected)
	}
}

func TestBuildTraceCarriesFallbackExhaustionAndModules(t *testing.T) {
	in := Input{
		CorrectionTrace: []correction.Outcome{
			{Name: "pity", Triggered: true, Kind: correction.KindOverride},
			{Name: "anti_high", Triggered: false, Kind: correction.KindNoOp},
		},
	}
	trace := buildTrace(in, prize.TierHigh, true)
	if trace["committed_tier"] != prize.TierHigh {
		t.Fatalf("expected committed_tier high, got %v", trace["committed_tier"])
	}
	if trace["fallback_exhaustion"] != true {
		t.Fatalf("expected fallback_exhaustion true, got %v", trace["fallback_exhaustion"])
	}
	modules, ok := trace["corrections"].(map[string]interface{})
	if !ok || len(modules) != 2 {
		t.Fatalf("expected 2 correction modules in trace, got %+v", trace["corrections"])
	}
}

func TestCorrectionFlagsMapsNamesToFlags(t *testing.T) {
	trace := []correction.Outcome{
		{Name: "guarantee", Triggered: true},
		{Name: "anti_empty", Triggered: true},
		{Name: "anti_high", Triggered: false},
		{Name: "luck_debt", Triggered: true},
	}
	pity, antiEmpty, antiHigh, luckDebt := correctionFlags(trace)
	if !pity || !antiEmpty || antiHigh || !luckDebt {
		t.Fatalf("unexpected flags: pity=%v antiEmpty=%v antiHigh=%v luckDebt=%v", pity, antiEmpty, antiHigh, luckDebt)
	}
}

func TestCorrectionFlagsIgnoresUntriggeredOutcomes(t *testing.T) {
	trace := []correction.Outcome{{Name: "pity", Triggered: false}}
	pity, antiEmpty, antiHigh, luckDebt := correctionFlags(trace)
	if pity || antiEmpty || antiHigh || luckDebt {
		t.Fatalf("expected all flags false for an untriggered outcome, got pity=%v antiEmpty=%v antiHigh=%v luckDebt=%v", pity, antiEmpty, antiHigh, luckDebt)
	}
}
