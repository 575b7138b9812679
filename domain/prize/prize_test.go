package prize

import (
	"testing"
	"time"
)

func TestTierDemoteChain(t *testing.T) {
	cases := []struct {
		from Tier
		want Tier
		ok   bool
	}{
		{TierHigh, TierMid, true},
		{TierMid, TierLow, true},
		{TierLow, TierFallback, true},
		{TierFallback, "", false},
	}
	for _, c := range cases {
		got, ok := c.from.Demote()
		if got != c.want || ok != c.ok {
			t.Errorf("%v.Demote() = (%v, %v), want (%v, %v)", c.from, got, ok, c.want, c.ok)
		}
	}
}

func TestPrizeEligible(t *testing.T) {
	zero := int64(0)
	five := int64(5)

	cases := []struct {
		name     string
		prize    Prize
		dayCount int64
		want     bool
	}{
		{"active with weight", Prize{Status: StatusActive, WinWeight: 10}, 0, true},
		{"inactive", Prize{Status: StatusInactive, WinWeight: 10}, 0, false},
		{"zero weight", Prize{Status: StatusActive, WinWeight: 0}, 0, false},
		{"depleted stock", Prize{Status: StatusActive, WinWeight: 10, StockQuantity: &zero}, 0, false},
		{"remaining stock", Prize{Status: StatusActive, WinWeight: 10, StockQuantity: &five}, 0, true},
		{"unlimited stock", Prize{Status: StatusActive, WinWeight: 10, StockQuantity: nil}, 0, true},
		{"under day cap", Prize{Status: StatusActive, WinWeight: 10, PerDayCap: &five}, 4, true},
		{"at day cap", Prize{Status: StatusActive, WinWeight: 10, PerDayCap: &five}, 5, false},
		{"over day cap", Prize{Status: StatusActive, WinWeight: 10, PerDayCap: &five}, 6, false},
		{"no day cap ignores count", Prize{Status: StatusActive, WinWeight: 10, PerDayCap: nil}, 1000, true},
	}
	for _, c := range cases {
		if got := c.prize.Eligible(c.dayCount); got != c.want {
			t.Errorf("%s: Eligible(%d) = %v, want %v", c.name, c.dayCount, got, c.want)
		}
	}
}

func TestValidateCampaignPrizesRequiresActiveFallback(t *testing.T) {
	if err := ValidateCampaignPrizes([]Prize{
		{Tier: TierHigh, Status: StatusActive},
		{Tier: TierFallback, Status: StatusInactive},
	}); err == nil {
		t.Fatal("expected a CONFIG_VIOLATION with no active fallback prize")
	}

	if err := ValidateCampaignPrizes([]Prize{
		{Tier: TierFallback, Status: StatusActive},
	}); err != nil {
		t.Fatalf("expected no error with an active fallback prize, got %v", err)
	}
}

func TestResolveQuotaHighestPriorityWins(t *testing.T) {
	now := time.Now()
	candidates := []QuotaRule{
		{ID: "low-priority", Scope: QuotaScopeGlobal, Priority: 1, DailyLimit: 100},
		{ID: "high-priority", Scope: QuotaScopeGlobal, Priority: 5, DailyLimit: 10},
	}
	got := ResolveQuota(now, candidates)
	if got == nil || got.ID != "high-priority" {
		t.Fatalf("expected high-priority rule to win, got %+v", got)
	}
}

func TestResolveQuotaTiesBreakByNarrowestScope(t *testing.T) {
	now := time.Now()
	candidates := []QuotaRule{
		{ID: "campaign-scope", Scope: QuotaScopeCampaign, Priority: 1, DailyLimit: 100},
		{ID: "user-scope", Scope: QuotaScopeUser, Priority: 1, DailyLimit: 10},
		{ID: "global-scope", Scope: QuotaScopeGlobal, Priority: 1, DailyLimit: 1000},
	}
	got := ResolveQuota(now, candidates)
	if got == nil || got.ID != "user-scope" {
		t.Fatalf("expected narrowest-scope (user) rule to win the tie, got %+v", got)
	}
}

func TestResolveQuotaSkipsInapplicableRules(t *testing.T) {
	now := time.Now()
	candidates := []QuotaRule{
		{ID: "expired", Scope: QuotaScopeGlobal, Priority: 10, ValidUntil: now.Add(-time.Hour)},
		{ID: "not-yet", Scope: QuotaScopeGlobal, Priority: 10, ValidFrom: now.Add(time.Hour)},
		{ID: "active", Scope: QuotaScopeGlobal, Priority: 1},
	}
	got := ResolveQuota(now, candidates)
	if got == nil || got.ID != "active" {
		t.Fatalf("expected only the currently-valid rule to be picked, got %+v", got)
	}
}

func TestResolveQuotaNilWhenNoCandidatesApply(t *testing.T) {
	now := time.Now()
	candidates := []QuotaRule{
		{ID: "expired", Scope: QuotaScopeGlobal, ValidUntil: now.Add(-time.Hour)},
	}
	if got := ResolveQuota(now, candidates); got != nil {
		t.Fatalf("expected nil when nothing applies, got %+v", got)
	}
}

// DayBucket must key off the Asia/Shanghai calendar day, not UTC, so a draw
// made late at night UTC that has already crossed into the next Shanghai day
// buckets into tomorrow.
func TestDayBucketUsesShanghaiCalendarDay(t *testing.T) {
	utcLateNight := time.Date(2026, 1, 15, 17, 30, 0, 0, time.UTC) // 01:30 CST on Jan 16
	if got := DayBucket(utcLateNight); got != "20260116" {
		t.Fatalf("expected Shanghai-local day 20260116, got %s", got)
	}

	utcMorning := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC) // 18:00 CST, still Jan 15
	if got := DayBucket(utcMorning); got != "20260115" {
		t.Fatalf("expected Shanghai-local day 20260115, got %s", got)
	}
}

func TestQuotaRuleApplicableRespectsWindow(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	r := QuotaRule{
		ValidFrom:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	if !r.Applicable(now) {
		t.Fatal("expected rule to be applicable within its window")
	}
	if r.Applicable(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("expected rule to be inapplicable before ValidFrom")
	}
	if r.Applicable(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("expected rule to be inapplicable after ValidUntil")
	}
}
