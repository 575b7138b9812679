// Package experience implements the per-user-per-campaign and per-user
// global state machines (streak counters, cooldowns, luck debt) described
// in spec §4.2. Apply is pure — it never touches storage itself —
// so the Executor can call it inside its own transaction.
package experience

import (
	"github.com/r3e-network/lottery-core/domain/prize"
)

// State is the per (user, campaign) experience row.
type State struct {
	UserID            string
	CampaignID        string
	EmptyStreak       int64
	RecentHighCount   int64
	AntiHighCooldown  int64
	TotalDraws        int64
	TotalEmpties      int64
	PityTriggerCount  int64
}

// GlobalState is the per-user, cross-campaign experience row.
type GlobalState struct {
	UserID              string
	HistoricalEmptyRate float64 // EMA of empty outcomes
	LuckDebtMultiplier  float64 // >= 1.0
	TotalDraws          int64
	TotalHighWins       int64
}

// Diff is the set of mutations a committed draw applies to a State, derived
// by Derive and applied by Apply inside the Executor's
// transaction. Keeping the derive/apply split lets the Executor log the
// diff in the DrawDecision trace before committing it.
type Diff struct {
	CommittedTier    prize.Tier
	PityTriggered    bool
	AntiHighThreshold int64
	AntiHighCooldownRounds int64
}

// Derive computes the Diff for a committed draw outcome, per the update
// rules in spec §4.2. It does not mutate state; call Apply with the result.
func Derive(committedTier prize.Tier, pityTriggered bool, antiHighThreshold, antiHighCooldownRounds int64) Diff {
	return Diff{
		CommittedTier:          committedTier,
		PityTriggered:          pityTriggered,
		AntiHighThreshold:      antiHighThreshold,
		AntiHighCooldownRounds: antiHighCooldownRounds,
	}
}

// Apply mutates state in place per spec §4.2's update rules. Must only be
// called from inside the Executor's per-(user,campaign)-serialized
// transaction.
func Apply(state *State, diff Diff) {
	state.TotalDraws++

	if diff.CommittedTier == prize.TierFallback {
		state.EmptyStreak++
		state.TotalEmpties++
		state.RecentHighCount = 0
	} else {
		state.EmptyStreak = 0
		if diff.CommittedTier == prize.TierHigh {
			state.RecentHighCount++
		} else {
			state.RecentHighCount = 0
		}
	}

	if state.AntiHighCooldown > 0 {
		state.AntiHighCooldown--
	}

	if diff.PityTriggered {
		state.PityTriggerCount++
		state.EmptyStreak = 0
	}

	if diff.AntiHighThreshold > 0 && state.RecentHighCount >= diff.AntiHighThreshold {
		state.AntiHighCooldown = diff.AntiHighCooldownRounds
		state.RecentHighCount = 0
	}
}

// ApplyGlobal updates the cross-campaign counters and folds one draw's
// outcome into HistoricalEmptyRate, an EMA with alpha 0.05. It does not
// recompute LuckDebtMultiplier; the hourly rollup in metricsjob does that
// with its own LuckDebtAlpha and LuckDebtTarget settings.
func ApplyGlobal(global *GlobalState, committedTier prize.Tier) {
	global.TotalDraws++
	if committedTier == prize.TierHigh {
		global.TotalHighWins++
	}

	const emaAlpha = 0.05
	empty := 0.0
	if committedTier == prize.TierFallback {
		empty = 1.0
	}
	if global.TotalDraws == 1 {
		global.HistoricalEmptyRate = empty
		return
	}
	global.HistoricalEmptyRate = emaAlpha*empty + (1-emaAlpha)*global.HistoricalEmptyRate
}

// NewState returns a zero-valued state for a user's first draw on a
// campaign, per spec §4.1(1) "create-if-absent with zero counters".
func NewState(userID, campaignID string) *State {
	return &State{UserID: userID, CampaignID: campaignID}
}

// NewGlobalState returns a zero-valued global state with the multiplier
// floor of 1.0.
func NewGlobalState(userID string) *GlobalState {
	return &GlobalState{UserID: userID, LuckDebtMultiplier: 1.0}
}
