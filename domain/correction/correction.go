// Package correction implements the pluggable correction modules evaluated
// in the pipeline's Corrections stage (spec §4.1 step 4, §4.5). Each module
// is pure: it reads experience state and the pressure cell and returns a
// CorrectionOutcome sum type instead of throwing — replacing the
// exception-for-control-flow pattern called out in spec §9.
package correction

import (
	"github.com/r3e-network/lottery-core/domain/experience"
	"github.com/r3e-network/lottery-core/domain/prize"
	"github.com/r3e-network/lottery-core/domain/pressure"
)

// OutcomeKind discriminates the CorrectionOutcome sum type.
type OutcomeKind int

const (
	KindNoOp OutcomeKind = iota
	KindOverride
	KindAdjust
)

// WeightAdjustment is a set of per-tier multipliers, expressed in
// parts-per-million, to compose multiplicatively over the base tier
// weights.
type WeightAdjustment struct {
	HighPPM     int64
	MidPPM      int64
	LowPPM      int64
	FallbackPPM int64
}

// identityAdjustment is the neutral 1.0 (1_000_000 ppm) multiplier on every
// tier, used as the starting point for composition.
func identityAdjustment() WeightAdjustment {
	return WeightAdjustment{HighPPM: 1_000_000, MidPPM: 1_000_000, LowPPM: 1_000_000, FallbackPPM: 1_000_000}
}

// pressureAdjustment seeds the composition with the Budget Pressure
// Controller's fallback-tier scaling (spec §4.3: scale the fallback-tier
// base weight up as budget/pressure worsen), so it composes and clamps
// alongside every correction module's own adjustment rather than only
// tightening their cap.
func pressureAdjustment(cell pressure.Cell) WeightAdjustment {
	adj := identityAdjustment()
	adj.FallbackPPM = cell.EmptyWeightMultiplierPPM
	return adj
}

// Compose multiplies two adjustments tier-by-tier in ppm space.
func Compose(a, b WeightAdjustment) WeightAdjustment {
	return WeightAdjustment{
		HighPPM:     a.HighPPM * b.HighPPM / 1_000_000,
		MidPPM:      a.MidPPM * b.MidPPM / 1_000_000,
		LowPPM:      a.LowPPM * b.LowPPM / 1_000_000,
		FallbackPPM: a.FallbackPPM * b.FallbackPPM / 1_000_000,
	}
}

// Clamp bounds every tier's multiplier to [0, capPPM].
func (w WeightAdjustment) Clamp(capPPM int64) WeightAdjustment {
	clampOne := func(v int64) int64 {
		if v < 0 {
			return 0
		}
		if v > capPPM {
			return capPPM
		}
		return v
	}
	return WeightAdjustment{
		HighPPM:     clampOne(w.HighPPM),
		MidPPM:      clampOne(w.MidPPM),
		LowPPM:      clampOne(w.LowPPM),
		FallbackPPM: clampOne(w.FallbackPPM),
	}
}

// Outcome is the sum type a correction module produces: exactly one of
// Override or Adjust is meaningful, discriminated by Kind.
type Outcome struct {
	Kind       OutcomeKind
	Name       string
	Tier       prize.Tier // set when Kind == KindOverride
	PrizeID    string     // optional, set when Kind == KindOverride and a specific prize is forced
	Adjustment WeightAdjustment
	Triggered  bool
	Trace      map[string]interface{}
}

func noOp(name string) Outcome {
	return Outcome{Kind: KindNoOp, Name: name, Triggered: false}
}

// Context bundles the read-only inputs every correction module needs.
type Context struct {
	Campaign          CampaignView
	State             *experience.State
	Global            *experience.GlobalState
	PressureCell      pressure.Cell
	PityThreshold     int64
	AntiEmptyThreshold int64
	AntiHighThreshold  int64
	AntiHighCooldownRounds int64
	AdminForcedTier    prize.Tier // set by an operator override RPC; empty = none
	AdminForcedPrizeID string
}

// CampaignView is the minimal campaign data a correction needs, decoupled
// from the full campaign.Campaign type to keep this package import-light.
type CampaignView struct {
	GuaranteeEnabled    bool
	GuaranteeThreshold  int64
	GuaranteePrizeID    string
}

// AdminIntent models an operator-forced outcome (spec §9's "management
// override paths"): highest priority, evaluated before every system
// correction, fully auditable via the DrawDecision trace.
func AdminIntent(ctx Context) Outcome {
	if ctx.AdminForcedTier == "" {
		return noOp("admin_intent")
	}
	return Outcome{
		Kind:      KindOverride,
		Name:      "admin_intent",
		Tier:      ctx.AdminForcedTier,
		PrizeID:   ctx.AdminForcedPrizeID,
		Triggered: true,
		Trace: map[string]interface{}{
			"forced_tier":  ctx.AdminForcedTier,
			"forced_prize": ctx.AdminForcedPrizeID,
		},
	}
}

// Guarantee implements the campaign-declared guarantee block: fires when
// this draw, if empty, would reach the configured threshold. Wins over Pity
// when both would fire (spec §9's resolved open question).
func Guarantee(ctx Context) Outcome {
	if !ctx.Campaign.GuaranteeEnabled {
		return noOp("guarantee")
	}
	if ctx.State.EmptyStreak+1 < ctx.Campaign.GuaranteeThreshold {
		return noOp("guarantee")
	}
	return Outcome{
		Kind:      KindOverride,
		Name:      "guarantee",
		Tier:      prize.TierHigh,
		PrizeID:   ctx.Campaign.GuaranteePrizeID,
		Triggered: true,
		Trace: map[string]interface{}{
			"empty_streak": ctx.State.EmptyStreak,
			"threshold":    ctx.Campaign.GuaranteeThreshold,
		},
	}
}

// Pity implements the system-default guarantee: forces a non-empty outcome
// when this draw, if empty, would bring empty_streak to pity_threshold
// (default 10). When Guarantee also fires, Evaluate keeps Guarantee's
// override; Pity's outcome is still recorded as triggered in the trace.
func Pity(ctx Context) Outcome {
	threshold := ctx.PityThreshold
	if threshold <= 0 {
		threshold = 10
	}
	if ctx.State.EmptyStreak+1 < threshold {
		return noOp("pity")
	}
	return Outcome{
		Kind:      KindOverride,
		Name:      "pity",
		Tier:      prize.TierHigh,
		Triggered: true,
		Trace: map[string]interface{}{
			"empty_streak": ctx.State.EmptyStreak,
			"threshold":    threshold,
		},
	}
}

// AntiEmpty scales fallback weight down and high/mid weight up once
// empty_streak crosses anti_empty_threshold.
func AntiEmpty(ctx Context) Outcome {
	threshold := ctx.AntiEmptyThreshold
	if threshold <= 0 || ctx.State.EmptyStreak < threshold {
		return noOp("anti_empty")
	}
	adj := WeightAdjustment{
		HighPPM:     1_300_000,
		MidPPM:      1_150_000,
		LowPPM:      1_000_000,
		FallbackPPM: 500_000,
	}.Clamp(ctx.PressureCell.CapMultiplierPPM)
	return Outcome{
		Kind:       KindAdjust,
		Name:       "anti_empty",
		Adjustment: adj,
		Triggered:  true,
		Trace:      map[string]interface{}{"empty_streak": ctx.State.EmptyStreak, "threshold": threshold},
	}
}

// AntiHigh scales high-tier weight down while anti_high_cooldown > 0.
func AntiHigh(ctx Context) Outcome {
	if ctx.State.AntiHighCooldown <= 0 {
		return noOp("anti_high")
	}
	adj := WeightAdjustment{
		HighPPM:     200_000, // 0.2x
		MidPPM:      1_000_000,
		LowPPM:      1_000_000,
		FallbackPPM: 1_000_000,
	}.Clamp(ctx.PressureCell.CapMultiplierPPM)
	return Outcome{
		Kind:       KindAdjust,
		Name:       "anti_high",
		Adjustment: adj,
		Triggered:  true,
		Trace:      map[string]interface{}{"anti_high_cooldown": ctx.State.AntiHighCooldown},
	}
}

// LuckDebt scales high-tier weight up by the user's slow-moving multiplier.
func LuckDebt(ctx Context) Outcome {
	multiplierPPM := int64(ctx.Global.LuckDebtMultiplier * 1_000_000)
	if multiplierPPM <= 1_000_000 {
		return noOp("luck_debt")
	}
	adj := WeightAdjustment{
		HighPPM:     multiplierPPM,
		MidPPM:      1_000_000,
		LowPPM:      1_000_000,
		FallbackPPM: 1_000_000,
	}.Clamp(ctx.PressureCell.CapMultiplierPPM)
	return Outcome{
		Kind:       KindAdjust,
		Name:       "luck_debt",
		Adjustment: adj,
		Triggered:  true,
		Trace:      map[string]interface{}{"luck_debt_multiplier": ctx.Global.LuckDebtMultiplier},
	}
}

// orderedModules is the fixed evaluation order from spec §4.1 step 4, with
// AdminIntent inserted at the highest priority per spec §9.
var orderedModules = []func(Context) Outcome{
	AdminIntent,
	Guarantee,
	Pity,
	AntiEmpty,
	AntiHigh,
	LuckDebt,
}

// Evaluate runs every module in fixed order. The first Override wins and
// short-circuits the remainder of the override search, but every module
// still runs so its trace (and, for Adjust-kind modules, its weight
// contribution) is captured — matching spec §4.1's "later modules may still
// attach trace but must not override".
func Evaluate(ctx Context) (override *Outcome, composed WeightAdjustment, all []Outcome) {
	composed = pressureAdjustment(ctx.PressureCell)
	for _, module := range orderedModules {
		outcome := module(ctx)
		all = append(all, outcome)
		switch outcome.Kind {
		case KindOverride:
			if override == nil {
				o := outcome
				override = &o
			}
		case KindAdjust:
			composed = Compose(composed, outcome.Adjustment)
		}
	}
	composed = composed.Clamp(ctx.PressureCell.CapMultiplierPPM)
	return override, composed, all
}
