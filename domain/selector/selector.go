// Package selector implements the two-stage weighted sampling described in
// spec §4.1(5)/§4.4: tier selection from segment-matched TierRules, then
// prize selection within the chosen tier. Pure and side-effect free — the
// Executor performs stock decrements separately, inside its transaction.
package selector

import (
	"crypto/rand"
	"math/big"
	"sort"

	"github.com/r3e-network/lottery-core/domain/correction"
	"github.com/r3e-network/lottery-core/domain/prize"
	"github.com/r3e-network/lottery-core/internal/errors"
)

// RNG abstracts the source of randomness: cryptographically strong for
// production, deterministic-seed for tests (spec §4.1 "RNG:
// cryptographically strong for production; deterministic seed for tests").
type RNG interface {
	// Intn returns a uniform value in [0, n). n must be > 0.
	Intn(n int64) int64
}

// CryptoRNG draws from crypto/rand, suitable for production.
type CryptoRNG struct{}

// Intn implements RNG using crypto/rand.Int, rejection-sampling out of
// crypto/rand's arbitrary-precision reader.
func (CryptoRNG) Intn(n int64) int64 {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		// crypto/rand failure is a process-level emergency; degrade to the
		// midpoint rather than panic so a transient entropy stall doesn't
		// crash an in-flight draw.
		return n / 2
	}
	return v.Int64()
}

// SeededRNG is a deterministic RNG for reproducible tests (spec §8's
// "deterministic seed = 42" scenarios). Backed by a simple LCG so the
// sequence is stable across Go versions (math/rand's algorithm is not
// guaranteed stable across releases).
type SeededRNG struct {
	state uint64
}

// NewSeededRNG constructs a deterministic RNG from an integer seed.
func NewSeededRNG(seed int64) *SeededRNG {
	return &SeededRNG{state: uint64(seed) + 1}
}

// Intn returns a uniform-ish value in [0, n) from the LCG stream.
func (r *SeededRNG) Intn(n int64) int64 {
	if n <= 0 {
		return 0
	}
	// Knuth's MMIX LCG constants.
	r.state = r.state*6364136223846793005 + 1442695040888963407
	return int64(r.state>>33) % n
}

// WeightedTier is one tier's effective (post-correction) weight, ready for
// sampling.
type WeightedTier struct {
	Tier   prize.Tier
	Weight int64
}

// SelectTier performs stage (a): draw a value in [0, totalWeight) and walk
// cumulative buckets. If totalWeight == 0, returns (fallback, true) per
// spec's resolved open question (CONFIG_VIOLATION is raised by the caller
// only if fallback itself then has no eligible prizes).
func SelectTier(rng RNG, tiers []WeightedTier) (prize.Tier, bool) {
	var total int64
	for _, t := range tiers {
		if t.Weight > 0 {
			total += t.Weight
		}
	}
	if total == 0 {
		return prize.TierFallback, true
	}

	draw := rng.Intn(total)
	var cumulative int64
	for _, t := range tiers {
		if t.Weight <= 0 {
			continue
		}
		cumulative += t.Weight
		if draw < cumulative {
			return t.Tier, false
		}
	}
	// Unreachable given the accounting above, but keep selection total.
	return prize.TierFallback, true
}

// tierMultiplierPPM resolves a tier's ppm multiplier from a composed
// WeightAdjustment.
func tierMultiplierPPM(adj correction.WeightAdjustment, tier prize.Tier) int64 {
	switch tier {
	case prize.TierHigh:
		return adj.HighPPM
	case prize.TierMid:
		return adj.MidPPM
	case prize.TierLow:
		return adj.LowPPM
	default:
		return adj.FallbackPPM
	}
}

// EffectiveTierWeights applies a composed WeightAdjustment to base tier
// weights. final_weight = round(base_weight * Π multipliers); here the
// multipliers are already pre-composed into one ppm factor per spec §4.1's
// "intermediate in 64-bit" guidance.
func EffectiveTierWeights(base []WeightedTier, adj correction.WeightAdjustment) []WeightedTier {
	out := make([]WeightedTier, len(base))
	for i, t := range base {
		ppm := tierMultiplierPPM(adj, t.Tier)
		out[i] = WeightedTier{Tier: t.Tier, Weight: (t.Weight*ppm + 500_000) / 1_000_000}
	}
	return out
}

// SelectPrize performs stage (b): weighted sampling within one tier, among
// prizes filtered to Eligible() here. dayCounts is a pre-fetched map of
// prize ID to that prize's win count for the current day bucket (spec
// §4.1(5)(b)/§4.4's per-day cap); a prize absent from the map is treated as
// a zero count. Ties (equal weight) break lexicographically by prize ID for
// deterministic replay.
func SelectPrize(rng RNG, prizes []prize.Prize, dayCounts map[string]int64) *prize.Prize {
	eligible := make([]prize.Prize, 0, len(prizes))
	for _, p := range prizes {
		if p.Eligible(dayCounts[p.ID]) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })

	var total int64
	for _, p := range eligible {
		total += p.WinWeight
	}
	if total <= 0 {
		return nil
	}

	draw := rng.Intn(total)
	var cumulative int64
	for i := range eligible {
		cumulative += eligible[i].WinWeight
		if draw < cumulative {
			return &eligible[i]
		}
	}
	return &eligible[len(eligible)-1]
}

// Select runs the full two-stage sampling: tier selection with automatic
// demotion when a chosen tier has no eligible prizes, per spec §4.1(5).
// prizesByTier must be keyed by prize.Tier and pre-filtered to the
// campaign/segment in question (stock/status/day-cap filtering happens
// inside SelectPrize via Eligible()).
func Select(rng RNG, tiers []WeightedTier, prizesByTier map[prize.Tier][]prize.Prize, dayCounts map[string]int64) (prize.Tier, *prize.Prize, error) {
	tier, _ := SelectTier(rng, tiers)

	for {
		selected := SelectPrize(rng, prizesByTier[tier], dayCounts)
		if selected != nil {
			return tier, selected, nil
		}
		next, ok := tier.Demote()
		if !ok {
			return "", nil, errors.ConfigViolation("fallback tier has no eligible prizes")
		}
		tier = next
	}
}
