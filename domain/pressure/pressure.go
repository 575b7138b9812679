// Package pressure implements the Budget Pressure Controller's B×P matrix
// classification (spec §4.3): it turns a campaign's remaining-budget ratio
// and spend-rate ratio into a frozen multiplier cell the correction modules
// consume.
package pressure

// BudgetTier classifies a campaign's remaining-budget ratio.
type BudgetTier string

const (
	BudgetTierB0 BudgetTier = "B0" // <25%
	BudgetTierB1 BudgetTier = "B1" // 25-50%
	BudgetTierB2 BudgetTier = "B2" // 50-75%
	BudgetTierB3 BudgetTier = "B3" // >75%
)

// PressureTier classifies actual vs. expected spend rate.
type PressureTier string

const (
	PressureTierP0 PressureTier = "P0" // <0.9
	PressureTierP1 PressureTier = "P1" // 0.9-1.1
	PressureTierP2 PressureTier = "P2" // >1.1
)

// ClassifyBudget maps a remaining/total ratio to a BudgetTier.
func ClassifyBudget(remaining, total int64) BudgetTier {
	if total <= 0 {
		return BudgetTierB3
	}
	ratio := float64(remaining) / float64(total)
	switch {
	case ratio > 0.75:
		return BudgetTierB3
	case ratio >= 0.50:
		return BudgetTierB2
	case ratio >= 0.25:
		return BudgetTierB1
	default:
		return BudgetTierB0
	}
}

// ClassifyPressure maps an actual/expected spend-rate ratio to a
// PressureTier.
func ClassifyPressure(actualRate, expectedRate float64) PressureTier {
	if expectedRate <= 0 {
		return PressureTierP1
	}
	ratio := actualRate / expectedRate
	switch {
	case ratio < 0.9:
		return PressureTierP0
	case ratio <= 1.1:
		return PressureTierP1
	default:
		return PressureTierP2
	}
}

// Cell is one entry of the B×P matrix: the multipliers correction modules
// compose with their own adjustment before clamping.
type Cell struct {
	BudgetTier           BudgetTier
	PressureTier         PressureTier
	EmptyWeightMultiplierPPM int64 // scales fallback-tier base weight
	CapMultiplierPPM         int64 // upper bound on composed correction magnitude
}

// matrix is the full B×P lookup table. Values are illustrative defaults
// consistent with spec §4.3's intent (pressure scales fallback weight up,
// cap tightens as pressure/scarcity increases) and are operator-tunable via
// admin config in a later iteration; for now they're fixed constants, which
// keeps the controller itself free of hidden per-campaign state.
var matrix = map[BudgetTier]map[PressureTier]Cell{
	BudgetTierB3: {
		PressureTierP0: {EmptyWeightMultiplierPPM: 900_000, CapMultiplierPPM: 2_000_000},
		PressureTierP1: {EmptyWeightMultiplierPPM: 1_000_000, CapMultiplierPPM: 1_800_000},
		PressureTierP2: {EmptyWeightMultiplierPPM: 1_200_000, CapMultiplierPPM: 1_500_000},
	},
	BudgetTierB2: {
		PressureTierP0: {EmptyWeightMultiplierPPM: 1_000_000, CapMultiplierPPM: 1_800_000},
		PressureTierP1: {EmptyWeightMultiplierPPM: 1_200_000, CapMultiplierPPM: 1_500_000},
		PressureTierP2: {EmptyWeightMultiplierPPM: 1_500_000, CapMultiplierPPM: 1_300_000},
	},
	BudgetTierB1: {
		PressureTierP0: {EmptyWeightMultiplierPPM: 1_300_000, CapMultiplierPPM: 1_400_000},
		PressureTierP1: {EmptyWeightMultiplierPPM: 1_600_000, CapMultiplierPPM: 1_200_000},
		PressureTierP2: {EmptyWeightMultiplierPPM: 2_000_000, CapMultiplierPPM: 1_100_000},
	},
	BudgetTierB0: {
		PressureTierP0: {EmptyWeightMultiplierPPM: 1_800_000, CapMultiplierPPM: 1_100_000},
		PressureTierP1: {EmptyWeightMultiplierPPM: 2_200_000, CapMultiplierPPM: 1_050_000},
		PressureTierP2: {EmptyWeightMultiplierPPM: 3_000_000, CapMultiplierPPM: 1_000_000},
	},
}

// Lookup returns the frozen matrix cell for a (budgetTier, pressureTier)
// pair, stamping the tiers onto the returned value.
func Lookup(budgetTier BudgetTier, pressureTier PressureTier) Cell {
	cell := matrix[budgetTier][pressureTier]
	cell.BudgetTier = budgetTier
	cell.PressureTier = pressureTier
	return cell
}

// Inputs are the raw signals the controller classifies from, refreshed by
// the metrics-rollup job (spec §4.3 "refreshed periodically").
type Inputs struct {
	CampaignID      string
	RemainingBudget int64
	TotalBudget     int64
	ActualSpendRate float64
	ExpectedSpendRate float64
}

// Classify derives the matrix Cell for one set of inputs.
func Classify(in Inputs) Cell {
	budgetTier := ClassifyBudget(in.RemainingBudget, in.TotalBudget)
	pressureTier := ClassifyPressure(in.ActualSpendRate, in.ExpectedSpendRate)
	return Lookup(budgetTier, pressureTier)
}
