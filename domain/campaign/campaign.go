// Package campaign models campaigns and their versioned pricing
// configuration: the top of the decision pipeline's Load stage.
package campaign

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/r3e-network/lottery-core/internal/errors"
)

// Status is a Campaign's lifecycle state.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusEnded  Status = "ended"
)

// BudgetMode controls whether a campaign tracks a finite spend pool.
type BudgetMode string

const (
	BudgetModeUnlimited  BudgetMode = "unlimited"
	BudgetModeBudgetPool BudgetMode = "budget_pool"
)

// GuaranteeBlock is the campaign-declared override: force a non-empty (or
// specific-prize) outcome once empty_streak is about to reach threshold.
type GuaranteeBlock struct {
	Enabled          bool
	ThresholdDraws   int
	GuaranteePrizeID string
}

// Campaign is the top-level scoping entity for pricing, prizes, and budget.
type Campaign struct {
	ID              string
	Code            string
	Status          Status
	BudgetMode      BudgetMode
	TotalBudget     int64
	RemainingBudget int64
	Guarantee       GuaranteeBlock
	ActivePricingID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Active reports whether draws may be accepted against this campaign.
func (c *Campaign) Active() bool {
	return c.Status == StatusActive
}

// Validate checks the invariants from spec §3: remaining_budget bounds.
func (c *Campaign) Validate() error {
	if c.RemainingBudget > c.TotalBudget {
		return errors.ConfigViolation("remaining_budget exceeds total_budget")
	}
	if c.BudgetMode == BudgetModeBudgetPool && c.RemainingBudget < 0 {
		return errors.ConfigViolation("remaining_budget is negative under budget_pool mode")
	}
	return nil
}

// ConsumeBudget debits a committed draw's prize value from the pool. No-op
// under unlimited mode. Caller must already hold the per-campaign row lock
// (or be inside the Executor's transaction) — this method has no locking of
// its own.
func (c *Campaign) ConsumeBudget(points int64) error {
	if c.BudgetMode != BudgetModeBudgetPool {
		return nil
	}
	if points > c.RemainingBudget {
		return errors.ConfigViolation("budget consumption would drive remaining_budget negative")
	}
	c.RemainingBudget -= points
	return nil
}

// PricingStatus is a PricingConfig version's lifecycle state.
type PricingStatus string

const (
	PricingStatusDraft     PricingStatus = "draft"
	PricingStatusScheduled PricingStatus = "scheduled"
	PricingStatusActive    PricingStatus = "active"
	PricingStatusArchived  PricingStatus = "archived"
)

// Pricing is the decoded view of a pricing config's JSON blob, parsed via
// gjson rather than a strict schema so operators can add fields without a
// migration.
type Pricing struct {
	SingleCost       int64
	Multi10Cost      int64
	Multi10Discount  int64 // ppm discount applied to Multi10Cost
}

// ParsePricing decodes a stored pricing JSON blob. Unknown/missing fields
// default to zero rather than erroring, matching the teacher's tolerant
// JSON-path reads of third-party response payloads.
func ParsePricing(raw []byte) Pricing {
	return Pricing{
		SingleCost:      gjson.GetBytes(raw, "single_cost").Int(),
		Multi10Cost:     gjson.GetBytes(raw, "multi_10_cost").Int(),
		Multi10Discount: gjson.GetBytes(raw, "multi_10_discount").Int(),
	}
}

// PricingConfig is one versioned pricing row for a campaign.
type PricingConfig struct {
	ID          string
	CampaignID  string
	Version     int64
	RawConfig   []byte
	Status      PricingStatus
	EffectiveAt time.Time
	ExpiredAt   time.Time
	AuditAuthor string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Pricing decodes this version's raw JSON config.
func (p *PricingConfig) Pricing() Pricing {
	return ParsePricing(p.RawConfig)
}

// CostFor returns the points cost for a draw type under this pricing
// version.
func (p *PricingConfig) CostFor(drawType string) int64 {
	pricing := p.Pricing()
	if drawType == "multi10" {
		discounted := pricing.Multi10Cost * (1_000_000 - pricing.Multi10Discount) / 1_000_000
		return discounted
	}
	return pricing.SingleCost
}

// ValidateSchedule enforces that a scheduled activation is strictly future.
func (p *PricingConfig) ValidateSchedule(now time.Time) error {
	if p.Status == PricingStatusScheduled && !p.EffectiveAt.After(now) {
		return errors.ConfigViolation("scheduled pricing config must have effective_at in the future")
	}
	return nil
}
