// Package prize models prizes, tier rules, and quota rules: the static
// configuration the Tier & Prize Selector samples against.
package prize

import (
	"time"

	"github.com/r3e-network/lottery-core/internal/errors"
)

// Tier is a prize's coarse quality class.
type Tier string

const (
	TierHigh     Tier = "high"
	TierMid      Tier = "mid"
	TierLow      Tier = "low"
	TierFallback Tier = "fallback"
)

// Demote returns the next-lower tier per spec §4.1(5)'s demotion chain:
// high → mid → low → fallback. Demoting fallback returns ("", false) since
// there is nowhere left to demote to — that case is a CONFIG_VIOLATION.
func (t Tier) Demote() (Tier, bool) {
	switch t {
	case TierHigh:
		return TierMid, true
	case TierMid:
		return TierLow, true
	case TierLow:
		return TierFallback, true
	default:
		return "", false
	}
}

// Status is a Prize's availability state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Prize is one drawable reward within a campaign.
type Prize struct {
	ID              string
	CampaignID      string
	Name            string
	Tier            Tier
	WinWeight       int64 // integer, scaled per-tier/campaign
	ValuePoints     int64
	StockQuantity   *int64 // nil = infinite
	PerDayCap       *int64
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Eligible reports whether a prize may be selected: active, has stock (or
// unlimited), isn't zero-weight, and hasn't hit its per-day issuance cap.
// dayCount is the prize's pre-fetched win count for the current Asia/
// Shanghai calendar day (spec §4.1(5)(b)/§4.4); pass 0 for a prize with no
// PerDayCap.
func (p *Prize) Eligible(dayCount int64) bool {
	if p.Status != StatusActive {
		return false
	}
	if p.WinWeight <= 0 {
		return false
	}
	if p.StockQuantity != nil && *p.StockQuantity <= 0 {
		return false
	}
	if p.PerDayCap != nil && dayCount >= *p.PerDayCap {
		return false
	}
	return true
}

// ValidateCampaignPrizes enforces the fallback invariant from spec §3: at
// least one active fallback prize must exist for an active campaign.
func ValidateCampaignPrizes(prizes []Prize) error {
	for _, p := range prizes {
		if p.Tier == TierFallback && p.Status == StatusActive {
			return nil
		}
	}
	return errors.ConfigViolation("campaign has no active fallback prize")
}

// TierRule scopes a tier's sampling weight to a campaign and optional
// audience segment.
type TierRule struct {
	ID         string
	CampaignID string
	SegmentKey string // empty = applies to all segments
	TierName   Tier
	// TierWeight is expressed in parts-per-million; per (campaign, segment)
	// the sum of TierWeight across rules must not exceed 1_000_000.
	TierWeight int64
	Priority   int
}

// QuotaScope is the scope a QuotaRule resolves at.
type QuotaScope string

const (
	QuotaScopeGlobal   QuotaScope = "global"
	QuotaScopeCampaign QuotaScope = "campaign"
	QuotaScopeRole     QuotaScope = "role"
	QuotaScopeUser     QuotaScope = "user"
)

// scopeSpecificity orders scopes from narrowest to widest for tie-breaking
// when multiple rules share the same priority.
var scopeSpecificity = map[QuotaScope]int{
	QuotaScopeUser:     0,
	QuotaScopeRole:     1,
	QuotaScopeCampaign: 2,
	QuotaScopeGlobal:   3,
}

// QuotaRule bounds how many draws a scope may perform per Asia/Shanghai
// calendar day.
type QuotaRule struct {
	ID          string
	Scope       QuotaScope
	ScopeKey    string // campaign id / role id / user id, depending on Scope
	DailyLimit  int64
	Priority    int
	ValidFrom   time.Time
	ValidUntil  time.Time
}

// Applicable reports whether the rule's validity window covers now.
func (r *QuotaRule) Applicable(now time.Time) bool {
	if !r.ValidFrom.IsZero() && now.Before(r.ValidFrom) {
		return false
	}
	if !r.ValidUntil.IsZero() && now.After(r.ValidUntil) {
		return false
	}
	return true
}

// ResolveQuota picks the winning rule from a candidate set: highest
// priority wins; ties broken by narrowest scope, per spec §3.
func ResolveQuota(now time.Time, candidates []QuotaRule) *QuotaRule {
	var winner *QuotaRule
	for i := range candidates {
		rule := &candidates[i]
		if !rule.Applicable(now) {
			continue
		}
		if winner == nil {
			winner = rule
			continue
		}
		if rule.Priority > winner.Priority {
			winner = rule
			continue
		}
		if rule.Priority == winner.Priority && scopeSpecificity[rule.Scope] < scopeSpecificity[winner.Scope] {
			winner = rule
		}
	}
	return winner
}

// ShanghaiLocation is UTC+8 with no DST, used for daily quota/cap
// boundaries per spec §4.4/§6.
var ShanghaiLocation = time.FixedZone("Asia/Shanghai", 8*60*60)

// DayBucket returns the Asia/Shanghai calendar-day key (YYYYMMDD) for t,
// used to key per-day quota and per-prize-cap counters.
func DayBucket(t time.Time) string {
	return t.In(ShanghaiLocation).Format("20060102")
}
