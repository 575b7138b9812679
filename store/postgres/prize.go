package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/r3e-network/lottery-core/domain/prize"
	"github.com/r3e-network/lottery-core/internal/errors"
)

type prizeRow struct {
	ID            string         `db:"id"`
	CampaignID    string         `db:"campaign_id"`
	Name          string         `db:"name"`
	Tier          string         `db:"tier"`
	WinWeight     int64          `db:"win_weight"`
	ValuePoints   int64          `db:"value_points"`
	StockQuantity sql.NullInt64  `db:"stock_quantity"`
	PerDayCap     sql.NullInt64  `db:"per_day_cap"`
	Status        string         `db:"status"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r prizeRow) toDomain() prize.Prize {
	p := prize.Prize{
		ID:          r.ID,
		CampaignID:  r.CampaignID,
		Name:        r.Name,
		Tier:        prize.Tier(r.Tier),
		WinWeight:   r.WinWeight,
		ValuePoints: r.ValuePoints,
		Status:      prize.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.StockQuantity.Valid {
		v := r.StockQuantity.Int64
		p.StockQuantity = &v
	}
	if r.PerDayCap.Valid {
		v := r.PerDayCap.Int64
		p.PerDayCap = &v
	}
	return p
}

// ListPrizes returns every prize configured for a campaign, regardless of
// status (callers filter with Eligible()).
func (s *Store) ListPrizes(ctx context.Context, campaignID string) ([]prize.Prize, error) {
	var rows []prizeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, campaign_id, name, tier, win_weight, value_points, stock_quantity, per_day_cap, status, created_at, updated_at
		FROM prizes WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return nil, errors.TransientStoreError("list_prizes", err)
	}
	out := make([]prize.Prize, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// DecrementStock performs the in-transaction conditional stock decrement
// from spec §4.6 step 5. Returns (false, nil) on the 0-rows-affected case
// that the Executor must treat as a demotion trigger, not an error.
func (s *Store) DecrementStock(ctx context.Context, tx *sql.Tx, prizeID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE prizes SET stock_quantity = stock_quantity - 1, updated_at = now()
		WHERE id = $1 AND stock_quantity > 0`, prizeID)
	if err != nil {
		return false, errors.TransientStoreError("decrement_stock", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.TransientStoreError("decrement_stock_rows", err)
	}
	return rows > 0, nil
}

// IncrementDayCapCounter atomically increments a prize's per-day issuance
// counter and reports whether the increment stayed within PerDayCap. Uses
// the Asia/Shanghai day bucket from prize.DayBucket.
func (s *Store) IncrementDayCapCounter(ctx context.Context, tx *sql.Tx, prizeID string, dayBucket string, cap int64) (bool, error) {
	var count int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO prize_day_counters (prize_id, day_bucket, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (prize_id, day_bucket) DO UPDATE SET count = prize_day_counters.count + 1
		RETURNING count`, prizeID, dayBucket).Scan(&count)
	if err != nil {
		return false, errors.TransientStoreError("increment_day_cap_counter", err)
	}
	if cap > 0 && count > cap {
		return false, nil
	}
	return true, nil
}

// ListDayCapCounters returns the current per-day win count for every prize
// in a campaign that has already recorded at least one win in dayBucket,
// keyed by prize ID. Callers pre-fetch this once per Decide call and
// consult it via domain/prize.Prize.Eligible's dayCount parameter; the
// Executor re-validates the authoritative count inside its own transaction
// via IncrementDayCapCounter, so a stale read here only ever under- or
// over-admits a candidate for Selection, never an actual issuance.
func (s *Store) ListDayCapCounters(ctx context.Context, campaignID, dayBucket string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.prize_id, c.count
		FROM prize_day_counters c
		JOIN prizes p ON p.id = c.prize_id
		WHERE p.campaign_id = $1 AND c.day_bucket = $2`, campaignID, dayBucket)
	if err != nil {
		return nil, errors.TransientStoreError("list_day_cap_counters", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var prizeID string
		var count int64
		if err := rows.Scan(&prizeID, &count); err != nil {
			return nil, errors.TransientStoreError("scan_day_cap_counter", err)
		}
		out[prizeID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.TransientStoreError("iterate_day_cap_counters", err)
	}
	return out, nil
}

type tierRuleRow struct {
	ID         string `db:"id"`
	CampaignID string `db:"campaign_id"`
	SegmentKey sql.NullString `db:"segment_key"`
	TierName   string `db:"tier_name"`
	TierWeight int64  `db:"tier_weight"`
	Priority   int    `db:"priority"`
}

func (r tierRuleRow) toDomain() prize.TierRule {
	return prize.TierRule{
		ID:         r.ID,
		CampaignID: r.CampaignID,
		SegmentKey: r.SegmentKey.String,
		TierName:   prize.Tier(r.TierName),
		TierWeight: r.TierWeight,
		Priority:   r.Priority,
	}
}

// ListTierRules returns tier rules for a campaign matching a segment (or
// the campaign-wide rules when segment is empty).
func (s *Store) ListTierRules(ctx context.Context, campaignID, segment string) ([]prize.TierRule, error) {
	var rows []tierRuleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, campaign_id, segment_key, tier_name, tier_weight, priority
		FROM tier_rules WHERE campaign_id = $1 AND (segment_key = $2 OR segment_key IS NULL OR segment_key = '')
		ORDER BY priority DESC`, campaignID, segment)
	if err != nil {
		return nil, errors.TransientStoreError("list_tier_rules", err)
	}
	out := make([]prize.TierRule, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

type quotaRuleRow struct {
	ID         string    `db:"id"`
	Scope      string    `db:"scope"`
	ScopeKey   string    `db:"scope_key"`
	DailyLimit int64     `db:"daily_limit"`
	Priority   int       `db:"priority"`
	ValidFrom  sql.NullTime `db:"valid_from"`
	ValidUntil sql.NullTime `db:"valid_until"`
}

func (r quotaRuleRow) toDomain() prize.QuotaRule {
	return prize.QuotaRule{
		ID:         r.ID,
		Scope:      prize.QuotaScope(r.Scope),
		ScopeKey:   r.ScopeKey,
		DailyLimit: r.DailyLimit,
		Priority:   r.Priority,
		ValidFrom:  r.ValidFrom.Time,
		ValidUntil: r.ValidUntil.Time,
	}
}

// ListApplicableQuotaRules fetches every quota rule whose scope/key could
// apply to this (campaign, role, user) triple; resolution to one winner
// happens in prize.ResolveQuota.
func (s *Store) ListApplicableQuotaRules(ctx context.Context, campaignID, role, userID string) ([]prize.QuotaRule, error) {
	var rows []quotaRuleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, scope, scope_key, daily_limit, priority, valid_from, valid_until
		FROM quota_rules
		WHERE (scope = 'global')
		   OR (scope = 'campaign' AND scope_key = $1)
		   OR (scope = 'role' AND scope_key = $2)
		   OR (scope = 'user' AND scope_key = $3)`, campaignID, role, userID)
	if err != nil {
		return nil, errors.TransientStoreError("list_quota_rules", err)
	}
	out := make([]prize.QuotaRule, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// CountDrawsToday returns how many draws a scope key has made within the
// current Asia/Shanghai calendar day, for quota admission checks.
func (s *Store) CountDrawsToday(ctx context.Context, scope prize.QuotaScope, scopeKey string, dayBucket string) (int64, error) {
	var count int64
	var err error
	switch scope {
	case prize.QuotaScopeUser:
		err = s.db.GetContext(ctx, &count, `
			SELECT COUNT(*) FROM draws WHERE user_id = $1 AND day_bucket = $2`, scopeKey, dayBucket)
	case prize.QuotaScopeCampaign:
		err = s.db.GetContext(ctx, &count, `
			SELECT COUNT(*) FROM draws WHERE campaign_id = $1 AND day_bucket = $2`, scopeKey, dayBucket)
	default:
		err = s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM draws WHERE day_bucket = $1`, dayBucket)
	}
	if err != nil {
		return 0, errors.TransientStoreError("count_draws_today", err)
	}
	return count, nil
}

// ValidateFallbackInvariant wraps prize.ValidateCampaignPrizes over a
// freshly-loaded prize list, used by admin RPCs that create/update prizes.
func (s *Store) ValidateFallbackInvariant(ctx context.Context, campaignID string) error {
	prizes, err := s.ListPrizes(ctx, campaignID)
	if err != nil {
		return err
	}
	return prize.ValidateCampaignPrizes(prizes)
}

// UpsertPrize inserts or updates a prize row by ID.
func (s *Store) UpsertPrize(ctx context.Context, p prize.Prize) error {
	var stock, dayCap sql.NullInt64
	if p.StockQuantity != nil {
		stock = sql.NullInt64{Int64: *p.StockQuantity, Valid: true}
	}
	if p.PerDayCap != nil {
		dayCap = sql.NullInt64{Int64: *p.PerDayCap, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prizes (id, campaign_id, name, tier, win_weight, value_points, stock_quantity, per_day_cap, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = $3, tier = $4, win_weight = $5, value_points = $6,
			stock_quantity = $7, per_day_cap = $8, status = $9, updated_at = now()`,
		p.ID, p.CampaignID, p.Name, p.Tier, p.WinWeight, p.ValuePoints, stock, dayCap, p.Status)
	if err != nil {
		return errors.TransientStoreError("upsert_prize", err)
	}
	return nil
}

// UpsertQuotaRule inserts or updates a quota rule by ID.
func (s *Store) UpsertQuotaRule(ctx context.Context, r prize.QuotaRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_rules (id, scope, scope_key, daily_limit, priority, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			scope = $2, scope_key = $3, daily_limit = $4, priority = $5, valid_from = $6, valid_until = $7`,
		r.ID, r.Scope, r.ScopeKey, r.DailyLimit, r.Priority, nullTime(r.ValidFrom), nullTime(r.ValidUntil))
	if err != nil {
		return errors.TransientStoreError("upsert_quota_rule", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
