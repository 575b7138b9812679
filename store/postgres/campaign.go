package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/r3e-network/lottery-core/domain/campaign"
	"github.com/r3e-network/lottery-core/internal/errors"
)

type campaignRow struct {
	ID                 string    `db:"id"`
	Code               string    `db:"code"`
	Status             string    `db:"status"`
	BudgetMode         string    `db:"budget_mode"`
	TotalBudget        int64     `db:"total_budget"`
	RemainingBudget    int64     `db:"remaining_budget"`
	GuaranteeEnabled   bool      `db:"guarantee_enabled"`
	GuaranteeThreshold int64     `db:"guarantee_threshold_draws"`
	GuaranteePrizeID   sql.NullString `db:"guarantee_prize_id"`
	ActivePricingID    sql.NullString `db:"active_pricing_id"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (r campaignRow) toDomain() *campaign.Campaign {
	return &campaign.Campaign{
		ID:              r.ID,
		Code:            r.Code,
		Status:          campaign.Status(r.Status),
		BudgetMode:      campaign.BudgetMode(r.BudgetMode),
		TotalBudget:     r.TotalBudget,
		RemainingBudget: r.RemainingBudget,
		Guarantee: campaign.GuaranteeBlock{
			Enabled:          r.GuaranteeEnabled,
			ThresholdDraws:   int(r.GuaranteeThreshold),
			GuaranteePrizeID: r.GuaranteePrizeID.String,
		},
		ActivePricingID: r.ActivePricingID.String,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// GetCampaign loads a campaign by ID. Returns CAMPAIGN_NOT_FOUND if absent.
func (s *Store) GetCampaign(ctx context.Context, id string) (*campaign.Campaign, error) {
	var row campaignRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, code, status, budget_mode, total_budget, remaining_budget,
		       guarantee_enabled, guarantee_threshold_draws, guarantee_prize_id,
		       active_pricing_id, created_at, updated_at
		FROM campaigns WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.CampaignNotFound(id)
	}
	if err != nil {
		return nil, errors.TransientStoreError("get_campaign", err)
	}
	return row.toDomain(), nil
}

// GetCampaignForUpdate loads a campaign row with FOR UPDATE, for the
// Executor's in-transaction budget re-check (spec §4.6 step 3).
func (s *Store) GetCampaignForUpdate(ctx context.Context, tx *sql.Tx, id string) (*campaign.Campaign, error) {
	var row campaignRow
	stmt := `
		SELECT id, code, status, budget_mode, total_budget, remaining_budget,
		       guarantee_enabled, guarantee_threshold_draws, guarantee_prize_id,
		       active_pricing_id, created_at, updated_at
		FROM campaigns WHERE id = $1 FOR UPDATE`
	err := tx.QueryRowContext(ctx, stmt, id).Scan(
		&row.ID, &row.Code, &row.Status, &row.BudgetMode, &row.TotalBudget, &row.RemainingBudget,
		&row.GuaranteeEnabled, &row.GuaranteeThreshold, &row.GuaranteePrizeID,
		&row.ActivePricingID, &row.CreatedAt, &row.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.CampaignNotFound(id)
	}
	if err != nil {
		return nil, errors.TransientStoreError("get_campaign_for_update", err)
	}
	return row.toDomain(), nil
}

// UpdateCampaignBudget persists a campaign's consumed budget inside the
// Executor's transaction.
func (s *Store) UpdateCampaignBudget(ctx context.Context, tx *sql.Tx, campaignID string, remainingBudget int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET remaining_budget = $1, updated_at = now() WHERE id = $2`,
		remainingBudget, campaignID)
	if err != nil {
		return errors.TransientStoreError("update_campaign_budget", err)
	}
	return nil
}

type pricingRow struct {
	ID          string    `db:"id"`
	CampaignID  string    `db:"campaign_id"`
	Version     int64     `db:"version"`
	RawConfig   []byte    `db:"raw_config"`
	Status      string    `db:"status"`
	EffectiveAt sql.NullTime `db:"effective_at"`
	ExpiredAt   sql.NullTime `db:"expired_at"`
	AuditAuthor string    `db:"audit_author"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r pricingRow) toDomain() *campaign.PricingConfig {
	return &campaign.PricingConfig{
		ID:          r.ID,
		CampaignID:  r.CampaignID,
		Version:     r.Version,
		RawConfig:   r.RawConfig,
		Status:      campaign.PricingStatus(r.Status),
		EffectiveAt: r.EffectiveAt.Time,
		ExpiredAt:   r.ExpiredAt.Time,
		AuditAuthor: r.AuditAuthor,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// GetActivePricing returns the campaign's single active pricing version.
// Returns NO_ACTIVE_PRICING if none.
func (s *Store) GetActivePricing(ctx context.Context, campaignID string) (*campaign.PricingConfig, error) {
	var row pricingRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, campaign_id, version, raw_config, status, effective_at, expired_at, audit_author, created_at, updated_at
		FROM campaign_pricing_configs WHERE campaign_id = $1 AND status = 'active'`, campaignID)
	if err == sql.ErrNoRows {
		return nil, errors.NoActivePricing(campaignID)
	}
	if err != nil {
		return nil, errors.TransientStoreError("get_active_pricing", err)
	}
	return row.toDomain(), nil
}

// CreatePricingVersion inserts a new draft version, with the next
// monotonic version number for the campaign.
func (s *Store) CreatePricingVersion(ctx context.Context, campaignID string, rawConfig []byte, author string) (*campaign.PricingConfig, error) {
	var row pricingRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO campaign_pricing_configs (id, campaign_id, version, raw_config, status, audit_author, created_at, updated_at)
		VALUES (gen_random_uuid(), $1,
		        COALESCE((SELECT MAX(version) FROM campaign_pricing_configs WHERE campaign_id = $1), 0) + 1,
		        $2, 'draft', $3, now(), now())
		RETURNING id, campaign_id, version, raw_config, status, effective_at, expired_at, audit_author, created_at, updated_at`,
		campaignID, rawConfig, author)
	if err != nil {
		return nil, errors.TransientStoreError("create_pricing_version", err)
	}
	return row.toDomain(), nil
}

// ScheduleActivation marks a draft version as scheduled for a future
// effective_at.
func (s *Store) ScheduleActivation(ctx context.Context, campaignID string, version int64, effectiveAt time.Time) error {
	if !effectiveAt.After(time.Now()) {
		return errors.ConfigViolation("effective_at must be in the future")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaign_pricing_configs SET status = 'scheduled', effective_at = $3, updated_at = now()
		WHERE campaign_id = $1 AND version = $2`, campaignID, version, effectiveAt)
	return checkRowsAffected(res, err, "schedule_activation")
}

// ActivateVersion atomically archives the current active version (if any)
// and activates the target version, inside one transaction so a concurrent
// activate_version call either fully wins or fully no-ops (spec §8
// scenario 6).
func (s *Store) ActivateVersion(ctx context.Context, tx *sql.Tx, campaignID string, version int64, author string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE campaign_pricing_configs SET status = 'archived', updated_at = now()
		WHERE campaign_id = $1 AND status = 'active'`, campaignID); err != nil {
		return errors.TransientStoreError("archive_active_pricing", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE campaign_pricing_configs SET status = 'active', audit_author = $3, updated_at = now()
		WHERE campaign_id = $1 AND version = $2`, campaignID, version, author)
	if err != nil {
		return errors.TransientStoreError("activate_pricing_version", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.TransientStoreError("activate_pricing_version_rows", err)
	}
	if rows == 0 {
		return errors.ConfigViolation("pricing version not found")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE campaigns SET active_pricing_id = (
			SELECT id FROM campaign_pricing_configs WHERE campaign_id = $1 AND version = $2
		), updated_at = now() WHERE id = $1`, campaignID, version); err != nil {
		return errors.TransientStoreError("update_campaign_active_pricing", err)
	}
	return nil
}

// PromoteScheduled activates every pricing version whose effective_at has
// elapsed, called by the pricing-activation sweep (pricingjob).
func (s *Store) PromoteScheduled(ctx context.Context, now time.Time) ([]campaign.PricingConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT campaign_id, version FROM campaign_pricing_configs
		WHERE status = 'scheduled' AND effective_at <= $1`, now)
	if err != nil {
		return nil, errors.TransientStoreError("list_due_scheduled_pricing", err)
	}
	defer rows.Close()

	type due struct {
		campaignID string
		version    int64
	}
	var pending []due
	for rows.Next() {
		var d due
		if err := rows.Scan(&d.campaignID, &d.version); err != nil {
			return nil, errors.TransientStoreError("scan_due_scheduled_pricing", err)
		}
		pending = append(pending, d)
	}

	var activated []campaign.PricingConfig
	for _, d := range pending {
		err := s.WithTx(ctx, func(tx *sql.Tx) error {
			return s.ActivateVersion(ctx, tx, d.campaignID, d.version, "system:pricing_sweep")
		})
		if err != nil {
			continue
		}
		activated = append(activated, campaign.PricingConfig{CampaignID: d.campaignID, Version: d.version})
	}
	return activated, nil
}

// GetPricingVersion loads one historical pricing version's raw config, the
// source for rollback_to_version's create-from step.
func (s *Store) GetPricingVersion(ctx context.Context, campaignID string, version int64) (*campaign.PricingConfig, error) {
	var row pricingRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, campaign_id, version, raw_config, status, effective_at, expired_at, audit_author, created_at, updated_at
		FROM campaign_pricing_configs WHERE campaign_id = $1 AND version = $2`, campaignID, version)
	if err == sql.ErrNoRows {
		return nil, errors.ConfigViolation("pricing version not found")
	}
	if err != nil {
		return nil, errors.TransientStoreError("get_pricing_version", err)
	}
	return row.toDomain(), nil
}

// RollbackToVersion re-activates an old configuration by copying its
// raw_config into a brand-new draft version and immediately activating that
// new version, per spec §6's "equivalent to create-from + activate; carries
// audit metadata" contract — the rolled-back-to version is never reactivated
// in place, so the audit trail always grows forward.
func (s *Store) RollbackToVersion(ctx context.Context, tx *sql.Tx, campaignID string, version int64, author string) (*campaign.PricingConfig, error) {
	source, err := s.GetPricingVersion(ctx, campaignID, version)
	if err != nil {
		return nil, err
	}

	var row pricingRow
	err = tx.QueryRowContext(ctx, `
		INSERT INTO campaign_pricing_configs (id, campaign_id, version, raw_config, status, audit_author, created_at, updated_at)
		VALUES (gen_random_uuid(), $1,
		        COALESCE((SELECT MAX(version) FROM campaign_pricing_configs WHERE campaign_id = $1), 0) + 1,
		        $2, 'draft', $3, now(), now())
		RETURNING id, campaign_id, version, raw_config, status, effective_at, expired_at, audit_author, created_at, updated_at`,
		campaignID, source.RawConfig, "rollback_to_v"+itoa64(version)+":"+author,
	).Scan(&row.ID, &row.CampaignID, &row.Version, &row.RawConfig, &row.Status, &row.EffectiveAt, &row.ExpiredAt, &row.AuditAuthor, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, errors.TransientStoreError("rollback_create_version", err)
	}

	if err := s.ActivateVersion(ctx, tx, campaignID, row.Version, author); err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func itoa64(v int64) string {
	return strconv.FormatInt(v, 10)
}

func checkRowsAffected(res sql.Result, err error, op string) error {
	if err != nil {
		return errors.TransientStoreError(op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.TransientStoreError(op+"_rows", err)
	}
	if rows == 0 {
		return errors.ConfigViolation(op + ": no matching row")
	}
	return nil
}
