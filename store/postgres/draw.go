package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/r3e-network/lottery-core/domain/experience"
	"github.com/r3e-network/lottery-core/domain/prize"
	"github.com/r3e-network/lottery-core/internal/errors"
)

// DrawRecord is the authoritative row for one committed draw.
type DrawRecord struct {
	ID               string
	CampaignID       string
	UserID           string
	DrawType         string
	CostPoints       int64
	RewardTier       prize.Tier
	PrizeID          string // empty for analytical empties
	PrizeValuePoints int64
	IdempotencyKey   string
	DayBucket        string
	CreatedAt        time.Time
}

// DrawDecision is the persisted decision trace linked to a DrawRecord.
type DrawDecision struct {
	ID               string
	DrawID           string
	BudgetTier       string
	PressureTier     string
	EffectiveBudget  int64
	PipelineType     string
	SelectedTier     prize.Tier
	CorrectionTrace  json.RawMessage
	CandidateWeights json.RawMessage
	CreatedAt        time.Time
}

// InsertDraw persists a DrawRecord and its DrawDecision inside the
// Executor's transaction (spec §4.6 step 6).
func (s *Store) InsertDraw(ctx context.Context, tx *sql.Tx, rec DrawRecord, dec DrawDecision) error {
	var prizeID sql.NullString
	if rec.PrizeID != "" {
		prizeID = sql.NullString{String: rec.PrizeID, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO draws (id, campaign_id, user_id, draw_type, cost_points, reward_tier, prize_id, prize_value_points, idempotency_key, day_bucket, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
		rec.ID, rec.CampaignID, rec.UserID, rec.DrawType, rec.CostPoints, rec.RewardTier, prizeID, rec.PrizeValuePoints, rec.IdempotencyKey, rec.DayBucket)
	if err != nil {
		return errors.TransientStoreError("insert_draw", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO draw_decisions (id, draw_id, budget_tier, pressure_tier, effective_budget, pipeline_type, selected_tier, correction_trace, candidate_weights, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
		dec.ID, rec.ID, dec.BudgetTier, dec.PressureTier, dec.EffectiveBudget, dec.PipelineType, dec.SelectedTier, dec.CorrectionTrace, dec.CandidateWeights)
	if err != nil {
		return errors.TransientStoreError("insert_draw_decision", err)
	}
	return nil
}

// PruneDrawDecisions deletes trace rows older than retentionHours, called
// by the hourly rollup job when DRAW_DECISION_RETENTION_HOURS > 0.
func (s *Store) PruneDrawDecisions(ctx context.Context, retentionHours int) (int64, error) {
	if retentionHours <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM draw_decisions WHERE created_at < now() - ($1 || ' hours')::interval`, retentionHours)
	if err != nil {
		return 0, errors.TransientStoreError("prune_draw_decisions", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

type experienceStateRow struct {
	UserID           string `db:"user_id"`
	CampaignID       string `db:"campaign_id"`
	EmptyStreak      int64  `db:"empty_streak"`
	RecentHighCount  int64  `db:"recent_high_count"`
	AntiHighCooldown int64  `db:"anti_high_cooldown"`
	TotalDraws       int64  `db:"total_draws"`
	TotalEmpties     int64  `db:"total_empties"`
	PityTriggerCount int64  `db:"pity_trigger_count"`
}

func (r experienceStateRow) toDomain() *experience.State {
	return &experience.State{
		UserID: r.UserID, CampaignID: r.CampaignID,
		EmptyStreak: r.EmptyStreak, RecentHighCount: r.RecentHighCount,
		AntiHighCooldown: r.AntiHighCooldown, TotalDraws: r.TotalDraws,
		TotalEmpties: r.TotalEmpties, PityTriggerCount: r.PityTriggerCount,
	}
}

// GetOrCreateExperienceState loads a user's per-campaign state, creating a
// zero-valued row if absent (spec §4.1 step 1 "create-if-absent").
func (s *Store) GetOrCreateExperienceState(ctx context.Context, tx *sql.Tx, userID, campaignID string) (*experience.State, error) {
	var row experienceStateRow
	err := tx.QueryRowContext(ctx, `
		SELECT user_id, campaign_id, empty_streak, recent_high_count, anti_high_cooldown, total_draws, total_empties, pity_trigger_count
		FROM user_experience_states WHERE user_id = $1 AND campaign_id = $2 FOR UPDATE`,
		userID, campaignID).Scan(&row.UserID, &row.CampaignID, &row.EmptyStreak, &row.RecentHighCount,
		&row.AntiHighCooldown, &row.TotalDraws, &row.TotalEmpties, &row.PityTriggerCount)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_experience_states (user_id, campaign_id, empty_streak, recent_high_count, anti_high_cooldown, total_draws, total_empties, pity_trigger_count)
			VALUES ($1, $2, 0, 0, 0, 0, 0, 0)`, userID, campaignID); err != nil {
			return nil, errors.TransientStoreError("create_experience_state", err)
		}
		return experience.NewState(userID, campaignID), nil
	}
	if err != nil {
		return nil, errors.TransientStoreError("get_experience_state", err)
	}
	return row.toDomain(), nil
}

// SaveExperienceState persists the post-draw state diff inside the
// Executor's transaction.
func (s *Store) SaveExperienceState(ctx context.Context, tx *sql.Tx, state *experience.State) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_experience_states SET
			empty_streak = $3, recent_high_count = $4, anti_high_cooldown = $5,
			total_draws = $6, total_empties = $7, pity_trigger_count = $8
		WHERE user_id = $1 AND campaign_id = $2`,
		state.UserID, state.CampaignID, state.EmptyStreak, state.RecentHighCount,
		state.AntiHighCooldown, state.TotalDraws, state.TotalEmpties, state.PityTriggerCount)
	if err != nil {
		return errors.TransientStoreError("save_experience_state", err)
	}
	return nil
}

type globalStateRow struct {
	UserID              string  `db:"user_id"`
	HistoricalEmptyRate float64 `db:"historical_empty_rate"`
	LuckDebtMultiplier  float64 `db:"luck_debt_multiplier"`
	TotalDraws          int64   `db:"total_draws"`
	TotalHighWins       int64   `db:"total_high_wins"`
}

func (r globalStateRow) toDomain() *experience.GlobalState {
	return &experience.GlobalState{
		UserID: r.UserID, HistoricalEmptyRate: r.HistoricalEmptyRate,
		LuckDebtMultiplier: r.LuckDebtMultiplier, TotalDraws: r.TotalDraws, TotalHighWins: r.TotalHighWins,
	}
}

// GetOrCreateGlobalState loads a user's cross-campaign state.
func (s *Store) GetOrCreateGlobalState(ctx context.Context, tx *sql.Tx, userID string) (*experience.GlobalState, error) {
	var row globalStateRow
	err := tx.QueryRowContext(ctx, `
		SELECT user_id, historical_empty_rate, luck_debt_multiplier, total_draws, total_high_wins
		FROM user_global_states WHERE user_id = $1 FOR UPDATE`, userID).Scan(
		&row.UserID, &row.HistoricalEmptyRate, &row.LuckDebtMultiplier, &row.TotalDraws, &row.TotalHighWins)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_global_states (user_id, historical_empty_rate, luck_debt_multiplier, total_draws, total_high_wins)
			VALUES ($1, 0, 1.0, 0, 0)`, userID); err != nil {
			return nil, errors.TransientStoreError("create_global_state", err)
		}
		return experience.NewGlobalState(userID), nil
	}
	if err != nil {
		return nil, errors.TransientStoreError("get_global_state", err)
	}
	return row.toDomain(), nil
}

// SaveGlobalState persists the post-draw global state.
func (s *Store) SaveGlobalState(ctx context.Context, tx *sql.Tx, state *experience.GlobalState) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_global_states SET historical_empty_rate = $2, luck_debt_multiplier = $3, total_draws = $4, total_high_wins = $5
		WHERE user_id = $1`, state.UserID, state.HistoricalEmptyRate, state.LuckDebtMultiplier, state.TotalDraws, state.TotalHighWins)
	if err != nil {
		return errors.TransientStoreError("save_global_state", err)
	}
	return nil
}

// PeekExperienceState reads a user's per-campaign state without locking,
// for the pipeline's read-only Load/Corrections stages (spec §4.1 step 1).
// The Executor re-reads FOR UPDATE inside its own transaction before
// mutating, so a snapshot here is never treated as authoritative.
func (s *Store) PeekExperienceState(ctx context.Context, userID, campaignID string) (*experience.State, error) {
	var row experienceStateRow
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, campaign_id, empty_streak, recent_high_count, anti_high_cooldown, total_draws, total_empties, pity_trigger_count
		FROM user_experience_states WHERE user_id = $1 AND campaign_id = $2`,
		userID, campaignID).Scan(&row.UserID, &row.CampaignID, &row.EmptyStreak, &row.RecentHighCount,
		&row.AntiHighCooldown, &row.TotalDraws, &row.TotalEmpties, &row.PityTriggerCount)
	if err == sql.ErrNoRows {
		return experience.NewState(userID, campaignID), nil
	}
	if err != nil {
		return nil, errors.TransientStoreError("peek_experience_state", err)
	}
	return row.toDomain(), nil
}

// PeekGlobalState reads a user's cross-campaign state without locking, for
// the same read-only stages as PeekExperienceState.
func (s *Store) PeekGlobalState(ctx context.Context, userID string) (*experience.GlobalState, error) {
	var row globalStateRow
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, historical_empty_rate, luck_debt_multiplier, total_draws, total_high_wins
		FROM user_global_states WHERE user_id = $1`, userID).Scan(
		&row.UserID, &row.HistoricalEmptyRate, &row.LuckDebtMultiplier, &row.TotalDraws, &row.TotalHighWins)
	if err == sql.ErrNoRows {
		return experience.NewGlobalState(userID), nil
	}
	if err != nil {
		return nil, errors.TransientStoreError("peek_global_state", err)
	}
	return row.toDomain(), nil
}

// UpdateLuckDebtMultiplier applies the EMA policy update from the hourly
// rollup job, clamped to [1.0, 3.0] per DESIGN.md's Open Question decision.
func (s *Store) UpdateLuckDebtMultiplier(ctx context.Context, userID string, target, alpha float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_global_states SET luck_debt_multiplier = GREATEST(1.0, LEAST(3.0,
			luck_debt_multiplier + $2 * ($3 - historical_empty_rate)
		)) WHERE user_id = $1`, userID, alpha, target)
	if err != nil {
		return errors.TransientStoreError("update_luck_debt_multiplier", err)
	}
	return nil
}
