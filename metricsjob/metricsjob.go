// Package metricsjob runs the hourly metrics rollup: it folds Redis's
// in-memory hourly counters into the relational hourly_metrics table,
// recomputes each campaign's budget/pressure classification and refreshes
// the cached snapshot, and applies the luck-debt EMA update (spec §4.7,
// §4.3's "refreshed periodically"). Scheduled with robfig/cron rather than
// a bare ticker so its cadence reads as a cron expression in config,
// matching the teacher's cron-expression-driven automation triggers.
package metricsjob

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/lottery-core/domain/pressure"
	"github.com/r3e-network/lottery-core/domain/prize"
	"github.com/r3e-network/lottery-core/internal/logging"
	"github.com/r3e-network/lottery-core/internal/redisstore"
	"github.com/r3e-network/lottery-core/store/postgres"
)

// Config controls the rollup's schedule and the luck-debt EMA policy.
type Config struct {
	Schedule               string // cron expression, default "@every 1h"
	LuckDebtAlpha          float64
	LuckDebtTarget         float64
	DecisionRetentionHours int
}

// Job is the scheduled hourly-rollup runner.
type Job struct {
	store  *postgres.Store
	redis  *redisstore.Store
	logger *logging.Logger
	cfg    Config
	cron   *cron.Cron
}

// New constructs a rollup Job. Call Start to begin the cron schedule.
func New(store *postgres.Store, redis *redisstore.Store, logger *logging.Logger, cfg Config) *Job {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	if cfg.LuckDebtAlpha <= 0 {
		cfg.LuckDebtAlpha = 0.02
	}
	if cfg.LuckDebtTarget <= 0 {
		cfg.LuckDebtTarget = 0.35
	}
	return &Job{store: store, redis: redis, logger: logger, cfg: cfg}
}

// Start registers the rollup on a new cron scheduler and starts it.
func (j *Job) Start(ctx context.Context) error {
	j.cron = cron.New()
	_, err := j.cron.AddFunc(j.cfg.Schedule, func() { j.runOnce(ctx) })
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight run to finish.
func (j *Job) Stop(ctx context.Context) error {
	if j.cron == nil {
		return nil
	}
	stopCtx := j.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// runOnce performs one rollup pass for the previous completed hour bucket,
// across every campaign with activity in that bucket.
func (j *Job) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	hourBucket := now.Add(-1 * time.Hour).Format("2006010215")
	dateBucket := prize.DayBucket(now)

	campaignIDs, err := j.store.ListActiveCampaignIDs(ctx)
	if err != nil {
		j.logger.WithError(err).Error("metricsjob: list active campaigns failed")
		return
	}

	for _, campaignID := range campaignIDs {
		j.rollupCampaign(ctx, campaignID, hourBucket, dateBucket)
	}

	if j.cfg.DecisionRetentionHours > 0 {
		if pruned, err := j.store.PruneDrawDecisions(ctx, j.cfg.DecisionRetentionHours); err != nil {
			j.logger.WithError(err).Warn("metricsjob: prune draw decisions failed")
		} else if pruned > 0 {
			j.logger.WithFields(map[string]interface{}{"pruned_rows": pruned}).Info("metricsjob: pruned draw decision traces")
		}
	}
}

func (j *Job) rollupCampaign(ctx context.Context, campaignID, hourBucket, dateBucket string) {
	counters, err := j.redis.HourlySnapshot(ctx, campaignID, hourBucket)
	if err != nil {
		j.logger.WithError(err).WithField("campaign_id", campaignID).Warn("metricsjob: read hourly snapshot failed")
		return
	}
	uniqueUsers, err := j.redis.UniqueUserCount(ctx, campaignID, dateBucket)
	if err != nil {
		j.logger.WithError(err).WithField("campaign_id", campaignID).Warn("metricsjob: read unique user count failed")
	}

	if len(counters) > 0 {
		if err := j.store.UpsertHourlyMetrics(ctx, campaignID, hourBucket, counters, uniqueUsers); err != nil {
			j.logger.WithError(err).WithField("campaign_id", campaignID).Warn("metricsjob: persist hourly metrics failed")
		}
	}

	campaignRow, err := j.store.GetCampaign(ctx, campaignID)
	if err != nil {
		j.logger.WithError(err).WithField("campaign_id", campaignID).Warn("metricsjob: reload campaign for pressure refresh failed")
		return
	}

	spendRate, err := j.store.RecentSpendRate(ctx, campaignID)
	if err != nil {
		j.logger.WithError(err).WithField("campaign_id", campaignID).Warn("metricsjob: compute spend rate failed")
		spendRate = 1.0
	}

	cell := pressure.Classify(pressure.Inputs{
		CampaignID: campaignID, RemainingBudget: campaignRow.RemainingBudget, TotalBudget: campaignRow.TotalBudget,
		ActualSpendRate: spendRate, ExpectedSpendRate: 1.0,
	})
	snap := redisstore.PressureSnapshot{
		CampaignID: campaignID, BudgetTier: string(cell.BudgetTier), PressureTier: string(cell.PressureTier),
		ComputedAt: time.Now().UTC(),
	}
	if err := j.redis.SetPressureSnapshot(ctx, snap, 90*time.Second); err != nil {
		j.logger.WithError(err).WithField("campaign_id", campaignID).Warn("metricsjob: cache pressure snapshot failed")
	}

	userIDs, err := j.store.ListUsersWithDrawsInHour(ctx, campaignID, hourBucket)
	if err != nil {
		j.logger.WithError(err).WithField("campaign_id", campaignID).Warn("metricsjob: list active users failed")
		return
	}
	for _, userID := range userIDs {
		if err := j.store.UpdateLuckDebtMultiplier(ctx, userID, j.cfg.LuckDebtTarget, j.cfg.LuckDebtAlpha); err != nil {
			j.logger.WithError(err).WithField("user_id", userID).Warn("metricsjob: update luck debt multiplier failed")
		}
	}
}

