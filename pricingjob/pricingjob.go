// Package pricingjob runs the scheduled pricing-activation sweep: it
// promotes any pricing_configs version whose effective_at has elapsed from
// "scheduled" to "active" (spec §4.4's "scheduled activation"), archiving the
// previously active version atomically. Scheduled with robfig/cron for the
// same reason as metricsjob — a short, frequent interval expressed as a cron
// expression rather than a bare ticker.
package pricingjob

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/lottery-core/internal/logging"
	"github.com/r3e-network/lottery-core/store/postgres"
)

// Config controls the sweep's schedule.
type Config struct {
	Schedule string // cron expression, default "@every 30s"
}

// Job is the scheduled pricing-activation sweep runner.
type Job struct {
	store  *postgres.Store
	logger *logging.Logger
	cfg    Config
	cron   *cron.Cron
}

// New constructs a sweep Job. Call Start to begin the cron schedule.
func New(store *postgres.Store, logger *logging.Logger, cfg Config) *Job {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 30s"
	}
	return &Job{store: store, logger: logger, cfg: cfg}
}

// Start registers the sweep on a new cron scheduler and starts it.
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

func (j *Job) runOnce(ctx context.Context) {
	activated, err := j.store.PromoteScheduled(ctx, time.Now().UTC())
	if err != nil {
		j.logger.WithError(err).Error("pricingjob: promote scheduled pricing failed")
		return
	}
	for _, p := range activated {
		j.logger.WithFields(map[string]interface{}{
			"campaign_id": p.CampaignID,
			"version":     p.Version,
		}).Info("pricingjob: activated scheduled pricing version")
	}
}
