// Package outboxjob runs the durable prize-issuance resolver: it drains the
// outbox entries the Executor enqueues when asset-service issuance fails
// after a draw's debit already committed (spec §4.6 step 8, §7
// ASSET_ISSUE_DEFERRED), retrying each with bounded exponential backoff and
// moving exhausted entries to the dead-letter queue for operator review.
// Scheduled with robfig/cron for the same reason as metricsjob/pricingjob —
// a short, frequent interval expressed as a cron expression rather than a
// bare ticker.
package outboxjob

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/lottery-core/assetclient"
	"github.com/r3e-network/lottery-core/domain/outbox"
	"github.com/r3e-network/lottery-core/internal/logging"
	"github.com/r3e-network/lottery-core/internal/metrics"
)

// Config controls the resolver's schedule, claim batch size, and retry
// policy.
type Config struct {
	Schedule    string // cron expression, default "@every 10s"
	BatchLimit  int
	RetryPolicy outbox.RetryPolicy
}

// Job is the scheduled outbox resolver runner.
type Job struct {
	store       outbox.Store
	assetClient assetclient.Client
	metrics     *metrics.Metrics
	logger      *logging.Logger
	cfg         Config
	cron        *cron.Cron
}

// New constructs a resolver Job. Call Start to begin the cron schedule.
func New(store outbox.Store, assetClient assetclient.Client, m *metrics.Metrics, logger *logging.Logger, cfg Config) *Job {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 10s"
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 50
	}
	if cfg.RetryPolicy.MaxAttempts <= 0 {
		cfg.RetryPolicy = outbox.DefaultRetryPolicy()
	}
	return &Job{store: store, assetClient: assetClient, metrics: m, logger: logger, cfg: cfg}
}

// Start registers the resolver on a new cron scheduler and starts it.
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

// runOnce claims every entry due for retry and resolves each in turn. The
// claim itself (ClaimDue) already marks entries dispatched under
// SKIP LOCKED, so concurrent resolver instances never double-issue one
// entry.
func (j *Job) runOnce(ctx context.Context) {
	entries, err := j.store.ClaimDue(j.cfg.BatchLimit, time.Now().UTC())
	if err != nil {
		j.logger.WithError(err).Error("outboxjob: claim due entries failed")
		return
	}
	if j.metrics != nil {
		j.metrics.SetOutboxDepth(len(entries))
	}
	for _, entry := range entries {
		j.resolve(ctx, entry)
	}
}

// resolve attempts issuance for one claimed entry, then transitions it to
// completed, a backed-off retry, or dead-letter.
func (j *Job) resolve(ctx context.Context, entry outbox.Entry) {
	fields := map[string]interface{}{"entry_id": entry.ID, "draw_id": entry.DrawID, "user_id": entry.UserID}
	started := time.Now().UTC()

	_, issueErr := j.assetClient.Issue(ctx, entry.UserID, entry.PrizeID, entry.IdempotencyKey)

	attempt := outbox.SettlementAttempt{
		EntryID: entry.ID, Attempt: entry.ResolverAttempt + 1,
		StartedAt: started, CompletedAt: time.Now().UTC(), Latency: time.Since(started),
	}
	if issueErr != nil {
		attempt.Status = "failed"
		attempt.Error = issueErr.Error()
	} else {
		attempt.Status = "completed"
	}
	if err := j.store.RecordAttempt(attempt); err != nil {
		j.logger.WithError(err).WithFields(fields).Warn("outboxjob: record resolver attempt failed")
	}

	if issueErr == nil {
		if err := j.store.MarkCompleted(entry.ID); err != nil {
			j.logger.WithError(err).WithFields(fields).Error("outboxjob: mark completed failed")
		}
		return
	}

	nextAttempt := entry.ResolverAttempt + 1
	if j.cfg.RetryPolicy.ShouldDeadLetter(nextAttempt) {
		if err := j.store.MarkDeadLetter(entry.ID, "retries_exhausted", issueErr.Error()); err != nil {
			j.logger.WithError(err).WithFields(fields).Error("outboxjob: mark dead letter failed")
			return
		}
		if j.metrics != nil {
			j.metrics.RecordOutboxDeadLetter()
		}
		j.logger.WithFields(fields).Warn("outboxjob: entry exhausted retries, moved to dead letter")
		return
	}

	next := time.Now().UTC().Add(j.cfg.RetryPolicy.NextBackoff(nextAttempt))
	if err := j.store.MarkRetry(entry.ID, next, issueErr.Error()); err != nil {
		j.logger.WithError(err).WithFields(fields).Error("outboxjob: mark retry failed")
	}
}
