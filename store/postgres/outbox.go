package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/r3e-network/lottery-core/domain/outbox"
	"github.com/r3e-network/lottery-core/internal/errors"
)

// outboxRow mirrors outbox.Entry's column layout.
type outboxRow struct {
	ID               string       `db:"id"`
	DrawID           string       `db:"draw_id"`
	UserID           string       `db:"user_id"`
	CampaignID       string       `db:"campaign_id"`
	PrizeID          string       `db:"prize_id"`
	IdempotencyKey   string       `db:"idempotency_key"`
	Status           string       `db:"status"`
	ResolverAttempt  int          `db:"resolver_attempt"`
	ResolverError    sql.NullString `db:"resolver_error"`
	LastAttemptAt    sql.NullTime `db:"last_attempt_at"`
	NextAttemptAt    sql.NullTime `db:"next_attempt_at"`
	DeadLetterReason sql.NullString `db:"dead_letter_reason"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func (r outboxRow) toDomain() outbox.Entry {
	return outbox.Entry{
		ID:               r.ID,
		DrawID:           r.DrawID,
		UserID:           r.UserID,
		CampaignID:       r.CampaignID,
		PrizeID:          r.PrizeID,
		IdempotencyKey:   r.IdempotencyKey,
		Status:           outbox.EntryStatus(r.Status),
		ResolverAttempt:  r.ResolverAttempt,
		ResolverError:    r.ResolverError.String,
		LastAttemptAt:    r.LastAttemptAt.Time,
		NextAttemptAt:    r.NextAttemptAt.Time,
		DeadLetterReason: r.DeadLetterReason.String,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// OutboxStore adapts *Store to domain/outbox.Store. The interface's methods
// carry no context, so each call opens its own background context scoped to
// a short per-query timeout — these calls never participate in the
// Executor's draw transaction. The Executor enqueues an entry via EnqueueTx,
// inside that transaction (see below); Enqueue is for callers outside a draw
// transaction.
type OutboxStore struct {
	store *Store
}

// NewOutboxStore wraps a *Store as a domain/outbox.Store.
func NewOutboxStore(s *Store) *OutboxStore {
	return &OutboxStore{store: s}
}

const outboxQueryTimeout = 5 * time.Second

// EnqueueTx inserts an outbox entry inside the Executor's own transaction,
// so a deferred issuance is recorded atomically with the draw it belongs to
// (spec §4.6 step 8).
func (s *Store) EnqueueTx(ctx context.Context, tx *sql.Tx, e outbox.Entry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_entries (id, draw_id, user_id, campaign_id, prize_id, idempotency_key, status, resolver_attempt, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, now(), now(), now())`,
		e.ID, e.DrawID, e.UserID, e.CampaignID, e.PrizeID, e.IdempotencyKey, outbox.StatusPending)
	if err != nil {
		return errors.TransientStoreError("enqueue_outbox_tx", err)
	}
	return nil
}

// Enqueue implements outbox.Store for callers outside a draw transaction
// (e.g. a manual operator requeue).
func (s *OutboxStore) Enqueue(e outbox.Entry) (outbox.Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), outboxQueryTimeout)
	defer cancel()
	if e.ID == "" {
		return outbox.Entry{}, errors.ConfigViolation("outbox entry requires an id")
	}
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		return s.store.EnqueueTx(ctx, tx, e)
	})
	if err != nil {
		return outbox.Entry{}, err
	}
	return e, nil
}

// ClaimDue returns entries whose next_attempt_at has elapsed, locking them
// with SKIP LOCKED so multiple resolver workers never double-claim one
// entry, then marks them dispatched.
func (s *OutboxStore) ClaimDue(limit int, now time.Time) ([]outbox.Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), outboxQueryTimeout)
	defer cancel()

	var claimed []outbox.Entry
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, draw_id, user_id, campaign_id, prize_id, idempotency_key, status,
			       resolver_attempt, resolver_error, last_attempt_at, next_attempt_at,
			       dead_letter_reason, created_at, updated_at
			FROM outbox_entries
			WHERE status IN ('pending', 'dispatched') AND next_attempt_at <= $1
			ORDER BY next_attempt_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED`, now, limit)
		if err != nil {
			return errors.TransientStoreError("claim_due_outbox", err)
		}
		defer rows.Close()

		var ids []string
		for rows.Next() {
			var r outboxRow
			if err := rows.Scan(&r.ID, &r.DrawID, &r.UserID, &r.CampaignID, &r.PrizeID, &r.IdempotencyKey,
				&r.Status, &r.ResolverAttempt, &r.ResolverError, &r.LastAttemptAt, &r.NextAttemptAt,
				&r.DeadLetterReason, &r.CreatedAt, &r.UpdatedAt); err != nil {
				return errors.TransientStoreError("scan_due_outbox", err)
			}
			claimed = append(claimed, r.toDomain())
			ids = append(ids, r.ID)
		}
		if err := rows.Err(); err != nil {
			return errors.TransientStoreError("iterate_due_outbox", err)
		}

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
				UPDATE outbox_entries SET status = 'dispatched', updated_at = now() WHERE id = $1`, id); err != nil {
				return errors.TransientStoreError("mark_dispatched_outbox", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkCompleted transitions an entry to completed after the asset client
// confirms issuance succeeded.
func (s *OutboxStore) MarkCompleted(entryID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), outboxQueryTimeout)
	defer cancel()
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE outbox_entries SET status = 'completed', last_attempt_at = now(), updated_at = now() WHERE id = $1`, entryID)
	if err != nil {
		return errors.TransientStoreError("mark_completed_outbox", err)
	}
	return nil
}

// MarkRetry records a failed attempt and schedules the next one.
func (s *OutboxStore) MarkRetry(entryID string, nextAttemptAt time.Time, resolverError string) error {
	ctx, cancel := context.WithTimeout(context.Background(), outboxQueryTimeout)
	defer cancel()
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE outbox_entries SET
			status = 'pending', resolver_attempt = resolver_attempt + 1,
			resolver_error = $2, last_attempt_at = now(), next_attempt_at = $3, updated_at = now()
		WHERE id = $1`, entryID, resolverError, nextAttemptAt)
	if err != nil {
		return errors.TransientStoreError("mark_retry_outbox", err)
	}
	return nil
}

// MarkDeadLetter moves an entry to the dead_letter table and marks the
// outbox row terminal, for operator review.
func (s *OutboxStore) MarkDeadLetter(entryID string, reason, lastError string) error {
	ctx, cancel := context.WithTimeout(context.Background(), outboxQueryTimeout)
	defer cancel()
	return s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var campaignID, userID string
		var attempt int
		if err := tx.QueryRowContext(ctx, `
			SELECT campaign_id, user_id, resolver_attempt FROM outbox_entries WHERE id = $1 FOR UPDATE`,
			entryID).Scan(&campaignID, &userID, &attempt); err != nil {
			return errors.TransientStoreError("load_outbox_for_dead_letter", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE outbox_entries SET status = 'dead_letter', dead_letter_reason = $2, updated_at = now() WHERE id = $1`,
			entryID, reason); err != nil {
			return errors.TransientStoreError("mark_dead_letter_outbox", err)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO outbox_dead_letters (entry_id, campaign_id, user_id, reason, last_error, last_attempt_at, retries, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), $6, now(), now())
			ON CONFLICT (entry_id) DO UPDATE SET
				reason = $4, last_error = $5, last_attempt_at = now(), retries = $6, updated_at = now()`,
			entryID, campaignID, userID, reason, lastError, attempt)
		if err != nil {
			return errors.TransientStoreError("insert_dead_letter", err)
		}
		return nil
	})
}

// RecordAttempt appends an observability row for one resolver attempt.
func (s *OutboxStore) RecordAttempt(attempt outbox.SettlementAttempt) error {
	ctx, cancel := context.WithTimeout(context.Background(), outboxQueryTimeout)
	defer cancel()
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO outbox_settlement_attempts (entry_id, attempt, started_at, completed_at, latency_ms, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		attempt.EntryID, attempt.Attempt, attempt.StartedAt, attempt.CompletedAt,
		attempt.Latency.Milliseconds(), attempt.Status, attempt.Error)
	if err != nil {
		return errors.TransientStoreError("record_outbox_attempt", err)
	}
	return nil
}

// ListDeadLetters returns dead-lettered entries for a campaign, most recent
// first, for the admin dead-letter review RPC.
func (s *OutboxStore) ListDeadLetters(campaignID string, limit int) ([]outbox.DeadLetter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), outboxQueryTimeout)
	defer cancel()
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT entry_id, campaign_id, user_id, reason, last_error, last_attempt_at, retries, created_at, updated_at
		FROM outbox_dead_letters WHERE campaign_id = $1 ORDER BY created_at DESC LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, errors.TransientStoreError("list_dead_letters", err)
	}
	defer rows.Close()

	var out []outbox.DeadLetter
	for rows.Next() {
		var d outbox.DeadLetter
		if err := rows.Scan(&d.EntryID, &d.CampaignID, &d.UserID, &d.Reason, &d.LastError,
			&d.LastAttemptAt, &d.Retries, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, errors.TransientStoreError("scan_dead_letter", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.TransientStoreError("iterate_dead_letters", err)
	}
	return out, nil
}
