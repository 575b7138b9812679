package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/r3e-network/lottery-core/internal/errors"
)

// IdempotencyRecord is the durable, relational mirror of an idempotency
// decision. internal/redisstore holds the fast TTL-based copy the Executor
// consults on the hot path; this table is the audit trail a replay or a
// Redis flush can fall back to.
type IdempotencyRecord struct {
	IdempotencyKey string
	DrawID         string
	Status         string
	Response       json.RawMessage
}

// RecordIdempotencyCommit upserts the durable record inside the Executor's
// transaction, alongside the draw/decision rows it commits with.
func (s *Store) RecordIdempotencyCommit(ctx context.Context, tx *sql.Tx, key, drawID string, response json.RawMessage) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency_records (idempotency_key, draw_id, status, response, created_at, updated_at)
		VALUES ($1, $2, 'committed', $3, now(), now())
		ON CONFLICT (idempotency_key) DO UPDATE SET
			draw_id = $2, status = 'committed', response = $3, updated_at = now()`,
		key, drawID, response)
	if err != nil {
		return errors.TransientStoreError("record_idempotency_commit", err)
	}
	return nil
}

// GetIdempotencyRecord looks up the durable record by key, for replay after
// a Redis eviction.
func (s *Store) GetIdempotencyRecord(ctx context.Context, key string) (*IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var drawID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT idempotency_key, draw_id, status, response FROM idempotency_records WHERE idempotency_key = $1`,
		key).Scan(&rec.IdempotencyKey, &drawID, &rec.Status, &rec.Response)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.TransientStoreError("get_idempotency_record", err)
	}
	rec.DrawID = drawID.String
	return &rec, nil
}
