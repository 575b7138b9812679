// Package redisstore wraps go-redis with the hot-state operations the draw
// pipeline needs: idempotency reservations, hourly metric counters, daily
// unique-user HyperLogLogs, and the cached pressure-controller snapshot.
// Redis holds derived/short-TTL state only; authoritative entities live in
// the relational store and counters are reconciled by the hourly rollup job
// rather than ever being load-bearing on their own.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/r3e-network/lottery-core/internal/errors"
)

// IdempotencyStatus mirrors the two states an IdempotencyRecord can be in.
type IdempotencyStatus string

const (
	StatusInFlight  IdempotencyStatus = "in_flight"
	StatusCommitted IdempotencyStatus = "committed"
)

// IdempotencyRecord is the Redis-resident shadow of the relational
// idempotency_records row, used to short-circuit duplicate draw requests
// before a transaction is ever opened.
type IdempotencyRecord struct {
	Key             string            `json:"key"`
	Status          IdempotencyStatus `json:"status"`
	RequestFingerprint string         `json:"request_fingerprint"`
	StoredResponse  json.RawMessage   `json:"stored_response,omitempty"`
	FirstSeenAt     time.Time         `json:"first_seen_at"`
}

// Store wraps a go-redis client with the key conventions from the
// decision-core spec: metrics:{campaign_id}:{hour_bucket} field maps,
// metrics:{campaign_id}:unique_users:{date_bucket} HyperLogLogs, and
// idempotency:{key} reservation records.
type Store struct {
	client *redis.Client
}

// Config controls the underlying go-redis client.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// New dials a Redis client using the given configuration.
func New(cfg Config) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})}
}

// Ping verifies connectivity, used by the /healthz handler.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying go-redis client so collaborators that need
// raw Redis primitives (internal/lock's SET NX PX leases) can share this
// Store's connection pool instead of dialing a second one.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func idempotencyKey(key string) string {
	return "idempotency:" + key
}

// ReserveInFlight atomically reserves an idempotency key as in_flight if, and
// only if, no record exists yet. Returns (existing, true, nil) when a record
// was already present — the caller must inspect its status (committed →
// replay; in_flight → IN_PROGRESS).
func (s *Store) ReserveInFlight(ctx context.Context, key, requestFingerprint string, inFlightTTL time.Duration) (*IdempotencyRecord, bool, error) {
	rec := IdempotencyRecord{
		Key:                key,
		Status:             StatusInFlight,
		RequestFingerprint: requestFingerprint,
		FirstSeenAt:        time.Now().UTC(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, false, errors.Internal("marshal idempotency record", err)
	}

	ok, err := s.client.SetNX(ctx, idempotencyKey(key), payload, inFlightTTL).Result()
	if err != nil {
		return nil, false, errors.TransientStoreError("redis.setnx.idempotency", err)
	}
	if ok {
		return &rec, false, nil
	}

	existing, err := s.GetIdempotency(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

// GetIdempotency fetches the current state of an idempotency record, or nil
// if none exists (expired or never reserved).
func (s *Store) GetIdempotency(ctx context.Context, key string) (*IdempotencyRecord, error) {
	raw, err := s.client.Get(ctx, idempotencyKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.TransientStoreError("redis.get.idempotency", err)
	}
	var rec IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errors.Internal("unmarshal idempotency record", err)
	}
	return &rec, nil
}

// CommitIdempotency transitions a record to committed with the canonical
// response, extending its TTL so later duplicate submissions replay it.
func (s *Store) CommitIdempotency(ctx context.Context, key string, response json.RawMessage, committedTTL time.Duration) error {
	rec, err := s.GetIdempotency(ctx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &IdempotencyRecord{Key: key, FirstSeenAt: time.Now().UTC()}
	}
	rec.Status = StatusCommitted
	rec.StoredResponse = response

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Internal("marshal idempotency record", err)
	}
	if err := s.client.Set(ctx, idempotencyKey(key), payload, committedTTL).Err(); err != nil {
		return errors.TransientStoreError("redis.set.idempotency", err)
	}
	return nil
}

// ReleaseInFlight removes an in_flight reservation without committing it,
// used when a draw aborts before any local state mutated (e.g. debit
// failure, config violation).
func (s *Store) ReleaseInFlight(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		return errors.TransientStoreError("redis.del.idempotency", err)
	}
	return nil
}

// HourlyCounters is the field-counter map persisted at
// metrics:{campaign_id}:{hour_bucket}.
type HourlyCounters struct {
	TotalDraws             int64 `redis:"total_draws"`
	TierCounts             map[string]int64
	BudgetTierCounts       map[string]int64
	PityTriggered          int64 `redis:"pity_triggered"`
	AntiEmptyTriggered     int64 `redis:"anti_empty_triggered"`
	AntiHighTriggered      int64 `redis:"anti_high_triggered"`
	LuckDebtTriggered      int64 `redis:"luck_debt_triggered"`
	TotalBudgetConsumed    int64 `redis:"total_budget_consumed"`
	TotalPrizeValuePoints  int64 `redis:"total_prize_value_points"`
}

const hourlyBucketTTL = 25 * time.Hour
const dailyHLLTTL = 49 * time.Hour

func hourlyKey(campaignID, hourBucket string) string {
	return fmt.Sprintf("metrics:%s:%s", campaignID, hourBucket)
}

func uniqueUsersKey(campaignID, dateBucket string) string {
	return fmt.Sprintf("metrics:%s:unique_users:%s", campaignID, dateBucket)
}

// RecordDraw atomically increments the hourly counters for a committed draw
// and adds the user to the campaign's daily unique-user HyperLogLog. All
// writes happen after the draw's transaction commits, per spec §4.5.
func (s *Store) RecordDraw(ctx context.Context, campaignID, hourBucket, dateBucket, userID, tier, budgetTier string, prizeValuePoints, costPoints int64, pityHit, antiEmptyHit, antiHighHit, luckDebtHit bool) error {
	key := hourlyKey(campaignID, hourBucket)

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "total_draws", 1)
	pipe.HIncrBy(ctx, key, "tier:"+tier, 1)
	pipe.HIncrBy(ctx, key, "budget_tier:"+budgetTier, 1)
	pipe.HIncrBy(ctx, key, "total_budget_consumed", costPoints)
	pipe.HIncrBy(ctx, key, "total_prize_value_points", prizeValuePoints)
	if pityHit {
		pipe.HIncrBy(ctx, key, "pity_triggered", 1)
	}
	if antiEmptyHit {
		pipe.HIncrBy(ctx, key, "anti_empty_triggered", 1)
	}
	if antiHighHit {
		pipe.HIncrBy(ctx, key, "anti_high_triggered", 1)
	}
	if luckDebtHit {
		pipe.HIncrBy(ctx, key, "luck_debt_triggered", 1)
	}
	pipe.Expire(ctx, key, hourlyBucketTTL)
	pipe.PFAdd(ctx, uniqueUsersKey(campaignID, dateBucket), userID)
	pipe.Expire(ctx, uniqueUsersKey(campaignID, dateBucket), dailyHLLTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.TransientStoreError("redis.pipeline.record_draw", err)
	}
	return nil
}

// HourlySnapshot reads back the raw field-counter map for one hour bucket,
// for the hourly-rollup job to fold into the relational hourly_metrics table.
func (s *Store) HourlySnapshot(ctx context.Context, campaignID, hourBucket string) (map[string]string, error) {
	result, err := s.client.HGetAll(ctx, hourlyKey(campaignID, hourBucket)).Result()
	if err != nil {
		return nil, errors.TransientStoreError("redis.hgetall.hourly", err)
	}
	return result, nil
}

// UniqueUserCount returns the HyperLogLog cardinality estimate for a
// campaign's daily bucket.
func (s *Store) UniqueUserCount(ctx context.Context, campaignID, dateBucket string) (int64, error) {
	count, err := s.client.PFCount(ctx, uniqueUsersKey(campaignID, dateBucket)).Result()
	if err != nil {
		return 0, errors.TransientStoreError("redis.pfcount", err)
	}
	return count, nil
}

// PressureSnapshot is the cached view of the budget/pressure controller's
// derived classification, refreshed by the metrics rollup job and read by
// every draw with a bounded-staleness guard (spec §5, ≤60s).
type PressureSnapshot struct {
	CampaignID   string    `json:"campaign_id"`
	BudgetTier   string    `json:"budget_tier"`
	PressureTier string    `json:"pressure_tier"`
	ComputedAt   time.Time `json:"computed_at"`
}

func pressureKey(campaignID string) string {
	return "pressure:" + campaignID
}

// SetPressureSnapshot stores the latest controller classification.
func (s *Store) SetPressureSnapshot(ctx context.Context, snap PressureSnapshot, ttl time.Duration) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return errors.Internal("marshal pressure snapshot", err)
	}
	if err := s.client.Set(ctx, pressureKey(snap.CampaignID), payload, ttl).Err(); err != nil {
		return errors.TransientStoreError("redis.set.pressure", err)
	}
	return nil
}

// GetPressureSnapshot returns the cached classification, or nil if absent or
// expired — callers fall back to computing it synchronously from the store.
func (s *Store) GetPressureSnapshot(ctx context.Context, campaignID string) (*PressureSnapshot, error) {
	raw, err := s.client.Get(ctx, pressureKey(campaignID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.TransientStoreError("redis.get.pressure", err)
	}
	var snap PressureSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, errors.Internal("unmarshal pressure snapshot", err)
	}
	return &snap, nil
}
