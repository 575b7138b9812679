// Package outbox implements the durable at-least-once retry path for prize
// issuance that failed after a draw's debit already committed (spec §4.6
// step 8, §7 ASSET_ISSUE_DEFERRED). An entry here never blocks the draw
// response: the draw commits immediately and a background resolver drives
// issuance to completion using the same idempotency key, so the asset
// service's own dedup guarantees no double-grant.
package outbox

import (
	"time"
)

// EntryStatus mirrors the lifecycle a gas-bank settlement transaction goes
// through, narrowed to what prize issuance retry actually needs.
type EntryStatus string

const (
	StatusPending    EntryStatus = "pending"
	StatusDispatched EntryStatus = "dispatched"
	StatusCompleted  EntryStatus = "completed"
	StatusDeadLetter EntryStatus = "dead_letter"
)

// Entry is one durable prize-issuance retry record.
type Entry struct {
	ID             string
	DrawID         string
	UserID         string
	CampaignID     string
	PrizeID        string
	IdempotencyKey string
	Status         EntryStatus

	ResolverAttempt int
	ResolverError   string
	LastAttemptAt   time.Time
	NextAttemptAt   time.Time

	DeadLetterReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettlementAttempt records one resolver attempt against an entry, kept
// purely for operator observability.
type SettlementAttempt struct {
	EntryID     string
	Attempt     int
	StartedAt   time.Time
	CompletedAt time.Time
	Latency     time.Duration
	Status      string
	Error       string
}

// DeadLetter captures an issuance that exhausted its retry budget and needs
// manual operator intervention.
type DeadLetter struct {
	EntryID       string
	CampaignID    string
	UserID        string
	Reason        string
	LastError     string
	LastAttemptAt time.Time
	Retries       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RetryPolicy controls the resolver's backoff and dead-letter threshold.
type RetryPolicy struct {
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// DefaultRetryPolicy matches the gas-bank settlement resolver's defaults:
// bounded exponential backoff, dead-letter after 8 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 8,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  10 * time.Minute,
	}
}

// NextBackoff computes the delay before the next attempt, doubling from
// BaseBackoff and capping at MaxBackoff.
func (p RetryPolicy) NextBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return p.BaseBackoff
	}
	backoff := p.BaseBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// ShouldDeadLetter reports whether an entry has exhausted its retry budget.
func (p RetryPolicy) ShouldDeadLetter(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Store is the persistence contract the resolver and the store/postgres
// implementation share.
type Store interface {
	Enqueue(entry Entry) (Entry, error)
	ClaimDue(limit int, now time.Time) ([]Entry, error)
	MarkCompleted(entryID string) error
	MarkRetry(entryID string, nextAttemptAt time.Time, resolverError string) error
	MarkDeadLetter(entryID string, reason, lastError string) error
	RecordAttempt(attempt SettlementAttempt) error
	ListDeadLetters(campaignID string, limit int) ([]DeadLetter, error)
}
