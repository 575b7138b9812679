// Package assetclient talks to the external points-ledger service the core
// treats as a collaborator, never as owned state (spec §1 Non-goals:
// "Generic points ledger mechanics ... treated as an external asset
// service"). Grounded on infrastructure/gasbank/client/client.go's shape:
// a thin HTTP client over a handful of idempotency-keyed POST endpoints.
package assetclient

import (
	"context"
	"time"
)

// DebitResult is the balance movement an asset debit reports.
type DebitResult struct {
	BalanceBefore int64
	BalanceAfter  int64
}

// IssueReceipt confirms a prize item was granted.
type IssueReceipt struct {
	ReceiptID string
	IssuedAt  time.Time
}

// Client is the collaborator contract from spec §6: debit/issue are on the
// Executor's hot path; freeze/unfreeze/settle_from_frozen exist for
// adjacent flows this core never calls directly, but the interface still
// names them so a single asset-service implementation can serve both.
type Client interface {
	Debit(ctx context.Context, accountID string, amount int64, idemKey string) (DebitResult, error)
	Issue(ctx context.Context, accountID, itemRef, idemKey string) (IssueReceipt, error)
	Freeze(ctx context.Context, accountID string, amount int64, idemKey string) error
	Unfreeze(ctx context.Context, accountID string, amount int64, idemKey string) error
	SettleFromFrozen(ctx context.Context, accountID string, amount int64, idemKey string) (DebitResult, error)
	Balance(ctx context.Context, accountID string) (int64, error)
}
