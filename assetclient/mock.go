package assetclient

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient is an in-memory Client for pipeline/executor tests. Debit and
// Issue are keyed by idempotency key, so repeated calls with the same key
// replay the first result rather than double-applying; Freeze, Unfreeze and
// SettleFromFrozen apply on every call.
type MockClient struct {
	mu sync.Mutex

	balances map[string]int64
	frozen   map[string]int64
	debits   map[string]DebitResult
	issues   map[string]IssueReceipt

	// FailDebit, if set, is returned verbatim by Debit for any key not
	// already recorded — lets a test force the "asset debit failed" path.
	FailDebit error
	// FailIssue, if set, is returned by Issue for any key not already
	// recorded — lets a test force the deferred-issuance outbox path.
	FailIssue error
}

// NewMockClient constructs a MockClient with the given starting balances.
func NewMockClient(balances map[string]int64) *MockClient {
	b := make(map[string]int64, len(balances))
	for k, v := range balances {
		b[k] = v
	}
	return &MockClient{
		balances: b,
		frozen:   make(map[string]int64),
		debits:   make(map[string]DebitResult),
		issues:   make(map[string]IssueReceipt),
	}
}

// Debit implements Client.
func (m *MockClient) Debit(_ context.Context, accountID string, amount int64, idemKey string) (DebitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.debits[idemKey]; ok {
		return r, nil
	}
	if m.FailDebit != nil {
		return DebitResult{}, m.FailDebit
	}

	before := m.balances[accountID]
	if before < amount {
		return DebitResult{}, fmt.Errorf("assetclient mock: insufficient balance for %s", accountID)
	}
	after := before - amount
	m.balances[accountID] = after

	result := DebitResult{BalanceBefore: before, BalanceAfter: after}
	m.debits[idemKey] = result
	return result, nil
}

// Issue implements Client.
func (m *MockClient) Issue(_ context.Context, accountID, itemRef, idemKey string) (IssueReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.issues[idemKey]; ok {
		return r, nil
	}
	if m.FailIssue != nil {
		return IssueReceipt{}, m.FailIssue
	}

	receipt := IssueReceipt{ReceiptID: "mock-receipt:" + idemKey, IssuedAt: time.Unix(0, 0).UTC()}
	m.issues[idemKey] = receipt
	return receipt, nil
}

// Freeze implements Client.
func (m *MockClient) Freeze(_ context.Context, accountID string, amount int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[accountID] < amount {
		return fmt.Errorf("assetclient mock: insufficient balance to freeze for %s", accountID)
	}
	m.balances[accountID] -= amount
	m.frozen[accountID] += amount
	return nil
}

// Unfreeze implements Client.
func (m *MockClient) Unfreeze(_ context.Context, accountID string, amount int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen[accountID] < amount {
		return fmt.Errorf("assetclient mock: insufficient frozen balance for %s", accountID)
	}
	m.frozen[accountID] -= amount
	m.balances[accountID] += amount
	return nil
}

// SettleFromFrozen implements Client.
func (m *MockClient) SettleFromFrozen(_ context.Context, accountID string, amount int64, _ string) (DebitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen[accountID] < amount {
		return DebitResult{}, fmt.Errorf("assetclient mock: insufficient frozen balance for %s", accountID)
	}
	before := m.balances[accountID]
	m.frozen[accountID] -= amount
	return DebitResult{BalanceBefore: before, BalanceAfter: before}, nil
}

// Balance implements Client.
func (m *MockClient) Balance(_ context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID], nil
}
