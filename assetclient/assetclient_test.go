package assetclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/r3e-network/lottery-core/internal/errors"
)

func TestMockClientDebitReplaysOnRepeatedIdemKey(t *testing.T) {
	m := NewMockClient(map[string]int64{"u1": 100})
	ctx := context.Background()

	first, err := m.Debit(ctx, "u1", 30, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.BalanceAfter != 70 {
		t.Fatalf("expected balance 70 after debit, got %d", first.BalanceAfter)
	}

	second, err := m.Debit(ctx, "u1", 30, "key-1")
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if second != first {
		t.Fatalf("expected replayed debit to return the identical result, got %+v vs %+v", second, first)
	}

	bal, _ := m.Balance(ctx, "u1")
	if bal != 70 {
		t.Fatalf("expected balance to be debited only once (70), got %d", bal)
	}
}

func TestMockClientDebitRejectsInsufficientBalance(t *testing.T) {
	m := NewMockClient(map[string]int64{"u1": 10})
	if _, err := m.Debit(context.Background(), "u1", 50, "key-1"); err == nil {
		t.Fatal("expected an error for insufficient balance")
	}
}

func TestMockClientFreezeThenSettleFromFrozen(t *testing.T) {
	m := NewMockClient(map[string]int64{"u1": 100})
	ctx := context.Background()

	if err := m.Freeze(ctx, "u1", 40, "freeze-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bal, _ := m.Balance(ctx, "u1")
	if bal != 60 {
		t.Fatalf("expected available balance 60 after freeze, got %d", bal)
	}

	if _, err := m.SettleFromFrozen(ctx, "u1", 40, "settle-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.frozen["u1"] != 0 {
		t.Fatalf("expected frozen balance to reach 0 after settlement, got %d", m.frozen["u1"])
	}
}

func TestMockClientUnfreezeReturnsFundsToAvailable(t *testing.T) {
	m := NewMockClient(map[string]int64{"u1": 100})
	ctx := context.Background()

	_ = m.Freeze(ctx, "u1", 40, "freeze-1")
	if err := m.Unfreeze(ctx, "u1", 40, "unfreeze-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bal, _ := m.Balance(ctx, "u1")
	if bal != 100 {
		t.Fatalf("expected full balance restored after unfreeze, got %d", bal)
	}
}

func TestMockClientFailDebitForcesConfiguredError(t *testing.T) {
	m := NewMockClient(map[string]int64{"u1": 100})
	m.FailDebit = context.DeadlineExceeded
	if _, err := m.Debit(context.Background(), "u1", 10, "key-1"); err != context.DeadlineExceeded {
		t.Fatalf("expected configured FailDebit error, got %v", err)
	}
}

func TestHTTPClientDebitPostsAndParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/debit" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req debitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.AccountID != "u1" || req.Amount != 25 {
			t.Fatalf("unexpected request body: %+v", req)
		}
		json.NewEncoder(w).Encode(debitResponse{BalanceBefore: 100, BalanceAfter: 75})
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := client.Debit(context.Background(), "u1", 25, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BalanceAfter != 75 {
		t.Fatalf("expected balance_after 75, got %d", result.BalanceAfter)
	}
}

func TestHTTPClientDebitWrapsNonOKStatusAsAssetDebitFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "ledger unavailable"}`))
	}))
	defer srv.Close()

	client, _ := New(Config{BaseURL: srv.URL})
	_, err := client.Debit(context.Background(), "u1", 25, "key-1")
	if err == nil {
		t.Fatal("expected an error on a non-OK debit response")
	}
	if errors.Code(err) != errors.ErrCodeAssetDebitFailed {
		t.Fatalf("expected %q, got %v", errors.ErrCodeAssetDebitFailed, err)
	}
}

func TestNewRejectsEmptyBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected an error when base URL is empty")
	}
}
