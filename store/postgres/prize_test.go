package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/r3e-network/lottery-core/domain/prize"
)

func TestListPrizesMapsStockAndCapPointers(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"id", "campaign_id", "name", "tier", "win_weight", "value_points", "stock_quantity", "per_day_cap", "status", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT (.|\n)*FROM prizes").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("p1", "camp-1", "Grand Prize", "T1", int64(1), int64(10000), int64(5), nil, "active", now, now).
			AddRow("p2", "camp-1", "Consolation", "T5", int64(100), int64(1), nil, int64(3), "active", now, now))

	got, err := store.ListPrizes(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 prizes, got %d", len(got))
	}
	if got[0].StockQuantity == nil || *got[0].StockQuantity != 5 {
		t.Fatalf("expected p1 stock pointer 5, got %+v", got[0].StockQuantity)
	}
	if got[0].PerDayCap != nil {
		t.Fatalf("expected p1 per-day cap nil, got %+v", got[0].PerDayCap)
	}
	if got[1].PerDayCap == nil || *got[1].PerDayCap != 3 {
		t.Fatalf("expected p2 per-day cap pointer 3, got %+v", got[1].PerDayCap)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDecrementStockSucceedsWhenStockAvailable(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE prizes SET stock_quantity").
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var ok bool
	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		ok, err = store.DecrementStock(context.Background(), tx, "p1")
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected decrement to succeed when stock is available")
	}
}

// DecrementStock's 0-rows-affected case must signal a demotion trigger, not
// an error (spec §4.6 step 5).
func TestDecrementStockReportsFalseWhenStockExhausted(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE prizes SET stock_quantity").
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var ok bool
	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		ok, err = store.DecrementStock(context.Background(), tx, "p1")
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected decrement to report false when no rows matched")
	}
}

func TestIncrementDayCapCounterAllowsWithinCap(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO prize_day_counters").
		WithArgs("p1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectCommit()

	var ok bool
	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		ok, err = store.IncrementDayCapCounter(context.Background(), tx, "p1", "2026-07-31", 5)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected the counter to stay within cap")
	}
}

func TestIncrementDayCapCounterRejectsOverCap(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO prize_day_counters").
		WithArgs("p1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(6)))
	mock.ExpectCommit()

	var ok bool
	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		ok, err = store.IncrementDayCapCounter(context.Background(), tx, "p1", "2026-07-31", 5)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected the counter to reject an over-cap increment")
	}
}

func TestIncrementDayCapCounterUnlimitedWhenCapZero(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO prize_day_counters").
		WithArgs("p1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(9999)))
	mock.ExpectCommit()

	var ok bool
	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		ok, err = store.IncrementDayCapCounter(context.Background(), tx, "p1", "2026-07-31", 0)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a zero cap to mean unlimited")
	}
}

func TestListDayCapCountersKeysByPrizeID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT c.prize_id, c.count").
		WithArgs("camp-1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows([]string{"prize_id", "count"}).
			AddRow("p1", int64(2)).
			AddRow("p2", int64(5)))

	got, err := store.ListDayCapCounters(context.Background(), "camp-1", "2026-07-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["p1"] != 2 || got["p2"] != 5 {
		t.Fatalf("expected p1=2 p2=5, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListDayCapCountersEmptyWhenNoCounters(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT c.prize_id, c.count").
		WithArgs("camp-1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows([]string{"prize_id", "count"}))

	got, err := store.ListDayCapCounters(context.Background(), "camp-1", "2026-07-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected an empty map, got %+v", got)
	}
}

func TestCountDrawsTodayDispatchesByScope(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM draws WHERE user_id").
		WithArgs("user-1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := store.CountDrawsToday(context.Background(), prize.QuotaScopeUser, "user-1", "2026-07-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountDrawsTodayGlobalScopeIgnoresScopeKey(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM draws WHERE day_bucket").
		WithArgs("2026-07-31").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(500)))

	n, err := store.CountDrawsToday(context.Background(), prize.QuotaScopeGlobal, "", "2026-07-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 500 {
		t.Fatalf("expected 500, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNullTimeConvertsZeroValueToInvalid(t *testing.T) {
	if got := nullTime(time.Time{}); got.Valid {
		t.Fatal("expected a zero time to convert to an invalid NullTime")
	}
	now := time.Now()
	got := nullTime(now)
	if !got.Valid || !got.Time.Equal(now) {
		t.Fatalf("expected a non-zero time to round-trip, got %+v", got)
	}
}
