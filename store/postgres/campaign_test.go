package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/r3e-network/lottery-core/internal/errors"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: sqlx.NewDb(db, "postgres")}, mock
}

func TestGetCampaignReturnsNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.|\n)*FROM campaigns").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := store.GetCampaign(context.Background(), "camp-1")
	if errors.Code(err) != errors.ErrCodeCampaignNotFound {
		t.Fatalf("expected CFG_CAMPAIGN_NOT_FOUND, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetCampaignReturnsDomainValue(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"id", "code", "status", "budget_mode", "total_budget", "remaining_budget",
		"guarantee_enabled", "guarantee_threshold_draws", "guarantee_prize_id",
		"active_pricing_id", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT (.|\n)*FROM campaigns").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"camp-1", "SUMMER", "active", "budget_pool", int64(1000), int64(400),
			true, int64(10), "grand", "pricing-1", now, now))

	got, err := store.GetCampaign(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Code != "SUMMER" || got.RemainingBudget != 400 || !got.Guarantee.Enabled {
		t.Fatalf("unexpected domain value: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetActivePricingReturnsNoActivePricing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.|\n)*FROM campaign_pricing_configs").
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := store.GetActivePricing(context.Background(), "camp-1")
	if errors.Code(err) != errors.ErrCodeNoActivePricing {
		t.Fatalf("expected CFG_NO_ACTIVE_PRICING, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestScheduleActivationRejectsPastEffectiveAt(t *testing.T) {
	store, _ := newMockStore(t)
	err := store.ScheduleActivation(context.Background(), "camp-1", 2, time.Now().Add(-time.Hour))
	if errors.Code(err) != errors.ErrCodeConfigViolation {
		t.Fatalf("expected CFG_CONFIG_VIOLATION for a past effective_at, got %v", err)
	}
}

func TestScheduleActivationNoMatchingRowIsConfigViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE campaign_pricing_configs SET status = 'scheduled'").
		WithArgs("camp-1", int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.ScheduleActivation(context.Background(), "camp-1", 2, time.Now().Add(time.Hour))
	if errors.Code(err) != errors.ErrCodeConfigViolation {
		t.Fatalf("expected CFG_CONFIG_VIOLATION when no row matches, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// ActivateVersion must archive the current active version and activate the
// target inside the same transaction (spec §8 scenario 6).
func TestActivateVersionArchivesThenActivates(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campaign_pricing_configs SET status = 'archived'").
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE campaign_pricing_configs SET status = 'active'").
		WithArgs("camp-1", int64(3), "op-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE campaigns SET active_pricing_id").
		WithArgs("camp-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		return store.ActivateVersion(context.Background(), tx, "camp-1", 3, "op-1")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestActivateVersionRollsBackWhenVersionMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campaign_pricing_configs SET status = 'archived'").
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE campaign_pricing_configs SET status = 'active'").
		WithArgs("camp-1", int64(99), "op-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		return store.ActivateVersion(context.Background(), tx, "camp-1", 99, "op-1")
	})
	if errors.Code(err) != errors.ErrCodeConfigViolation {
		t.Fatalf("expected CFG_CONFIG_VIOLATION for a missing version, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
