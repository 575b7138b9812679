// Package postgres is the relational store for the decision core's
// authoritative entities: campaigns, pricing configs, prizes, tier/quota
// rules, draws, draw decisions, experience states, and the outbox. Redis
// (internal/redisstore) holds only hot, reconcilable derived state; nothing
// here depends on Redis for correctness.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/r3e-network/lottery-core/internal/errors"
)

// Store wraps a *sqlx.DB with the decision core's query surface. Every
// mutating operation that needs cross-row atomicity takes an explicit
// *sql.Tx (spec §9: "pass an explicit transaction handle through the
// Executor" rather than relying on an implicit ORM-scoped transaction).
type Store struct {
	db *sqlx.DB
}

// Config controls connection pooling.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open establishes a pooled Postgres connection and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying *sqlx.DB, for the migration runner and
// /healthz check.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// WithTx runs fn inside a new transaction, committing on success and
// rolling back on error or panic. Every Executor step in store/postgres
// that mutates state takes a *sql.Tx parameter rather than calling this
// itself, so the Executor controls the transaction boundary across all of
// debit/stock-decrement/insert/apply-diff/issue.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.TransientStoreError("begin_tx", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}
