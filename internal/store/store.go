// Package store is the generic table/row adapter over PostgreSQL that
// backs every MoonRamp entity (spec §1: "the relational store itself...
// accessed through a generic table/row interface"). It owns connection
// lifecycle, transaction helpers, and the row-lock primitives that
// serialize invoice issuance and sale capture (spec §5).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/moonramp/moonramp/internal/merr"
	"github.com/moonramp/moonramp/internal/metrics"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, letting every query
// method run either standalone or inside a caller-managed transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store wraps the connection pool and provides transaction scoping.
type Store struct {
	db *sql.DB
}

// New opens and pings a PostgreSQL connection pool at dsn.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, merr.Wrap(merr.StoreFailure, "open database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, merr.Wrap(merr.StoreFailure, "ping database", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open *sql.DB (a sqlmock connection in tests,
// or a pool opened by a caller that needs its own sql.Open options).
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool for callers (e.g. goose migrations) that
// need the raw *sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the connection pool is reachable, for health.StoreCheck.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx runs fn inside a transaction, committing on a nil return and rolling
// back otherwise. fn receives the *sql.Tx as a Querier so lock/insert
// helpers compose across the transaction boundary.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merr.Wrap(merr.StoreFailure, "begin transaction", err)
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return merr.Wrap(merr.StoreFailure, fmt.Sprintf("rollback after error (%v)", err), rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return merr.Wrap(merr.StoreFailure, "commit transaction", err)
	}
	return nil
}

// observeLockWait records how long a row-lock acquisition took; callers
// defer it right before issuing the `FOR UPDATE` query (spec §4.10 "store
// lock wait time").
func observeLockWait(table string, start time.Time) {
	metrics.StoreLockWaitDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())
}

func wrapNotFound(err error, what string) error {
	if err == sql.ErrNoRows {
		return merr.New(merr.NotFound, what)
	}
	return merr.Wrap(merr.StoreFailure, what, err)
}
