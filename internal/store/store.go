// Package store persists sessions, knowledge units, and chat history in
// PostgreSQL.
//
// All methods are safe for concurrent use. Writers that need atomicity
// across statements run inside a transaction obtained from Begin and a
// Store bound to it via WithTx.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docassist/docassist/internal/log"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	// ErrNotFound reports that the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrNoTransactions reports that this Store cannot open transactions,
	// either because it is already bound to one or because it was built
	// without a pool.
	ErrNoTransactions = errors.New("store: transactions unavailable")
)

// Store reads and writes the metadata tables.
type Store struct {
	db     querier
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a Store backed by a connection pool.
func New(pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: pool, pool: pool, logger: logger}, nil
}

// newWithQuerier builds a Store around an arbitrary querier.
// Transactions are unavailable on the result. Used by tests.
func newWithQuerier(q querier, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: q, logger: logger}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, connURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Begin opens a transaction on the underlying pool.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if s.pool == nil {
		return nil, ErrNoTransactions
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return tx, nil
}

// WithTx returns a Store whose statements run on tx. The returned Store
// cannot open further transactions.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx, logger: s.logger}
}

// Rollback rolls tx back, ignoring the error a committed transaction
// reports. Meant for deferred use.
func (s *Store) Rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.logger.Debug("transaction rollback", "error", err)
	}
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `SELECT 1`); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// AcquireDocLock serializes writers for one document. The lock is held
// until the surrounding transaction commits or rolls back, so it must be
// called on a Store bound to a transaction.
func (s *Store) AcquireDocLock(ctx context.Context, docID string) error {
	if _, err := s.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, docID); err != nil {
		return fmt.Errorf("acquiring advisory lock: %w", err)
	}
	return nil
}
