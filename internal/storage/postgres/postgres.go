// Package postgres provides a PostgreSQL-backed implementation of the storage.Store interface.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/calculator"
	"github.com/mmynk/cashledger/internal/models"
	"github.com/mmynk/cashledger/internal/storage"
)

var _ storage.Store = (*PostgresStore)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements storage.Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New connects to dsn and applies the schema.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn in a transaction, committing only when fn succeeds.
// Serialization failures and deadlocks surface as storage.ErrConflict.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{q: tx}); err != nil {
		return mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// Outstanding returns the pending debts of a debtor, oldest first.
func (s *PostgresStore) Outstanding(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error) {
	return selectDebts(ctx, s.pool, kind, debtorID, true, false)
}

// TotalOutstanding sums the remaining amount of the debtor's pending debts.
func (s *PostgresStore) TotalOutstanding(ctx context.Context, kind models.DebtorKind, debtorID string) (decimal.Decimal, error) {
	debts, err := s.Outstanding(ctx, kind, debtorID)
	if err != nil {
		return decimal.Zero, err
	}
	return calculator.TotalRemaining(debts), nil
}

// ListDebts returns every debt of a debtor, oldest first.
func (s *PostgresStore) ListDebts(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error) {
	return selectDebts(ctx, s.pool, kind, debtorID, false, false)
}

// ListSettlements returns the debtor's settlement log, newest first.
func (s *PostgresStore) ListSettlements(ctx context.Context, kind models.DebtorKind, debtorID string) ([]*models.SettlementTransaction, error) {
	return selectSettlements(ctx, s.pool, kind, debtorID)
}

// pgTx implements storage.Tx on a pgx transaction.
type pgTx struct {
	q querier
}

// mapError turns Postgres concurrency failures into storage.ErrConflict.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%s: %w", pgErr.Message, storage.ErrConflict)
		case "23514": // check_violation
			return fmt.Errorf("%s: %w", pgErr.Message, storage.ErrInvariant)
		}
	}
	return err
}
