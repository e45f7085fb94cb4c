// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/cashledger/internal/calculator"
	"github.com/mmynk/cashledger/internal/models"
	"github.com/mmynk/cashledger/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer. One connection serializes settlements
	// instead of failing them with SQLITE_BUSY on lock upgrade.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn in a transaction, committing only when fn succeeds.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Outstanding returns the pending debts of a debtor, oldest first.
func (s *SQLiteStore) Outstanding(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error) {
	return selectDebts(ctx, s.db, kind, debtorID, true)
}

// TotalOutstanding sums the pending remaining amounts of a debtor.
// The sum is done in Go on exact decimals rather than with SQL SUM over TEXT.
func (s *SQLiteStore) TotalOutstanding(ctx context.Context, kind models.DebtorKind, debtorID string) (decimal.Decimal, error) {
	debts, err := selectDebts(ctx, s.db, kind, debtorID, true)
	if err != nil {
		return decimal.Zero, err
	}
	return calculator.TotalRemaining(debts), nil
}

// ListDebts returns all debts of a debtor, paid ones included.
func (s *SQLiteStore) ListDebts(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error) {
	return selectDebts(ctx, s.db, kind, debtorID, false)
}

// ListSettlements returns the settlement log of a debtor, newest first.
func (s *SQLiteStore) ListSettlements(ctx context.Context, kind models.DebtorKind, debtorID string) ([]*models.SettlementTransaction, error) {
	return selectSettlements(ctx, s.db, kind, debtorID)
}

// sqliteTx implements storage.Tx on top of a *sql.Tx.
type sqliteTx struct {
	q querier
}

var _ storage.Tx = (*sqliteTx)(nil)
