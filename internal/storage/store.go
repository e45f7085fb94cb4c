// Package storage provides abstractions for persistent ledger storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/models"
)

var (
	// ErrConflict means a row changed underneath the caller: a stale debt
	// version, a debt paid by someone else, or an order already settled.
	// Callers should re-read and retry.
	ErrConflict = errors.New("concurrent ledger update")

	// ErrInvariant means a write would break a ledger invariant, such as
	// raising a remaining amount or reopening a paid debt.
	ErrInvariant = errors.New("ledger invariant violated")

	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// Store defines the ledger storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the settlement layer.
type Store interface {
	// InTx runs fn inside a single database transaction.
	// The transaction commits only if fn returns nil; any error rolls back
	// every write made through tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Outstanding returns the pending debts of a debtor, oldest first.
	Outstanding(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error)

	// TotalOutstanding sums the remaining amount of all pending debts of a debtor.
	TotalOutstanding(ctx context.Context, kind models.DebtorKind, debtorID string) (decimal.Decimal, error)

	// ListDebts returns every debt record of a debtor, paid ones included, oldest first.
	ListDebts(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error)

	// ListSettlements returns the settlement log of a debtor, newest first.
	ListSettlements(ctx context.Context, kind models.DebtorKind, debtorID string) ([]*models.SettlementTransaction, error)

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of operations available inside Store.InTx.
type Tx interface {
	// GetOutstanding returns the pending debts of a debtor ordered by
	// debt date then ID, the order the allocation engine expects.
	GetOutstanding(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error)

	// ApplyAllocation persists new remaining amounts and statuses.
	// Each record must carry the version it was read at. A record that
	// changed since then, or a write that would raise the remaining amount
	// or reopen a paid debt, fails the whole batch.
	ApplyAllocation(ctx context.Context, kind models.DebtorKind, updated []models.DebtRecord) error

	// CreateDebt inserts a new pending debt with remaining = amount.
	CreateDebt(ctx context.Context, kind models.DebtorKind, debtorID string, date time.Time, amount decimal.Decimal) (models.DebtRecord, error)

	// RecordSettlement appends a settlement transaction. ID and
	// TransactionDate are filled in when empty.
	RecordSettlement(ctx context.Context, st *models.SettlementTransaction) error

	// UnsettledOrders returns the orders of a debtor delivered within period
	// that have not been settled for that debtor kind yet. Courier queries
	// only return cash orders. An open end is taken as the store's current
	// time, so callers with their own clock should pass a closed period.
	UnsettledOrders(ctx context.Context, kind models.DebtorKind, debtorID string, period models.Period) ([]models.Order, error)

	// MarkOrdersSettled stamps orders as settled for a debtor kind.
	// An order can be settled at most once per kind; if any order was
	// already settled the call fails with ErrConflict.
	MarkOrdersSettled(ctx context.Context, kind models.DebtorKind, orderIDs []string, at time.Time) error
}

// CheckTransition validates a debt update against the record as it was read.
// Both backends call it before issuing the guarded UPDATE.
func CheckTransition(d models.DebtRecord) error {
	if d.RemainingAmount.IsNegative() {
		return ErrInvariant
	}
	if d.RemainingAmount.GreaterThan(d.OriginalAmount) {
		return ErrInvariant
	}
	if d.Status == models.DebtPaid && !d.RemainingAmount.IsZero() {
		return ErrInvariant
	}
	if d.Status == models.DebtPending && d.RemainingAmount.IsZero() {
		return ErrInvariant
	}
	return nil
}
