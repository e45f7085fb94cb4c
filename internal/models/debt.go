package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for debt dates.
const DateLayout = "2006-01-02"

// DebtorKind identifies which ledger a debtor belongs to.
type DebtorKind string

const (
	DebtorCourier    DebtorKind = "courier"
	DebtorRestaurant DebtorKind = "restaurant"
)

// Valid reports whether k is a known debtor kind.
func (k DebtorKind) Valid() bool {
	return k == DebtorCourier || k == DebtorRestaurant
}

// ParseDebtorKind converts a user-supplied string into a DebtorKind.
func ParseDebtorKind(s string) (DebtorKind, error) {
	k := DebtorKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown debtor kind %q", s)
	}
	return k, nil
}

// DebtStatus is the lifecycle state of a debt record.
// The only transition is pending -> paid.
type DebtStatus string

const (
	DebtPending DebtStatus = "pending"
	DebtPaid    DebtStatus = "paid"
)

// DebtRecord is one outstanding (or settled) obligation of a debtor.
type DebtRecord struct {
	// ID is the unique identifier for the record (UUID format).
	ID string

	// DebtorKind selects the ledger (courier or restaurant).
	DebtorKind DebtorKind

	// DebtorID is the courier or restaurant identifier.
	DebtorID string

	// DebtDate is the calendar day the debt originated, at UTC midnight.
	// Allocation pays the oldest DebtDate first.
	DebtDate time.Time

	// OriginalAmount is the amount at creation. Never changes.
	OriginalAmount decimal.Decimal

	// RemainingAmount is what is still owed.
	// Invariant: 0 <= RemainingAmount <= OriginalAmount, never increases.
	RemainingAmount decimal.Decimal

	// Status is pending while RemainingAmount > 0 and paid at zero.
	Status DebtStatus

	// Version is bumped on every write and guards concurrent settlements.
	Version int64

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// IsPaid reports whether the record has been fully settled.
func (d DebtRecord) IsPaid() bool {
	return d.Status == DebtPaid
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, dd := t.UTC().Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

// Round normalises a money amount to two decimal places.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}
