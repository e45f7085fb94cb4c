package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/storage"
)

// ValidationError reports bad input. Nothing was written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError means the ledger kept changing under a settlement even
// after a retry. The caller may try again.
type ConflictError struct {
	Op string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: ledger was modified concurrently, please retry", e.Op)
}

// Unwrap lets errors.Is(err, storage.ErrConflict) match.
func (e *ConflictError) Unwrap() error {
	return storage.ErrConflict
}

// PersistenceError wraps a storage failure. The transaction was rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// classify wraps a store error for op, keeping validation errors raised
// inside the transaction as they are.
func classify(op string, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	var cerr *ConflictError
	if errors.As(err, &cerr) {
		return cerr
	}
	return &PersistenceError{Op: op, Err: err}
}

// ParseAmount parses a decimal money string such as "1000.00".
// Negative values, more than two decimal places and non-numeric input are rejected.
func ParseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, invalid(field, "amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid(field, "%q is not a valid amount", s)
	}
	if d.IsNegative() {
		return decimal.Zero, invalid(field, "amount cannot be negative")
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, invalid(field, "amount has more than two decimal places")
	}
	return d, nil
}
