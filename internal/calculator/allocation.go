package calculator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/models"
)

// Allocation is the result of distributing a payment over outstanding debts.
type Allocation struct {
	// Debts holds every input record in allocation order, with updated
	// remaining amounts and statuses.
	Debts []models.DebtRecord

	// Applied is the total absorbed by the debts.
	Applied decimal.Decimal

	// Leftover is the part of the payment no debt could absorb.
	Leftover decimal.Decimal

	changed map[string]bool
}

// Changed returns only the records whose remaining amount was reduced.
// This is the batch a store must persist.
func (a Allocation) Changed() []models.DebtRecord {
	var out []models.DebtRecord
	for _, d := range a.Debts {
		if a.changed[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// SortOldestFirst orders debts by DebtDate ascending, breaking ties by ID.
func SortOldestFirst(debts []models.DebtRecord) {
	sort.SliceStable(debts, func(i, j int) bool {
		if !debts[i].DebtDate.Equal(debts[j].DebtDate) {
			return debts[i].DebtDate.Before(debts[j].DebtDate)
		}
		return debts[i].ID < debts[j].ID
	})
}

// Allocate distributes payment across debts, oldest first (FIFO).
//
// For each debt it applies min(remaining payment, debt remaining), marks the
// debt paid when it reaches zero, and stops once either the payment or the
// debts run out. Paid records are never touched. The input slice is not
// modified.
func Allocate(payment decimal.Decimal, debts []models.DebtRecord) (Allocation, error) {
	if payment.IsNegative() {
		return Allocation{}, fmt.Errorf("payment amount cannot be negative: %s", payment)
	}

	sorted := make([]models.DebtRecord, len(debts))
	copy(sorted, debts)
	SortOldestFirst(sorted)

	result := Allocation{
		Debts:    sorted,
		Applied:  decimal.Zero,
		Leftover: payment,
		changed:  make(map[string]bool),
	}

	pool := payment
	for i := range sorted {
		if !pool.IsPositive() {
			break
		}
		debt := &sorted[i]
		if debt.IsPaid() || !debt.RemainingAmount.IsPositive() {
			continue
		}

		amount := decimal.Min(pool, debt.RemainingAmount)
		debt.RemainingAmount = debt.RemainingAmount.Sub(amount)
		if debt.RemainingAmount.IsZero() {
			debt.Status = models.DebtPaid
		}
		result.changed[debt.ID] = true

		pool = pool.Sub(amount)
		result.Applied = result.Applied.Add(amount)
	}
	result.Leftover = pool

	return result, nil
}

// TotalRemaining sums the remaining amount of all pending debts.
func TotalRemaining(debts []models.DebtRecord) decimal.Decimal {
	total := decimal.Zero
	for _, d := range debts {
		if d.Status == models.DebtPending {
			total = total.Add(d.RemainingAmount)
		}
	}
	return total
}
