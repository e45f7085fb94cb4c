package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/models"
)

// Figures are the numbers produced by reconciling one settlement period.
type Figures struct {
	PeriodTotal decimal.Decimal // orders in the period
	OldDebt     decimal.Decimal // outstanding before the settlement
	Expected    decimal.Decimal // PeriodTotal + OldDebt
	Received    decimal.Decimal
	Difference  decimal.Decimal // Expected - Received; negative is a surplus
	Applied     decimal.Decimal // absorbed by old debts
	NewDebt     decimal.Decimal // shortfall booked as a new debt record

	Classification models.Classification
	Allocation     Allocation
}

// Classify maps a difference to shortfall, surplus or exact.
func Classify(difference decimal.Decimal) models.Classification {
	switch {
	case difference.IsNegative():
		return models.ClassificationSurplus
	case difference.IsPositive():
		return models.ClassificationShortfall
	default:
		return models.ClassificationExact
	}
}

// Reconcile computes the figures for a settlement of periodTotal against received.
//
// Old debts are only reduced by what was received beyond the period's own
// total. When received <= periodTotal the old debts stay as they are and the
// whole difference (unpaid period balance plus all old debt) becomes the new
// debt amount.
func Reconcile(periodTotal, received decimal.Decimal, outstanding []models.DebtRecord) (Figures, error) {
	if periodTotal.IsNegative() {
		return Figures{}, fmt.Errorf("period total cannot be negative: %s", periodTotal)
	}
	if received.IsNegative() {
		return Figures{}, fmt.Errorf("received amount cannot be negative: %s", received)
	}

	f := Figures{
		PeriodTotal: periodTotal,
		OldDebt:     TotalRemaining(outstanding),
		Received:    received,
	}
	f.Expected = f.PeriodTotal.Add(f.OldDebt)
	f.Difference = f.Expected.Sub(received)
	f.Classification = Classify(f.Difference)

	surplus := decimal.Zero
	if received.GreaterThan(periodTotal) {
		surplus = received.Sub(periodTotal)
	}

	alloc, err := Allocate(surplus, outstanding)
	if err != nil {
		return Figures{}, err
	}
	f.Allocation = alloc
	f.Applied = alloc.Applied

	f.NewDebt = decimal.Max(decimal.Zero, f.Difference.Sub(f.Applied))

	return f, nil
}
