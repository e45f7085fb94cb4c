// Package settlement runs the ledger workflows: courier end-of-day cash
// reconciliation, restaurant invoice settlement and direct debt payments.
//
// Every workflow runs inside one storage transaction. A concurrent update
// reported by the store is retried once against freshly read state.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/calculator"
	"github.com/mmynk/cashledger/internal/metrics"
	"github.com/mmynk/cashledger/internal/models"
	"github.com/mmynk/cashledger/internal/storage"
)

// maxAttempts bounds how often a transaction runs when the store reports conflicts.
const maxAttempts = 2

// Request is the input of a settlement run.
type Request struct {
	DebtorID string
	// Amount is the cash received from a courier or paid to a restaurant.
	Amount decimal.Decimal
	// Period selects the orders; the zero value covers every unsettled order up to now.
	Period models.Period
	Notes  string
}

// Result reports the figures of a completed settlement run.
type Result struct {
	SettlementID string
	DebtorKind   models.DebtorKind
	DebtorID     string

	PeriodTotal    decimal.Decimal
	OldDebt        decimal.Decimal
	ExpectedTotal  decimal.Decimal
	AmountReceived decimal.Decimal
	Difference     decimal.Decimal
	AppliedToOld   decimal.Decimal
	NewDebt        decimal.Decimal
	Classification models.Classification

	// NewDebtID is empty when no debt was created.
	NewDebtID  string
	OrderCount int
}

// PaymentResult reports a direct debt payment.
type PaymentResult struct {
	SettlementID  string
	PaidAmount    decimal.Decimal
	RemainingDebt decimal.Decimal
}

// Engine executes settlement workflows against a ledger store.
type Engine struct {
	store   storage.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEngine creates an Engine. m may be nil.
func NewEngine(store storage.Store, m *metrics.Metrics) *Engine {
	return &Engine{store: store, metrics: m, now: time.Now}
}

// RunEndOfDay reconciles the cash a courier hands over against their
// unsettled cash orders and outstanding debts.
func (e *Engine) RunEndOfDay(ctx context.Context, op Operator, req Request) (*Result, error) {
	return e.Run(ctx, CourierEndOfDay, op, req)
}

// RunInvoice settles a payment to a restaurant against its unsettled orders.
// Paying more than the expected total is rejected.
func (e *Engine) RunInvoice(ctx context.Context, op Operator, req Request) (*Result, error) {
	return e.Run(ctx, RestaurantInvoice, op, req)
}

// Run executes one settlement under policy.
//
// The received amount first covers the period's orders. Only what exceeds
// the period total is allocated to old debts, oldest first. Whatever is
// still missing is booked as a new debt dated today. The period's orders are
// marked settled and a settlement transaction is appended, all in one
// transaction.
func (e *Engine) Run(ctx context.Context, policy Policy, op Operator, req Request) (*Result, error) {
	label := string(policy.SettlementKind)
	opName := "run " + label + " settlement"

	if err := validateRun(policy, op, req); err != nil {
		e.metrics.IncSettlement(label, "rejected")
		return nil, err
	}
	received := models.Round(req.Amount)

	var result *Result
	err := e.inTx(ctx, opName, label, func(tx storage.Tx) error {
		now := e.now()
		period := req.Period.Until(now)

		outstanding, err := tx.GetOutstanding(ctx, policy.Kind, req.DebtorID)
		if err != nil {
			return err
		}
		orders, err := tx.UnsettledOrders(ctx, policy.Kind, req.DebtorID, period)
		if err != nil {
			return err
		}

		fig, err := calculator.Reconcile(sumOrders(orders), received, outstanding)
		if err != nil {
			return invalid("amount", "%v", err)
		}
		if !policy.AllowsSurplus && fig.Classification == models.ClassificationSurplus {
			return invalid("amount", "payment %s exceeds expected total %s", received.StringFixed(2), fig.Expected.StringFixed(2))
		}

		if changed := fig.Allocation.Changed(); len(changed) > 0 {
			if err := tx.ApplyAllocation(ctx, policy.Kind, changed); err != nil {
				return err
			}
		}

		var newDebtID string
		if fig.NewDebt.IsPositive() {
			debt, err := tx.CreateDebt(ctx, policy.Kind, req.DebtorID, now, fig.NewDebt)
			if err != nil {
				return err
			}
			newDebtID = debt.ID
		}

		ids := make([]string, len(orders))
		for i, o := range orders {
			ids[i] = o.ID
		}
		if err := tx.MarkOrdersSettled(ctx, policy.Kind, ids, now); err != nil {
			return err
		}

		from, to := period.Bounds(now)
		st := &models.SettlementTransaction{
			DebtorKind:              policy.Kind,
			DebtorID:                req.DebtorID,
			Kind:                    policy.SettlementKind,
			TransactionDate:         now.Unix(),
			ExpectedTotal:           fig.Expected,
			AmountReceived:          received,
			ResultingNewDebt:        fig.NewDebt,
			AmountAppliedToOldDebts: fig.Applied,
			OperatorID:              op.ID,
			PeriodStart:             from,
			PeriodEnd:               to,
			OrderCount:              len(orders),
			Notes:                   req.Notes,
		}
		if err := tx.RecordSettlement(ctx, st); err != nil {
			return err
		}

		result = &Result{
			SettlementID:   st.ID,
			DebtorKind:     policy.Kind,
			DebtorID:       req.DebtorID,
			PeriodTotal:    fig.PeriodTotal,
			OldDebt:        fig.OldDebt,
			ExpectedTotal:  fig.Expected,
			AmountReceived: received,
			Difference:     fig.Difference,
			AppliedToOld:   fig.Applied,
			NewDebt:        fig.NewDebt,
			Classification: fig.Classification,
			NewDebtID:      newDebtID,
			OrderCount:     len(orders),
		}
		return nil
	})
	if err != nil {
		e.metrics.IncSettlement(label, outcome(err))
		return nil, err
	}

	e.metrics.IncSettlement(label, string(result.Classification))
	e.metrics.ObserveAmounts(label, result.AppliedToOld.InexactFloat64(), result.NewDebt.InexactFloat64())

	slog.Info("Settlement recorded",
		"kind", label,
		"debtor_id", req.DebtorID,
		"operator_id", op.ID,
		"expected", result.ExpectedTotal.StringFixed(2),
		"received", result.AmountReceived.StringFixed(2),
		"classification", result.Classification,
		"applied", result.AppliedToOld.StringFixed(2),
		"new_debt", result.NewDebt.StringFixed(2),
		"orders", result.OrderCount,
	)

	return result, nil
}

// PayDebt applies a payment made outside any settlement period directly to
// the debtor's outstanding debts, oldest first. Paying more than is owed is
// rejected without changing anything.
func (e *Engine) PayDebt(ctx context.Context, op Operator, kind models.DebtorKind, debtorID string, amount decimal.Decimal) (*PaymentResult, error) {
	label := string(models.SettlementDirectPayment)

	if err := validateDebtor(kind, debtorID); err != nil {
		e.metrics.IncSettlement(label, "rejected")
		return nil, err
	}
	if op.ID == "" {
		e.metrics.IncSettlement(label, "rejected")
		return nil, invalid("operator", "operator is required")
	}
	if !amount.IsPositive() {
		e.metrics.IncSettlement(label, "rejected")
		return nil, invalid("amount", "amount must be greater than zero")
	}
	amount = models.Round(amount)

	var result *PaymentResult
	err := e.inTx(ctx, "pay debt", label, func(tx storage.Tx) error {
		outstanding, err := tx.GetOutstanding(ctx, kind, debtorID)
		if err != nil {
			return err
		}
		total := calculator.TotalRemaining(outstanding)
		if amount.GreaterThan(total) {
			return invalid("amount", "payment %s exceeds outstanding debt %s", amount.StringFixed(2), total.StringFixed(2))
		}

		alloc, err := calculator.Allocate(amount, outstanding)
		if err != nil {
			return invalid("amount", "%v", err)
		}
		if err := tx.ApplyAllocation(ctx, kind, alloc.Changed()); err != nil {
			return err
		}

		st := &models.SettlementTransaction{
			DebtorKind:              kind,
			DebtorID:                debtorID,
			Kind:                    models.SettlementDirectPayment,
			TransactionDate:         e.now().Unix(),
			ExpectedTotal:           total,
			AmountReceived:          amount,
			ResultingNewDebt:        decimal.Zero,
			AmountAppliedToOldDebts: alloc.Applied,
			OperatorID:              op.ID,
		}
		if err := tx.RecordSettlement(ctx, st); err != nil {
			return err
		}

		result = &PaymentResult{
			SettlementID:  st.ID,
			PaidAmount:    alloc.Applied,
			RemainingDebt: total.Sub(alloc.Applied),
		}
		return nil
	})
	if err != nil {
		e.metrics.IncSettlement(label, outcome(err))
		return nil, err
	}

	e.metrics.IncSettlement(label, "paid")
	e.metrics.ObserveAmounts(label, result.PaidAmount.InexactFloat64(), 0)

	slog.Info("Debt payment recorded",
		"debtor_kind", kind,
		"debtor_id", debtorID,
		"operator_id", op.ID,
		"paid", result.PaidAmount.StringFixed(2),
		"remaining", result.RemainingDebt.StringFixed(2),
	)

	return result, nil
}

// Outstanding returns the pending debts of a debtor, oldest first.
func (e *Engine) Outstanding(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error) {
	if err := validateDebtor(kind, debtorID); err != nil {
		return nil, err
	}
	debts, err := e.store.Outstanding(ctx, kind, debtorID)
	if err != nil {
		return nil, &PersistenceError{Op: "list outstanding debts", Err: err}
	}
	return debts, nil
}

// TotalOutstanding returns the sum still owed by a debtor.
func (e *Engine) TotalOutstanding(ctx context.Context, kind models.DebtorKind, debtorID string) (decimal.Decimal, error) {
	if err := validateDebtor(kind, debtorID); err != nil {
		return decimal.Zero, err
	}
	total, err := e.store.TotalOutstanding(ctx, kind, debtorID)
	if err != nil {
		return decimal.Zero, &PersistenceError{Op: "sum outstanding debts", Err: err}
	}
	return total, nil
}

// Debts returns every debt record of a debtor, paid ones included.
func (e *Engine) Debts(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error) {
	if err := validateDebtor(kind, debtorID); err != nil {
		return nil, err
	}
	debts, err := e.store.ListDebts(ctx, kind, debtorID)
	if err != nil {
		return nil, &PersistenceError{Op: "list debts", Err: err}
	}
	return debts, nil
}

// History returns the settlement transactions of a debtor, newest first.
func (e *Engine) History(ctx context.Context, kind models.DebtorKind, debtorID string) ([]*models.SettlementTransaction, error) {
	if err := validateDebtor(kind, debtorID); err != nil {
		return nil, err
	}
	history, err := e.store.ListSettlements(ctx, kind, debtorID)
	if err != nil {
		return nil, &PersistenceError{Op: "list settlements", Err: err}
	}
	return history, nil
}

// inTx runs fn in a store transaction, retrying once when the store reports
// a concurrent update.
func (e *Engine) inTx(ctx context.Context, op, label string, fn func(tx storage.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := e.store.InTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return classify(op, err)
		}
		if attempt >= maxAttempts {
			slog.Warn("Settlement conflict persisted", "op", op, "attempts", attempt, "error", err)
			return &ConflictError{Op: op}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return classify(op, ctxErr)
		}

		e.metrics.IncConflictRetry(label)
		slog.Debug("Retrying after concurrent ledger update", "op", op, "error", err)
	}
}

func validateRun(policy Policy, op Operator, req Request) error {
	if err := validateDebtor(policy.Kind, req.DebtorID); err != nil {
		return err
	}
	if op.ID == "" {
		return invalid("operator", "operator is required")
	}
	if req.Amount.IsNegative() {
		return invalid("amount", "amount cannot be negative")
	}
	if err := req.Period.Validate(); err != nil {
		return invalid("period", "%v", err)
	}
	return nil
}

func validateDebtor(kind models.DebtorKind, debtorID string) error {
	if !kind.Valid() {
		return invalid("debtor_kind", "unknown debtor kind %q", kind)
	}
	if debtorID == "" {
		return invalid("debtor_id", "debtor id is required")
	}
	return nil
}

func sumOrders(orders []models.Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Amount)
	}
	return total
}

func outcome(err error) string {
	var verr *ValidationError
	var cerr *ConflictError
	switch {
	case errors.As(err, &verr):
		return "rejected"
	case errors.As(err, &cerr):
		return "conflict"
	default:
		return "failed"
	}
}
