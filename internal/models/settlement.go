package models

import "github.com/shopspring/decimal"

// SettlementKind names the workflow that produced a settlement transaction.
type SettlementKind string

const (
	SettlementEndOfDay      SettlementKind = "end_of_day"
	SettlementInvoice       SettlementKind = "invoice"
	SettlementDirectPayment SettlementKind = "direct_payment"
)

// Classification describes how the received amount compared to the expected one.
type Classification string

const (
	ClassificationExact     Classification = "exact"
	ClassificationShortfall Classification = "shortfall"
	ClassificationSurplus   Classification = "surplus"
)

// SettlementTransaction is the immutable record of one settlement action.
// The sequence of transactions per debtor is the audit trail of all reconciliations.
type SettlementTransaction struct {
	// ID is the unique identifier for the transaction (UUID format).
	ID string

	// DebtorKind and DebtorID identify the ledger this transaction belongs to.
	DebtorKind DebtorKind
	DebtorID   string

	// Kind is the workflow that wrote the transaction.
	Kind SettlementKind

	// TransactionDate is the Unix timestamp when the settlement was recorded.
	TransactionDate int64

	// ExpectedTotal is the period total plus any prior outstanding debt.
	ExpectedTotal decimal.Decimal

	// AmountReceived is the cash handed over by a courier, or paid to a restaurant.
	AmountReceived decimal.Decimal

	// ResultingNewDebt is the shortfall booked as a new debt record (zero if none).
	ResultingNewDebt decimal.Decimal

	// AmountAppliedToOldDebts is how much of the payment reduced earlier debts.
	AmountAppliedToOldDebts decimal.Decimal

	// OperatorID is the admin who triggered the settlement.
	OperatorID string

	// PeriodStart and PeriodEnd bound the orders covered (Unix seconds, 0 = open).
	PeriodStart int64
	PeriodEnd   int64

	// OrderCount is the number of orders marked settled by this transaction.
	OrderCount int

	// Notes is an optional free-text description.
	Notes string
}
