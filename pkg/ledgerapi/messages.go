// Package ledgerapi defines the ledger.v1.SettlementService RPC contract:
// request and response messages, the JSON codec they travel with, and the
// connect handler and client constructors.
//
// Money amounts are decimal strings such as "1000.00". Timestamps are RFC 3339.
package ledgerapi

// Period bounds the delivery time of the orders a settlement covers.
// Either end may be empty.
type Period struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

type RunEndOfDaySettlementRequest struct {
	CourierID      string  `json:"courier_id"`
	AmountReceived string  `json:"amount_received"`
	Period         *Period `json:"period,omitempty"`
	Notes          string  `json:"notes,omitempty"`
}

type RunInvoiceSettlementRequest struct {
	RestaurantID string  `json:"restaurant_id"`
	AmountPaid   string  `json:"amount_paid"`
	Period       *Period `json:"period,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

// SettlementResult is the response of both settlement runs.
type SettlementResult struct {
	SettlementID            string `json:"settlement_id"`
	ExpectedTotal           string `json:"expected_total"`
	PeriodTotal             string `json:"period_total"`
	OldDebt                 string `json:"old_debt"`
	AmountReceived          string `json:"amount_received"`
	Difference              string `json:"difference"`
	NewDebtAmount           string `json:"new_debt_amount"`
	NewDebtID               string `json:"new_debt_id,omitempty"`
	AmountAppliedToOldDebts string `json:"amount_applied_to_old_debts"`
	Classification          string `json:"classification"`
	OrderCount              int    `json:"order_count"`
}

type PayDebtDirectlyRequest struct {
	DebtorKind string `json:"debtor_kind"`
	DebtorID   string `json:"debtor_id"`
	Amount     string `json:"amount"`
}

type PayDebtDirectlyResponse struct {
	SettlementID  string `json:"settlement_id"`
	PaidAmount    string `json:"paid_amount"`
	RemainingDebt string `json:"remaining_debt"`
}

type GetOutstandingDebtsRequest struct {
	DebtorKind string `json:"debtor_kind"`
	DebtorID   string `json:"debtor_id"`
	// IncludePaid lists paid records as well, for auditing.
	IncludePaid bool `json:"include_paid,omitempty"`
}

type GetOutstandingDebtsResponse struct {
	Debts            []Debt `json:"debts"`
	TotalOutstanding string `json:"total_outstanding"`
}

type Debt struct {
	ID              string `json:"id"`
	DebtDate        string `json:"debt_date"` // YYYY-MM-DD
	OriginalAmount  string `json:"original_amount"`
	RemainingAmount string `json:"remaining_amount"`
	Status          string `json:"status"`
	Version         int64  `json:"version"`
}

type GetSettlementHistoryRequest struct {
	DebtorKind string `json:"debtor_kind"`
	DebtorID   string `json:"debtor_id"`
}

type GetSettlementHistoryResponse struct {
	Settlements []Settlement `json:"settlements"`
}

type Settlement struct {
	ID                      string `json:"id"`
	Kind                    string `json:"kind"`
	TransactionDate         string `json:"transaction_date"`
	ExpectedTotal           string `json:"expected_total"`
	AmountReceived          string `json:"amount_received"`
	ResultingNewDebt        string `json:"resulting_new_debt"`
	AmountAppliedToOldDebts string `json:"amount_applied_to_old_debts"`
	OperatorID              string `json:"operator_id"`
	PeriodStart             string `json:"period_start,omitempty"`
	PeriodEnd               string `json:"period_end,omitempty"`
	OrderCount              int    `json:"order_count"`
	Notes                   string `json:"notes,omitempty"`
}
