// Package models defines the core domain models for the cash ledger.
//
// # Ledgers
//
// Couriers and restaurants each have their own ledger. A ledger is a set of
// DebtRecord rows plus an append-only log of SettlementTransaction rows:
//   - DebtRecord: an obligation created when a settlement leaves a shortfall
//   - SettlementTransaction: the immutable summary of one settlement action
//
// The two debtor kinds never share a ledger; DebtorKind selects which one a
// record belongs to.
//
// # Orders
//
// Order is a read model of the order subsystem. The ledger only reads order
// amounts for a period and stamps orders as settled once a settlement
// commits.
//
// # Money
//
// All amounts are decimal.Decimal values rounded to two places. Floats are
// never used for money.
package models
