package storage

import (
	"fmt"

	"github.com/mmynk/cashledger/internal/models"
)

// Tables names the ledger tables and order columns of one debtor kind.
// Couriers and restaurants have parallel tables with identical shape.
type Tables struct {
	Debts       string
	Settlements string

	// OrderDebtor is the orders column holding the debtor ID.
	OrderDebtor string
	// OrderSettled is the orders column stamped when the order is settled.
	OrderSettled string
	// CashOnly restricts the order total to cash-paid orders.
	CashOnly bool
}

var tablesByKind = map[models.DebtorKind]Tables{
	models.DebtorCourier: {
		Debts:        "courier_debts",
		Settlements:  "courier_settlements",
		OrderDebtor:  "courier_id",
		OrderSettled: "courier_settled_at",
		CashOnly:     true,
	},
	models.DebtorRestaurant: {
		Debts:        "restaurant_debts",
		Settlements:  "restaurant_settlements",
		OrderDebtor:  "restaurant_id",
		OrderSettled: "restaurant_settled_at",
	},
}

// TablesFor returns the table set of a debtor kind.
// Table names are only ever taken from this closed set, never from input.
func TablesFor(kind models.DebtorKind) (Tables, error) {
	t, ok := tablesByKind[kind]
	if !ok {
		return Tables{}, fmt.Errorf("unknown debtor kind %q", kind)
	}
	return t, nil
}
