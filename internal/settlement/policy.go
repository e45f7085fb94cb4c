package settlement

import "github.com/mmynk/cashledger/internal/models"

// Policy parameterizes the generic settlement run for one kind of debtor.
type Policy struct {
	// Kind selects the ledger and the orders that make up the period total.
	Kind models.DebtorKind

	// AllowsSurplus permits receiving more than the expected total.
	// When false an overpayment is rejected before anything is written.
	AllowsSurplus bool

	// SettlementKind is written on the settlement transaction.
	SettlementKind models.SettlementKind
}

var (
	// CourierEndOfDay reconciles the cash a courier hands over against the
	// cash orders they delivered.
	CourierEndOfDay = Policy{
		Kind:           models.DebtorCourier,
		AllowsSurplus:  true,
		SettlementKind: models.SettlementEndOfDay,
	}

	// RestaurantInvoice reconciles a payment to a restaurant against its orders.
	RestaurantInvoice = Policy{
		Kind:           models.DebtorRestaurant,
		AllowsSurplus:  false,
		SettlementKind: models.SettlementInvoice,
	}
)

// Operator is the admin on whose behalf a settlement runs.
type Operator struct {
	ID string
}
