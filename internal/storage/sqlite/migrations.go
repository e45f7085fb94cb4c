package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Amounts are stored as fixed two-decimal TEXT so no float rounding ever
// touches money. Courier and restaurant tables have identical shape.
const schema = `
CREATE TABLE IF NOT EXISTS courier_debts (
    id TEXT PRIMARY KEY,
    debtor_id TEXT NOT NULL,
    debt_date TEXT NOT NULL,
    amount TEXT NOT NULL,
    remaining_amount TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('pending', 'paid')),
    version INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS restaurant_debts (
    id TEXT PRIMARY KEY,
    debtor_id TEXT NOT NULL,
    debt_date TEXT NOT NULL,
    amount TEXT NOT NULL,
    remaining_amount TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('pending', 'paid')),
    version INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS courier_settlements (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    debtor_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    transaction_date INTEGER NOT NULL,
    expected_total TEXT NOT NULL,
    amount_received TEXT NOT NULL,
    resulting_new_debt TEXT NOT NULL,
    amount_applied_to_old_debts TEXT NOT NULL,
    operator_id TEXT NOT NULL,
    period_start INTEGER NOT NULL DEFAULT 0,
    period_end INTEGER NOT NULL DEFAULT 0,
    order_count INTEGER NOT NULL DEFAULT 0,
    notes TEXT
);

CREATE TABLE IF NOT EXISTS restaurant_settlements (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    debtor_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    transaction_date INTEGER NOT NULL,
    expected_total TEXT NOT NULL,
    amount_received TEXT NOT NULL,
    resulting_new_debt TEXT NOT NULL,
    amount_applied_to_old_debts TEXT NOT NULL,
    operator_id TEXT NOT NULL,
    period_start INTEGER NOT NULL DEFAULT 0,
    period_end INTEGER NOT NULL DEFAULT 0,
    order_count INTEGER NOT NULL DEFAULT 0,
    notes TEXT
);

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    courier_id TEXT NOT NULL,
    restaurant_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    payment_method TEXT NOT NULL,
    delivered_at INTEGER NOT NULL,
    courier_settled_at INTEGER,
    restaurant_settled_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_courier_debts_debtor ON courier_debts(debtor_id, status, debt_date);
CREATE INDEX IF NOT EXISTS idx_restaurant_debts_debtor ON restaurant_debts(debtor_id, status, debt_date);
CREATE INDEX IF NOT EXISTS idx_courier_settlements_debtor ON courier_settlements(debtor_id);
CREATE INDEX IF NOT EXISTS idx_restaurant_settlements_debtor ON restaurant_settlements(debtor_id);
CREATE INDEX IF NOT EXISTS idx_orders_courier ON orders(courier_id, courier_settled_at);
CREATE INDEX IF NOT EXISTS idx_orders_restaurant ON orders(restaurant_id, restaurant_settled_at);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
