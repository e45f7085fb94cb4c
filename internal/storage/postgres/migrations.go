package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations mirrors the SQLite schema with native NUMERIC and DATE columns.
// Each statement is idempotent so the store can run them on every start.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS courier_debts (
		id TEXT PRIMARY KEY,
		debtor_id TEXT NOT NULL,
		debt_date DATE NOT NULL,
		amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		remaining_amount NUMERIC(14,2) NOT NULL CHECK (remaining_amount >= 0 AND remaining_amount <= amount),
		status TEXT NOT NULL CHECK (status IN ('pending', 'paid')),
		version BIGINT NOT NULL DEFAULT 1,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_courier_debts_debtor ON courier_debts(debtor_id, status, debt_date, id)`,

	`CREATE TABLE IF NOT EXISTS restaurant_debts (
		id TEXT PRIMARY KEY,
		debtor_id TEXT NOT NULL,
		debt_date DATE NOT NULL,
		amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		remaining_amount NUMERIC(14,2) NOT NULL CHECK (remaining_amount >= 0 AND remaining_amount <= amount),
		status TEXT NOT NULL CHECK (status IN ('pending', 'paid')),
		version BIGINT NOT NULL DEFAULT 1,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_restaurant_debts_debtor ON restaurant_debts(debtor_id, status, debt_date, id)`,

	`CREATE TABLE IF NOT EXISTS courier_settlements (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		debtor_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		transaction_date BIGINT NOT NULL,
		expected_total NUMERIC(14,2) NOT NULL,
		amount_received NUMERIC(14,2) NOT NULL,
		resulting_new_debt NUMERIC(14,2) NOT NULL,
		amount_applied_to_old_debts NUMERIC(14,2) NOT NULL,
		operator_id TEXT NOT NULL,
		period_start BIGINT NOT NULL DEFAULT 0,
		period_end BIGINT NOT NULL DEFAULT 0,
		order_count INTEGER NOT NULL DEFAULT 0,
		notes TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_courier_settlements_debtor ON courier_settlements(debtor_id, seq)`,

	`CREATE TABLE IF NOT EXISTS restaurant_settlements (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		debtor_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		transaction_date BIGINT NOT NULL,
		expected_total NUMERIC(14,2) NOT NULL,
		amount_received NUMERIC(14,2) NOT NULL,
		resulting_new_debt NUMERIC(14,2) NOT NULL,
		amount_applied_to_old_debts NUMERIC(14,2) NOT NULL,
		operator_id TEXT NOT NULL,
		period_start BIGINT NOT NULL DEFAULT 0,
		period_end BIGINT NOT NULL DEFAULT 0,
		order_count INTEGER NOT NULL DEFAULT 0,
		notes TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_restaurant_settlements_debtor ON restaurant_settlements(debtor_id, seq)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		courier_id TEXT NOT NULL,
		restaurant_id TEXT NOT NULL,
		amount NUMERIC(14,2) NOT NULL CHECK (amount >= 0),
		payment_method TEXT NOT NULL CHECK (payment_method IN ('cash', 'card')),
		delivered_at BIGINT NOT NULL,
		courier_settled_at BIGINT,
		restaurant_settled_at BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_courier ON orders(courier_id, delivered_at)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_restaurant ON orders(restaurant_id, delivered_at)`,
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
