package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/models"
	"github.com/mmynk/cashledger/internal/storage"
)

// UnsettledOrders returns the debtor's orders in period not yet settled for kind.
func (t *sqliteTx) UnsettledOrders(ctx context.Context, kind models.DebtorKind, debtorID string, period models.Period) ([]models.Order, error) {
	tables, err := storage.TablesFor(kind)
	if err != nil {
		return nil, err
	}

	from, to := period.Bounds(time.Now())
	query := `SELECT id, courier_id, restaurant_id, amount, payment_method, delivered_at, courier_settled_at, restaurant_settled_at
		FROM orders
		WHERE ` + tables.OrderDebtor + ` = ? AND ` + tables.OrderSettled + ` IS NULL
		  AND delivered_at >= ? AND delivered_at <= ?`
	args := []interface{}{debtorID, from, to}
	if tables.CashOnly {
		query += ` AND payment_method = ?`
		args = append(args, string(models.PaymentCash))
	}
	query += ` ORDER BY delivered_at ASC, id ASC`

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var (
			o                         models.Order
			amount                    string
			courierSet, restaurantSet sql.NullInt64
		)
		if err := rows.Scan(&o.ID, &o.CourierID, &o.RestaurantID, &amount, &o.PaymentMethod,
			&o.DeliveredAt, &courierSet, &restaurantSet); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		if o.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse order amount %q: %w", amount, err)
		}
		o.CourierSettledAt = courierSet.Int64
		o.RestaurantSettledAt = restaurantSet.Int64
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return orders, nil
}

// MarkOrdersSettled stamps the orders as settled for kind.
// Only orders not settled yet are updated; if fewer rows change than
// requested another settlement got there first.
func (t *sqliteTx) MarkOrdersSettled(ctx context.Context, kind models.DebtorKind, orderIDs []string, at time.Time) error {
	if len(orderIDs) == 0 {
		return nil
	}
	tables, err := storage.TablesFor(kind)
	if err != nil {
		return err
	}

	query := `UPDATE orders SET ` + tables.OrderSettled + ` = ?
		WHERE ` + tables.OrderSettled + ` IS NULL AND id IN (?` + repeatPlaceholder(len(orderIDs)-1) + `)`

	args := make([]interface{}, 0, len(orderIDs)+1)
	args = append(args, at.Unix())
	for _, id := range orderIDs {
		args = append(args, id)
	}

	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark orders settled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check settled orders: %w", err)
	}
	if n != int64(len(orderIDs)) {
		return fmt.Errorf("%d of %d orders already settled: %w", int64(len(orderIDs))-n, len(orderIDs), storage.ErrConflict)
	}

	return nil
}

// InsertOrder writes an order row. The order subsystem owns these rows; the
// ledger uses this for seeding and tests.
func (s *SQLiteStore) InsertOrder(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.DeliveredAt == 0 {
		o.DeliveredAt = time.Now().Unix()
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = models.PaymentCash
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, courier_id, restaurant_id, amount, payment_method, delivered_at, courier_settled_at, restaurant_settled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CourierID, o.RestaurantID, o.Amount.StringFixed(2), string(o.PaymentMethod), o.DeliveredAt,
		nullableUnix(o.CourierSettledAt), nullableUnix(o.RestaurantSettledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func nullableUnix(ts int64) interface{} {
	if ts == 0 {
		return nil
	}
	return ts
}

// repeatPlaceholder returns a string of ", ?" repeated n times.
// Used for building IN clauses with multiple placeholders.
func repeatPlaceholder(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(", ?", n)
}
