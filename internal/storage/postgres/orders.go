package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/models"
	"github.com/mmynk/cashledger/internal/storage"
)

// UnsettledOrders returns the debtor's orders in period not yet settled for kind.
// Matching rows stay locked until the transaction ends.
func (t *pgTx) UnsettledOrders(ctx context.Context, kind models.DebtorKind, debtorID string, period models.Period) ([]models.Order, error) {
	tables, err := storage.TablesFor(kind)
	if err != nil {
		return nil, err
	}

	from, to := period.Bounds(time.Now())
	query := `SELECT id, courier_id, restaurant_id, amount::text, payment_method, delivered_at,
			courier_settled_at, restaurant_settled_at
		FROM orders
		WHERE ` + tables.OrderDebtor + ` = $1 AND ` + tables.OrderSettled + ` IS NULL
		  AND delivered_at >= $2 AND delivered_at <= $3`
	args := []any{debtorID, from, to}
	if tables.CashOnly {
		query += ` AND payment_method = $4`
		args = append(args, string(models.PaymentCash))
	}
	query += ` ORDER BY delivered_at ASC, id ASC FOR UPDATE`

	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Order, error) {
		var (
			o                         models.Order
			amount, method            string
			courierSet, restaurantSet *int64
		)
		if err := row.Scan(&o.ID, &o.CourierID, &o.RestaurantID, &amount, &method,
			&o.DeliveredAt, &courierSet, &restaurantSet); err != nil {
			return o, err
		}
		o.PaymentMethod = models.PaymentMethod(method)
		if courierSet != nil {
			o.CourierSettledAt = *courierSet
		}
		if restaurantSet != nil {
			o.RestaurantSettledAt = *restaurantSet
		}
		var err error
		o.Amount, err = decimal.NewFromString(amount)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	return orders, nil
}

// MarkOrdersSettled stamps the orders as settled for kind, failing with
// storage.ErrConflict if any of them was settled already.
func (t *pgTx) MarkOrdersSettled(ctx context.Context, kind models.DebtorKind, orderIDs []string, at time.Time) error {
	if len(orderIDs) == 0 {
		return nil
	}
	tables, err := storage.TablesFor(kind)
	if err != nil {
		return err
	}

	tag, err := t.q.Exec(ctx,
		`UPDATE orders SET `+tables.OrderSettled+` = $1
		 WHERE `+tables.OrderSettled+` IS NULL AND id = ANY($2)`,
		at.Unix(), orderIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to mark orders settled: %w", err)
	}
	if n := tag.RowsAffected(); n != int64(len(orderIDs)) {
		return fmt.Errorf("%d of %d orders already settled: %w", int64(len(orderIDs))-n, len(orderIDs), storage.ErrConflict)
	}
	return nil
}

// InsertOrder writes an order row for seeding and tests.
func (s *PostgresStore) InsertOrder(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.DeliveredAt == 0 {
		o.DeliveredAt = time.Now().Unix()
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = models.PaymentCash
	}

	var courierSet, restaurantSet *int64
	if o.CourierSettledAt != 0 {
		courierSet = &o.CourierSettledAt
	}
	if o.RestaurantSettledAt != 0 {
		restaurantSet = &o.RestaurantSettledAt
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, courier_id, restaurant_id, amount, payment_method, delivered_at, courier_settled_at, restaurant_settled_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`,
		o.ID, o.CourierID, o.RestaurantID, o.Amount.StringFixed(2), string(o.PaymentMethod), o.DeliveredAt,
		courierSet, restaurantSet,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}
