package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how the customer paid for an order.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Order is the part of a delivered order the ledger cares about.
// Orders are owned by the order subsystem; the ledger only reads them and
// stamps the settled timestamps.
type Order struct {
	ID            string
	CourierID     string
	RestaurantID  string
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod

	// DeliveredAt is a Unix timestamp.
	DeliveredAt int64

	// CourierSettledAt and RestaurantSettledAt are Unix timestamps, 0 while unsettled.
	CourierSettledAt    int64
	RestaurantSettledAt int64
}

// Period bounds the delivery time of the orders a settlement covers.
// A zero From means "since the beginning", a zero To means "up to now".
type Period struct {
	From time.Time
	To   time.Time
}

// ErrInvalidPeriod is returned when a period ends before it starts.
var ErrInvalidPeriod = errors.New("period end is before period start")

// Validate checks that the bounds are ordered.
func (p Period) Validate() error {
	if !p.From.IsZero() && !p.To.IsZero() && p.To.Before(p.From) {
		return ErrInvalidPeriod
	}
	return nil
}

// Until closes an open-ended period at now.
func (p Period) Until(now time.Time) Period {
	if p.To.IsZero() {
		p.To = now
	}
	return p
}

// Bounds returns the period as Unix seconds, substituting now for an open end.
func (p Period) Bounds(now time.Time) (from, to int64) {
	if !p.From.IsZero() {
		from = p.From.Unix()
	}
	to = now.Unix()
	if !p.To.IsZero() {
		to = p.To.Unix()
	}
	return from, to
}
