package payloads

import (
	"time"

	"github.com/google/uuid"
)

// RaffleCreatedEvent announces a new raffle opening for sale.
type RaffleCreatedEvent struct {
	RaffleID     uuid.UUID  `json:"raffle_id"`
	Name         string     `json:"name"`
	TotalTickets int        `json:"total_tickets"`
	TicketPrice  string     `json:"ticket_price"`
	Currency     string     `json:"currency"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
}

// OrderCreatedEvent is emitted once a buyer's order has a gateway payment.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	RaffleID   uuid.UUID `json:"raffle_id"`
	Qty        int       `json:"qty"`
	AmountDue  string    `json:"amount_due"`
	Currency   string    `json:"currency"`
	PaymentRef string    `json:"payment_ref"`
}

// OrderPaidEvent carries the tickets committed for a captured order.
type OrderPaidEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	RaffleID      uuid.UUID `json:"raffle_id"`
	Tickets       []int     `json:"tickets"`
	PaymentRef    string    `json:"payment_ref"`
	PaymentStatus string    `json:"payment_status"`
	SoldTickets   int       `json:"sold_tickets"`
	PaidAt        time.Time `json:"paid_at"`
}

// OrderReconciliationRequiredEvent flags a captured payment that could not be
// matched with tickets.
type OrderReconciliationRequiredEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	RaffleID   uuid.UUID `json:"raffle_id"`
	PaymentRef string    `json:"payment_ref"`
	Reason     string    `json:"reason"`
	FlaggedAt  time.Time `json:"flagged_at"`
}
