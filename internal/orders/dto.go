package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rifa-backend/pkg/db/models"
)

// CreateOrderInput is a buyer's request to purchase tickets.
type CreateOrderInput struct {
	RaffleID     uuid.UUID
	BuyerName    string
	BuyerContact string
	Qty          int
}

// CreateOrderResult carries the payment authorization handle for the new order.
type CreateOrderResult struct {
	OrderID    uuid.UUID `json:"order_id"`
	PaymentRef string    `json:"payment_ref"`
	ApproveURL string    `json:"approve_url,omitempty"`
	AmountDue  string    `json:"amount_due"`
	Currency   string    `json:"currency"`
}

// CaptureInput identifies an approved payment to capture.
type CaptureInput struct {
	RaffleID   uuid.UUID
	OrderID    uuid.UUID
	PaymentRef string
}

// CaptureResult is the paid order with its tickets.
type CaptureResult struct {
	OrderID     uuid.UUID `json:"order_id"`
	Status      string    `json:"status"`
	Tickets     []int     `json:"tickets"`
	AlreadyPaid bool      `json:"already_paid"`
}

// OrderView is the read model returned by order lookups.
type OrderView struct {
	ID                     uuid.UUID  `json:"id"`
	RaffleID               uuid.UUID  `json:"raffle_id"`
	BuyerName              string     `json:"buyer_name"`
	Qty                    int        `json:"qty"`
	Status                 string     `json:"status"`
	PaymentRef             string     `json:"payment_ref"`
	Tickets                []int      `json:"tickets"`
	AmountDue              string     `json:"amount_due"`
	Currency               string     `json:"currency"`
	PaymentStatus          *string    `json:"payment_status,omitempty"`
	PaidAt                 *time.Time `json:"paid_at,omitempty"`
	ReconciliationRequired bool       `json:"reconciliation_required"`
	ReconciliationReason   *string    `json:"reconciliation_reason,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// AdminOrderView adds the buyer contact for staff reconciliation work.
type AdminOrderView struct {
	OrderView
	BuyerContact string `json:"buyer_contact"`
}

func toOrderView(order *models.Order) OrderView {
	return OrderView{
		ID:                     order.ID,
		RaffleID:               order.RaffleID,
		BuyerName:              order.BuyerName,
		Qty:                    order.Qty,
		Status:                 order.Status.String(),
		PaymentRef:             order.PaymentRef,
		Tickets:                order.Tickets.Sorted(),
		AmountDue:              order.AmountDue.StringFixed(2),
		Currency:               order.Currency.String(),
		PaymentStatus:          order.PaymentStatus,
		PaidAt:                 order.PaidAt,
		ReconciliationRequired: order.ReconciliationRequired,
		ReconciliationReason:   order.ReconciliationReason,
		CreatedAt:              order.CreatedAt,
	}
}
