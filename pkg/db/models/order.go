package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/rifa-backend/pkg/db/types"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
)

// Order is a buyer's purchase of Qty tickets in one raffle.
type Order struct {
	ID                     uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	RaffleID               uuid.UUID             `gorm:"column:raffle_id;type:uuid;not null;index"`
	BuyerName              string                `gorm:"column:buyer_name;not null"`
	BuyerContact           string                `gorm:"column:buyer_contact;not null"`
	Qty                    int                   `gorm:"column:qty;not null"`
	Status                 enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'created'"`
	PaymentRef             string                `gorm:"column:payment_ref;not null;uniqueIndex"`
	Tickets                dbtypes.TicketNumbers `gorm:"column:tickets;type:jsonb;not null"`
	AmountDue              decimal.Decimal       `gorm:"column:amount_due;type:numeric(12,2);not null"`
	Currency               enums.Currency        `gorm:"column:currency;type:text;not null;default:'MXN'"`
	PaymentStatus          *string               `gorm:"column:payment_status"`
	PaidAt                 *time.Time            `gorm:"column:paid_at"`
	ReconciliationRequired bool                  `gorm:"column:reconciliation_required;not null;default:false"`
	ReconciliationReason   *string               `gorm:"column:reconciliation_reason"`
	CreatedAt              time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Tickets == nil {
		o.Tickets = dbtypes.TicketNumbers{}
	}
	return nil
}

// IsPaid reports whether tickets have already been assigned.
func (o Order) IsPaid() bool {
	return o.Status == enums.OrderStatusPaid
}
