package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rifa-backend/pkg/enums"
)

// Raffle is the inventory snapshot for one raffle. Taken numbers live in
// raffle_tickets; SoldTickets always equals their count.
type Raffle struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name         string          `gorm:"column:name;not null"`
	TotalTickets int             `gorm:"column:total_tickets;not null"`
	SoldTickets  int             `gorm:"column:sold_tickets;not null;default:0"`
	TicketPrice  decimal.Decimal `gorm:"column:ticket_price;type:numeric(12,2);not null"`
	Currency     enums.Currency  `gorm:"column:currency;type:text;not null;default:'MXN'"`
	EndsAt       *time.Time      `gorm:"column:ends_at"`
	BuyersCount  int             `gorm:"column:buyers_count;not null;default:0"`
	Version      int64           `gorm:"column:version;not null;default:0"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Raffle) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Remaining returns the number of unassigned tickets, never negative.
func (r Raffle) Remaining() int {
	if r.SoldTickets >= r.TotalTickets {
		return 0
	}
	return r.TotalTickets - r.SoldTickets
}

// IsClosed reports whether purchases are no longer accepted at now. A raffle
// without an end date never closes.
func (r Raffle) IsClosed(now time.Time) bool {
	return r.EndsAt != nil && now.After(*r.EndsAt)
}

// RaffleTicket records one assigned ticket number. The (raffle_id, number)
// primary key rejects a second assignment of the same number.
type RaffleTicket struct {
	RaffleID  uuid.UUID `gorm:"column:raffle_id;type:uuid;primaryKey"`
	Number    int       `gorm:"column:number;primaryKey;autoIncrement:false"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
