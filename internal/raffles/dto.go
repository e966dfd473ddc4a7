package raffles

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rifa-backend/pkg/db/models"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
)

// CreateRaffleInput holds the admin supplied fields for a new raffle.
type CreateRaffleInput struct {
	Name         string
	TotalTickets int
	TicketPrice  decimal.Decimal
	Currency     enums.Currency
	EndsAt       *time.Time
}

// Snapshot is the public view of a raffle's inventory.
type Snapshot struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	TotalTickets int        `json:"total_tickets"`
	SoldTickets  int        `json:"sold_tickets"`
	Remaining    int        `json:"remaining"`
	BuyersCount  int        `json:"buyers_count"`
	TicketPrice  string     `json:"ticket_price"`
	Currency     string     `json:"currency"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	Open         bool       `json:"open"`
}

// NewSnapshot builds the public view of raffle as of now.
func NewSnapshot(raffle *models.Raffle, now time.Time) Snapshot {
	return Snapshot{
		ID:           raffle.ID,
		Name:         raffle.Name,
		TotalTickets: raffle.TotalTickets,
		SoldTickets:  raffle.SoldTickets,
		Remaining:    raffle.Remaining(),
		BuyersCount:  raffle.BuyersCount,
		TicketPrice:  raffle.TicketPrice.StringFixed(2),
		Currency:     raffle.Currency.String(),
		EndsAt:       raffle.EndsAt,
		Open:         !raffle.IsClosed(now) && raffle.Remaining() > 0,
	}
}
