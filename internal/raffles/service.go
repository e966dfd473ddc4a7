package raffles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rifa-backend/pkg/db/models"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
	"github.com/angelmondragon/rifa-backend/pkg/outbox"
	"github.com/angelmondragon/rifa-backend/pkg/outbox/payloads"
)

// MaxTotalTickets bounds the pool so the available-number scan stays small.
const MaxTotalTickets = 100000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service manages raffles and exposes their inventory snapshot.
type Service interface {
	Create(ctx context.Context, input CreateRaffleInput) (*models.Raffle, error)
	Snapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error)
}

type service struct {
	tx     txRunner
	repo   Repository
	outbox outboxPublisher
	now    func() time.Time
}

// NewService builds the raffle service.
func NewService(tx txRunner, repo Repository, publisher outboxPublisher) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("raffle repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:     tx,
		repo:   repo,
		outbox: publisher,
		now:    time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateRaffleInput) (*models.Raffle, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.TotalTickets < 1 || input.TotalTickets > MaxTotalTickets {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total tickets out of range").
			WithDetails(map[string]any{"min": 1, "max": MaxTotalTickets})
	}
	price := input.TicketPrice.Round(2)
	if !price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket price must be positive")
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyMXN
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	if input.EndsAt != nil && !input.EndsAt.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ends_at must be in the future")
	}

	raffle := &models.Raffle{
		Name:         name,
		TotalTickets: input.TotalTickets,
		TicketPrice:  price,
		Currency:     currency,
	}
	if input.EndsAt != nil {
		endsAt := input.EndsAt.UTC()
		raffle.EndsAt = &endsAt
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.repo.WithTx(tx).Create(ctx, raffle)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create raffle")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRaffleCreated,
			AggregateType: enums.AggregateRaffle,
			AggregateID:   created.ID,
			Data: payloads.RaffleCreatedEvent{
				RaffleID:     created.ID,
				Name:         created.Name,
				TotalTickets: created.TotalTickets,
				TicketPrice:  created.TicketPrice.StringFixed(2),
				Currency:     created.Currency.String(),
				EndsAt:       created.EndsAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return raffle, nil
}

func (s *service) Snapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id required")
	}
	raffle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := NewSnapshot(raffle, s.now())
	return &snap, nil
}
