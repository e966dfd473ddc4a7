package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rifa-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/rifa-backend/pkg/db/types"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
)

// store is the transactional surface the engine reads and writes through.
type store interface {
	FindRaffle(ctx context.Context, raffleID uuid.UUID) (*models.Raffle, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	TakenNumbers(ctx context.Context, raffleID uuid.UUID) ([]int, error)
	AdvanceRaffle(ctx context.Context, raffleID uuid.UUID, expectedVersion int64, qty int, now time.Time) (int64, error)
	InsertTickets(ctx context.Context, raffleID, orderID uuid.UUID, numbers []int) error
	MarkOrderPaid(ctx context.Context, orderID uuid.UUID, tickets []int, paymentStatus string, now time.Time) (int64, error)
}

type repository struct {
	tx *gorm.DB
}

func newRepository(tx *gorm.DB) store {
	return &repository{tx: tx}
}

func (r *repository) FindRaffle(ctx context.Context, raffleID uuid.UUID) (*models.Raffle, error) {
	var raffle models.Raffle
	if err := r.tx.WithContext(ctx).Where("id = ?", raffleID).First(&raffle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "raffle not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load raffle")
	}
	return &raffle, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.tx.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}

func (r *repository) TakenNumbers(ctx context.Context, raffleID uuid.UUID) ([]int, error) {
	var numbers []int
	err := r.tx.WithContext(ctx).
		Model(&models.RaffleTicket{}).
		Where("raffle_id = ?", raffleID).
		Pluck("number", &numbers).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load taken tickets")
	}
	return numbers, nil
}

// AdvanceRaffle applies the sale only if nobody committed since the raffle
// was read. Zero rows affected means the version moved.
func (r *repository) AdvanceRaffle(ctx context.Context, raffleID uuid.UUID, expectedVersion int64, qty int, now time.Time) (int64, error) {
	res := r.tx.WithContext(ctx).
		Model(&models.Raffle{}).
		Where("id = ? AND version = ?", raffleID, expectedVersion).
		Updates(map[string]any{
			"sold_tickets": gorm.Expr("sold_tickets + ?", qty),
			"buyers_count": gorm.Expr("buyers_count + 1"),
			"version":      gorm.Expr("version + 1"),
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) InsertTickets(ctx context.Context, raffleID, orderID uuid.UUID, numbers []int) error {
	rows := make([]models.RaffleTicket, 0, len(numbers))
	for _, n := range numbers {
		rows = append(rows, models.RaffleTicket{RaffleID: raffleID, Number: n, OrderID: orderID})
	}
	return r.tx.WithContext(ctx).Create(&rows).Error
}

func (r *repository) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, tickets []int, paymentStatus string, now time.Time) (int64, error) {
	res := r.tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusCreated).
		Updates(map[string]any{
			"status":         enums.OrderStatusPaid,
			"tickets":        dbtypes.TicketNumbers(tickets),
			"payment_status": paymentStatus,
			"paid_at":        now,
			"updated_at":     now,
		})
	return res.RowsAffected, res.Error
}
