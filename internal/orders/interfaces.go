package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rifa-backend/internal/allocation"
	"github.com/angelmondragon/rifa-backend/pkg/db/models"
	"github.com/angelmondragon/rifa-backend/pkg/outbox"
)

// Repository defines persistence operations for raffle orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FlagReconciliation(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	ListReconciliation(ctx context.Context, raffleID uuid.UUID) ([]models.Order, error)
	CountReconciliation(ctx context.Context) (int64, error)
}

// PaymentGateway authorizes and captures buyer payments.
type PaymentGateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error)
	Capture(ctx context.Context, paymentRef string) (*GatewayCapture, error)
}

// AuthorizeRequest asks the gateway for a payment the buyer must approve.
type AuthorizeRequest struct {
	OrderID     uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// AuthorizeResult is the payment authorization handle.
type AuthorizeResult struct {
	PaymentRef string
	ApproveURL string
}

// GatewayCapture reports the gateway's view of a capture attempt.
type GatewayCapture struct {
	PaymentRef string
	Status     string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type raffleLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Raffle, error)
}

type allocator interface {
	Allocate(ctx context.Context, req allocation.Request) (*allocation.Result, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}
