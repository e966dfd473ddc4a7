package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rifa-backend/pkg/config"
	"github.com/angelmondragon/rifa-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/rifa-backend/pkg/db/types"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
	"github.com/angelmondragon/rifa-backend/pkg/logger"
	"github.com/angelmondragon/rifa-backend/pkg/outbox"
	"github.com/angelmondragon/rifa-backend/pkg/outbox/payloads"
)

// DefaultMaxQty caps tickets per order; a configured limit can only lower it.
const DefaultMaxQty = config.MaxOrderQty

type IntakeParams struct {
	DB      txRunner
	Raffles raffleLoader
	Orders  Repository
	Gateway PaymentGateway
	Outbox  outboxPublisher
	Logger  *logger.Logger
	MaxQty  int
}

// Intake validates purchase requests and opens a gateway payment for them.
type Intake struct {
	tx      txRunner
	raffles raffleLoader
	orders  Repository
	gateway PaymentGateway
	outbox  outboxPublisher
	logg    *logger.Logger
	maxQty  int
	now     func() time.Time
}

func NewIntake(params IntakeParams) (*Intake, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Raffles == nil {
		return nil, fmt.Errorf("raffle loader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxQty := params.MaxQty
	if maxQty <= 0 || maxQty > DefaultMaxQty {
		maxQty = DefaultMaxQty
	}
	return &Intake{
		tx:      params.DB,
		raffles: params.Raffles,
		orders:  params.Orders,
		gateway: params.Gateway,
		outbox:  params.Outbox,
		logg:    params.Logger,
		maxQty:  maxQty,
		now:     time.Now,
	}, nil
}

// MaxQty reports the per-order ticket limit.
func (s *Intake) MaxQty() int {
	return s.maxQty
}

// CreateOrder checks the request against the raffle's current snapshot,
// authorizes the amount at the gateway and records the order as created. The
// inventory check here is advisory; allocation re-checks it transactionally.
func (s *Intake) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	name := strings.TrimSpace(input.BuyerName)
	contact := strings.TrimSpace(input.BuyerContact)
	if input.RaffleID == uuid.Nil || name == "" || contact == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id, buyer name and buyer contact are required")
	}
	if input.Qty < 1 || input.Qty > s.maxQty {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "invalid ticket quantity").
			WithDetails(map[string]any{"min": 1, "max": s.maxQty})
	}

	ctx = s.logg.WithRaffleID(ctx, input.RaffleID.String())

	raffle, err := s.raffles.FindByID(ctx, input.RaffleID)
	if err != nil {
		return nil, err
	}
	if raffle.IsClosed(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeRaffleClosed, "raffle closed")
	}
	remaining := raffle.Remaining()
	if input.Qty > remaining {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientInventory, fmt.Sprintf("only %d tickets left", remaining)).
			WithDetails(map[string]any{"remaining": remaining})
	}

	orderID := uuid.New()
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	amountDue := raffle.TicketPrice.Mul(decimal.NewFromInt(int64(input.Qty))).Round(2)

	auth, err := s.gateway.Authorize(ctx, AuthorizeRequest{
		OrderID:     orderID,
		Amount:      amountDue,
		Currency:    raffle.Currency.String(),
		Description: fmt.Sprintf("%s x%d", raffle.Name, input.Qty),
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payment authorization failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentAuthorization, err, "payment authorization failed")
	}
	if auth == nil || strings.TrimSpace(auth.PaymentRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodePaymentAuthorization, "gateway returned no payment reference")
	}

	order := &models.Order{
		ID:           orderID,
		RaffleID:     raffle.ID,
		BuyerName:    name,
		BuyerContact: contact,
		Qty:          input.Qty,
		Status:       enums.OrderStatusCreated,
		PaymentRef:   auth.PaymentRef,
		Tickets:      dbtypes.TicketNumbers{},
		AmountDue:    amountDue,
		Currency:     raffle.Currency,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				RaffleID:   order.RaffleID,
				Qty:        order.Qty,
				AmountDue:  amountDue.StringFixed(2),
				Currency:   order.Currency.String(),
				PaymentRef: order.PaymentRef,
			},
		})
	})
	if err != nil {
		// The gateway order is never captured without a local order, so it simply expires.
		s.logg.Error(s.logg.WithField(ctx, "payment_ref", auth.PaymentRef), "persist order failed", err)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_ref": order.PaymentRef,
		"qty":         order.Qty,
	}), "order created")

	return &CreateOrderResult{
		OrderID:    order.ID,
		PaymentRef: order.PaymentRef,
		ApproveURL: auth.ApproveURL,
		AmountDue:  amountDue.StringFixed(2),
		Currency:   order.Currency.String(),
	}, nil
}
