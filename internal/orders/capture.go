package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rifa-backend/internal/allocation"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
	"github.com/angelmondragon/rifa-backend/pkg/logger"
	"github.com/angelmondragon/rifa-backend/pkg/outbox"
	"github.com/angelmondragon/rifa-backend/pkg/outbox/payloads"
)

type CapturerParams struct {
	DB        txRunner
	Orders    Repository
	Gateway   PaymentGateway
	Allocator allocator
	Outbox    outboxPublisher
	Logger    *logger.Logger
}

// Capturer captures approved payments and turns them into tickets.
type Capturer struct {
	tx        txRunner
	orders    Repository
	gateway   PaymentGateway
	allocator allocator
	outbox    outboxPublisher
	logg      *logger.Logger
	now       func() time.Time
}

func NewCapturer(params CapturerParams) (*Capturer, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Allocator == nil {
		return nil, fmt.Errorf("allocator required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Capturer{
		tx:        params.DB,
		orders:    params.Orders,
		gateway:   params.Gateway,
		allocator: params.Allocator,
		outbox:    params.Outbox,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// CaptureOrder captures the order's payment at the gateway and allocates its
// tickets. Paid orders skip the gateway and return their stored tickets, so
// repeated callbacks are safe.
func (s *Capturer) CaptureOrder(ctx context.Context, input CaptureInput) (*CaptureResult, error) {
	paymentRef := strings.TrimSpace(input.PaymentRef)
	if input.RaffleID == uuid.Nil || input.OrderID == uuid.Nil || paymentRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id, order id and payment ref are required")
	}

	ctx = s.logg.WithRaffleID(ctx, input.RaffleID.String())
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.RaffleID != input.RaffleID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	if order.IsPaid() {
		return s.allocate(ctx, allocation.Request{
			RaffleID:   input.RaffleID,
			OrderID:    input.OrderID,
			PaymentRef: paymentRef,
		})
	}
	if order.PaymentRef != paymentRef {
		return nil, pkgerrors.New(pkgerrors.CodePaymentMismatch, "payment does not match order").
			WithDetails(map[string]any{"payment_ref": paymentRef})
	}

	capture, err := s.gateway.Capture(ctx, paymentRef)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payment capture failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentCapture, err, "payment capture failed").
			WithDetails(map[string]any{"payment_ref": paymentRef})
	}
	status := enums.CaptureStatus(strings.ToUpper(strings.TrimSpace(capture.Status)))
	if !status.IsCaptured() {
		s.logg.Warn(s.logg.WithField(ctx, "capture_status", status.String()), "payment not captured")
		return nil, pkgerrors.New(pkgerrors.CodePaymentCapture, "payment not captured").
			WithDetails(map[string]any{"payment_ref": paymentRef, "status": status.String()})
	}

	result, err := s.allocate(ctx, allocation.Request{
		RaffleID:      input.RaffleID,
		OrderID:       input.OrderID,
		PaymentRef:    paymentRef,
		PaymentStatus: status.String(),
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientInventory) || pkgerrors.HasCode(err, pkgerrors.CodePaymentMismatch) {
			return nil, s.flagReconciliation(ctx, input, err)
		}
		return nil, err
	}
	return result, nil
}

func (s *Capturer) allocate(ctx context.Context, req allocation.Request) (*CaptureResult, error) {
	res, err := s.allocator.Allocate(ctx, req)
	if err != nil {
		return nil, err
	}
	return &CaptureResult{
		OrderID:     res.OrderID,
		Status:      enums.OrderStatusPaid.String(),
		Tickets:     res.Tickets,
		AlreadyPaid: res.AlreadyPaid,
	}, nil
}

// flagReconciliation records that money was captured for an order that got no
// tickets. The order stays created and staff settle it by hand. The event is
// emitted once, on the call that sets the flag.
func (s *Capturer) flagReconciliation(ctx context.Context, input CaptureInput, cause error) error {
	typed := pkgerrors.As(cause)
	reason := fmt.Sprintf("payment captured but allocation failed: %s", typed.Code())
	flaggedAt := s.now().UTC()

	flagErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		flagged, err := s.orders.WithTx(tx).FlagReconciliation(ctx, input.OrderID, reason, flaggedAt)
		if err != nil {
			return err
		}
		if !flagged {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderReconciliationRequired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   input.OrderID,
			Actor:         &outbox.ActorRef{Kind: "payment_capture"},
			Data: payloads.OrderReconciliationRequiredEvent{
				OrderID:    input.OrderID,
				RaffleID:   input.RaffleID,
				PaymentRef: input.PaymentRef,
				Reason:     reason,
				FlaggedAt:  flaggedAt,
			},
		})
	})

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_ref": input.PaymentRef,
		"reason":      reason,
	})
	s.logg.Error(logCtx, "captured payment requires reconciliation", cause)
	if flagErr != nil {
		s.logg.Error(logCtx, "flag order for reconciliation failed", flagErr)
	}

	details := map[string]any{"reconciliation_required": true}
	if existing, ok := typed.Details().(map[string]any); ok {
		for k, v := range existing {
			details[k] = v
		}
	}
	return pkgerrors.Wrap(typed.Code(), cause, typed.Message()).WithDetails(details)
}
