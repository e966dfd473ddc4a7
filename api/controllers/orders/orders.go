package orders

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/rifa-backend/api/responses"
	"github.com/angelmondragon/rifa-backend/api/validators"
	internalorders "github.com/angelmondragon/rifa-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
	"github.com/angelmondragon/rifa-backend/pkg/logger"
)

const (
	maxBuyerNameLen    = 120
	maxBuyerContactLen = 80
)

type orderCreator interface {
	CreateOrder(ctx context.Context, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error)
}

type orderCapturer interface {
	CaptureOrder(ctx context.Context, input internalorders.CaptureInput) (*internalorders.CaptureResult, error)
}

type orderQuery interface {
	GetOrder(ctx context.Context, raffleID, orderID uuid.UUID) (*internalorders.OrderView, error)
	ListReconciliation(ctx context.Context, raffleID uuid.UUID) ([]internalorders.AdminOrderView, error)
}

type createOrderRequest struct {
	BuyerName    string          `json:"buyer_name" validate:"max=200"`
	BuyerContact string          `json:"buyer_contact" validate:"max=200"`
	Qty          json.RawMessage `json:"qty"`
}

type captureOrderRequest struct {
	PaymentRef string `json:"payment_ref" validate:"max=64"`
}

// Create opens a buyer order and returns the gateway approval handle.
func Create(svc orderCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order intake unavailable"))
			return
		}

		raffleID, err := validators.ParseUUIDParam(r, "raffleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Non-integer quantities become 0 so intake reports INVALID_QUANTITY
		// after its required field checks.
		qty, _ := validators.ParseWholeNumber(req.Qty)

		result, err := svc.CreateOrder(r.Context(), internalorders.CreateOrderInput{
			RaffleID:     raffleID,
			BuyerName:    validators.SanitizeString(req.BuyerName, maxBuyerNameLen),
			BuyerContact: validators.SanitizeString(req.BuyerContact, maxBuyerContactLen),
			Qty:          qty,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Capture captures the approved payment and returns the allocated tickets.
func Capture(svc orderCapturer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order capture unavailable"))
			return
		}

		raffleID, err := validators.ParseUUIDParam(r, "raffleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req captureOrderRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CaptureOrder(r.Context(), internalorders.CaptureInput{
			RaffleID:   raffleID,
			OrderID:    orderID,
			PaymentRef: req.PaymentRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Detail returns an order's status and tickets.
func Detail(query orderQuery, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if query == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order query unavailable"))
			return
		}

		raffleID, err := validators.ParseUUIDParam(r, "raffleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := query.GetOrder(r.Context(), raffleID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// AdminReconciliation lists the raffle's captured-but-unallocated orders.
func AdminReconciliation(query orderQuery, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if query == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order query unavailable"))
			return
		}

		raffleID, err := validators.ParseUUIDParam(r, "raffleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := query.ListReconciliation(r.Context(), raffleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"orders": rows, "count": len(rows)})
	}
}
