package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
)

// Query serves read-only order lookups.
type Query struct {
	orders  Repository
	raffles raffleLoader
}

func NewQuery(orders Repository, raffles raffleLoader) (*Query, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if raffles == nil {
		return nil, fmt.Errorf("raffle loader required")
	}
	return &Query{orders: orders, raffles: raffles}, nil
}

// GetOrder returns the order if it belongs to the raffle.
func (q *Query) GetOrder(ctx context.Context, raffleID, orderID uuid.UUID) (*OrderView, error) {
	if raffleID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id and order id are required")
	}
	order, err := q.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.RaffleID != raffleID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	view := toOrderView(order)
	return &view, nil
}

// ListReconciliation returns the raffle's orders whose captured payment could
// not be allocated.
func (q *Query) ListReconciliation(ctx context.Context, raffleID uuid.UUID) ([]AdminOrderView, error) {
	if raffleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id required")
	}
	if _, err := q.raffles.FindByID(ctx, raffleID); err != nil {
		return nil, err
	}
	rows, err := q.orders.ListReconciliation(ctx, raffleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reconciliation orders")
	}
	out := make([]AdminOrderView, 0, len(rows))
	for i := range rows {
		out = append(out, AdminOrderView{
			OrderView:    toOrderView(&rows[i]),
			BuyerContact: rows[i].BuyerContact,
		})
	}
	return out, nil
}
