package orders

import (
	"context"
	"fmt"

	"github.com/angelmondragon/rifa-backend/pkg/paypal"
)

type paypalClient interface {
	CreateOrder(ctx context.Context, params paypal.CreateOrderParams) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.Order, error)
}

type paypalGateway struct {
	client paypalClient
}

// NewPayPalGateway adapts the PayPal Orders client to PaymentGateway.
func NewPayPalGateway(client paypalClient) (PaymentGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("paypal client required")
	}
	return &paypalGateway{client: client}, nil
}

func (g *paypalGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	order, err := g.client.CreateOrder(ctx, paypal.CreateOrderParams{
		ReferenceID: req.OrderID.String(),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}
	return &AuthorizeResult{
		PaymentRef: order.ID,
		ApproveURL: order.ApproveURL(),
	}, nil
}

func (g *paypalGateway) Capture(ctx context.Context, paymentRef string) (*GatewayCapture, error) {
	order, err := g.client.CaptureOrder(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	ref := order.ID
	if ref == "" {
		ref = paymentRef
	}
	return &GatewayCapture{
		PaymentRef: ref,
		Status:     order.CaptureStatus(),
	}, nil
}
