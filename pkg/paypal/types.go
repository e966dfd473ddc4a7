package paypal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
)

const (
	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
	StatusVoided    = "VOIDED"
)

// CreateOrderParams describes a single purchase unit order.
type CreateOrderParams struct {
	// ReferenceID ties the PayPal order back to the local order id.
	ReferenceID string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

func (p CreateOrderParams) validate() error {
	if strings.TrimSpace(p.ReferenceID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "paypal reference id is required")
	}
	if !p.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "paypal amount must be positive")
	}
	return nil
}

func (p CreateOrderParams) toRequest(c *Client) orderRequest {
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = c.currency
	}
	return orderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnitRequest{{
			ReferenceID: p.ReferenceID,
			CustomID:    p.ReferenceID,
			Description: strings.TrimSpace(p.Description),
			Amount: amount{
				CurrencyCode: currency,
				Value:        p.Amount.StringFixed(2),
			},
		}},
		ApplicationContext: applicationContext{
			ShippingPreference: "NO_SHIPPING",
			UserAction:         "PAY_NOW",
			BrandName:          c.brandName,
			ReturnURL:          c.returnURL,
			CancelURL:          c.cancelURL,
		},
	}
}

type orderRequest struct {
	Intent             string                `json:"intent"`
	PurchaseUnits      []purchaseUnitRequest `json:"purchase_units"`
	ApplicationContext applicationContext    `json:"application_context"`
}

type purchaseUnitRequest struct {
	ReferenceID string `json:"reference_id,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      amount `json:"amount"`
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type applicationContext struct {
	ShippingPreference string `json:"shipping_preference"`
	UserAction         string `json:"user_action,omitempty"`
	BrandName          string `json:"brand_name,omitempty"`
	ReturnURL          string `json:"return_url,omitempty"`
	CancelURL          string `json:"cancel_url,omitempty"`
}

// Order is the subset of the PayPal order resource the backend reads.
type Order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units,omitempty"`
	Links         []Link         `json:"links,omitempty"`
}

type PurchaseUnit struct {
	ReferenceID string    `json:"reference_id,omitempty"`
	Payments    *Payments `json:"payments,omitempty"`
}

type Payments struct {
	Captures []Capture `json:"captures,omitempty"`
}

type Capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// ApproveURL returns the buyer approval link, if PayPal returned one.
func (o *Order) ApproveURL() string {
	if o == nil {
		return ""
	}
	for _, link := range o.Links {
		switch strings.ToLower(link.Rel) {
		case "approve", "payer-action":
			return link.Href
		}
	}
	return ""
}

// CaptureStatus returns the first capture status, falling back to the order status.
func (o *Order) CaptureStatus() string {
	if o == nil {
		return ""
	}
	for _, unit := range o.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		for _, capture := range unit.Payments.Captures {
			if capture.Status != "" {
				return capture.Status
			}
		}
	}
	return o.Status
}

// APIError is a non-2xx response from the PayPal REST API.
type APIError struct {
	StatusCode int
	Name       string        `json:"name"`
	Message    string        `json:"message"`
	DebugID    string        `json:"debug_id"`
	Details    []ErrorDetail `json:"details"`
}

type ErrorDetail struct {
	Field       string `json:"field,omitempty"`
	Issue       string `json:"issue"`
	Description string `json:"description,omitempty"`
}

func newAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, apiErr)
	}
	apiErr.StatusCode = status
	return apiErr
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("paypal api error: status=%d", e.StatusCode)
	if e.Name != "" {
		msg += " name=" + e.Name
	}
	if len(e.Details) > 0 {
		issues := make([]string, 0, len(e.Details))
		for _, d := range e.Details {
			issues = append(issues, d.Issue)
		}
		msg += " issues=" + strings.Join(issues, ",")
	}
	if e.DebugID != "" {
		msg += " debug_id=" + e.DebugID
	}
	return msg
}

// HasIssue reports whether PayPal flagged the given issue code.
func (e *APIError) HasIssue(issue string) bool {
	if e == nil {
		return false
	}
	for _, d := range e.Details {
		if strings.EqualFold(d.Issue, issue) {
			return true
		}
	}
	return false
}
