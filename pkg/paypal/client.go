package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/angelmondragon/rifa-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
	"github.com/angelmondragon/rifa-backend/pkg/logger"
)

const (
	tokenPath  = "/v1/oauth2/token"
	ordersPath = "/v2/checkout/orders"

	issueAlreadyCaptured = "ORDER_ALREADY_CAPTURED"
)

var (
	errClientIDRequired = errors.New("paypal client id is required")
	errSecretRequired   = errors.New("paypal secret is required")
	errInvalidPayPalEnv = fmt.Errorf("paypal environment must be %q or %q", config.PayPalEnvSandbox, config.PayPalEnvLive)
	errLoggerRequired   = errors.New("paypal logger is required")
)

var baseURLs = map[string]string{
	config.PayPalEnvSandbox: "https://api-m.sandbox.paypal.com",
	config.PayPalEnvLive:    "https://api-m.paypal.com",
}

// Client talks to the PayPal Orders v2 API using an OAuth2 client-credentials token.
type Client struct {
	http        *http.Client
	baseURL     string
	environment string
	currency    string
	brandName   string
	returnURL   string
	cancelURL   string
	logger      *logger.Logger
}

// NewClient validates credentials and prepares the token source. No network call is made until
// the first API request.
func NewClient(ctx context.Context, cfg config.PayPalConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, errInvalidPayPalEnv
	}
	if override := strings.TrimSpace(cfg.BaseURL); override != "" {
		baseURL = strings.TrimRight(override, "/")
	}

	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errClientIDRequired
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	creds := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		TokenURL:     baseURL + tokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// The token endpoint shares the API timeout.
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	httpClient := creds.Client(tokenCtx)
	httpClient.Timeout = timeout

	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "MXN"
	}

	c := &Client{
		http:        httpClient,
		baseURL:     baseURL,
		environment: env,
		currency:    currency,
		brandName:   strings.TrimSpace(cfg.BrandName),
		returnURL:   strings.TrimSpace(cfg.ReturnURL),
		cancelURL:   strings.TrimSpace(cfg.CancelURL),
		logger:      logg,
	}

	logg.Info(logg.WithField(ctx, "paypal_env", env), "paypal client initialized")
	return c, nil
}

// Environment reports the normalized PayPal environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Currency is the default currency applied to orders without one.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// CreateOrder opens a CAPTURE intent order the buyer must approve.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	req := params.toRequest(c)
	c.log(ctx, "request", "create_order", map[string]any{
		"reference_id": params.ReferenceID,
		"amount":       req.PurchaseUnits[0].Amount.Value,
		"currency":     req.PurchaseUnits[0].Amount.CurrencyCode,
	})

	var order Order
	if err := c.do(ctx, http.MethodPost, ordersPath, req, &order); err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, c.mapError(err, "create order")
	}

	c.log(ctx, "response", "create_order", map[string]any{
		"paypal_order_id": order.ID,
		"status":          order.Status,
	})
	return &order, nil
}

// CaptureOrder captures an approved order. An order captured by an earlier call is resolved by
// reading its current state so repeated captures report the same outcome.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required")
	}
	c.log(ctx, "request", "capture_order", map[string]any{"paypal_order_id": orderID})

	var order Order
	err := c.do(ctx, http.MethodPost, ordersPath+"/"+url.PathEscape(orderID)+"/capture", struct{}{}, &order)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.HasIssue(issueAlreadyCaptured) {
			c.log(ctx, "response", "capture_order", map[string]any{
				"paypal_order_id": orderID,
				"issue":           issueAlreadyCaptured,
			})
			return c.GetOrder(ctx, orderID)
		}
		c.log(ctx, "error", "capture_order", map[string]any{"error": err.Error()})
		return nil, c.mapError(err, "capture order")
	}

	c.log(ctx, "response", "capture_order", map[string]any{
		"paypal_order_id": order.ID,
		"status":          order.Status,
		"capture_status":  order.CaptureStatus(),
	})
	return &order, nil
}

// GetOrder returns the current state of a PayPal order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required")
	}
	c.log(ctx, "request", "get_order", map[string]any{"paypal_order_id": orderID})

	var order Order
	if err := c.do(ctx, http.MethodGet, ordersPath+"/"+url.PathEscape(orderID), nil, &order); err != nil {
		c.log(ctx, "error", "get_order", map[string]any{"error": err.Error()})
		return nil, c.mapError(err, "get order")
	}

	c.log(ctx, "response", "get_order", map[string]any{
		"paypal_order_id": order.ID,
		"status":          order.Status,
	})
	return &order, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode paypal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build paypal request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read paypal response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode paypal response: %w", err)
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("paypal %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("paypal %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token", "secret", "email", "phone", "payer"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return pkgerrors.Wrap(domainCodeForStatus(apiErr.StatusCode), err, fmt.Sprintf("paypal %s failed", op))
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paypal token request failed")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("paypal %s failed", op))
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return pkgerrors.CodeConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
