package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/example/ec-checkout/internal/apperr"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 4 << 20

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx. Every backend call made with ctx forwards it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token attached with WithToken.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Client talks to the marketplace REST backend.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout})
}

func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, http: hc}
}

// call performs one request and decodes the envelope. Methods cannot be generic, so this is a function.
func call[T any](ctx context.Context, c *Client, method, path string, body any, header http.Header) (Result[T], error) {
	var res Result[T]

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return res, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return res, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[Marketplace] %s %s failed: %v", method, path, err)
		return res, apperr.Transport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return res, apperr.Transport(fmt.Errorf("read body: %w", err)).WithStatus(resp.StatusCode)
	}
	log.Printf("[Marketplace] %s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	return decode[T](resp.StatusCode, raw)
}

// createOrderWire is the backend's create-order body; amounts go over the wire as numbers.
type createOrderWire struct {
	ShopID         string           `json:"shopId"`
	AddressID      string           `json:"addressId"`
	Items          []order.LineItem `json:"items"`
	PaymentMethod  string           `json:"paymentMethod"`
	ShippingFee    float64          `json:"shippingFee"`
	DiscountAmount float64          `json:"discountAmount"`
}

func amount(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// CreateOrders submits one create request. The backend may split it into several orders.
func (c *Client) CreateOrders(ctx context.Context, req order.CreateRequest, idempotencyKey string) ([]order.Order, error) {
	body := createOrderWire{
		ShopID:         req.ShopID,
		AddressID:      req.AddressID,
		Items:          req.Items,
		PaymentMethod:  string(req.PaymentMethod),
		ShippingFee:    amount(req.ShippingFee),
		DiscountAmount: amount(req.DiscountAmount),
	}
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set("Idempotency-Key", idempotencyKey)
	}

	res, err := call[json.RawMessage](ctx, c, http.MethodPost, "/api/orders", body, header)
	if err != nil {
		return nil, err
	}
	orders, err := decodeOrders(res.Value)
	if err != nil {
		return nil, apperr.Transport(fmt.Errorf("decode created orders: %w", err))
	}
	if len(orders) == 0 {
		return nil, apperr.BusinessRule(orDefault(res.Message, "The order could not be created"))
	}
	return orders, nil
}

// decodeOrders accepts a single order or a list.
func decodeOrders(raw json.RawMessage) ([]order.Order, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var orders []order.Order
		if err := json.Unmarshal(trimmed, &orders); err != nil {
			return nil, err
		}
		return orders, nil
	}
	var o order.Order
	if err := json.Unmarshal(trimmed, &o); err != nil {
		return nil, err
	}
	return []order.Order{o}, nil
}

// InitiatePayment starts an online payment and returns the provider's checkout URL on the payment.
func (c *Client) InitiatePayment(ctx context.Context, orderID string, method order.PaymentMethod) (*order.Payment, error) {
	body := map[string]string{"orderId": orderID, "method": string(method)}
	res, err := call[order.Payment](ctx, c, http.MethodPost, "/api/payments/initiate", body, nil)
	if err != nil {
		return nil, err
	}
	p := res.Value
	if p.OrderID == "" {
		p.OrderID = orderID
	}
	return &p, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	res, err := call[order.Order](ctx, c, http.MethodGet, "/api/orders/"+url.PathEscape(orderID), nil, nil)
	if err != nil {
		return nil, err
	}
	// A success envelope without data is no record at all
	if res.Value.ID == "" {
		return nil, apperr.NotFound("Order not found")
	}
	return &res.Value, nil
}

// ListOrders returns the caller's orders. The backend scopes the list by the forwarded token.
func (c *Client) ListOrders(ctx context.Context, status order.Status) ([]order.Order, error) {
	path := "/api/orders"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	res, err := call[[]order.Order](ctx, c, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// GetPaymentByOrder returns the payment record of an order. A missing record comes back as apperr.ErrNotFound.
func (c *Client) GetPaymentByOrder(ctx context.Context, orderID string) (*order.Payment, error) {
	res, err := call[order.Payment](ctx, c, http.MethodGet, "/api/payments/order/"+url.PathEscape(orderID), nil, nil)
	if err != nil {
		return nil, err
	}
	if res.Value.ID == "" {
		return nil, apperr.NotFound("Payment not found")
	}
	return &res.Value, nil
}

func (c *Client) UpdateStatus(ctx context.Context, orderID string, status order.Status) error {
	body := map[string]string{"status": string(status)}
	_, err := call[json.RawMessage](ctx, c, http.MethodPut, orderPath(orderID, "status"), body, nil)
	return err
}

func (c *Client) SetTrackingNumber(ctx context.Context, orderID, trackingNumber string) error {
	body := map[string]string{"trackingNumber": trackingNumber}
	_, err := call[json.RawMessage](ctx, c, http.MethodPut, orderPath(orderID, "tracking"), body, nil)
	return err
}

func (c *Client) CancelOrder(ctx context.Context, orderID, reason string) error {
	body := map[string]string{"reason": reason}
	_, err := call[json.RawMessage](ctx, c, http.MethodPost, orderPath(orderID, "cancel"), body, nil)
	return err
}

func (c *Client) ConfirmDelivery(ctx context.Context, orderID string) error {
	_, err := call[json.RawMessage](ctx, c, http.MethodPost, orderPath(orderID, "confirm-delivery"), nil, nil)
	return err
}

func (c *Client) UpdateAddress(ctx context.Context, orderID, addressID string) error {
	body := map[string]string{"addressId": addressID}
	_, err := call[json.RawMessage](ctx, c, http.MethodPut, orderPath(orderID, "address"), body, nil)
	return err
}

func (c *Client) ConfirmCashPayment(ctx context.Context, orderID string) error {
	_, err := call[json.RawMessage](ctx, c, http.MethodPost, "/api/payments/"+url.PathEscape(orderID)+"/confirm-cash", nil, nil)
	return err
}

// RemoveCartItems drops purchased products from the caller's cart.
func (c *Client) RemoveCartItems(ctx context.Context, productIDs []string) error {
	body := map[string][]string{"productIds": productIDs}
	_, err := call[json.RawMessage](ctx, c, http.MethodDelete, "/api/cart/items", body, nil)
	return err
}

func orderPath(orderID, action string) string {
	return "/api/orders/" + url.PathEscape(orderID) + "/" + action
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
