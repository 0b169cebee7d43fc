package order

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusShipped   Status = "Shipped"
	StatusDelivered Status = "Delivered"
	StatusCanceled  Status = "Canceled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentFailed  PaymentStatus = "Failed"
)

type PaymentMethod string

const (
	MethodCOD    PaymentMethod = "COD"
	MethodCash   PaymentMethod = "Cash"
	MethodBank   PaymentMethod = "Bank"
	MethodWallet PaymentMethod = "Wallet"
)

// ParseStatus accepts any casing and the "Cancelled" spelling some payloads use.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, true
	case "confirmed":
		return StatusConfirmed, true
	case "shipped":
		return StatusShipped, true
	case "delivered":
		return StatusDelivered, true
	case "canceled", "cancelled":
		return StatusCanceled, true
	}
	return "", false
}

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return PaymentPending, true
	case "paid":
		return PaymentPaid, true
	case "failed":
		return PaymentFailed, true
	}
	return "", false
}

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cod":
		return MethodCOD, true
	case "cash":
		return MethodCash, true
	case "bank":
		return MethodBank, true
	case "wallet":
		return MethodWallet, true
	}
	return "", false
}

// UnmarshalJSON normalizes casing so the rest of the package compares against the constants above.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, ok := ParseStatus(raw); ok {
		*s = parsed
		return nil
	}
	*s = Status(raw)
	return nil
}

func (s *PaymentStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, ok := ParsePaymentStatus(raw); ok {
		*s = parsed
		return nil
	}
	*s = PaymentStatus(raw)
	return nil
}

func (m *PaymentMethod) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, ok := ParsePaymentMethod(raw); ok {
		*m = parsed
		return nil
	}
	*m = PaymentMethod(raw)
	return nil
}

// IsOnline reports whether the method settles through a redirect-based payment provider.
func (m PaymentMethod) IsOnline() bool {
	return m == MethodBank || m == MethodWallet
}

// IsCashOnDelivery reports whether the method is settled in cash when the parcel arrives.
func (m PaymentMethod) IsCashOnDelivery() bool {
	return m == MethodCOD || m == MethodCash
}

type Item struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Order mirrors the backend's order record. The backend is authoritative; this is a snapshot.
type Order struct {
	ID             string          `json:"orderId"`
	ShopID         string          `json:"shopId"`
	ShopName       string          `json:"shopName,omitempty"`
	CustomerID     string          `json:"customerId"`
	Status         Status          `json:"status"`
	PaymentStatus  PaymentStatus   `json:"paymentStatus"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod"`
	PaidFlag       *bool           `json:"isPaid,omitempty"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Items          []Item          `json:"items"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	AddressID      string          `json:"addressId"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// IsPaid prefers the explicit flag; older payloads only carry paymentStatus.
func (o *Order) IsPaid() bool {
	if o.PaidFlag != nil {
		return *o.PaidFlag
	}
	return o.PaymentStatus == PaymentPaid
}

type Payment struct {
	ID          string        `json:"paymentId"`
	OrderID     string        `json:"orderId"`
	Method      PaymentMethod `json:"method"`
	Status      PaymentStatus `json:"status"`
	OrderCode   string        `json:"orderCode,omitempty"`
	CheckoutURL string        `json:"checkoutUrl,omitempty"`
}

// LineItem is one product of a create request.
type LineItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// CreateRequest asks the backend to create the order(s) for one shop.
type CreateRequest struct {
	ShopID         string          `json:"shopId" validate:"required"`
	AddressID      string          `json:"addressId" validate:"required"`
	Items          []LineItem      `json:"items" validate:"min=1,dive"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod" validate:"required,oneof=COD Cash Bank Wallet"`
	ShippingFee    decimal.Decimal `json:"shippingFee" validate:"gte=0"`
	DiscountAmount decimal.Decimal `json:"discountAmount" validate:"gte=0"`
}
