package order

import "time"

const AggregateType = "Order"

const (
	EventStatusUpdated        = "OrderStatusUpdated"
	EventTrackingNumberSet    = "TrackingNumberSet"
	EventOrderCanceled        = "OrderCanceled"
	EventDeliveryConfirmed    = "DeliveryConfirmed"
	EventAddressUpdated       = "OrderAddressUpdated"
	EventCashPaymentConfirmed = "CashPaymentConfirmed"
	EventPaymentProcessed     = "PaymentProcessed"
)

type StatusUpdated struct {
	OrderID   string    `json:"order_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ActorID   string    `json:"actor_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TrackingNumberSet struct {
	OrderID        string    `json:"order_id"`
	TrackingNumber string    `json:"tracking_number"`
	ActorID        string    `json:"actor_id"`
	SetAt          time.Time `json:"set_at"`
}

type OrderCanceled struct {
	OrderID    string    `json:"order_id"`
	Reason     string    `json:"reason"`
	ActorID    string    `json:"actor_id"`
	CanceledAt time.Time `json:"canceled_at"`
}

type DeliveryConfirmed struct {
	OrderID     string    `json:"order_id"`
	CustomerID  string    `json:"customer_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type AddressUpdated struct {
	OrderID   string    `json:"order_id"`
	AddressID string    `json:"address_id"`
	ActorID   string    `json:"actor_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CashPaymentConfirmed struct {
	OrderID     string        `json:"order_id"`
	Method      PaymentMethod `json:"method"`
	CustomerID  string        `json:"customer_id"`
	ConfirmedAt time.Time     `json:"confirmed_at"`
}

type PaymentProcessed struct {
	OrderID     string        `json:"order_id"`
	Method      PaymentMethod `json:"method"`
	Action      PaymentAction `json:"action"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
	ProcessedAt time.Time     `json:"processed_at"`
}
