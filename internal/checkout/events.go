package checkout

import "time"

const AggregateType = "Checkout"

// Journal event types
const (
	EventCheckoutSubmitted = "CheckoutSubmitted"
	EventCheckoutCompleted = "CheckoutCompleted"
	EventPaymentsInitiated = "PaymentsInitiated"
)

type CheckoutSubmitted struct {
	CheckoutID    string    `json:"checkout_id"`
	SessionID     string    `json:"session_id"`
	CustomerID    string    `json:"customer_id"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	PaymentMethod string    `json:"payment_method"`
	ShopIDs       []string  `json:"shop_ids"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

type ShopFailurePayload struct {
	ShopID   string `json:"shop_id"`
	ShopName string `json:"shop_name"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

type PaymentErrorPayload struct {
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

type CheckoutCompleted struct {
	CheckoutID    string               `json:"checkout_id"`
	SessionID     string               `json:"session_id"`
	CustomerID    string               `json:"customer_id"`
	CustomerEmail string               `json:"customer_email,omitempty"`
	State         string               `json:"state"`
	OrderIDs      []string             `json:"order_ids"`
	Failures      []ShopFailurePayload `json:"failures"`
	NextOrderID   string               `json:"next_order_id,omitempty"`
	CompletedAt   time.Time            `json:"completed_at"`
}

type PaymentsInitiated struct {
	CheckoutID    string                `json:"checkout_id"`
	RedirectURL   string                `json:"redirect_url,omitempty"`
	CheckoutURLs  map[string]string     `json:"checkout_urls"`
	PaymentErrors []PaymentErrorPayload `json:"payment_errors"`
	InitiatedAt   time.Time             `json:"initiated_at"`
}
