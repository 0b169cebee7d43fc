package readmodel

import "time"

// ShopFailureReadModel records one shop whose order could not be created
type ShopFailureReadModel struct {
	ShopID   string `json:"shop_id"`
	ShopName string `json:"shop_name"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

// PaymentErrorReadModel records one order whose payment could not be initiated
type PaymentErrorReadModel struct {
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

// CheckoutReadModel is the read model for one checkout attempt
type CheckoutReadModel struct {
	ID            string                  `json:"id"`
	SessionID     string                  `json:"session_id"`
	CustomerID    string                  `json:"customer_id"`
	CustomerEmail string                  `json:"customer_email,omitempty"`
	State         string                  `json:"state"`
	PaymentMethod string                  `json:"payment_method"`
	ShopCount     int                     `json:"shop_count"`
	OrderIDs      []string                `json:"order_ids"`
	Failures      []ShopFailureReadModel  `json:"failures"`
	PaymentErrors []PaymentErrorReadModel `json:"payment_errors"`
	RedirectURL   string                  `json:"redirect_url,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
}

// Clone returns a deep copy, so a stored model can be replaced without touching values
// already handed to readers.
func (c *CheckoutReadModel) Clone() *CheckoutReadModel {
	out := *c
	out.OrderIDs = append([]string{}, c.OrderIDs...)
	out.Failures = append([]ShopFailureReadModel{}, c.Failures...)
	out.PaymentErrors = append([]PaymentErrorReadModel{}, c.PaymentErrors...)
	if c.CompletedAt != nil {
		completedAt := *c.CompletedAt
		out.CompletedAt = &completedAt
	}
	return &out
}
