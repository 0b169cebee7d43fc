package command

import "github.com/example/ec-checkout/internal/domain/order"

// Order commands. Actor is filled from the authenticated request, never from the body.

type UpdateStatus struct {
	OrderID string       `json:"orderId" validate:"required"`
	Status  order.Status `json:"status" validate:"required,oneof=Pending Confirmed Shipped Delivered Canceled"`
	Actor   order.Actor  `json:"-"`
}

type SetTrackingNumber struct {
	OrderID        string      `json:"orderId" validate:"required"`
	TrackingNumber string      `json:"trackingNumber" validate:"required,max=64"`
	Actor          order.Actor `json:"-"`
}

type CancelOrder struct {
	OrderID string      `json:"orderId" validate:"required"`
	Reason  string      `json:"reason" validate:"max=500"`
	Actor   order.Actor `json:"-"`
}

type ConfirmDelivery struct {
	OrderID string      `json:"orderId" validate:"required"`
	Actor   order.Actor `json:"-"`
}

type UpdateAddress struct {
	OrderID   string      `json:"orderId" validate:"required"`
	AddressID string      `json:"addressId" validate:"required"`
	Actor     order.Actor `json:"-"`
}

// Payment commands

type ConfirmCashPayment struct {
	OrderID string      `json:"orderId" validate:"required"`
	Actor   order.Actor `json:"-"`
}

// ProcessPayment starts or retries the online payment of a Bank/Wallet order.
type ProcessPayment struct {
	OrderID string      `json:"orderId" validate:"required"`
	Actor   order.Actor `json:"-"`
}
