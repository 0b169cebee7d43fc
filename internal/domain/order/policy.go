package order

import "strings"

type Role string

const (
	RoleManager  Role = "manager"
	RoleCustomer Role = "customer"
)

// RoleFromClaim maps a token role to the role used for order gating. Sellers and admins manage orders.
func RoleFromClaim(claim string) Role {
	switch strings.ToLower(claim) {
	case "seller", "admin", "manager":
		return RoleManager
	default:
		return RoleCustomer
	}
}

type PaymentAction string

const (
	PaymentActionNone    PaymentAction = ""
	PaymentActionProcess PaymentAction = "process"
	PaymentActionRetry   PaymentAction = "retry"
)

func (o *Order) CanSetTracking() bool {
	return o.Status == StatusConfirmed
}

func (o *Order) CanCustomerCancel() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}

func (o *Order) CanConfirmDelivery() bool {
	return o.Status == StatusShipped && o.IsPaid()
}

func (o *Order) CanUpdateAddress() bool {
	switch o.Status {
	case StatusShipped, StatusDelivered, StatusCanceled:
		return false
	}
	return true
}

// CashConfirmationOffered reports whether the customer may settle a COD/Cash order.
// The shop must have marked the order delivered first.
func (o *Order) CashConfirmationOffered() bool {
	return o.PaymentMethod.IsCashOnDelivery() &&
		o.Status == StatusDelivered &&
		o.PaymentStatus == PaymentPending
}

// OnlinePaymentAction decides between a fresh payment and a retry for Bank/Wallet orders.
// existing is the current payment record, nil when the backend has none.
func (o *Order) OnlinePaymentAction(existing *Payment) PaymentAction {
	if !o.PaymentMethod.IsOnline() {
		return PaymentActionNone
	}
	if o.Status != StatusConfirmed || o.PaymentStatus != PaymentPending {
		return PaymentActionNone
	}
	if existing == nil {
		return PaymentActionProcess
	}
	if existing.Status == PaymentPending {
		return PaymentActionRetry
	}
	return PaymentActionNone
}

// Actions is the set of operations a client may offer for an order.
type Actions struct {
	NextStatuses          []Status      `json:"nextStatuses"`
	CanSetTracking        bool          `json:"canSetTracking"`
	CanCancel             bool          `json:"canCancel"`
	CanConfirmDelivery    bool          `json:"canConfirmDelivery"`
	CanUpdateAddress      bool          `json:"canUpdateAddress"`
	CanConfirmCashPayment bool          `json:"canConfirmCashPayment"`
	PaymentAction         PaymentAction `json:"paymentAction,omitempty"`
}

func AvailableActions(o *Order, payment *Payment, role Role) Actions {
	if role == RoleManager {
		return Actions{
			NextStatuses:     NextStatuses(o.Status),
			CanSetTracking:   o.CanSetTracking(),
			CanCancel:        o.CanTransitionTo(StatusCanceled),
			CanUpdateAddress: o.CanUpdateAddress(),
		}
	}
	return Actions{
		NextStatuses:          []Status{},
		CanCancel:             o.CanCustomerCancel(),
		CanConfirmDelivery:    o.CanConfirmDelivery(),
		CanUpdateAddress:      o.CanUpdateAddress(),
		CanConfirmCashPayment: o.CashConfirmationOffered(),
		PaymentAction:         o.OnlinePaymentAction(payment),
	}
}

// CheckStatusChange validates a manager-initiated transition.
func (o *Order) CheckStatusChange(role Role, target Status) error {
	if role != RoleManager {
		return ErrForbidden
	}
	if !o.CanTransitionTo(target) {
		return o.TransitionError(target)
	}
	return nil
}

func (o *Order) CheckTracking(role Role) error {
	if role != RoleManager {
		return ErrForbidden
	}
	if !o.CanSetTracking() {
		return ErrTrackingNotAllowed
	}
	return nil
}

func (o *Order) CheckCustomerCancel() error {
	if !o.CanCustomerCancel() {
		if o.Status == StatusCanceled {
			return ErrOrderCanceled
		}
		return ErrCancelNotAllowed
	}
	return nil
}

func (o *Order) CheckConfirmDelivery(role Role) error {
	if role != RoleCustomer {
		return ErrForbidden
	}
	if !o.CanConfirmDelivery() {
		return ErrDeliveryNotAllowed
	}
	return nil
}

func (o *Order) CheckAddressUpdate() error {
	if !o.CanUpdateAddress() {
		return ErrAddressLocked
	}
	return nil
}

func (o *Order) CheckCashConfirmation(role Role) error {
	if role != RoleCustomer {
		return ErrForbidden
	}
	if !o.CashConfirmationOffered() {
		return ErrCashConfirmNotOffered
	}
	return nil
}

func (o *Order) CheckOnlinePayment(role Role, existing *Payment) (PaymentAction, error) {
	if role != RoleCustomer {
		return PaymentActionNone, ErrForbidden
	}
	action := o.OnlinePaymentAction(existing)
	if action == PaymentActionNone {
		return PaymentActionNone, ErrPaymentNotOffered
	}
	return action, nil
}

// Actor is the authenticated caller of an order action.
type Actor struct {
	UserID string
	Role   Role
}
