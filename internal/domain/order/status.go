package order

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStatus         = errors.New("invalid order status transition")
	ErrOrderCanceled         = errors.New("order is already canceled")
	ErrOrderDelivered        = errors.New("order is already delivered")
	ErrTrackingNotAllowed    = errors.New("tracking number can only be set while the order is confirmed")
	ErrCancelNotAllowed      = errors.New("order can no longer be canceled by the customer")
	ErrDeliveryNotAllowed    = errors.New("delivery can only be confirmed for shipped and paid orders")
	ErrAddressLocked         = errors.New("address can no longer be changed for this order")
	ErrCashConfirmNotOffered = errors.New("cash payment confirmation is only available for delivered orders awaiting payment")
	ErrPaymentNotOffered     = errors.New("online payment is not available for this order")
	ErrForbidden             = errors.New("action not permitted for this role")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCanceled},
	StatusConfirmed: {StatusShipped, StatusCanceled},
	StatusShipped:   {StatusDelivered, StatusCanceled},
	StatusDelivered: {}, // terminal state
	StatusCanceled:  {}, // terminal state
}

// NextStatuses returns the statuses reachable from s. The slice is a copy.
func NextStatuses(s Status) []Status {
	allowed := validTransitions[s]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// CanTransition checks whether from -> to appears in the transition table
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func IsTerminal(s Status) bool {
	allowed, exists := validTransitions[s]
	return exists && len(allowed) == 0
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	return CanTransition(o.Status, target)
}

// TransitionError returns an appropriate error for an invalid transition
func (o *Order) TransitionError(target Status) error {
	switch {
	case o.Status == StatusCanceled:
		return ErrOrderCanceled
	case o.Status == StatusDelivered:
		return ErrOrderDelivered
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}
