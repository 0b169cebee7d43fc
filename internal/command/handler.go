package command

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/example/ec-checkout/internal/apperr"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/validation"
	validatorv10 "github.com/go-playground/validator/v10"
)

// Backend is the write side of the marketplace client.
type Backend interface {
	GetOrder(ctx context.Context, orderID string) (*order.Order, error)
	GetPaymentByOrder(ctx context.Context, orderID string) (*order.Payment, error)
	UpdateStatus(ctx context.Context, orderID string, status order.Status) error
	SetTrackingNumber(ctx context.Context, orderID, trackingNumber string) error
	CancelOrder(ctx context.Context, orderID, reason string) error
	ConfirmDelivery(ctx context.Context, orderID string) error
	UpdateAddress(ctx context.Context, orderID, addressID string) error
	ConfirmCashPayment(ctx context.Context, orderID string) error
	InitiatePayment(ctx context.Context, orderID string, method order.PaymentMethod) (*order.Payment, error)
}

// Invalidator drops cached views of an order.
type Invalidator interface {
	Invalidate(orderID string)
}

// Suppressor opens the window during which payment refetch errors are ignored.
type Suppressor interface {
	Start(orderID string) time.Time
}

// PaymentStarted is returned by ProcessPayment; the client redirects to CheckoutURL.
type PaymentStarted struct {
	OrderID     string              `json:"orderId"`
	Action      order.PaymentAction `json:"action"`
	CheckoutURL string              `json:"checkoutUrl"`
}

// Handler runs order actions. Every action re-reads the order from the backend, gates it
// against the order rules, issues one backend mutation and only then invalidates cached views.
type Handler struct {
	backend      Backend
	views        Invalidator
	journal      store.JournalInterface
	suppressions Suppressor
	validate     *validatorv10.Validate
	nowFunc      func() time.Time
}

func NewHandler(backend Backend, views Invalidator, journal store.JournalInterface, suppressions Suppressor) *Handler {
	return &Handler{
		backend:      backend,
		views:        views,
		journal:      journal,
		suppressions: suppressions,
		validate:     validation.New(),
		nowFunc:      time.Now,
	}
}

// UpdateStatus moves an order along the status table. Managers only.
func (h *Handler) UpdateStatus(ctx context.Context, cmd UpdateStatus) error {
	if parsed, ok := order.ParseStatus(string(cmd.Status)); ok {
		cmd.Status = parsed
	}
	o, err := h.load(ctx, cmd, cmd.OrderID)
	if err != nil {
		return err
	}
	if err := o.CheckStatusChange(cmd.Actor.Role, cmd.Status); err != nil {
		return rejected(err)
	}
	if err := h.backend.UpdateStatus(ctx, o.ID, cmd.Status); err != nil {
		return err
	}

	h.applied(ctx, o.ID, order.EventStatusUpdated, order.StatusUpdated{
		OrderID:   o.ID,
		From:      o.Status,
		To:        cmd.Status,
		ActorID:   cmd.Actor.UserID,
		UpdatedAt: h.nowFunc(),
	})
	return nil
}

// SetTrackingNumber records the carrier reference. Only while the order is Confirmed.
func (h *Handler) SetTrackingNumber(ctx context.Context, cmd SetTrackingNumber) error {
	o, err := h.load(ctx, cmd, cmd.OrderID)
	if err != nil {
		return err
	}
	if err := o.CheckTracking(cmd.Actor.Role); err != nil {
		return rejected(err)
	}
	if err := h.backend.SetTrackingNumber(ctx, o.ID, cmd.TrackingNumber); err != nil {
		return err
	}

	h.applied(ctx, o.ID, order.EventTrackingNumberSet, order.TrackingNumberSet{
		OrderID:        o.ID,
		TrackingNumber: cmd.TrackingNumber,
		ActorID:        cmd.Actor.UserID,
		SetAt:          h.nowFunc(),
	})
	return nil
}

// CancelOrder cancels on behalf of a manager (any non-terminal status) or the customer
// (Pending or Confirmed only).
func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) error {
	o, err := h.load(ctx, cmd, cmd.OrderID)
	if err != nil {
		return err
	}
	if cmd.Actor.Role == order.RoleManager {
		err = o.CheckStatusChange(cmd.Actor.Role, order.StatusCanceled)
	} else {
		err = o.CheckCustomerCancel()
	}
	if err != nil {
		return rejected(err)
	}
	if err := h.backend.CancelOrder(ctx, o.ID, cmd.Reason); err != nil {
		return err
	}

	h.applied(ctx, o.ID, order.EventOrderCanceled, order.OrderCanceled{
		OrderID:    o.ID,
		Reason:     cmd.Reason,
		ActorID:    cmd.Actor.UserID,
		CanceledAt: h.nowFunc(),
	})
	return nil
}

func (h *Handler) ConfirmDelivery(ctx context.Context, cmd ConfirmDelivery) error {
	o, err := h.load(ctx, cmd, cmd.OrderID)
	if err != nil {
		return err
	}
	if err := o.CheckConfirmDelivery(cmd.Actor.Role); err != nil {
		return rejected(err)
	}
	if err := h.backend.ConfirmDelivery(ctx, o.ID); err != nil {
		return err
	}

	h.applied(ctx, o.ID, order.EventDeliveryConfirmed, order.DeliveryConfirmed{
		OrderID:     o.ID,
		CustomerID:  cmd.Actor.UserID,
		ConfirmedAt: h.nowFunc(),
	})
	return nil
}

func (h *Handler) UpdateAddress(ctx context.Context, cmd UpdateAddress) error {
	o, err := h.load(ctx, cmd, cmd.OrderID)
	if err != nil {
		return err
	}
	if err := o.CheckAddressUpdate(); err != nil {
		return rejected(err)
	}
	if err := h.backend.UpdateAddress(ctx, o.ID, cmd.AddressID); err != nil {
		return err
	}

	h.applied(ctx, o.ID, order.EventAddressUpdated, order.AddressUpdated{
		OrderID:   o.ID,
		AddressID: cmd.AddressID,
		ActorID:   cmd.Actor.UserID,
		UpdatedAt: h.nowFunc(),
	})
	return nil
}

// ConfirmCashPayment settles a delivered COD/Cash order. The backend updates the payment
// record asynchronously, so a suppression window is opened before views are invalidated.
func (h *Handler) ConfirmCashPayment(ctx context.Context, cmd ConfirmCashPayment) error {
	o, err := h.load(ctx, cmd, cmd.OrderID)
	if err != nil {
		return err
	}
	if err := o.CheckCashConfirmation(cmd.Actor.Role); err != nil {
		return rejected(err)
	}
	if err := h.backend.ConfirmCashPayment(ctx, o.ID); err != nil {
		return err
	}

	if h.suppressions != nil {
		h.suppressions.Start(o.ID)
	}
	h.applied(ctx, o.ID, order.EventCashPaymentConfirmed, order.CashPaymentConfirmed{
		OrderID:     o.ID,
		Method:      o.PaymentMethod,
		CustomerID:  cmd.Actor.UserID,
		ConfirmedAt: h.nowFunc(),
	})
	return nil
}

// ProcessPayment starts (or retries) the online payment of a Bank/Wallet order and returns
// the provider checkout URL.
func (h *Handler) ProcessPayment(ctx context.Context, cmd ProcessPayment) (*PaymentStarted, error) {
	o, err := h.load(ctx, cmd, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	existing, err := h.backend.GetPaymentByOrder(ctx, o.ID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	action, err := o.CheckOnlinePayment(cmd.Actor.Role, existing)
	if err != nil {
		return nil, rejected(err)
	}

	payment, err := h.backend.InitiatePayment(ctx, o.ID, o.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.CheckoutURL == "" {
		h.views.Invalidate(o.ID)
		return nil, apperr.BusinessRule("The payment provider did not return a checkout link")
	}

	h.applied(ctx, o.ID, order.EventPaymentProcessed, order.PaymentProcessed{
		OrderID:     o.ID,
		Method:      o.PaymentMethod,
		Action:      action,
		CheckoutURL: payment.CheckoutURL,
		ProcessedAt: h.nowFunc(),
	})
	return &PaymentStarted{OrderID: o.ID, Action: action, CheckoutURL: payment.CheckoutURL}, nil
}

// load validates cmd and fetches the current order.
func (h *Handler) load(ctx context.Context, cmd any, orderID string) (*order.Order, error) {
	if err := validation.Check(h.validate, cmd); err != nil {
		return nil, err
	}
	o, err := h.backend.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.ID == "" {
		o.ID = orderID
	}
	return o, nil
}

// applied invalidates cached views and journals the action. The backend already holds the
// change, so a journal failure is logged only.
func (h *Handler) applied(ctx context.Context, orderID, eventType string, data any) {
	h.views.Invalidate(orderID)
	if h.journal == nil {
		return
	}
	if _, err := h.journal.Append(ctx, orderID, order.AggregateType, eventType, data); err != nil {
		log.Printf("[Command] %s: failed to journal %s: %v", orderID, eventType, err)
	}
}

func rejected(err error) error {
	e := apperr.Rule(err)
	if errors.Is(err, order.ErrForbidden) {
		e.Status = http.StatusForbidden
	}
	return e
}
