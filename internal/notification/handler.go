package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/email"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/readmodel"
)

// Mailer sends the checkout emails
type Mailer interface {
	SendCheckoutConfirmation(to string, summary email.CheckoutSummary) error
	SendCheckoutFailed(to string, summary email.CheckoutSummary) error
}

// Handler processes events for sending notifications
type Handler struct {
	mailer    Mailer
	readStore store.ReadStoreInterface
}

// NewHandler creates a new notification handler. readStore may be nil; it is only used
// to add the payment link of an online checkout.
func NewHandler(mailer Mailer, readStore store.ReadStoreInterface) *Handler {
	return &Handler{
		mailer:    mailer,
		readStore: readStore,
	}
}

// HandleEvent processes one journal event
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	// Only completed checkouts are announced
	if event.EventType == checkout.EventCheckoutCompleted {
		return h.handleCheckoutCompleted(event)
	}

	return nil
}

func (h *Handler) handleCheckoutCompleted(event store.Event) error {
	var e checkout.CheckoutCompleted
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal CheckoutCompleted event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing CheckoutCompleted event for checkout %s (%s)", e.CheckoutID, e.State)

	if e.CustomerEmail == "" {
		log.Printf("[Notifier] No email address for customer %s, skipping", e.CustomerID)
		return nil
	}

	summary := email.CheckoutSummary{
		CheckoutID:  e.CheckoutID,
		OrderIDs:    e.OrderIDs,
		FailedShops: make([]email.FailedShop, len(e.Failures)),
	}
	for i, f := range e.Failures {
		name := f.ShopName
		if name == "" {
			name = f.ShopID
		}
		summary.FailedShops[i] = email.FailedShop{Name: name, Message: f.Message}
	}
	summary.PaymentURL = h.paymentURL(e.CheckoutID)

	var err error
	if e.State == string(checkout.StateFailed) {
		err = h.mailer.SendCheckoutFailed(e.CustomerEmail, summary)
	} else {
		err = h.mailer.SendCheckoutConfirmation(e.CustomerEmail, summary)
	}
	if err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", e.CustomerEmail, err)
		return err
	}

	log.Printf("[Notifier] Checkout email sent to %s for checkout %s", e.CustomerEmail, e.CheckoutID)
	return nil
}

func (h *Handler) paymentURL(checkoutID string) string {
	if h.readStore == nil {
		return ""
	}
	data, ok := h.readStore.Get(store.CollectionCheckouts, checkoutID)
	if !ok {
		return ""
	}
	c, ok := data.(*readmodel.CheckoutReadModel)
	if !ok {
		return ""
	}
	return c.RedirectURL
}
