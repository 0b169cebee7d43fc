package projection

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/readmodel"
)

// Invalidator drops cached backend views of an order.
type Invalidator interface {
	Invalidate(orderID string)
}

// Projector builds checkout read models from journal events and, when given an
// Invalidator, drops cached order views whenever another instance mutated an order.
type Projector struct {
	readStore store.ReadStoreInterface
	views     Invalidator
}

func NewProjector(readStore store.ReadStoreInterface) *Projector {
	return &Projector{readStore: readStore}
}

// WithInvalidator makes order events evict cached views.
func (p *Projector) WithInvalidator(views Invalidator) *Projector {
	p.views = views
	return p
}

func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}

	log.Printf("[Projector] Received event: %s (aggregate: %s)", event.EventType, event.AggregateType)

	switch event.AggregateType {
	case checkout.AggregateType:
		return p.handleCheckoutEvent(event)
	case order.AggregateType:
		if p.views != nil {
			p.views.Invalidate(event.AggregateID)
		}
	}

	return nil
}

func (p *Projector) handleCheckoutEvent(event store.Event) error {
	switch event.EventType {
	case checkout.EventCheckoutSubmitted:
		var e checkout.CheckoutSubmitted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.upsert(e.CheckoutID, func(c *readmodel.CheckoutReadModel) {
			c.SessionID = e.SessionID
			c.CustomerID = e.CustomerID
			c.CustomerEmail = e.CustomerEmail
			c.PaymentMethod = e.PaymentMethod
			c.ShopCount = len(e.ShopIDs)
			c.CreatedAt = e.SubmittedAt
			if c.State == "" {
				c.State = string(checkout.StateSubmitting)
			}
		})

	case checkout.EventPaymentsInitiated:
		var e checkout.PaymentsInitiated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.upsert(e.CheckoutID, func(c *readmodel.CheckoutReadModel) {
			c.RedirectURL = e.RedirectURL
			c.PaymentErrors = make([]readmodel.PaymentErrorReadModel, len(e.PaymentErrors))
			for i, pe := range e.PaymentErrors {
				c.PaymentErrors[i] = readmodel.PaymentErrorReadModel{OrderID: pe.OrderID, Message: pe.Message}
			}
		})

	case checkout.EventCheckoutCompleted:
		var e checkout.CheckoutCompleted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		completedAt := e.CompletedAt
		p.upsert(e.CheckoutID, func(c *readmodel.CheckoutReadModel) {
			c.SessionID = e.SessionID
			c.CustomerID = e.CustomerID
			if e.CustomerEmail != "" {
				c.CustomerEmail = e.CustomerEmail
			}
			c.State = e.State
			c.OrderIDs = append([]string{}, e.OrderIDs...)
			c.Failures = make([]readmodel.ShopFailureReadModel, len(e.Failures))
			for i, f := range e.Failures {
				c.Failures[i] = readmodel.ShopFailureReadModel{
					ShopID:   f.ShopID,
					ShopName: f.ShopName,
					Kind:     f.Kind,
					Message:  f.Message,
				}
			}
			if c.CreatedAt.IsZero() {
				c.CreatedAt = completedAt
			}
			c.CompletedAt = &completedAt
		})
	}

	return nil
}

// upsert applies fn to a copy of the checkout read model and stores the copy, creating the
// model first if no event for the checkout has been projected yet. Stored models are never
// mutated in place, so readers may keep them.
func (p *Projector) upsert(checkoutID string, fn func(c *readmodel.CheckoutReadModel)) {
	updated := p.readStore.Update(store.CollectionCheckouts, checkoutID, func(current any) any {
		c := current.(*readmodel.CheckoutReadModel).Clone()
		fn(c)
		return c
	})
	if updated {
		return
	}

	c := &readmodel.CheckoutReadModel{
		ID:            checkoutID,
		OrderIDs:      []string{},
		Failures:      []readmodel.ShopFailureReadModel{},
		PaymentErrors: []readmodel.PaymentErrorReadModel{},
	}
	fn(c)
	p.readStore.Set(store.CollectionCheckouts, checkoutID, c)
}
