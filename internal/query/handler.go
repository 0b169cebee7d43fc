package query

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/example/ec-checkout/internal/apperr"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/readmodel"
)

var ErrCheckoutNotFound = errors.New("checkout not found")

// Backend is the read side of the marketplace client.
type Backend interface {
	GetOrder(ctx context.Context, orderID string) (*order.Order, error)
	ListOrders(ctx context.Context, status order.Status) ([]order.Order, error)
	GetPaymentByOrder(ctx context.Context, orderID string) (*order.Payment, error)
}

// ViewCache holds backend views. Clear drops a whole collection.
type ViewCache interface {
	store.ReadStoreInterface
	Clear(collection string)
}

// OrderView is an order together with the actions its viewer may take.
type OrderView struct {
	Order   *order.Order   `json:"order"`
	Payment *order.Payment `json:"payment,omitempty"`
	Actions order.Actions  `json:"actions"`
}

// viewerEntries keeps one cached value per viewer; the backend scopes what each caller may see.
type viewerEntries map[string]any

// listsGeneration is the generation key shared by every cached order list.
const listsGeneration = ""

type Handler struct {
	backend      Backend
	views        ViewCache
	checkouts    store.ReadStoreInterface
	suppressions *Suppressions

	// generations counts invalidations per order id. A fetch that started before an
	// invalidation must not write its result back.
	mu          sync.Mutex
	generations map[string]uint64
}

func NewHandler(backend Backend, views ViewCache, checkouts store.ReadStoreInterface, suppressions *Suppressions) *Handler {
	return &Handler{
		backend:      backend,
		views:        views,
		checkouts:    checkouts,
		suppressions: suppressions,
		generations:  make(map[string]uint64),
	}
}

// Orders

func (h *Handler) GetOrder(ctx context.Context, viewer order.Actor, orderID string) (*order.Order, error) {
	if v, ok := h.cached(store.CollectionOrders, orderID, viewer.UserID); ok {
		return v.(*order.Order), nil
	}
	gen := h.generation(orderID)
	o, err := h.backend.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	h.remember(store.CollectionOrders, orderID, viewer.UserID, o, orderID, gen)
	return o, nil
}

// GetOrderView returns the order with its available actions. The payment record is only
// looked up for online methods, where it decides between process and retry.
func (h *Handler) GetOrderView(ctx context.Context, viewer order.Actor, orderID string) (*OrderView, error) {
	o, err := h.GetOrder(ctx, viewer, orderID)
	if err != nil {
		return nil, err
	}

	var payment *order.Payment
	if o.PaymentMethod.IsOnline() {
		payment, err = h.GetPayment(ctx, viewer, orderID)
		if err != nil {
			return nil, err
		}
	}
	return &OrderView{
		Order:   o,
		Payment: payment,
		Actions: order.AvailableActions(o, payment, viewer.Role),
	}, nil
}

func (h *Handler) ListOrders(ctx context.Context, viewer order.Actor, status order.Status) ([]order.Order, error) {
	key := string(status)
	if v, ok := h.cached(store.CollectionOrderLists, key, viewer.UserID); ok {
		return v.([]order.Order), nil
	}
	gen := h.generation(listsGeneration)
	orders, err := h.backend.ListOrders(ctx, status)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []order.Order{}
	}
	h.remember(store.CollectionOrderLists, key, viewer.UserID, orders, listsGeneration, gen)
	return orders, nil
}

// Payments

// GetPayment returns the payment record of an order, or nil when the backend has none.
// Inside a suppression window lookup errors are logged and reported as no record.
func (h *Handler) GetPayment(ctx context.Context, viewer order.Actor, orderID string) (*order.Payment, error) {
	if v, ok := h.cached(store.CollectionPayments, orderID, viewer.UserID); ok {
		p, _ := v.(*order.Payment)
		return p, nil
	}

	gen := h.generation(orderID)
	p, err := h.backend.GetPaymentByOrder(ctx, orderID)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		p = nil
	case h.suppressions != nil && h.suppressions.Active(orderID):
		log.Printf("[Query] Ignoring payment lookup error for %s during confirmation window: %v", orderID, err)
		return nil, nil
	default:
		return nil, err
	}

	h.remember(store.CollectionPayments, orderID, viewer.UserID, p, orderID, gen)
	return p, nil
}

// Invalidate drops every cached view that may show orderID. Fetches already in flight for it
// are not cached when they return.
func (h *Handler) Invalidate(orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.generations[orderID]++
	h.generations[listsGeneration]++
	h.views.Delete(store.CollectionOrders, orderID)
	h.views.Delete(store.CollectionPayments, orderID)
	h.views.Clear(store.CollectionOrderLists)
}

func (h *Handler) cached(collection, id, viewerID string) (any, bool) {
	data, ok := h.views.Get(collection, id)
	if !ok {
		return nil, false
	}
	entries, ok := data.(viewerEntries)
	if !ok {
		return nil, false
	}
	v, ok := entries[viewerID]
	return v, ok
}

func (h *Handler) generation(key string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.generations[key]
}

// remember caches v unless key was invalidated since gen was read.
func (h *Handler) remember(collection, id, viewerID string, v any, key string, gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.generations[key] != gen {
		return
	}

	updated := h.views.Update(collection, id, func(current any) any {
		prev, _ := current.(viewerEntries)
		next := make(viewerEntries, len(prev)+1)
		for k, e := range prev {
			next[k] = e
		}
		next[viewerID] = v
		return next
	})
	if !updated {
		h.views.Set(collection, id, viewerEntries{viewerID: v})
	}
}

// Checkouts

// GetCheckout returns a checkout read model. Customers only see their own.
func (h *Handler) GetCheckout(viewer order.Actor, id string) (*readmodel.CheckoutReadModel, error) {
	data, ok := h.checkouts.Get(store.CollectionCheckouts, id)
	if !ok {
		return nil, ErrCheckoutNotFound
	}
	c := data.(*readmodel.CheckoutReadModel)
	if viewer.Role != order.RoleManager && c.CustomerID != viewer.UserID {
		return nil, ErrCheckoutNotFound
	}
	return c, nil
}

// ListCheckouts returns the viewer's checkouts, newest first. Managers see all of them.
func (h *Handler) ListCheckouts(viewer order.Actor, state string) []*readmodel.CheckoutReadModel {
	items := h.checkouts.GetAll(store.CollectionCheckouts)
	out := make([]*readmodel.CheckoutReadModel, 0, len(items))
	for _, item := range items {
		c := item.(*readmodel.CheckoutReadModel)
		if viewer.Role != order.RoleManager && c.CustomerID != viewer.UserID {
			continue
		}
		if state != "" && !strings.EqualFold(c.State, state) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
