package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/apperr"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/validation"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNoOrdersCreated means every shop's order creation failed. The report lists why.
var ErrNoOrdersCreated = errors.New("no orders were created")

type OrderCreator interface {
	CreateOrders(ctx context.Context, req order.CreateRequest, idempotencyKey string) ([]order.Order, error)
}

type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, orderID string, method order.PaymentMethod) (*order.Payment, error)
}

type CartClearer interface {
	RemoveCartItems(ctx context.Context, productIDs []string) error
}

// Recorder receives every settled report, for metrics.
type Recorder interface {
	Record(ctx context.Context, report *Report)
}

type Request struct {
	SessionID     string              `json:"sessionId"`
	CustomerID    string              `json:"customerId"`
	CustomerEmail string              `json:"customerEmail,omitempty"`
	AddressID     string              `json:"addressId"`
	PaymentMethod order.PaymentMethod `json:"paymentMethod"`
	Lines         []cart.CartLine     `json:"lines"`
	// Include restricts the checkout to these product ids. Empty means the whole cart.
	Include []string `json:"selectedProductIds,omitempty"`
	// InitiatePayment starts online payment for Bank/Wallet right away instead of deferring it.
	InitiatePayment bool `json:"initiatePayment,omitempty"`
}

type ShopFailure struct {
	ShopID     string      `json:"shopId"`
	ShopName   string      `json:"shopName"`
	ProductIDs []string    `json:"productIds"`
	Kind       apperr.Kind `json:"kind"`
	Message    string      `json:"message"`
}

type PaymentError struct {
	OrderID string      `json:"orderId"`
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Report is the outcome of one checkout attempt. A partial failure is reported here, never as an error.
type Report struct {
	CheckoutID       string         `json:"checkoutId"`
	SessionID        string         `json:"sessionId"`
	State            State          `json:"state"`
	PaymentMethod    string         `json:"paymentMethod"`
	ShopCount        int            `json:"shopCount"`
	SuccessfulOrders []order.Order  `json:"successfulOrders"`
	FailedOrders     []ShopFailure  `json:"failedOrders"`
	PaymentErrors    []PaymentError `json:"paymentErrors,omitempty"`
	RedirectURL      string         `json:"redirectUrl,omitempty"`
	NextOrderID      string         `json:"nextOrderId,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
}

// failureWarnings lists one line per failed shop, for display next to a partial success.
func (r *Report) failureWarnings() []string {
	out := make([]string, 0, len(r.FailedOrders))
	for _, f := range r.FailedOrders {
		name := f.ShopName
		if name == "" {
			name = f.ShopID
		}
		out = append(out, fmt.Sprintf("%s: %s", name, f.Message))
	}
	return out
}

func (r *Report) OrderIDs() []string {
	ids := make([]string, len(r.SuccessfulOrders))
	for i, o := range r.SuccessfulOrders {
		ids[i] = o.ID
	}
	return ids
}

type Orchestrator struct {
	orders   OrderCreator
	payments PaymentInitiator
	cart     CartClearer
	journal  store.JournalInterface
	recorder Recorder
	sessions *Sessions
	validate *validatorv10.Validate
	nowFunc  func() time.Time
	newID    func() string
}

func NewOrchestrator(
	orders OrderCreator,
	payments PaymentInitiator,
	cartClearer CartClearer,
	journal store.JournalInterface,
	recorder Recorder,
) *Orchestrator {
	return &Orchestrator{
		orders:   orders,
		payments: payments,
		cart:     cartClearer,
		journal:  journal,
		recorder: recorder,
		sessions: NewSessions(),
		validate: validation.New(),
		nowFunc:  time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// State returns the submission state of a checkout session.
func (o *Orchestrator) State(sessionID string) Snapshot {
	snap, _ := o.sessions.Lookup(sessionID)
	return snap
}

// Submit places one order per shop in the selection. The returned error is non-nil for
// validation failures, an in-flight submission, or when no order at all was created.
//
// Backend calls ignore ctx cancellation, so a disconnecting caller never aborts creates the
// backend may already have committed. The client timeout still bounds each call.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Report, error) {
	ctx = context.WithoutCancel(ctx)

	groups, err := o.prepare(&req)
	if err != nil {
		return nil, err
	}

	checkoutID := o.newID()
	session, err := o.sessions.Begin(req.SessionID, checkoutID, req.CustomerID, o.nowFunc())
	if err != nil {
		return nil, err
	}

	report := &Report{
		CheckoutID:    checkoutID,
		SessionID:     req.SessionID,
		PaymentMethod: string(req.PaymentMethod),
		ShopCount:     len(groups),
	}
	log.Printf("[Checkout] %s: submitting %d shop order(s) for session %s", checkoutID, len(groups), req.SessionID)

	shopIDs := make([]string, len(groups))
	for i, g := range groups {
		shopIDs[i] = g.ShopID
	}
	o.appendEvent(ctx, checkoutID, EventCheckoutSubmitted, CheckoutSubmitted{
		CheckoutID:    checkoutID,
		SessionID:     req.SessionID,
		CustomerID:    req.CustomerID,
		CustomerEmail: req.CustomerEmail,
		PaymentMethod: string(req.PaymentMethod),
		ShopIDs:       shopIDs,
		SubmittedAt:   o.nowFunc(),
	})

	purchased := o.createOrders(ctx, checkoutID, req, groups, report)

	if len(report.SuccessfulOrders) == 0 {
		report.State = StateFailed
		o.settle(ctx, session, req, report)
		log.Printf("[Checkout] %s: no orders created (%d shop(s) failed)", checkoutID, len(report.FailedOrders))
		return report, ErrNoOrdersCreated
	}

	if err := o.cart.RemoveCartItems(ctx, purchased); err != nil {
		log.Printf("[Checkout] %s: failed to clear %d purchased item(s) from cart: %v", checkoutID, len(purchased), err)
	}

	report.NextOrderID = report.SuccessfulOrders[0].ID
	if req.InitiatePayment && req.PaymentMethod.IsOnline() {
		o.initiatePayments(ctx, req.PaymentMethod, report)
	}

	report.State = StateSucceeded
	if len(report.FailedOrders) > 0 {
		report.State = StatePartiallyFailed
	}
	o.settle(ctx, session, req, report)
	log.Printf("[Checkout] %s: %s with %d order(s), %d failed shop(s)",
		checkoutID, report.State, len(report.SuccessfulOrders), len(report.FailedOrders))
	return report, nil
}

// prepare checks every precondition and builds the per-shop groups. No network call happens here.
func (o *Orchestrator) prepare(req *Request) ([]*cart.ShopOrderGroup, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, apperr.Validation("missing session", map[string][]string{
			"sessionId": {"sessionId is required"},
		})
	}
	if strings.TrimSpace(req.AddressID) == "" {
		return nil, apperr.Validation("missing address", map[string][]string{
			"addressId": {"Please select a delivery address"},
		})
	}
	method, ok := order.ParsePaymentMethod(string(req.PaymentMethod))
	if !ok {
		return nil, apperr.Validation("invalid payment method", map[string][]string{
			"paymentMethod": {"paymentMethod must be one of: COD, Cash, Bank, Wallet"},
		})
	}
	req.PaymentMethod = method

	partition, err := cart.PartitionLines(req.Lines, req.Include)
	if err != nil {
		return nil, apperr.Validation("invalid cart line", map[string][]string{
			"lines": {err.Error()},
		})
	}
	if partition.Len() == 0 && len(partition.Unresolved) == 0 {
		return nil, apperr.Validation("empty cart", map[string][]string{
			"lines": {"Your cart has no items to check out"},
		})
	}
	if len(partition.Unresolved) > 0 {
		ids := make([]string, len(partition.Unresolved))
		for i, l := range partition.Unresolved {
			ids[i] = l.ProductID
		}
		return nil, apperr.Validation("unresolvable shop", map[string][]string{
			"lines": {"The shop could not be determined for product(s): " + strings.Join(ids, ", ")},
		})
	}

	groups := partition.Ordered()
	for _, g := range groups {
		if err := validation.Check(o.validate, buildCreateRequest(g, req.AddressID, method)); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func buildCreateRequest(g *cart.ShopOrderGroup, addressID string, method order.PaymentMethod) order.CreateRequest {
	items := make([]order.LineItem, len(g.Lines))
	for i, l := range g.Lines {
		items[i] = order.LineItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return order.CreateRequest{
		ShopID:         g.ShopID,
		AddressID:      strings.TrimSpace(addressID),
		Items:          items,
		PaymentMethod:  method,
		ShippingFee:    g.ShippingFee,
		DiscountAmount: decimal.Zero,
	}
}

// createOrders dispatches every shop's create request and reconciles the settled outcomes into
// report. It returns the product ids whose orders were created.
func (o *Orchestrator) createOrders(ctx context.Context, checkoutID string, req Request, groups []*cart.ShopOrderGroup, report *Report) []string {
	tasks := make([]func(context.Context) ([]order.Order, error), len(groups))
	for i, g := range groups {
		createReq := buildCreateRequest(g, req.AddressID, req.PaymentMethod)
		key := checkoutID + ":" + g.ShopID
		tasks[i] = func(ctx context.Context) ([]order.Order, error) {
			return o.orders.CreateOrders(ctx, createReq, key)
		}
	}

	var purchased []string
	for i, outcome := range SettleAll(ctx, tasks) {
		g := groups[i]
		if outcome.Err != nil {
			log.Printf("[Checkout] %s: shop %s failed: %v", checkoutID, g.ShopID, outcome.Err)
			report.FailedOrders = append(report.FailedOrders, ShopFailure{
				ShopID:     g.ShopID,
				ShopName:   g.ShopName,
				ProductIDs: g.ProductIDs(),
				Kind:       apperr.KindOf(outcome.Err),
				Message:    apperr.UserMessage(outcome.Err),
			})
			continue
		}
		for _, created := range outcome.Value {
			if created.ShopID == "" {
				created.ShopID = g.ShopID
			}
			if created.ShopName == "" {
				created.ShopName = g.ShopName
			}
			report.SuccessfulOrders = append(report.SuccessfulOrders, created)
		}
		purchased = append(purchased, g.ProductIDs()...)
	}
	return purchased
}

// initiatePayments starts online payment for every created order. Orders without a usable
// checkout URL are reported as payment errors; the rest proceed.
func (o *Orchestrator) initiatePayments(ctx context.Context, method order.PaymentMethod, report *Report) {
	tasks := make([]func(context.Context) (*order.Payment, error), len(report.SuccessfulOrders))
	for i, created := range report.SuccessfulOrders {
		orderID := created.ID
		tasks[i] = func(ctx context.Context) (*order.Payment, error) {
			return o.payments.InitiatePayment(ctx, orderID, method)
		}
	}

	urls := make(map[string]string)
	for i, outcome := range SettleAll(ctx, tasks) {
		orderID := report.SuccessfulOrders[i].ID
		switch {
		case outcome.Err != nil:
			report.PaymentErrors = append(report.PaymentErrors, PaymentError{
				OrderID: orderID,
				Kind:    apperr.KindOf(outcome.Err),
				Message: apperr.UserMessage(outcome.Err),
			})
		case outcome.Value == nil || strings.TrimSpace(outcome.Value.CheckoutURL) == "":
			report.PaymentErrors = append(report.PaymentErrors, PaymentError{
				OrderID: orderID,
				Kind:    apperr.KindBusinessRule,
				Message: "No payment link was returned for this order",
			})
		default:
			urls[orderID] = outcome.Value.CheckoutURL
			if report.RedirectURL == "" {
				report.RedirectURL = outcome.Value.CheckoutURL
			}
		}
	}

	payload := PaymentsInitiated{
		CheckoutID:   report.CheckoutID,
		RedirectURL:  report.RedirectURL,
		CheckoutURLs: urls,
		InitiatedAt:  o.nowFunc(),
	}
	for _, pe := range report.PaymentErrors {
		payload.PaymentErrors = append(payload.PaymentErrors, PaymentErrorPayload{OrderID: pe.OrderID, Message: pe.Message})
	}
	o.appendEvent(ctx, report.CheckoutID, EventPaymentsInitiated, payload)
}

// settle finishes the session, journals the completion and records metrics.
func (o *Orchestrator) settle(ctx context.Context, session *Session, req Request, report *Report) {
	if err := session.Finish(report.State, o.nowFunc()); err != nil {
		log.Printf("[Checkout] %s: %v", report.CheckoutID, err)
	}
	if len(report.FailedOrders) > 0 {
		report.Warnings = report.failureWarnings()
	}

	failures := make([]ShopFailurePayload, len(report.FailedOrders))
	for i, f := range report.FailedOrders {
		failures[i] = ShopFailurePayload{ShopID: f.ShopID, ShopName: f.ShopName, Kind: string(f.Kind), Message: f.Message}
	}
	o.appendEvent(ctx, report.CheckoutID, EventCheckoutCompleted, CheckoutCompleted{
		CheckoutID:    report.CheckoutID,
		SessionID:     req.SessionID,
		CustomerID:    req.CustomerID,
		CustomerEmail: req.CustomerEmail,
		State:         string(report.State),
		OrderIDs:      report.OrderIDs(),
		Failures:      failures,
		NextOrderID:   report.NextOrderID,
		CompletedAt:   o.nowFunc(),
	})

	if o.recorder != nil {
		o.recorder.Record(ctx, report)
	}
}

// appendEvent journals an event. The backend already holds the orders, so a journal failure is logged only.
func (o *Orchestrator) appendEvent(ctx context.Context, checkoutID, eventType string, data any) {
	if o.journal == nil {
		return
	}
	if _, err := o.journal.Append(ctx, checkoutID, AggregateType, eventType, data); err != nil {
		log.Printf("[Checkout] %s: failed to journal %s: %v", checkoutID, eventType, err)
	}
}
