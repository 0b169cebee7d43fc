package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/ec-checkout/internal/apperr"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend stands in for the marketplace client.
type fakeBackend struct {
	mu sync.Mutex

	createErr    map[string]error
	createOrders map[string][]order.Order
	createCalls  []order.CreateRequest
	keys         []string
	entered      chan struct{}
	gate         chan struct{}

	payErr   map[string]error
	payURL   map[string]string
	payCalls []string

	removed   [][]string
	removeErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		createErr:    map[string]error{},
		createOrders: map[string][]order.Order{},
		payErr:       map[string]error{},
		payURL:       map[string]string{},
	}
}

func (f *fakeBackend) CreateOrders(ctx context.Context, req order.CreateRequest, key string) ([]order.Order, error) {
	f.mu.Lock()
	f.createCalls = append(f.createCalls, req)
	f.keys = append(f.keys, key)
	entered, gate := f.entered, f.gate
	err := f.createErr[req.ShopID]
	orders, ok := f.createOrders[req.ShopID]
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	// behaves like an HTTP call whose request context was cancelled
	if ctx.Err() != nil {
		return nil, apperr.Transport(ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		orders = []order.Order{{ID: "o-" + req.ShopID, Status: order.StatusPending, PaymentMethod: req.PaymentMethod}}
	}
	return orders, nil
}

func (f *fakeBackend) InitiatePayment(ctx context.Context, orderID string, method order.PaymentMethod) (*order.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payCalls = append(f.payCalls, orderID)
	if err := f.payErr[orderID]; err != nil {
		return nil, err
	}
	return &order.Payment{OrderID: orderID, Method: method, Status: order.PaymentPending, CheckoutURL: f.payURL[orderID]}, nil
}

func (f *fakeBackend) RemoveCartItems(ctx context.Context, productIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, productIDs)
	return f.removeErr
}

type recordingRecorder struct {
	reports []*Report
}

func (r *recordingRecorder) Record(ctx context.Context, report *Report) {
	r.reports = append(r.reports, report)
}

func line(productID, shopID string, qty int) cart.CartLine {
	return cart.CartLine{
		ProductID: productID,
		ShopID:    shopID,
		ShopName:  "Shop " + shopID,
		Quantity:  qty,
		UnitPrice: decimal.NewFromInt(100),
	}
}

func newTestOrchestrator() (*Orchestrator, *fakeBackend, *mocks.MockJournal, *recordingRecorder) {
	backend := newFakeBackend()
	journal := mocks.NewMockJournal()
	recorder := &recordingRecorder{}
	o := NewOrchestrator(backend, backend, backend, journal, recorder)
	ids := 0
	o.newID = func() string {
		ids++
		return "chk-" + string(rune('0'+ids))
	}
	return o, backend, journal, recorder
}

func twoShopRequest(method order.PaymentMethod) Request {
	return Request{
		SessionID:     "sess-1",
		CustomerID:    "cust-1",
		AddressID:     "addr-1",
		PaymentMethod: method,
		Lines: []cart.CartLine{
			line("p-1", "s-1", 1),
			line("p-2", "s-2", 2),
			line("p-3", "s-1", 3),
		},
	}
}

// ============================================
// Submit Outcome Tests
// ============================================

func TestOrchestrator_Submit_AllSucceed(t *testing.T) {
	o, backend, journal, recorder := newTestOrchestrator()

	report, err := o.Submit(context.Background(), twoShopRequest(order.MethodCOD))

	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, report.State)
	assert.Equal(t, 2, report.ShopCount)
	assert.Equal(t, []string{"o-s-1", "o-s-2"}, report.OrderIDs())
	assert.Empty(t, report.FailedOrders)
	assert.Equal(t, "o-s-1", report.NextOrderID)
	assert.Empty(t, report.RedirectURL)

	require.Len(t, backend.createCalls, 2)
	assert.ElementsMatch(t, []string{"chk-1:s-1", "chk-1:s-2"}, backend.keys)
	for _, call := range backend.createCalls {
		assert.Equal(t, "addr-1", call.AddressID)
		assert.Equal(t, order.MethodCOD, call.PaymentMethod)
		assert.True(t, call.ShippingFee.IsZero())
	}
	assert.Empty(t, backend.payCalls)
	require.Len(t, backend.removed, 1)
	assert.ElementsMatch(t, []string{"p-1", "p-3", "p-2"}, backend.removed[0])

	assert.Equal(t, []string{EventCheckoutSubmitted, EventCheckoutCompleted}, journal.EventTypes())
	assert.Equal(t, StateSucceeded, o.State("sess-1").State)
	require.Len(t, recorder.reports, 1)
	assert.Same(t, report, recorder.reports[0])
}

func TestOrchestrator_Submit_GroupsLinesPerShop(t *testing.T) {
	o, backend, _, _ := newTestOrchestrator()

	_, err := o.Submit(context.Background(), twoShopRequest(order.MethodCash))
	require.NoError(t, err)

	byShop := map[string]order.CreateRequest{}
	for _, c := range backend.createCalls {
		byShop[c.ShopID] = c
	}
	assert.Equal(t, []order.LineItem{{ProductID: "p-1", Quantity: 1}, {ProductID: "p-3", Quantity: 3}}, byShop["s-1"].Items)
	assert.Equal(t, []order.LineItem{{ProductID: "p-2", Quantity: 2}}, byShop["s-2"].Items)
}

func TestOrchestrator_Submit_PartialFailure(t *testing.T) {
	o, backend, journal, _ := newTestOrchestrator()
	backend.createErr["s-2"] = apperr.BusinessRule("Product p-2 is out of stock")

	report, err := o.Submit(context.Background(), twoShopRequest(order.MethodCOD))

	require.NoError(t, err)
	assert.Equal(t, StatePartiallyFailed, report.State)
	assert.Equal(t, []string{"o-s-1"}, report.OrderIDs())
	require.Len(t, report.FailedOrders, 1)
	failure := report.FailedOrders[0]
	assert.Equal(t, "s-2", failure.ShopID)
	assert.Equal(t, apperr.KindBusinessRule, failure.Kind)
	assert.Equal(t, "Product p-2 is out of stock", failure.Message)
	assert.Equal(t, []string{"p-2"}, failure.ProductIDs)
	assert.Equal(t, []string{"Shop s-2: Product p-2 is out of stock"}, report.Warnings)

	require.Len(t, backend.removed, 1)
	assert.Equal(t, []string{"p-1", "p-3"}, backend.removed[0])

	completed := journal.CallsFor(EventCheckoutCompleted)
	require.Len(t, completed, 1)
	payload := completed[0].Data.(CheckoutCompleted)
	assert.Equal(t, string(StatePartiallyFailed), payload.State)
	assert.Len(t, payload.Failures, 1)
	assert.Equal(t, StatePartiallyFailed, o.State("sess-1").State)
}

func TestOrchestrator_Submit_AllFail(t *testing.T) {
	o, backend, journal, recorder := newTestOrchestrator()
	backend.createErr["s-1"] = apperr.Transport(errors.New("connection reset"))
	backend.createErr["s-2"] = apperr.Validation("", map[string][]string{"items": {"Quantity exceeds stock"}})

	report, err := o.Submit(context.Background(), twoShopRequest(order.MethodBank))

	assert.ErrorIs(t, err, ErrNoOrdersCreated)
	require.NotNil(t, report)
	assert.Equal(t, StateFailed, report.State)
	assert.Empty(t, report.SuccessfulOrders)
	require.Len(t, report.FailedOrders, 2)
	assert.Equal(t, apperr.MessageConnectivity, report.FailedOrders[0].Message)
	assert.Equal(t, "Quantity exceeds stock", report.FailedOrders[1].Message)
	assert.Empty(t, report.NextOrderID)

	assert.Empty(t, backend.payCalls)
	assert.Empty(t, backend.removed)
	assert.Equal(t, []string{EventCheckoutSubmitted, EventCheckoutCompleted}, journal.EventTypes())
	assert.Equal(t, StateFailed, o.State("sess-1").State)
	assert.Len(t, recorder.reports, 1)
}

func TestOrchestrator_Submit_OneRequestManyOrders(t *testing.T) {
	o, backend, _, _ := newTestOrchestrator()
	backend.createOrders["s-1"] = []order.Order{{ID: "o-a"}, {ID: "o-b"}}

	report, err := o.Submit(context.Background(), twoShopRequest(order.MethodCOD))

	require.NoError(t, err)
	assert.Equal(t, []string{"o-a", "o-b", "o-s-2"}, report.OrderIDs())
	assert.Equal(t, "s-1", report.SuccessfulOrders[0].ShopID)
	assert.Equal(t, "Shop s-1", report.SuccessfulOrders[1].ShopName)
}

func TestOrchestrator_Submit_IncludeSubset(t *testing.T) {
	o, backend, _, _ := newTestOrchestrator()
	req := twoShopRequest(order.MethodCOD)
	req.Include = []string{"p-2"}

	report, err := o.Submit(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 1, report.ShopCount)
	require.Len(t, backend.createCalls, 1)
	assert.Equal(t, "s-2", backend.createCalls[0].ShopID)
	assert.Equal(t, []string{"p-2"}, backend.removed[0])
}

func TestOrchestrator_Submit_SideEffectFailuresAreNotEscalated(t *testing.T) {
	o, backend, journal, _ := newTestOrchestrator()
	backend.removeErr = errors.New("cart service down")
	journal.AppendErr = errors.New("journal unavailable")

	report, err := o.Submit(context.Background(), twoShopRequest(order.MethodCOD))

	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, report.State)
}

// ============================================
// Precondition Tests
// ============================================

func TestOrchestrator_Submit_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Request)
		message string
		field   string
	}{
		{name: "missing address", mutate: func(r *Request) { r.AddressID = "  " }, message: "missing address", field: "addressId"},
		{name: "empty cart", mutate: func(r *Request) { r.Lines = nil }, message: "empty cart", field: "lines"},
		{name: "include matches nothing", mutate: func(r *Request) { r.Include = []string{"p-404"} }, message: "empty cart", field: "lines"},
		{name: "unresolvable shop", mutate: func(r *Request) { r.Lines[1].ShopID = " " }, message: "unresolvable shop", field: "lines"},
		{name: "invalid payment method", mutate: func(r *Request) { r.PaymentMethod = "Crypto" }, message: "invalid payment method", field: "paymentMethod"},
		{name: "invalid quantity", mutate: func(r *Request) { r.Lines[0].Quantity = 0 }, message: "invalid cart line", field: "lines"},
		{name: "missing session", mutate: func(r *Request) { r.SessionID = "" }, message: "missing session", field: "sessionId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, backend, journal, recorder := newTestOrchestrator()
			req := twoShopRequest(order.MethodCOD)
			tt.mutate(&req)

			report, err := o.Submit(context.Background(), req)

			assert.Nil(t, report)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindValidation, e.Kind)
			assert.Equal(t, tt.message, e.Message)
			assert.NotEmpty(t, e.Fields[tt.field])

			assert.Empty(t, backend.createCalls)
			assert.Empty(t, journal.AppendCalls)
			assert.Empty(t, recorder.reports)
			assert.Equal(t, StateIdle, o.State(req.SessionID).State)
		})
	}
}

func TestOrchestrator_Submit_UnresolvableShopListsProducts(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	req := twoShopRequest(order.MethodCOD)
	req.Lines[0].ShopID = ""
	req.Lines[2].ShopID = ""

	_, err := o.Submit(context.Background(), req)

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.UserMessage(), "p-1, p-3")
}

// ============================================
// Payment Branch Tests
// ============================================

func TestOrchestrator_Submit_DeferredOnlinePayment(t *testing.T) {
	o, backend, _, _ := newTestOrchestrator()

	report, err := o.Submit(context.Background(), twoShopRequest(order.MethodWallet))

	require.NoError(t, err)
	assert.Empty(t, backend.payCalls)
	assert.Equal(t, "o-s-1", report.NextOrderID)
}

func TestOrchestrator_Submit_InitiatePayments(t *testing.T) {
	o, backend, journal, _ := newTestOrchestrator()
	backend.payURL["o-s-2"] = "https://pay.example/s2"
	req := twoShopRequest(order.MethodBank)
	req.InitiatePayment = true

	report, err := o.Submit(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, report.State)
	assert.ElementsMatch(t, []string{"o-s-1", "o-s-2"}, backend.payCalls)
	assert.Equal(t, "https://pay.example/s2", report.RedirectURL)
	require.Len(t, report.PaymentErrors, 1)
	assert.Equal(t, "o-s-1", report.PaymentErrors[0].OrderID)

	assert.Equal(t, []string{EventCheckoutSubmitted, EventPaymentsInitiated, EventCheckoutCompleted}, journal.EventTypes())
	initiated := journal.CallsFor(EventPaymentsInitiated)[0].Data.(PaymentsInitiated)
	assert.Equal(t, map[string]string{"o-s-2": "https://pay.example/s2"}, initiated.CheckoutURLs)
}

func TestOrchestrator_Submit_RedirectsToFirstUsableURL(t *testing.T) {
	o, backend, _, _ := newTestOrchestrator()
	backend.payURL["o-s-1"] = "https://pay.example/s1"
	backend.payURL["o-s-2"] = "https://pay.example/s2"
	backend.payErr["o-s-1"] = apperr.Transport(errors.New("timeout"))
	req := twoShopRequest(order.MethodWallet)
	req.InitiatePayment = true

	report, err := o.Submit(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/s2", report.RedirectURL)
	require.Len(t, report.PaymentErrors, 1)
	assert.Equal(t, apperr.KindTransport, report.PaymentErrors[0].Kind)
}

func TestOrchestrator_Submit_InitiateIgnoredForCash(t *testing.T) {
	o, backend, _, _ := newTestOrchestrator()
	req := twoShopRequest(order.MethodCOD)
	req.InitiatePayment = true

	_, err := o.Submit(context.Background(), req)

	require.NoError(t, err)
	assert.Empty(t, backend.payCalls)
}

// ============================================
// Session Tests
// ============================================

func TestOrchestrator_Submit_RejectsConcurrentSubmission(t *testing.T) {
	o, backend, _, _ := newTestOrchestrator()
	backend.entered = make(chan struct{}, 2)
	backend.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), twoShopRequest(order.MethodCOD))
		done <- err
	}()
	<-backend.entered

	assert.Equal(t, StateSubmitting, o.State("sess-1").State)
	_, err := o.Submit(context.Background(), twoShopRequest(order.MethodCOD))
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(backend.gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateSucceeded, o.State("sess-1").State)

	// a new attempt is allowed once the first settled
	backend.mu.Lock()
	backend.entered = nil
	backend.mu.Unlock()
	_, err = o.Submit(context.Background(), twoShopRequest(order.MethodCOD))
	assert.NoError(t, err)
}

func TestOrchestrator_Submit_CallerCancellationDoesNotAbortCreates(t *testing.T) {
	o, backend, _, _ := newTestOrchestrator()
	backend.entered = make(chan struct{}, 2)
	backend.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		report *Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := o.Submit(ctx, twoShopRequest(order.MethodCOD))
		done <- result{report, err}
	}()
	<-backend.entered
	<-backend.entered

	// the client disconnects while both creates are in flight
	cancel()
	close(backend.gate)
	res := <-done

	require.NoError(t, res.err)
	assert.Equal(t, StateSucceeded, res.report.State)
	assert.Len(t, res.report.SuccessfulOrders, 2)
	assert.Empty(t, res.report.FailedOrders)
	require.Len(t, backend.removed, 1, "the cart is still cleared")
}
