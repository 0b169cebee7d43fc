package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-checkout/internal/apperr"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/infrastructure/store/mocks"
	"github.com/example/ec-checkout/internal/marketplace"
	"github.com/example/ec-checkout/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMarketplace stands in for the backend behind every collaborator interface.
type fakeMarketplace struct {
	mu          sync.Mutex
	orders      map[string]*order.Order
	failShops   map[string]error
	getErr      error
	createCalls int
	getCalls    int
	tokens      []string
	nextID      int
}

func newFakeMarketplace() *fakeMarketplace {
	return &fakeMarketplace{orders: map[string]*order.Order{}, failShops: map[string]error{}}
}

func (f *fakeMarketplace) put(o order.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = &o
}

func (f *fakeMarketplace) CreateOrders(ctx context.Context, req order.CreateRequest, key string) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.tokens = append(f.tokens, marketplace.TokenFrom(ctx))
	if err := f.failShops[req.ShopID]; err != nil {
		return nil, err
	}
	f.nextID++
	o := order.Order{
		ID:            fmt.Sprintf("o-%d", f.nextID),
		ShopID:        req.ShopID,
		Status:        order.StatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: order.PaymentPending,
	}
	f.orders[o.ID] = &o
	return []order.Order{o}, nil
}

func (f *fakeMarketplace) InitiatePayment(ctx context.Context, orderID string, method order.PaymentMethod) (*order.Payment, error) {
	return &order.Payment{OrderID: orderID, Method: method, Status: order.PaymentPending, CheckoutURL: "https://pay.example/" + orderID}, nil
}

func (f *fakeMarketplace) RemoveCartItems(ctx context.Context, productIDs []string) error {
	return nil
}

func (f *fakeMarketplace) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return nil, apperr.NotFound("Order not found")
	}
	c := *o
	return &c, nil
}

func (f *fakeMarketplace) ListOrders(ctx context.Context, status order.Status) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []order.Order
	for _, o := range f.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeMarketplace) GetPaymentByOrder(ctx context.Context, orderID string) (*order.Payment, error) {
	return nil, apperr.NotFound("Payment not found")
}

func (f *fakeMarketplace) update(orderID string, fn func(o *order.Order)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return apperr.NotFound("Order not found")
	}
	fn(o)
	return nil
}

func (f *fakeMarketplace) UpdateStatus(ctx context.Context, orderID string, status order.Status) error {
	return f.update(orderID, func(o *order.Order) { o.Status = status })
}

func (f *fakeMarketplace) SetTrackingNumber(ctx context.Context, orderID, trackingNumber string) error {
	return f.update(orderID, func(o *order.Order) { o.TrackingNumber = trackingNumber })
}

func (f *fakeMarketplace) CancelOrder(ctx context.Context, orderID, reason string) error {
	return f.update(orderID, func(o *order.Order) { o.Status = order.StatusCanceled })
}

func (f *fakeMarketplace) ConfirmDelivery(ctx context.Context, orderID string) error {
	return f.update(orderID, func(o *order.Order) { o.Status = order.StatusDelivered })
}

func (f *fakeMarketplace) UpdateAddress(ctx context.Context, orderID, addressID string) error {
	return f.update(orderID, func(o *order.Order) { o.AddressID = addressID })
}

func (f *fakeMarketplace) ConfirmCashPayment(ctx context.Context, orderID string) error {
	return f.update(orderID, func(o *order.Order) { o.PaymentStatus = order.PaymentPaid })
}

type testServer struct {
	handler http.Handler
	backend *fakeMarketplace
	jwt     *auth.JWTService
}

func newTestServer() *testServer {
	backend := newFakeMarketplace()
	jwtService := auth.NewJWTService("api-test-secret-key-with-enough-length", 15*time.Minute)
	views := store.NewReadStore()
	checkouts := store.NewReadStore()
	suppressions := query.NewSuppressions(1500 * time.Millisecond)

	queryHandler := query.NewHandler(backend, views, checkouts, suppressions)
	cmdHandler := command.NewHandler(backend, queryHandler, mocks.NewMockJournal(), suppressions)
	orchestrator := checkout.NewOrchestrator(backend, backend, backend, mocks.NewMockJournal(), nil)

	return &testServer{
		handler: NewRouter(NewHandlers(orchestrator, cmdHandler, queryHandler), jwtService),
		backend: backend,
		jwt:     jwtService,
	}
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, _, err := s.jwt.GenerateAccessToken(userID, userID+"@example.com", role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const twoShopCheckout = `{
	"addressId": "addr-1",
	"paymentMethod": "cod",
	"lines": [
		{"productId": "p-1", "shopId": "shop-a", "shopName": "Shop A", "quantity": 2, "unitPrice": 100},
		{"productId": "p-2", "shopId": "shop-b", "shopName": "Shop B", "quantity": 1, "unitPrice": 50}
	]
}`

// ============================================
// Checkout Endpoint Tests
// ============================================

func TestHealthz(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/healthz", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitCheckout_RequiresAuth(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPost, "/checkout", "", twoShopCheckout)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, s.backend.createCalls)
}

func TestSubmitCheckout_Success(t *testing.T) {
	s := newTestServer()
	token := s.token(t, "cust-1", "customer")

	rec := s.do(t, http.MethodPost, "/checkout", token, twoShopCheckout)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	report := decodeJSON[checkout.Report](t, rec)
	assert.Equal(t, checkout.StateSucceeded, report.State)
	assert.Len(t, report.SuccessfulOrders, 2)
	assert.Empty(t, report.FailedOrders)
	assert.Equal(t, "cust-1", report.SessionID)
	assert.Equal(t, []string{token, token}, s.backend.tokens)

	state := decodeJSON[checkout.Snapshot](t, s.do(t, http.MethodGet, "/checkout/state", token, ""))
	assert.Equal(t, checkout.StateSucceeded, state.State)
	assert.Equal(t, report.CheckoutID, state.CheckoutID)
}

func TestCheckoutState_ScopedToOwner(t *testing.T) {
	s := newTestServer()
	owner := s.token(t, "cust-1", "customer")
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/checkout", owner, twoShopCheckout).Code)

	rec := s.do(t, http.MethodGet, "/checkout/state?session=cust-1", s.token(t, "cust-2", "customer"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/checkout/state?session=cust-1", s.token(t, "seller-1", "seller"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, checkout.StateSucceeded, decodeJSON[checkout.Snapshot](t, rec).State)

	rec = s.do(t, http.MethodGet, "/checkout/state?session=cust-1", owner, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitCheckout_ForeignSessionForbidden(t *testing.T) {
	s := newTestServer()
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/checkout", s.token(t, "cust-1", "customer"), twoShopCheckout).Code)
	calls := s.backend.createCalls

	body := strings.Replace(twoShopCheckout, `"addressId"`, `"sessionId": "cust-1", "addressId"`, 1)
	rec := s.do(t, http.MethodPost, "/checkout", s.token(t, "cust-2", "customer"), body)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, calls, s.backend.createCalls)
}

func TestSubmitCheckout_PartialFailure(t *testing.T) {
	s := newTestServer()
	s.backend.failShops["shop-b"] = apperr.BusinessRule("Out of stock")

	rec := s.do(t, http.MethodPost, "/checkout", s.token(t, "cust-1", "customer"), twoShopCheckout)

	require.Equal(t, http.StatusCreated, rec.Code)
	report := decodeJSON[checkout.Report](t, rec)
	assert.Equal(t, checkout.StatePartiallyFailed, report.State)
	require.Len(t, report.FailedOrders, 1)
	assert.Equal(t, "Shop B", report.FailedOrders[0].ShopName)
	assert.Equal(t, "Out of stock", report.FailedOrders[0].Message)
	assert.Equal(t, []string{"Shop B: Out of stock"}, report.Warnings)
}

func TestSubmitCheckout_AllFailed(t *testing.T) {
	s := newTestServer()
	s.backend.failShops["shop-a"] = apperr.Transport(errors.New("timeout"))
	s.backend.failShops["shop-b"] = apperr.BusinessRule("Shop closed")

	rec := s.do(t, http.MethodPost, "/checkout", s.token(t, "cust-1", "customer"), twoShopCheckout)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	report := decodeJSON[checkout.Report](t, rec)
	assert.Equal(t, checkout.StateFailed, report.State)
	assert.Empty(t, report.SuccessfulOrders)
	assert.Len(t, report.FailedOrders, 2)
}

func TestSubmitCheckout_ValidationBeforeNetwork(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPost, "/checkout", s.token(t, "cust-1", "customer"), `{"paymentMethod":"COD","lines":[{"productId":"p-1","shopId":"shop-a","quantity":1}]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJSON[errorResponse](t, rec)
	assert.Equal(t, apperr.KindValidation, body.Kind)
	assert.Zero(t, s.backend.createCalls)
}

func TestSubmitCheckout_MalformedBody(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodPost, "/checkout", s.token(t, "cust-1", "customer"), `{"lines":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewCheckout(t *testing.T) {
	s := newTestServer()
	body := `{"lines": [
		{"productId": "p-1", "shopId": "shop-a", "quantity": 1, "unitPrice": 10},
		{"productId": "p-2", "shopId": "", "quantity": 1, "unitPrice": 10},
		{"productId": "p-3", "shopId": "shop-a", "quantity": 2, "unitPrice": 5}
	]}`

	rec := s.do(t, http.MethodPost, "/checkout/preview", s.token(t, "cust-1", "customer"), body)

	require.Equal(t, http.StatusOK, rec.Code)
	preview := decodeJSON[struct {
		Groups []struct {
			ShopID string            `json:"shopId"`
			Lines  []json.RawMessage `json:"lines"`
		} `json:"groups"`
		Unresolved []json.RawMessage `json:"unresolved"`
	}](t, rec)
	require.Len(t, preview.Groups, 1)
	assert.Equal(t, "shop-a", preview.Groups[0].ShopID)
	assert.Len(t, preview.Groups[0].Lines, 2)
	assert.Len(t, preview.Unresolved, 1)
	assert.Zero(t, s.backend.createCalls)
}

func TestGetCheckout_NotFound(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/checkouts/missing", s.token(t, "cust-1", "customer"), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================
// Order Endpoint Tests
// ============================================

func TestGetOrder_IncludesActions(t *testing.T) {
	s := newTestServer()
	s.backend.put(order.Order{ID: "o-1", Status: order.StatusPending, PaymentMethod: order.MethodCOD, PaymentStatus: order.PaymentPending})

	rec := s.do(t, http.MethodGet, "/orders/o-1", s.token(t, "cust-1", "customer"), "")

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeJSON[query.OrderView](t, rec)
	assert.Equal(t, "o-1", view.Order.ID)
	assert.True(t, view.Actions.CanCancel)
	assert.False(t, view.Actions.CanConfirmDelivery)
}

func TestGetOrder_NotFound(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/orders/missing", s.token(t, "cust-1", "customer"), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrder_TransportFailure(t *testing.T) {
	s := newTestServer()
	s.backend.getErr = apperr.Transport(errors.New("connection refused"))

	rec := s.do(t, http.MethodGet, "/orders/o-1", s.token(t, "cust-1", "customer"), "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeJSON[errorResponse](t, rec)
	assert.Equal(t, apperr.MessageConnectivity, body.Error)
}

func TestGetPayment_NoRecord(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/orders/o-1/payment", s.token(t, "cust-1", "customer"), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestListOrders_InvalidStatus(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/orders?status=lost", s.token(t, "cust-1", "customer"), "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatus_ReturnsFreshView(t *testing.T) {
	s := newTestServer()
	s.backend.put(order.Order{ID: "o-1", Status: order.StatusPending, PaymentMethod: order.MethodCOD, PaymentStatus: order.PaymentPending})
	token := s.token(t, "seller-1", "seller")

	// Prime the cache
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/orders/o-1", token, "").Code)

	rec := s.do(t, http.MethodPost, "/orders/o-1/status", token, `{"status":"confirmed"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeJSON[query.OrderView](t, rec)
	assert.Equal(t, order.StatusConfirmed, view.Order.Status)
	assert.Equal(t, []order.Status{order.StatusShipped, order.StatusCanceled}, view.Actions.NextStatuses)
}

func TestUpdateStatus_CustomerForbidden(t *testing.T) {
	s := newTestServer()
	s.backend.put(order.Order{ID: "o-1", Status: order.StatusPending})

	rec := s.do(t, http.MethodPost, "/orders/o-1/status", s.token(t, "cust-1", "customer"), `{"status":"Confirmed"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	s := newTestServer()
	s.backend.put(order.Order{ID: "o-1", Status: order.StatusDelivered})

	rec := s.do(t, http.MethodPost, "/orders/o-1/status", s.token(t, "seller-1", "seller"), `{"status":"Canceled"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeJSON[errorResponse](t, rec)
	assert.Equal(t, apperr.KindBusinessRule, body.Kind)
	assert.Equal(t, order.ErrOrderDelivered.Error(), body.Error)
}

func TestCancelOrder_CustomerTooLate(t *testing.T) {
	s := newTestServer()
	s.backend.put(order.Order{ID: "o-1", Status: order.StatusShipped})

	rec := s.do(t, http.MethodPost, "/orders/o-1/cancel", s.token(t, "cust-1", "customer"), `{"reason":"late"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestConfirmCashPayment(t *testing.T) {
	s := newTestServer()
	s.backend.put(order.Order{ID: "o-1", Status: order.StatusDelivered, PaymentMethod: order.MethodCash, PaymentStatus: order.PaymentPending})

	rec := s.do(t, http.MethodPost, "/orders/o-1/payment/confirm", s.token(t, "cust-1", "customer"), "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeJSON[query.OrderView](t, rec)
	assert.Equal(t, order.PaymentPaid, view.Order.PaymentStatus)
	assert.False(t, view.Actions.CanConfirmCashPayment)
}

func TestProcessPayment(t *testing.T) {
	s := newTestServer()
	s.backend.put(order.Order{ID: "o-1", Status: order.StatusConfirmed, PaymentMethod: order.MethodWallet, PaymentStatus: order.PaymentPending})

	rec := s.do(t, http.MethodPost, "/orders/o-1/payment/process", s.token(t, "cust-1", "customer"), "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	started := decodeJSON[command.PaymentStarted](t, rec)
	assert.Equal(t, "https://pay.example/o-1", started.CheckoutURL)
	assert.Equal(t, order.PaymentActionProcess, started.Action)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"in flight", checkout.ErrSubmissionInFlight, http.StatusConflict},
		{"foreign session", checkout.ErrSessionNotOwned, http.StatusForbidden},
		{"validation", apperr.Validation("bad", nil), http.StatusBadRequest},
		{"auth", apperr.Auth(http.StatusUnauthorized), http.StatusUnauthorized},
		{"not found", apperr.NotFound("gone"), http.StatusNotFound},
		{"business rule", apperr.BusinessRule("no"), http.StatusUnprocessableEntity},
		{"transport", apperr.Transport(errors.New("reset")), http.StatusBadGateway},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := classify(tt.err)
			assert.Equal(t, tt.want, status)
		})
	}
}
