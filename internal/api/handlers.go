package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/apperr"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/query"
)

type Handlers struct {
	checkout     *checkout.Orchestrator
	cmdHandler   *command.Handler
	queryHandler *query.Handler
}

func NewHandlers(orchestrator *checkout.Orchestrator, cmdHandler *command.Handler, queryHandler *query.Handler) *Handlers {
	return &Handlers{
		checkout:     orchestrator,
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
	}
}

// Checkout Handlers

type submitRequest struct {
	SessionID          string              `json:"sessionId"`
	AddressID          string              `json:"addressId"`
	PaymentMethod      order.PaymentMethod `json:"paymentMethod"`
	Lines              []cart.CartLine     `json:"lines"`
	SelectedProductIDs []string            `json:"selectedProductIds"`
	InitiatePayment    bool                `json:"initiatePayment"`
}

// SubmitCheckout places one order per shop. The session defaults to the customer, so a
// customer cannot run two submissions at once.
func (h *Handlers) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, apperr.Auth(http.StatusUnauthorized))
		return
	}
	actor := claims.Actor()

	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = actor.UserID
	}

	report, err := h.checkout.Submit(r.Context(), checkout.Request{
		SessionID:       req.SessionID,
		CustomerID:      actor.UserID,
		CustomerEmail:   claims.Email,
		AddressID:       req.AddressID,
		PaymentMethod:   req.PaymentMethod,
		Lines:           req.Lines,
		Include:         req.SelectedProductIDs,
		InitiatePayment: req.InitiatePayment,
	})
	switch {
	case errors.Is(err, checkout.ErrNoOrdersCreated):
		respondJSON(w, http.StatusUnprocessableEntity, report)
	case err != nil:
		respondError(w, err)
	default:
		respondJSON(w, http.StatusCreated, report)
	}
}

// PreviewCheckout shows how the cart splits into shop orders without placing anything.
func (h *Handlers) PreviewCheckout(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	partition, err := cart.PartitionLines(req.Lines, req.SelectedProductIDs)
	if err != nil {
		respondError(w, apperr.Validation("invalid cart line", map[string][]string{"lines": {err.Error()}}))
		return
	}
	unresolved := partition.Unresolved
	if unresolved == nil {
		unresolved = []cart.CartLine{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"groups":     partition.Ordered(),
		"unresolved": unresolved,
	})
}

// GetCheckoutState reports a session's submission state. Customers only see sessions they
// submitted; another customer's session reads as not found.
func (h *Handlers) GetCheckoutState(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = actor.UserID
	}

	snap := h.checkout.State(sessionID)
	if actor.Role != order.RoleManager && snap.OwnerID != "" && snap.OwnerID != actor.UserID {
		respondError(w, apperr.NotFound("Checkout session not found"))
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *Handlers) ListCheckouts(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	respondJSON(w, http.StatusOK, h.queryHandler.ListCheckouts(actor, r.URL.Query().Get("state")))
}

func (h *Handlers) GetCheckout(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	c, err := h.queryHandler.GetCheckout(actor, r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// Order Query Handlers

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())

	var status order.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := order.ParseStatus(raw)
		if !ok {
			respondError(w, apperr.Validation("invalid status filter", map[string][]string{"status": {"status is invalid"}}))
			return
		}
		status = parsed
	}

	orders, err := h.queryHandler.ListOrders(r.Context(), actor, status)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	view, err := h.queryHandler.GetOrderView(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// GetPayment returns the payment record, or null when the order has none yet.
func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	p, err := h.queryHandler.GetPayment(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Order Command Handlers

func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var cmd command.UpdateStatus
	if !decodeBody(w, r, &cmd) {
		return
	}
	cmd.OrderID = r.PathValue("id")
	cmd.Actor, _ = middleware.GetActor(r.Context())
	h.respondAction(w, r, h.cmdHandler.UpdateStatus(r.Context(), cmd))
}

func (h *Handlers) SetTrackingNumber(w http.ResponseWriter, r *http.Request) {
	var cmd command.SetTrackingNumber
	if !decodeBody(w, r, &cmd) {
		return
	}
	cmd.OrderID = r.PathValue("id")
	cmd.Actor, _ = middleware.GetActor(r.Context())
	h.respondAction(w, r, h.cmdHandler.SetTrackingNumber(r.Context(), cmd))
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.CancelOrder
	if !decodeBody(w, r, &cmd) {
		return
	}
	cmd.OrderID = r.PathValue("id")
	cmd.Actor, _ = middleware.GetActor(r.Context())
	h.respondAction(w, r, h.cmdHandler.CancelOrder(r.Context(), cmd))
}

func (h *Handlers) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	cmd := command.ConfirmDelivery{OrderID: r.PathValue("id")}
	cmd.Actor, _ = middleware.GetActor(r.Context())
	h.respondAction(w, r, h.cmdHandler.ConfirmDelivery(r.Context(), cmd))
}

func (h *Handlers) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var cmd command.UpdateAddress
	if !decodeBody(w, r, &cmd) {
		return
	}
	cmd.OrderID = r.PathValue("id")
	cmd.Actor, _ = middleware.GetActor(r.Context())
	h.respondAction(w, r, h.cmdHandler.UpdateAddress(r.Context(), cmd))
}

func (h *Handlers) ConfirmCashPayment(w http.ResponseWriter, r *http.Request) {
	cmd := command.ConfirmCashPayment{OrderID: r.PathValue("id")}
	cmd.Actor, _ = middleware.GetActor(r.Context())
	h.respondAction(w, r, h.cmdHandler.ConfirmCashPayment(r.Context(), cmd))
}

func (h *Handlers) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	cmd := command.ProcessPayment{OrderID: r.PathValue("id")}
	cmd.Actor, _ = middleware.GetActor(r.Context())
	started, err := h.cmdHandler.ProcessPayment(r.Context(), cmd)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, started)
}

// respondAction answers a successful mutation with the refreshed order view. Nothing is
// assumed about the new state; it is read back from the backend.
func (h *Handlers) respondAction(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		respondError(w, err)
		return
	}
	actor, _ := middleware.GetActor(r.Context())
	view, err := h.queryHandler.GetOrderView(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		log.Printf("[API] Order %s changed but could not be reloaded: %v", r.PathValue("id"), err)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, apperr.Validation("invalid request body", map[string][]string{"request": {"request body is not valid JSON"}}))
		return false
	}
	return true
}
