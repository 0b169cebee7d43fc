package api

import (
	"log"
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/auth"
)

// managerRoles may drive the order status table.
var managerRoles = []string{"seller", "admin", "manager"}

func NewRouter(handlers *Handlers, jwtService *auth.JWTService) http.Handler {
	mux := http.NewServeMux()
	authed := middleware.AuthMiddleware(jwtService)
	managers := middleware.RequireRole(managerRoles...)

	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}
	handleManaged := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(managers(h)))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Checkout
	handle("POST /checkout", handlers.SubmitCheckout)
	handle("POST /checkout/preview", handlers.PreviewCheckout)
	handle("GET /checkout/state", handlers.GetCheckoutState)
	handle("GET /checkouts", handlers.ListCheckouts)
	handle("GET /checkouts/{id}", handlers.GetCheckout)

	// Orders
	handle("GET /orders", handlers.ListOrders)
	handle("GET /orders/{id}", handlers.GetOrder)
	handle("GET /orders/{id}/payment", handlers.GetPayment)
	handleManaged("POST /orders/{id}/status", handlers.UpdateStatus)
	handleManaged("POST /orders/{id}/tracking", handlers.SetTrackingNumber)
	handle("POST /orders/{id}/cancel", handlers.CancelOrder)
	handle("POST /orders/{id}/confirm-delivery", handlers.ConfirmDelivery)
	handle("POST /orders/{id}/address", handlers.UpdateAddress)
	handle("POST /orders/{id}/payment/confirm", handlers.ConfirmCashPayment)
	handle("POST /orders/{id}/payment/process", handlers.ProcessPayment)

	return withLogging(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[API] %s %s -> %d", r.Method, r.URL.Path, rec.status)
	})
}
