package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/example/ec-checkout/internal/apperr"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/query"
)

type errorResponse struct {
	Error  string              `json:"error"`
	Kind   apperr.Kind         `json:"kind"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// respondError maps an error to its HTTP status and writes the user-facing message.
func respondError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[API] %d: %v", status, err)
	}
	respondJSON(w, status, body)
}

func classify(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		return http.StatusConflict, errorResponse{Error: "A checkout is already in progress", Kind: apperr.KindBusinessRule}
	case errors.Is(err, checkout.ErrSessionNotOwned):
		return http.StatusForbidden, errorResponse{Error: "This checkout session belongs to another customer", Kind: apperr.KindBusinessRule}
	case errors.Is(err, query.ErrCheckoutNotFound):
		return http.StatusNotFound, errorResponse{Error: "Checkout not found", Kind: apperr.KindBusinessRule}
	}

	e, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError, errorResponse{Error: apperr.MessageConnectivity, Kind: apperr.KindTransport}
	}

	body := errorResponse{Error: e.UserMessage(), Kind: e.Kind, Fields: e.Fields}
	switch e.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest, body
	case apperr.KindAuth:
		return http.StatusUnauthorized, body
	case apperr.KindBusinessRule:
		switch e.Status {
		case http.StatusNotFound, http.StatusForbidden, http.StatusConflict:
			return e.Status, body
		}
		return http.StatusUnprocessableEntity, body
	default:
		return http.StatusBadGateway, body
	}
}
