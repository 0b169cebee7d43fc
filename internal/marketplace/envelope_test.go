package marketplace

import (
	"errors"
	"net/http"
	"testing"

	"github.com/example/ec-checkout/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name"`
}

func TestDecode_AcceptsBothCasings(t *testing.T) {
	bodies := map[string]string{
		"pascal": `{"Succeeded":true,"Data":{"name":"a"},"Message":"ok"}`,
		"camel":  `{"succeeded":true,"data":{"name":"a"},"message":"ok"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			res, err := decode[sample](http.StatusOK, []byte(body))

			require.NoError(t, err)
			assert.Equal(t, "a", res.Value.Name)
			assert.Equal(t, "ok", res.Message)
		})
	}
}

func TestDecode_MissingSuccessFlagIsFailure(t *testing.T) {
	_, err := decode[sample](http.StatusOK, []byte(`{"data":{"name":"a"}}`))

	require.Error(t, err)
	assert.Equal(t, apperr.KindBusinessRule, apperr.KindOf(err))
	assert.Equal(t, "Request failed", apperr.UserMessage(err))
}

func TestDecode_SucceededFalseKeepsMessage(t *testing.T) {
	_, err := decode[sample](http.StatusOK, []byte(`{"succeeded":false,"message":"Product out of stock"}`))

	require.Error(t, err)
	assert.Equal(t, apperr.KindBusinessRule, apperr.KindOf(err))
	assert.Equal(t, "Product out of stock", apperr.UserMessage(err))
}

func TestDecode_StatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		kind     apperr.Kind
		notFound bool
		message  string
	}{
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"message":"token expired"}`,
			kind:    apperr.KindAuth,
			message: apperr.MessageSessionExpired,
		},
		{
			name:    "validation fields",
			status:  http.StatusUnprocessableEntity,
			body:    `{"Succeeded":false,"Errors":{"AddressId":["Address is required"]}}`,
			kind:    apperr.KindValidation,
			message: "Address is required",
		},
		{
			name:    "conflict with field list",
			status:  http.StatusConflict,
			body:    `{"errors":["Stock changed"]}`,
			kind:    apperr.KindValidation,
			message: "Stock changed",
		},
		{
			name:    "business rule",
			status:  http.StatusBadRequest,
			body:    `{"succeeded":false,"message":"Shop is closed"}`,
			kind:    apperr.KindBusinessRule,
			message: "Shop is closed",
		},
		{
			name:     "not found",
			status:   http.StatusNotFound,
			body:     ``,
			kind:     apperr.KindBusinessRule,
			notFound: true,
			message:  "Not found",
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			kind:    apperr.KindTransport,
			message: apperr.MessageConnectivity,
		},
		{
			name:    "plain text 400",
			status:  http.StatusBadRequest,
			body:    `invalid payment method`,
			kind:    apperr.KindBusinessRule,
			message: "invalid payment method",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode[sample](tt.status, []byte(tt.body))

			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.notFound, errors.Is(err, apperr.ErrNotFound))
			assert.Equal(t, tt.message, apperr.UserMessage(err))
		})
	}
}

func TestDecode_MalformedSuccessBody(t *testing.T) {
	_, err := decode[sample](http.StatusOK, []byte(`not json`))

	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
}

func TestDecode_NoContent(t *testing.T) {
	res, err := decode[sample](http.StatusNoContent, nil)

	require.NoError(t, err)
	assert.Empty(t, res.Value.Name)
}

func TestDecode_NullData(t *testing.T) {
	res, err := decode[sample](http.StatusOK, []byte(`{"succeeded":true,"data":null}`))

	require.NoError(t, err)
	assert.Empty(t, res.Value.Name)
}
