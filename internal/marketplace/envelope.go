package marketplace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/example/ec-checkout/internal/apperr"
)

// Result is the canonical success value of a backend call.
type Result[T any] struct {
	Value   T
	Message string
}

// envelope is the backend response wrapper. Keys arrive as PascalCase or camelCase.
type envelope struct {
	Succeeded *bool
	Data      json.RawMessage
	Message   string
	Errors    map[string][]string
}

func (e *envelope) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		switch strings.ToLower(key) {
		case "succeeded", "success":
			var ok bool
			if err := json.Unmarshal(value, &ok); err == nil {
				e.Succeeded = &ok
			}
		case "data":
			e.Data = value
		case "message":
			_ = json.Unmarshal(value, &e.Message)
		case "errors":
			e.Errors = decodeErrors(value)
		}
	}
	return nil
}

// decodeErrors accepts either a field map or a flat list of messages.
func decodeErrors(raw json.RawMessage) map[string][]string {
	var fields map[string][]string
	if err := json.Unmarshal(raw, &fields); err == nil {
		if len(fields) == 0 {
			return nil
		}
		return fields
	}
	var single map[string]string
	if err := json.Unmarshal(raw, &single); err == nil && len(single) > 0 {
		fields = make(map[string][]string, len(single))
		for k, v := range single {
			fields[k] = []string{v}
		}
		return fields
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return map[string][]string{"request": list}
	}
	return nil
}

func (e *envelope) ok() bool {
	return e.Succeeded != nil && *e.Succeeded
}

func (e *envelope) hasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// decode turns a status code and body into a Result or a classified error.
func decode[T any](status int, body []byte) (Result[T], error) {
	var res Result[T]

	switch {
	case status == http.StatusUnauthorized:
		return res, apperr.Auth(status)
	case status >= 500:
		return res, apperr.Transport(fmt.Errorf("backend returned %d", status)).WithStatus(status)
	case status == http.StatusNoContent:
		return res, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if status >= 400 {
			return res, classifyFailure(status, &envelope{Message: strings.TrimSpace(string(body))})
		}
		return res, apperr.Transport(fmt.Errorf("malformed response: %w", err)).WithStatus(status)
	}

	if status >= 400 || !env.ok() {
		return res, classifyFailure(status, &env)
	}

	res.Message = env.Message
	if env.hasData() {
		if err := json.Unmarshal(env.Data, &res.Value); err != nil {
			return res, apperr.Transport(fmt.Errorf("decode data: %w", err)).WithStatus(status)
		}
	}
	return res, nil
}

func classifyFailure(status int, env *envelope) *apperr.Error {
	message := env.Message
	if status == http.StatusNotFound {
		if message == "" {
			message = "Not found"
		}
		return apperr.NotFound(message)
	}
	if len(env.Errors) > 0 {
		return apperr.Validation(message, env.Errors).WithStatus(status)
	}
	if message == "" && status >= 400 {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "Request failed"
	}
	return apperr.BusinessRule(message).WithStatus(status)
}
