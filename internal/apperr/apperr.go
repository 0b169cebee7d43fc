package apperr

import (
	"errors"
	"sort"
	"strings"
)

// Kind classifies a failure so callers can branch without inspecting HTTP status codes.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindBusinessRule Kind = "business_rule"
	KindAuth         Kind = "auth"
	KindTransport    Kind = "transport"
)

const (
	MessageSessionExpired = "Your session has expired, please log in again"
	MessageConnectivity   = "Unable to reach the server, please check your connection and try again"
	messageRequestFailed  = "The request could not be completed"
)

var ErrNotFound = errors.New("resource not found")

// Error is the single error type returned across the transport and checkout boundaries.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.fieldMessages(), "; "))
		b.WriteString(")")
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the text safe to show to an end user for this error.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindValidation:
		if msgs := e.fieldMessages(); len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
		if e.Message != "" {
			return e.Message
		}
		return messageRequestFailed
	case KindBusinessRule:
		if e.Message != "" {
			return e.Message
		}
		return messageRequestFailed
	case KindAuth:
		return MessageSessionExpired
	default:
		return MessageConnectivity
	}
}

// fieldMessages flattens the field map in a stable order.
func (e *Error) fieldMessages() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msgs []string
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k]...)
	}
	return msgs
}

func Validation(message string, fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func BusinessRule(message string) *Error {
	return &Error{Kind: KindBusinessRule, Message: message}
}

func Auth(status int) *Error {
	return &Error{Kind: KindAuth, Status: status}
}

func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

// Rule wraps a domain rule violation, keeping err matchable with errors.Is.
func Rule(err error) *Error {
	return &Error{Kind: KindBusinessRule, Message: err.Error(), Err: err}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindBusinessRule, Message: message, Status: 404, Err: ErrNotFound}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err. Errors outside the taxonomy are treated as transport failures.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindTransport
}

// UserMessage returns a user-facing message for any error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.UserMessage()
	}
	return MessageConnectivity
}

func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

func (k Kind) String() string { return string(k) }
