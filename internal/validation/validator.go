package validation

import (
	"reflect"
	"strings"

	"github.com/example/ec-checkout/internal/apperr"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a validator that reports fields by their json names and understands decimal amounts.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// Check validates s and converts failures into a validation error carrying a field map.
func Check(v *validatorv10.Validate, s interface{}) error {
	if err := v.Struct(s); err != nil {
		return apperr.Validation("invalid request", FieldErrors(err))
	}
	return nil
}

// FieldErrors converts validator output to field -> messages.
func FieldErrors(err error) map[string][]string {
	out := map[string][]string{}
	ve, ok := err.(validatorv10.ValidationErrors)
	if !ok {
		out["request"] = []string{err.Error()}
		return out
	}
	for _, fe := range ve {
		key := fe.Namespace()
		if i := strings.Index(key, "."); i >= 0 {
			key = key[i+1:]
		}
		out[key] = append(out[key], message(fe))
	}
	return out
}

func message(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "min":
		return fe.Field() + " must contain at least " + fe.Param() + " item(s)"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
