package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput checks the `validate` tags of v and reports only the first
// failing field, using that field's `msg` tag as the client message.
func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewError(domain.ErrValidation, "Validation error")
	}
	fe := verrs[0]
	t := reflect.Indirect(reflect.ValueOf(v)).Type()
	if f, ok := t.FieldByName(fe.StructField()); ok {
		if msg := f.Tag.Get("msg"); msg != "" {
			return domain.NewError(domain.ErrValidation, msg)
		}
	}
	return domain.NewError(domain.ErrValidation, fe.Field()+" is invalid")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
