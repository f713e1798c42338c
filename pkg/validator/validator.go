package validator

import (
	"errors"
	"fmt"
	"strings"

	playground "github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules string) error
}

type validator struct {
	v *playground.Validate
}

// New returns a validator reading `validate` struct tags.
func New() Validator {
	return &validator{v: playground.New()}
}

func (v *validator) Validate(obj interface{}) error {
	return translate(v.v.Struct(obj))
}

func (v *validator) ValidateField(field string, value interface{}, rules string) error {
	if err := v.v.Var(value, rules); err != nil {
		var verrs playground.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperrors.Validation("%s %s", field, describe(verrs[0]))
		}
		return apperrors.Validation("%s is invalid", field)
	}
	return nil
}

// translate turns validator errors into a single ValidationError.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Validation("%s", err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", strings.ToLower(fe.Field()), describe(fe)))
	}
	return apperrors.Validation("%s", strings.Join(msgs, "; "))
}

func describe(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
