package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

type sample struct {
	Name  string `validate:"required,max=5"`
	Level string `validate:"oneof=critical severe moderate"`
}

func TestValidate(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(sample{Name: "ok", Level: "severe"}))

	err := v.Validate(sample{Name: "", Level: "mild"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "level must be one of")
}

func TestValidateField(t *testing.T) {
	v := New()

	assert.NoError(t, v.ValidateField("eta", "15 minutes", "required,max=100"))

	err := v.ValidateField("eta", "", "required")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
	assert.Equal(t, "eta is required", err.Error())
}
