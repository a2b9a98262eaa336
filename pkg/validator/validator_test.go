package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type joinInput struct {
	Name   string   `json:"name" validate:"required,max=16"`
	Emotes []string `json:"emotes" validate:"max=2,dive,oneof=wvy shk"`
}

func TestValidateUsesJSONNames(t *testing.T) {
	v := NewValidator()

	errs, ok := v.Validate(joinInput{})
	require.False(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "name", errs[0].Field)
	assert.Equal(t, "REQUIRED", errs[0].Code)
	assert.Equal(t, "name is required", errs[0].Message)
}

func TestValidateDive(t *testing.T) {
	v := NewValidator()

	errs, ok := v.Validate(joinInput{Name: "a", Emotes: []string{"wvy", "dance"}})
	require.False(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "ONEOF", errs[0].Code)

	_, ok = v.Validate(joinInput{Name: "a", Emotes: []string{"wvy"}})
	assert.True(t, ok)
}

func TestCheck(t *testing.T) {
	v := NewValidator()

	err := v.Check(&joinInput{Name: "this name is way too long"})
	var validationErrors ValidationErrors
	require.True(t, errors.As(err, &validationErrors))
	assert.Equal(t, "MAX", validationErrors[0].Code)
	assert.Contains(t, err.Error(), "name must not exceed 16")

	assert.NoError(t, v.Check(&joinInput{Name: "ok"}))
	assert.NoError(t, v.Check(&struct{}{}))
}
