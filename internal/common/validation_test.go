package common

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	pdfName := regexp.MustCompile(`(?i)\.pdf$`)

	v := NewValidator()
	v.Field("filename", "claim.pdf", Required, MaxLength(20), Pattern(pdfName, "a .pdf file name"))
	v.Field("type", "form", OneOf("general", "form"))
	v.Field("priority", 3, IntRange(0, 10))
	v.Field("id", "", UUID)
	assert.False(t, v.HasErrors())
	assert.NoError(t, ValidateAndReturnError(v))

	v = NewValidator()
	v.Field("filename", "  ", Required)
	v.Field("name", "notes.txt", Pattern(pdfName, "a .pdf file name"))
	v.Field("type", "memo", OneOf("general", "form"))
	v.Field("priority", 12, IntRange(0, 10))
	v.Field("id", "not-a-uuid", UUID)
	v.Field("title", "ééééé", MaxLength(4))
	require.Len(t, v.Errors(), 6)

	err := ValidateAndReturnError(v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Contains(t, appErr.Message, "priority must be between 0 and 10 (got 12)")
	assert.Contains(t, appErr.Message, "type must be one of general, form")
}

func TestRequired(t *testing.T) {
	var empty *string
	name := "x"
	assert.NotNil(t, Required("f", nil))
	assert.NotNil(t, Required("f", empty))
	assert.Nil(t, Required("f", &name))
	assert.Nil(t, Required("f", 0))
}
