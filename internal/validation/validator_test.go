package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iotfleet-server/iotfleet-server/internal/validation"
)

type updatePayload struct {
	Name   *string `json:"name" validate:"omitempty,min=3,max=96"`
	Status *string `json:"status" validate:"omitempty,oneof=active inactive suspended"`
}

type signupPayload struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,min=3,max=10"`
}

func strPtr(s string) *string { return &s }

func TestValidator_PointerFields(t *testing.T) {
	v := validation.NewValidator()

	assert.NoError(t, v.Validate(&updatePayload{}), "nil optional pointers pass")
	assert.NoError(t, v.Validate(&updatePayload{Name: strPtr("acme"), Status: strPtr("active")}))
	assert.Error(t, v.Validate(&updatePayload{Name: strPtr("ab")}), "below min")
	assert.Error(t, v.Validate(&updatePayload{Status: strPtr("archived")}), "outside oneof")

	long := make([]byte, 97)
	for i := range long {
		long[i] = 'x'
	}
	assert.Error(t, v.Validate(&updatePayload{Name: strPtr(string(long))}), "above max")
}

func TestValidator_RequiredAndEmail(t *testing.T) {
	v := validation.NewValidator()

	assert.NoError(t, v.Validate(&signupPayload{Email: "a@b.example", Name: "alice"}))
	assert.Error(t, v.Validate(&signupPayload{Name: "alice"}), "missing email")
	assert.Error(t, v.Validate(&signupPayload{Email: "not-an-email", Name: "alice"}))
	assert.Error(t, v.Validate(&signupPayload{Email: "@example.com", Name: "alice"}))
	assert.Error(t, v.Validate(&signupPayload{Email: "a@b.example", Name: "this-name-is-too-long"}))
}

func TestValidator_RejectsNonStruct(t *testing.T) {
	assert.Error(t, validation.ValidateStruct("not a struct"))
}
