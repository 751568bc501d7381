package core

// validation.go validates request payloads before any ledger entry is written.
//
// Struct rules live in `validate` tags on the request types; this file only
// owns the shared validator instance and the conversion to ValidationError.

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// validateStruct runs tag validation and returns a *ValidationError on failure.
func validateStruct(v any) error {
	if err := getValidator().Struct(v); err != nil {
		return newValidationError(err)
	}
	return nil
}

// ValidateDescriptor checks a connection descriptor before registration.
func ValidateDescriptor(d ConnectionDescriptor) error {
	return validateStruct(d)
}
