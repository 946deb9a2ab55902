package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"

	ierr "github.com/flexprice/subscription-ops/internal/errors"
)

var (
	v    *validator.Validate
	once sync.Once
)

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
	})
	return v
}

// ValidateRequest validates a request struct against its validate tags and
// converts field failures into a single validation error with reportable
// per-field details.
func ValidateRequest(req interface{}) error {
	err := GetValidator().Struct(req)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return ierr.WithError(err).
			WithHint("Request validation failed").
			Mark(ierr.ErrValidation)
	}

	details := make(map[string]any, len(validationErrors))
	for _, fe := range validationErrors {
		details[fe.Field()] = fe.Tag()
	}

	return ierr.NewError("request validation failed").
		WithHint("One or more fields failed validation").
		WithReportableDetails(details).
		Mark(ierr.ErrValidation)
}
