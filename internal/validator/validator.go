package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single field-level failure.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// Validator bundles struct-tag validation with the business rule checks.
type Validator struct {
	business *BusinessValidator
}

// New creates the validator with all custom rules registered.
func New() *Validator {
	return &Validator{business: NewBusinessValidator()}
}

// Validate runs struct-tag validation and returns nil or ValidationErrors.
func (v *Validator) Validate(s interface{}) error {
	if errs := v.business.Validate(s); len(errs) > 0 {
		return errs
	}
	return nil
}

// GetBusinessValidator exposes the cross-field rule checks.
func (v *Validator) GetBusinessValidator() *BusinessValidator {
	return v.business
}

// ToValidationErrors converts go-playground errors into our error type.
func ToValidationErrors(err error) ValidationErrors {
	var out ValidationErrors
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationErrors{{Field: "request", Message: err.Error(), Rule: "invalid"}}
	}
	for _, fe := range validationErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: messageForTag(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return out
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "test_title":
		return "must be between 1 and 200 characters"
	case "test_type":
		return "is not a valid test type"
	case "test_duration":
		return "must be between 0 and 600 minutes"
	case "max_attempts":
		return "must be between 1 and 10"
	case "question_type":
		return "is not a valid question type"
	case "difficulty_level":
		return "is not a valid difficulty level"
	case "future_date":
		return "must be in the future"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
