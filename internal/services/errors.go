package services

import (
	"errors"
	"fmt"

	"github.com/brightclass/assessment-engine/internal/validator"
)

// ===== SENTINEL ERRORS =====

var (
	ErrTestNotFound     = errors.New("test not found")
	ErrTestNotEditable  = errors.New("cannot edit test with student attempts")
	ErrTestNotPublished = errors.New("test is not accepting attempts")
	ErrTestWindowClosed = errors.New("test availability window has closed")

	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptNotActive        = errors.New("attempt is not in progress")
	ErrAttemptAlreadySubmitted = errors.New("attempt has already been submitted")
	ErrAttemptAlreadyActive    = errors.New("an attempt is already in progress for this test")
	ErrAttemptLimitReached     = errors.New("maximum attempts reached for this test")
	ErrAttemptTimeExpired      = errors.New("attempt time has expired")
	ErrAttemptStale            = errors.New("attempt was modified concurrently, retry the operation")

	ErrGradingNotAllowed = errors.New("attempt cannot be graded in its current status")

	ErrUserNotFound = errors.New("user not found")
)

// ===== VALIDATION ERRORS =====

// The service layer reuses the validator package's error types so a
// handler only needs one errors.As case for request validation.
type ValidationError = validator.ValidationError

type ValidationErrors = validator.ValidationErrors

func NewValidationError(field, message string, value interface{}) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message, Value: value, Rule: "business_logic"}}
}

// ===== PERMISSION ERRORS =====

// PermissionError carries who tried what on which resource, for the audit
// trail and the 403 response body.
type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// ===== BUSINESS RULE ERRORS =====

// BusinessRuleError is a named rule violation that maps to a conflict
// response rather than a validation failure.
type BusinessRuleError struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message}
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsConflict reports whether err should surface as a conflict.
func IsConflict(err error) bool {
	if errors.Is(err, ErrTestNotEditable) ||
		errors.Is(err, ErrAttemptAlreadyActive) ||
		errors.Is(err, ErrAttemptAlreadySubmitted) ||
		errors.Is(err, ErrAttemptLimitReached) ||
		errors.Is(err, ErrAttemptStale) ||
		errors.Is(err, ErrGradingNotAllowed) {
		return true
	}
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}
