// Package services provides the business operations behind the HTTP API:
// workflow management and automation control.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrEmptyOwnerID         = errors.New("owner ID cannot be empty")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrInvalidTriggerEvent  = errors.New("unknown trigger event")
	ErrStepOrderRequired    = errors.New("step order must be a positive number")
	ErrDuplicateStepOrder   = errors.New("step orders must be unique within a workflow")
	ErrInvalidStepConfig    = errors.New("invalid step configuration")
	ErrUnknownStepKind      = errors.New("unknown step kind")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyOwnerID) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrInvalidTriggerEvent) ||
		errors.Is(err, ErrStepOrderRequired) ||
		errors.Is(err, ErrDuplicateStepOrder) ||
		errors.Is(err, ErrInvalidStepConfig) ||
		errors.Is(err, ErrUnknownStepKind)
}
