// Package services provides the business logic between the HTTP surface and
// the persistence layer, with a standardized error taxonomy.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidStatus      = errors.New("invalid workflow status")
	ErrEmptyOwnerID       = errors.New("owner ID cannot be empty")
	ErrWorkflowNil        = errors.New("workflow cannot be nil")
	ErrInvalidNodeType    = errors.New("invalid node type")
	ErrInvalidNodePayload = errors.New("invalid node payload")
	ErrDuplicateNodeID    = errors.New("duplicate node ID")

	// Business logic conflicts (409 Conflict).
	ErrWorkflowRunning = errors.New("workflow is already running")
	ErrStaleWorkflow   = errors.New("workflow was modified concurrently")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
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

// IsValidationError checks if an error should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyOwnerID) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrInvalidNodeType) ||
		errors.Is(err, ErrInvalidNodePayload) ||
		errors.Is(err, ErrDuplicateNodeID)
}

// IsConflictError checks if an error should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowRunning) ||
		errors.Is(err, ErrStaleWorkflow)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
