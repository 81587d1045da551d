// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/registry"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest      = errors.New("invalid request")
	ErrEmptyCadence        = errors.New("cadence has no nodes")
	ErrProductTourCadence  = errors.New("product tour cadence cannot be launched")
	ErrInvalidReplyTarget  = errors.New("reply node must reply to an earlier mail node of the same cadence")
	ErrInvalidStopStatus   = errors.New("lead can only be stopped or completed")
	ErrPauseInPast         = errors.New("pause end must be in the future")
	ErrNodeOutsideCadence  = errors.New("node does not belong to cadence")
	ErrNoCadencesRequested = errors.New("at least one cadence is required")

	// Authorization Errors (403 Forbidden).
	ErrForbidden = errors.New("forbidden")

	// Business Logic Conflicts (409 Conflict).
	ErrCadenceRunning       = errors.New("cadence is already launched")
	ErrCadenceProcessing    = errors.New("cadence is processing, try again later")
	ErrCadencePaused        = errors.New("cadence is already paused")
	ErrCadenceNotPaused     = errors.New("cadence is not paused")
	ErrCadenceInProgress    = errors.New("cadence in progress cannot be deleted")
	ErrCadenceNotInProgress = errors.New("cadence is not in progress")
	ErrReplyDependency      = errors.New("node is the reply target of another node, delete the reply first")
	ErrAlreadyStopped       = errors.New("lead is already stopped in cadence")
	ErrLeadNotPaused        = errors.New("lead is not paused in cadence")
	ErrLeadNotActive        = errors.New("lead is not active in cadence")
	ErrTaskNotOutstanding   = errors.New("task is already completed or skipped")
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

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	var payloadErr *registry.PayloadError

	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyCadence) ||
		errors.Is(err, ErrProductTourCadence) ||
		errors.Is(err, ErrInvalidReplyTarget) ||
		errors.Is(err, ErrInvalidStopStatus) ||
		errors.Is(err, ErrPauseInPast) ||
		errors.Is(err, ErrNodeOutsideCadence) ||
		errors.Is(err, ErrNoCadencesRequested) ||
		errors.Is(err, registry.ErrUnknownNodeType) ||
		errors.Is(err, models.ErrInvalidSchedule) ||
		errors.As(err, &payloadErr)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCadenceRunning) ||
		errors.Is(err, ErrCadenceProcessing) ||
		errors.Is(err, ErrCadencePaused) ||
		errors.Is(err, ErrCadenceNotPaused) ||
		errors.Is(err, ErrCadenceInProgress) ||
		errors.Is(err, ErrCadenceNotInProgress) ||
		errors.Is(err, ErrReplyDependency) ||
		errors.Is(err, ErrAlreadyStopped) ||
		errors.Is(err, ErrLeadNotPaused) ||
		errors.Is(err, ErrLeadNotActive) ||
		errors.Is(err, ErrTaskNotOutstanding)
}

// IsForbiddenError checks if an error is an authorization refusal that should return HTTP 403.
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsNotFoundError checks if an error reports a missing entity that should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
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

// NewConflictError creates an error for an operation rejected by the current state.
func NewConflictError(op string, err error) *ServiceError {
	return &ServiceError{
		Op:   op,
		Code: "conflict",
		Err:  err,
	}
}
