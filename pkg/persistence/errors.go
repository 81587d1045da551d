// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrCadenceNotFound indicates a cadence was not found by the given identifier.
	ErrCadenceNotFound = errors.New("cadence not found")

	// ErrNodeNotFound indicates a node was not found by the given identifier.
	ErrNodeNotFound = errors.New("node not found")

	// ErrLeadNotFound indicates a lead was not found by the given identifier.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrLeadCadenceNotFound indicates the lead is not enrolled in the cadence.
	ErrLeadCadenceNotFound = errors.New("lead is not enrolled in cadence")

	// ErrTaskNotFound indicates a task was not found.
	ErrTaskNotFound = errors.New("task not found")

	// ErrSettingsNotFound indicates a user has no stored settings.
	ErrSettingsNotFound = errors.New("settings not found")

	// ErrScheduleNotFound indicates a cadence has no launch schedule.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrOutstandingTaskExists indicates a second outstanding task was requested
	// for the same (lead, node) pair.
	ErrOutstandingTaskExists = errors.New("outstanding task already exists for lead and node")
)

// CadenceError wraps cadence-related errors with additional context.
type CadenceError struct {
	Op        string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	CadenceID string
	Err       error
}

func (e *CadenceError) Error() string {
	return fmt.Sprintf("%s operation failed for cadence %s: %v", e.Op, e.CadenceID, e.Err)
}

func (e *CadenceError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for cadence errors.
func (e *CadenceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewCadenceError creates a new cadence error with context.
func NewCadenceError(op, cadenceID string, err error) *CadenceError {
	return &CadenceError{
		Op:        op,
		CadenceID: cadenceID,
		Err:       err,
	}
}

// TaskError wraps task-related errors with the (lead, node) pair they concern.
type TaskError struct {
	Op     string
	LeadID string
	NodeID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s operation failed for lead %s at node %s: %v", e.Op, e.LeadID, e.NodeID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTaskError creates a new task error with context.
func NewTaskError(op, leadID, nodeID string, err error) *TaskError {
	return &TaskError{Op: op, LeadID: leadID, NodeID: nodeID, Err: err}
}

// IsNotFound checks if an error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCadenceNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrLeadNotFound) ||
		errors.Is(err, ErrLeadCadenceNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrSettingsNotFound) ||
		errors.Is(err, ErrScheduleNotFound)
}

// IsCadenceNotFound checks if an error indicates a cadence was not found.
func IsCadenceNotFound(err error) bool {
	return errors.Is(err, ErrCadenceNotFound)
}

// IsNodeNotFound checks if an error indicates a node was not found.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// IsOutstandingTaskExists checks if an error reports a single-outstanding-task violation.
func IsOutstandingTaskExists(err error) bool {
	return errors.Is(err, ErrOutstandingTaskExists)
}
