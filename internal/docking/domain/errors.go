package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a request is missing or carries malformed input
	ErrValidation = errors.New("validation error")

	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateID is returned when a job id is already taken
	ErrDuplicateID = errors.New("job id already exists")

	// ErrInvalidState is returned when a transition is not permitted from the current status
	ErrInvalidState = errors.New("invalid state transition")

	// ErrEngineInput is returned when the docking engine rejects the job inputs
	ErrEngineInput = errors.New("docking engine rejected input")

	// ErrEngineTimeout is returned when a docking run exceeds its execution ceiling
	ErrEngineTimeout = errors.New("docking engine timed out")

	// ErrEngineUnavailable is returned when the docking engine cannot be reached or started
	ErrEngineUnavailable = errors.New("docking engine unavailable")

	// ErrStore is returned when the job store fails to persist or read
	ErrStore = errors.New("job store failure")

	// ErrInterrupted is recorded on jobs whose run was cut short by a service shutdown or restart
	ErrInterrupted = errors.New("docking run interrupted")
)

// InvalidStateError describes a rejected transition for a specific job
type InvalidStateError struct {
	JobID  string
	Actual JobStatus
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s job %s: job is %s", e.Op, e.JobID, e.Actual)
}

// Is lets errors.Is(err, ErrInvalidState) match
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// NewInvalidStateError creates an InvalidStateError
func NewInvalidStateError(jobID string, actual JobStatus, op string) error {
	return &InvalidStateError{JobID: jobID, Actual: actual, Op: op}
}

// RetryableError wraps transient errors that should trigger another engine attempt
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err (or anything it wraps) is a RetryableError
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

// ErrorCode maps an error onto its machine-readable code
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrJobNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrEngineInput):
		return CodeEngineInput
	case errors.Is(err, ErrEngineTimeout):
		return CodeEngineTimeout
	case errors.Is(err, ErrEngineUnavailable):
		return CodeEngineUnavailable
	case errors.Is(err, ErrStore):
		return CodeStore
	case errors.Is(err, ErrInterrupted), errors.Is(err, context.Canceled):
		return CodeInterrupted
	default:
		return CodeInternal
	}
}
