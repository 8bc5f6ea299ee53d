package domain

import "fmt"

// JobStatus is the lifecycle state of a docking job
type JobStatus string

// Job status constants
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Docking parameter defaults used when a request leaves them unset
const (
	DefaultExhaustiveness = 8
	DefaultNumModes       = 9
	DefaultEnergyRange    = 3.0
)

// Error codes persisted on failed jobs and returned on the wire
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidState      = "INVALID_STATE"
	CodeEngineInput       = "ENGINE_INPUT_ERROR"
	CodeEngineTimeout     = "ENGINE_TIMEOUT"
	CodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	CodeStore             = "STORE_ERROR"
	CodeInterrupted       = "INTERRUPTED"
	CodeInternal          = "INTERNAL_ERROR"
)

// IsTerminal reports whether no further transition is allowed out of s
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is a known status
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

func (s JobStatus) String() string {
	return string(s)
}

// ParseJobStatus converts a query/string value into a JobStatus
func ParseJobStatus(value string) (JobStatus, error) {
	status := JobStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, value)
	}
	return status, nil
}
