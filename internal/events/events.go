// Package events publishes docking job lifecycle transitions.
package events

import (
	"context"
	"time"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
)

// typePrefix is prepended to the job status to form the event type and routing key
const typePrefix = "docking.job."

// Event is one job lifecycle transition
type Event struct {
	Type         string           `json:"type"`
	JobID        string           `json:"job_id"`
	Status       domain.JobStatus `json:"status"`
	CandidateID  string           `json:"candidate_id"`
	TargetID     string           `json:"target_uniprot_id"`
	OccurredAt   time.Time        `json:"occurred_at"`
	BestAffinity *float64         `json:"best_affinity,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	RerunOf      string           `json:"rerun_of,omitempty"`
}

// NewJobEvent builds the event for job's current status
func NewJobEvent(job *domain.Job, at time.Time) Event {
	return Event{
		Type:         TypeFor(job.Status),
		JobID:        job.ID,
		Status:       job.Status,
		CandidateID:  job.CandidateID,
		TargetID:     job.TargetUniprotID,
		OccurredAt:   at.UTC(),
		BestAffinity: job.BestAffinity,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		RerunOf:      job.RerunOf,
	}
}

// TypeFor returns the event type for a status, e.g. docking.job.completed
func TypeFor(status domain.JobStatus) string {
	return typePrefix + string(status)
}

// Publisher delivers lifecycle events. Publishing never affects job state.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error {
	return nil
}
