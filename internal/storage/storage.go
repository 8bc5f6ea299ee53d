package storage

import (
	"context"
	"slices"
	"time"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
)

// Pagination bounds for List
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Store is the single source of truth for docking jobs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create persists a new job. Returns domain.ErrDuplicateID if the id exists.
	Create(ctx context.Context, job *domain.Job) error

	// Get returns a snapshot of the job including its poses
	Get(ctx context.Context, id string) (*domain.Job, error)

	// Update applies a guarded state transition. The update is rejected with
	// an InvalidStateError when the job is already terminal or its status is
	// not one of the condition's expected statuses.
	Update(ctx context.Context, id string, update Update) (*domain.Job, error)

	// List returns one page of jobs (newest first, ties by id) plus the total match count
	List(ctx context.Context, filter Filter) ([]*domain.Job, int, error)

	// ListByStatus returns every job in status, oldest first
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error)

	// Ping checks the backing store is reachable
	Ping(ctx context.Context) error
}

// Condition guards an update, check-then-set style
type Condition struct {
	ExpectedStatuses []domain.JobStatus
}

// Expect builds a condition matching any of statuses
func Expect(statuses ...domain.JobStatus) Condition {
	return Condition{ExpectedStatuses: statuses}
}

// Validate checks the condition against the job's current state
func (c Condition) Validate(job *domain.Job, op string) error {
	if job.Status.IsTerminal() {
		return domain.NewInvalidStateError(job.ID, job.Status, op)
	}
	if len(c.ExpectedStatuses) > 0 && !slices.Contains(c.ExpectedStatuses, job.Status) {
		return domain.NewInvalidStateError(job.ID, job.Status, op)
	}
	return nil
}

// Update is a partial state transition. Zero-valued fields are left untouched.
type Update struct {
	Condition    Condition
	Status       domain.JobStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorCode    string
	ErrorMessage string
	Poses        []domain.Pose
	BestAffinity *float64
}

// op names the transition for error messages
func (u Update) op() string {
	switch u.Status {
	case domain.JobStatusRunning:
		return "start"
	case domain.JobStatusCompleted:
		return "complete"
	case domain.JobStatusFailed:
		return "fail"
	case domain.JobStatusCancelled:
		return "cancel"
	default:
		return "update"
	}
}

// apply writes the update onto job in place
func (u Update) apply(job *domain.Job) {
	if u.Status != "" {
		job.Status = u.Status
	}
	if u.StartedAt != nil {
		t := *u.StartedAt
		job.StartedAt = &t
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		job.CompletedAt = &t
	}
	if u.ErrorCode != "" {
		job.ErrorCode = u.ErrorCode
	}
	if u.ErrorMessage != "" {
		job.ErrorMessage = u.ErrorMessage
	}
	if u.Poses != nil {
		job.Poses = make([]domain.Pose, len(u.Poses))
		copy(job.Poses, u.Poses)
	}
	if u.BestAffinity != nil {
		v := *u.BestAffinity
		job.BestAffinity = &v
	}
}

// Filter selects and pages jobs for history views
type Filter struct {
	Status      domain.JobStatus
	CandidateID string
	TargetID    string
	CreatedFrom time.Time // inclusive
	CreatedTo   time.Time // exclusive
	Page        int       // 1-based
	PageSize    int
}

// Normalize clamps page and page size into their valid ranges
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset returns the number of rows skipped before the page
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Matches reports whether job passes every filter criterion
func (f Filter) Matches(job *domain.Job) bool {
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.CandidateID != "" && job.CandidateID != f.CandidateID {
		return false
	}
	if f.TargetID != "" && job.TargetUniprotID != f.TargetID {
		return false
	}
	if !f.CreatedFrom.IsZero() && job.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && !job.CreatedAt.Before(f.CreatedTo) {
		return false
	}
	return true
}
