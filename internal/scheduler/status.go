package scheduler

import (
	"context"
	"slices"
	"time"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
)

// Progress bounds reported while a job is running
const (
	minRunningProgress = 5
	maxRunningProgress = 95
)

// StatusView is a job snapshot plus advisory progress telemetry.
// Progress and estimates are hints for display, not guarantees.
type StatusView struct {
	Job                *domain.Job
	ProgressPercent    int
	CurrentStep        string
	QueuePosition      *int
	EstimatedRemaining *time.Duration
}

// Status returns the job with its queue position and progress estimate
func (s *Scheduler) Status(ctx context.Context, id string) (*StatusView, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		Job:         job,
		CurrentStep: currentStep(job.Status),
	}

	switch job.Status {
	case domain.JobStatusQueued:
		if pos, ok := s.queuePosition(id); ok {
			eta := s.queuedEstimate(pos)
			view.QueuePosition = &pos
			view.EstimatedRemaining = &eta
		}

	case domain.JobStatusRunning:
		var elapsed time.Duration
		if job.StartedAt != nil {
			elapsed = max(s.clock.Since(*job.StartedAt), 0)
		}
		remaining := max(s.avgDuration-elapsed, 0)
		view.ProgressPercent = s.runningProgress(elapsed)
		view.EstimatedRemaining = &remaining

	default:
		view.ProgressPercent = 100
	}

	return view, nil
}

// queuePosition is the 0-based number of queued jobs ahead of id
func (s *Scheduler) queuePosition(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := slices.Index(s.queue, id)
	return pos, pos >= 0
}

// queuedEstimate is the time until a job at position finishes: the waves of
// jobs ahead of it plus its own run
func (s *Scheduler) queuedEstimate(position int) time.Duration {
	waves := position/s.concurrency + 1
	return time.Duration(waves) * s.avgDuration
}

// runningProgress maps elapsed run time onto the 5-95 range
func (s *Scheduler) runningProgress(elapsed time.Duration) int {
	pct := minRunningProgress + int(float64(elapsed)/float64(s.avgDuration)*float64(maxRunningProgress-minRunningProgress))
	return min(max(pct, minRunningProgress), maxRunningProgress)
}

func currentStep(status domain.JobStatus) string {
	switch status {
	case domain.JobStatusQueued:
		return "Waiting in queue"
	case domain.JobStatusRunning:
		return "Running molecular docking"
	case domain.JobStatusCompleted:
		return "Docking completed"
	case domain.JobStatusFailed:
		return "Docking failed"
	case domain.JobStatusCancelled:
		return "Docking cancelled"
	default:
		return "Unknown"
	}
}
