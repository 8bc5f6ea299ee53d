// Package scheduler owns the docking queue: FIFO admission, bounded dispatch,
// cancellation, reruns and the advisory progress estimates shown to clients.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuongbtq/docking-be/internal/analysis"
	"github.com/cuongbtq/docking-be/internal/docking/domain"
	"github.com/cuongbtq/docking-be/internal/events"
	"github.com/cuongbtq/docking-be/internal/storage"
	"github.com/google/uuid"
)

// Defaults applied by New
const (
	DefaultConcurrency        = 2
	DefaultAverageJobDuration = 5 * time.Minute
	DefaultRetryInterval      = 2 * time.Second
	finalizeTimeout           = 30 * time.Second
	maxCancelAttempts         = 3
)

// Executor runs one docking job to completion
type Executor interface {
	Execute(ctx context.Context, job *domain.Job) ([]domain.Pose, error)
}

// Config holds scheduler configuration
type Config struct {
	Logger              *slog.Logger
	Store               storage.Store
	Executor            Executor
	Publisher           events.Publisher
	Concurrency         int
	AverageJobDuration  time.Duration
	AllowRerunCancelled bool
	RetryInterval       time.Duration
	Clock               clock.Clock
	NewID               func() string
}

// Scheduler is the single coordinator of queued→running transitions
type Scheduler struct {
	logger              *slog.Logger
	store               storage.Store
	executor            Executor
	publisher           events.Publisher
	clock               clock.Clock
	newID               func() string
	concurrency         int
	avgDuration         time.Duration
	allowRerunCancelled bool
	retryInterval       time.Duration

	// mu guards queue order and the running set
	mu      sync.Mutex
	queue   []string
	running map[string]context.CancelFunc

	wake  chan struct{}
	slots chan struct{}
	wg    sync.WaitGroup
}

// dispatched is a job that has just moved to running
type dispatched struct {
	job    *domain.Job
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. Call Recover, then Run.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("scheduler requires a store")
	}
	if cfg.Executor == nil {
		return nil, errors.New("scheduler requires an executor")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.AverageJobDuration <= 0 {
		cfg.AverageJobDuration = DefaultAverageJobDuration
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	return &Scheduler{
		logger:              cfg.Logger,
		store:               cfg.Store,
		executor:            cfg.Executor,
		publisher:           cfg.Publisher,
		clock:               cfg.Clock,
		newID:               cfg.NewID,
		concurrency:         cfg.Concurrency,
		avgDuration:         cfg.AverageJobDuration,
		allowRerunCancelled: cfg.AllowRerunCancelled,
		retryInterval:       cfg.RetryInterval,
		running:             make(map[string]context.CancelFunc),
		wake:                make(chan struct{}, 1),
		slots:               make(chan struct{}, cfg.Concurrency),
	}, nil
}

// Submission is the outcome of an accepted submit or rerun
type Submission struct {
	Job               *domain.Job
	QueuePosition     int
	EstimatedDuration time.Duration
}

// Submit validates req, persists a queued job and appends it to the queue
func (s *Scheduler) Submit(ctx context.Context, req domain.SubmitRequest) (*Submission, error) {
	return s.submit(ctx, req, "")
}

// Rerun resubmits the inputs of a failed job under a new id.
// The original job is left untouched.
func (s *Scheduler) Rerun(ctx context.Context, id string) (*Submission, error) {
	original, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := original.Status == domain.JobStatusFailed ||
		(s.allowRerunCancelled && original.Status == domain.JobStatusCancelled)
	if !allowed {
		return nil, domain.NewInvalidStateError(id, original.Status, "rerun")
	}

	sub, err := s.submit(ctx, domain.RequestFromJob(original), original.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job rerun submitted",
		slog.String("job_id", sub.Job.ID),
		slog.String("rerun_of", original.ID),
	)
	return sub, nil
}

func (s *Scheduler) submit(ctx context.Context, req domain.SubmitRequest, rerunOf string) (*Submission, error) {
	// Step 1: Validate before touching the store
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := domain.DefaultDockingParams()
	if req.DockingParams != nil {
		params = req.DockingParams.WithDefaults()
	}

	job := &domain.Job{
		ID:              s.newID(),
		CandidateID:     req.CandidateID,
		TargetUniprotID: req.TargetUniprotID,
		DiseaseName:     req.DiseaseName,
		SMILES:          req.SMILES,
		GridParams:      req.GridParams,
		DockingParams:   &params,
		Status:          domain.JobStatusQueued,
		RerunOf:         rerunOf,
	}

	// Step 2: Persist and enqueue under one lock so store order and queue order agree
	s.mu.Lock()
	// Postgres keeps microseconds; truncate so every store reports the same time
	job.CreatedAt = s.clock.Now().UTC().Truncate(time.Microsecond)
	if err := s.store.Create(ctx, job); err != nil {
		s.mu.Unlock()
		s.logger.Error("Failed to create job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	position := len(s.queue)
	s.queue = append(s.queue, job.ID)
	s.mu.Unlock()

	// Step 3: Nudge the dispatch loop and announce the job
	s.signal()
	s.publish(job)

	s.logger.Info("Job submitted",
		slog.String("job_id", job.ID),
		slog.String("candidate_id", job.CandidateID),
		slog.String("target_uniprot_id", job.TargetUniprotID),
		slog.Int("queue_position", position),
	)

	return &Submission{
		Job:               job,
		QueuePosition:     position,
		EstimatedDuration: s.queuedEstimate(position),
	}, nil
}

// Cancel moves a queued or running job to cancelled. A running job's
// computation is interrupted after the status is recorded.
func (s *Scheduler) Cancel(ctx context.Context, id string) (*domain.Job, error) {
	for attempt := 0; attempt < maxCancelAttempts; attempt++ {
		job, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		var cancelled *domain.Job
		switch job.Status {
		case domain.JobStatusQueued:
			cancelled, err = s.cancelQueued(ctx, id)
		case domain.JobStatusRunning:
			cancelled, err = s.cancelRunning(ctx, id)
		default:
			return nil, domain.NewInvalidStateError(id, job.Status, "cancel")
		}

		if err != nil {
			// Dispatched between read and write: try again as running
			var stateErr *domain.InvalidStateError
			if errors.As(err, &stateErr) && !stateErr.Actual.IsTerminal() {
				continue
			}
			return nil, err
		}

		s.publish(cancelled)
		s.logger.Info("Job cancelled",
			slog.String("job_id", id),
			slog.String("previous_status", job.Status.String()),
		)
		return cancelled, nil
	}

	return nil, fmt.Errorf("%w: job %s kept changing state during cancel", domain.ErrInvalidState, id)
}

func (s *Scheduler) cancelQueued(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	job, err := s.store.Update(ctx, id, storage.Update{
		Condition:   storage.Expect(domain.JobStatusQueued),
		Status:      domain.JobStatusCancelled,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}

	s.queue = slices.DeleteFunc(s.queue, func(queued string) bool { return queued == id })
	return job, nil
}

func (s *Scheduler) cancelRunning(ctx context.Context, id string) (*domain.Job, error) {
	now := s.clock.Now().UTC()
	job, err := s.store.Update(ctx, id, storage.Update{
		Condition:   storage.Expect(domain.JobStatusRunning),
		Status:      domain.JobStatusCancelled,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}

	// Status is final; now free the slot
	s.mu.Lock()
	stop := s.running[id]
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	return job, nil
}

// Job returns the latest persisted snapshot of a job
func (s *Scheduler) Job(ctx context.Context, id string) (*domain.Job, error) {
	return s.store.Get(ctx, id)
}

// List returns one page of job history
func (s *Scheduler) List(ctx context.Context, filter storage.Filter) ([]*domain.Job, int, error) {
	return s.store.List(ctx, filter)
}

// Stats is a point-in-time view of the dispatcher
type Stats struct {
	Queued      int `json:"queued"`
	Running     int `json:"running"`
	Concurrency int `json:"concurrency"`
}

// Stats reports queue depth and busy slots
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Queued:      len(s.queue),
		Running:     len(s.running),
		Concurrency: s.concurrency,
	}
}

// Ping checks the job store
func (s *Scheduler) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Recover restores state persisted by a previous process. Queued jobs are
// re-enqueued oldest first; jobs left running are marked failed.
// Must be called before Run.
func (s *Scheduler) Recover(ctx context.Context) error {
	stale, err := s.store.ListByStatus(ctx, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to list running jobs: %w", err)
	}

	for _, job := range stale {
		now := s.clock.Now().UTC()
		failed, err := s.store.Update(ctx, job.ID, storage.Update{
			Condition:    storage.Expect(domain.JobStatusRunning),
			Status:       domain.JobStatusFailed,
			CompletedAt:  &now,
			ErrorCode:    domain.CodeInterrupted,
			ErrorMessage: "docking run interrupted by service restart",
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				continue
			}
			return fmt.Errorf("failed to mark job %s interrupted: %w", job.ID, err)
		}
		s.publish(failed)
		s.logger.Warn("Marked interrupted job as failed",
			slog.String("job_id", job.ID),
		)
	}

	queued, err := s.store.ListByStatus(ctx, domain.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to list queued jobs: %w", err)
	}

	s.mu.Lock()
	for _, job := range queued {
		if !slices.Contains(s.queue, job.ID) {
			s.queue = append(s.queue, job.ID)
		}
	}
	depth := len(s.queue)
	s.mu.Unlock()

	s.logger.Info("Scheduler state recovered",
		slog.Int("requeued", len(queued)),
		slog.Int("interrupted", len(stale)),
		slog.Int("queue_depth", depth),
	)

	if depth > 0 {
		s.signal()
	}
	return nil
}

// Run is the dispatch loop. It returns when ctx is done; in-flight jobs are
// interrupted and finish in the background, see Wait.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting dispatch loop",
		slog.Int("concurrency", s.concurrency),
	)

	for {
		// Step 1: Wait for a free slot
		select {
		case <-ctx.Done():
			s.logger.Info("Dispatch loop stopped")
			return nil
		case s.slots <- struct{}{}:
		}

		// Step 2: Wait for the oldest queued job and mark it running
		d, ok := s.next(ctx)
		if !ok {
			<-s.slots
			s.logger.Info("Dispatch loop stopped")
			return nil
		}

		// Step 3: Hand it to a worker goroutine
		s.wg.Add(1)
		go s.runJob(ctx, d)
	}
}

// Wait blocks until every in-flight job has recorded its outcome or ctx ends
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// next blocks until a job is dispatched or ctx is done
func (s *Scheduler) next(ctx context.Context) (*dispatched, bool) {
	for {
		d, err := s.dispatchNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false
			}
			s.logger.Error("Failed to dispatch job, retrying",
				slog.String("error", err.Error()),
				slog.Duration("retry_after", s.retryInterval),
			)
			select {
			case <-ctx.Done():
				return nil, false
			case <-s.clock.After(s.retryInterval):
			}
			continue
		}
		if d != nil {
			return d, true
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-s.wake:
		}
	}
}

// dispatchNext pops the queue head and transitions it to running.
// Returns nil, nil when the queue is empty.
func (s *Scheduler) dispatchNext(ctx context.Context) (*dispatched, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) > 0 {
		id := s.queue[0]
		if _, ok := s.running[id]; ok {
			panic(fmt.Sprintf("scheduler: job %s is queued and running at once", id))
		}

		now := s.clock.Now().UTC()
		job, err := s.store.Update(ctx, id, storage.Update{
			Condition: storage.Expect(domain.JobStatusQueued),
			Status:    domain.JobStatusRunning,
			StartedAt: &now,
		})
		if err != nil {
			var stateErr *domain.InvalidStateError
			switch {
			case errors.As(err, &stateErr) && stateErr.Actual == domain.JobStatusRunning:
				panic(fmt.Sprintf("scheduler: job %s was started outside the dispatch loop", id))
			case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrJobNotFound):
				// Cancelled or gone since it was queued
				s.queue = s.queue[1:]
				s.logger.Debug("Skipping job no longer queued",
					slog.String("job_id", id),
					slog.String("reason", err.Error()),
				)
				continue
			default:
				// Store failure: keep the job at the head and retry later
				return nil, err
			}
		}

		s.queue = s.queue[1:]
		jobCtx, cancel := context.WithCancel(ctx)
		s.running[id] = cancel
		return &dispatched{job: job, ctx: jobCtx, cancel: cancel}, nil
	}

	return nil, nil
}

// runJob executes a dispatched job and records its outcome
func (s *Scheduler) runJob(runCtx context.Context, d *dispatched) {
	defer s.wg.Done()
	defer func() { <-s.slots }()
	defer func() {
		s.mu.Lock()
		delete(s.running, d.job.ID)
		s.mu.Unlock()
		d.cancel()
	}()

	log := s.logger.With(slog.String("job_id", d.job.ID))
	log.Info("Job started")
	s.publish(d.job)

	poses, err := s.executor.Execute(d.ctx, d.job)
	now := s.clock.Now().UTC()

	var update storage.Update
	switch {
	case err == nil:
		best, _ := analysis.BestPose(poses)
		affinity := best.BindingAffinity
		update = storage.Update{
			Condition:    storage.Expect(domain.JobStatusRunning),
			Status:       domain.JobStatusCompleted,
			CompletedAt:  &now,
			Poses:        poses,
			BestAffinity: &affinity,
		}

	case d.ctx.Err() != nil && runCtx.Err() == nil:
		// Cancelled by a caller; the cancelled status is already recorded
		log.Info("Job run stopped after cancellation")
		return

	default:
		if runCtx.Err() != nil {
			err = fmt.Errorf("%w: service shutting down", domain.ErrInterrupted)
		}
		update = storage.Update{
			Condition:    storage.Expect(domain.JobStatusRunning),
			Status:       domain.JobStatusFailed,
			CompletedAt:  &now,
			ErrorCode:    domain.ErrorCode(err),
			ErrorMessage: err.Error(),
		}
	}

	// Outcome must be written even while the service is shutting down
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), finalizeTimeout)
	defer cancel()

	job, uerr := s.recordOutcome(writeCtx, d.job.ID, update, log)
	if uerr != nil {
		if errors.Is(uerr, domain.ErrInvalidState) {
			log.Info("Discarding result of job that is no longer running",
				slog.String("reason", uerr.Error()),
			)
			return
		}
		log.Error("Failed to record job outcome",
			slog.String("status", update.Status.String()),
			slog.String("error", uerr.Error()),
		)
		return
	}

	s.publish(job)
	if job.Status == domain.JobStatusCompleted {
		log.Info("Job completed",
			slog.Int("poses", len(job.Poses)),
			slog.Float64("best_affinity", *job.BestAffinity),
		)
	} else {
		log.Warn("Job failed",
			slog.String("error_code", job.ErrorCode),
			slog.String("error", job.ErrorMessage),
		)
	}
}

// recordOutcome writes a job's final update, retrying once after a store error
func (s *Scheduler) recordOutcome(ctx context.Context, id string, update storage.Update, log *slog.Logger) (*domain.Job, error) {
	job, err := s.store.Update(ctx, id, update)
	if err == nil || !errors.Is(err, domain.ErrStore) {
		return job, err
	}

	log.Warn("Failed to record job outcome, retrying",
		slog.String("status", update.Status.String()),
		slog.String("error", err.Error()),
		slog.Duration("retry_after", s.retryInterval),
	)
	select {
	case <-ctx.Done():
		return nil, err
	case <-s.clock.After(s.retryInterval):
	}
	return s.store.Update(ctx, id, update)
}

// signal wakes the dispatch loop without blocking
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) publish(job *domain.Job) {
	event := events.NewJobEvent(job, s.clock.Now())
	if err := s.publisher.Publish(context.Background(), event); err != nil {
		s.logger.Warn("Failed to publish job event",
			slog.String("job_id", job.ID),
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
	}
}
