package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
	"github.com/cuongbtq/docking-be/internal/engine"
)

// Defaults applied by NewWorker
const (
	DefaultTimeout              = 20 * time.Minute
	DefaultMaxRetries           = 1
	DefaultRetryDelay           = 2 * time.Second
	DefaultStructureURLTemplate = "https://alphafold.ebi.ac.uk/files/AF-{uniprot_id}-F1-model_v4.pdb"
)

// Config holds worker configuration
type Config struct {
	Logger     *slog.Logger
	Engine     engine.Engine
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// StructureURLTemplate resolves a target to its structure file; {uniprot_id} is substituted
	StructureURLTemplate string
}

// Worker runs a single docking job against the engine, one attempt at a time
type Worker struct {
	logger            *slog.Logger
	engine            engine.Engine
	timeout           time.Duration
	maxRetries        int
	retryDelay        time.Duration
	structureTemplate string
}

// NewWorker creates a new worker instance
func NewWorker(cfg Config) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.StructureURLTemplate == "" {
		cfg.StructureURLTemplate = DefaultStructureURLTemplate
	}

	return &Worker{
		logger:            cfg.Logger,
		engine:            cfg.Engine,
		timeout:           cfg.Timeout,
		maxRetries:        cfg.MaxRetries,
		retryDelay:        cfg.RetryDelay,
		structureTemplate: cfg.StructureURLTemplate,
	}
}

type attemptResult struct {
	poses []domain.Pose
	err   error
}

// Execute docks job and returns its poses.
//
// Every attempt has its own timeout. Only retryable engine failures are
// attempted again; input errors and timeouts are final. When ctx is cancelled
// Execute returns ctx.Err() immediately, even if the engine has not yet stopped.
func (w *Worker) Execute(ctx context.Context, job *domain.Job) ([]domain.Pose, error) {
	req := w.buildRequest(job)

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			w.logger.Info("Retrying docking run",
				slog.String("job_id", job.ID),
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", w.maxRetries+1),
				slog.String("previous_error", lastErr.Error()),
			)
			if err := sleep(ctx, w.retryDelay); err != nil {
				return nil, err
			}
		}

		poses, err := w.attempt(ctx, req)
		if err == nil {
			if err := validatePoses(poses); err != nil {
				return nil, err
			}
			return poses, nil
		}

		// Cancelled or shutting down: nothing to retry
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if !domain.IsRetryable(err) {
			return nil, err
		}
	}

	w.logger.Warn("Docking run exhausted retries",
		slog.String("job_id", job.ID),
		slog.Int("attempts", w.maxRetries+1),
		slog.String("error", lastErr.Error()),
	)
	return nil, lastErr
}

// validatePoses rejects engine output that cannot be stored: pose numbers are
// unique 1-based ranks and each RMSD range is ordered
func validatePoses(poses []domain.Pose) error {
	if len(poses) == 0 {
		return engine.InputError("engine returned no poses")
	}

	seen := make(map[int]struct{}, len(poses))
	for _, p := range poses {
		if p.PoseNumber < 1 {
			return engine.InputError(fmt.Sprintf("pose number %d is not positive", p.PoseNumber))
		}
		if _, dup := seen[p.PoseNumber]; dup {
			return engine.InputError(fmt.Sprintf("duplicate pose number %d", p.PoseNumber))
		}
		seen[p.PoseNumber] = struct{}{}

		if p.RMSDUpperBound < p.RMSDLowerBound {
			return engine.InputError(fmt.Sprintf("pose %d has rmsd upper bound %.3f below lower bound %.3f",
				p.PoseNumber, p.RMSDUpperBound, p.RMSDLowerBound))
		}
	}
	return nil
}

// attempt runs the engine once. The engine call is detached: if ctx or the
// attempt deadline fires first, attempt returns without waiting for it.
func (w *Worker) attempt(ctx context.Context, req engine.Request) ([]domain.Pose, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		poses, err := w.engine.Dock(attemptCtx, req)
		done <- attemptResult{poses: poses, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && engine.IsCancellation(attemptCtx, res.err) {
			return nil, w.interruption(ctx)
		}
		return res.poses, res.err

	case <-attemptCtx.Done():
		w.logger.Debug("Detaching from docking engine",
			slog.String("job_id", req.JobID),
			slog.String("reason", attemptCtx.Err().Error()),
		)
		return nil, w.interruption(ctx)
	}
}

// interruption tells a parent cancel apart from the attempt's own deadline
func (w *Worker) interruption(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: exceeded %s", domain.ErrEngineTimeout, w.timeout)
}

func (w *Worker) buildRequest(job *domain.Job) engine.Request {
	return engine.Request{
		JobID:           job.ID,
		SMILES:          job.SMILES,
		TargetUniprotID: job.TargetUniprotID,
		TargetStructure: strings.ReplaceAll(w.structureTemplate, "{uniprot_id}", job.TargetUniprotID),
		GridParams:      job.GridParams,
		Params:          job.EffectiveDockingParams(),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
