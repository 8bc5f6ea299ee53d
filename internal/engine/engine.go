// Package engine wraps the external docking engine behind a cancellable call.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
)

// Engine runs one docking computation. Implementations must stop work and
// return promptly once ctx is done.
type Engine interface {
	Dock(ctx context.Context, req Request) ([]domain.Pose, error)
	Name() string
}

// Request is the input of a single docking run
type Request struct {
	JobID           string               `json:"job_id"`
	SMILES          string               `json:"smiles"`
	TargetUniprotID string               `json:"target_uniprot_id"`
	TargetStructure string               `json:"target_structure"`
	GridParams      *domain.GridParams   `json:"grid_params,omitempty"`
	Params          domain.DockingParams `json:"-"`
}

// InputError reports that the engine rejected the job inputs. Never retried.
func InputError(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrEngineInput, msg)
}

// Unavailable reports a transport or process failure reaching the engine
func Unavailable(err error) error {
	return domain.NewRetryableError(fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err))
}

// IsCancellation reports whether err came from ctx being done rather than the engine
func IsCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
