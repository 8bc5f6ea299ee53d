package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
)

// inputErrorExitCode is the exit status the engine uses for rejected inputs
const inputErrorExitCode = 2

// defaultWaitDelay bounds how long a killed engine may hold its pipes open
const defaultWaitDelay = 5 * time.Second

// ExecConfig configures the subprocess engine
type ExecConfig struct {
	Command   string
	Args      []string
	WaitDelay time.Duration
	Logger    *slog.Logger
}

// ExecEngine runs the docking engine as a child process.
// The request is written to stdin as JSON and poses are read from stdout.
type ExecEngine struct {
	command   string
	args      []string
	waitDelay time.Duration
	logger    *slog.Logger
}

// execRequest is the JSON document written to the engine's stdin
type execRequest struct {
	JobID           string             `json:"job_id"`
	SMILES          string             `json:"smiles"`
	TargetUniprotID string             `json:"target_uniprot_id"`
	TargetStructure string             `json:"target_structure"`
	GridParams      *domain.GridParams `json:"grid_params,omitempty"`
	Exhaustiveness  int                `json:"exhaustiveness"`
	NumModes        int                `json:"num_modes"`
	EnergyRange     float64            `json:"energy_range"`
}

// execResponse is the JSON document expected on the engine's stdout
type execResponse struct {
	Poses []domain.Pose `json:"poses"`
}

// NewExecEngine creates an ExecEngine
func NewExecEngine(cfg ExecConfig) (*ExecEngine, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("engine command is required")
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = defaultWaitDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ExecEngine{
		command:   cfg.Command,
		args:      cfg.Args,
		waitDelay: cfg.WaitDelay,
		logger:    cfg.Logger,
	}, nil
}

func (e *ExecEngine) Name() string {
	return "exec"
}

// Dock runs the engine process to completion. The process is killed when ctx is done.
func (e *ExecEngine) Dock(ctx context.Context, req Request) ([]domain.Pose, error) {
	payload, err := json.Marshal(execRequest{
		JobID:           req.JobID,
		SMILES:          req.SMILES,
		TargetUniprotID: req.TargetUniprotID,
		TargetStructure: req.TargetStructure,
		GridParams:      req.GridParams,
		Exhaustiveness:  req.Params.Exhaustiveness,
		NumModes:        req.Params.NumModes,
		EnergyRange:     req.Params.EnergyRange,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal engine request: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.command, e.args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = e.waitDelay

	e.logger.Debug("Starting docking engine",
		slog.String("job_id", req.JobID),
		slog.String("command", e.command),
	)

	start := time.Now()
	runErr := cmd.Run()

	// Killed on purpose: report the context error, not the exit status
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && exitErr.ExitCode() == inputErrorExitCode {
			if msg == "" {
				msg = "engine rejected input"
			}
			return nil, InputError(msg)
		}

		e.logger.Warn("Docking engine failed",
			slog.String("job_id", req.JobID),
			slog.String("error", runErr.Error()),
			slog.String("stderr", msg),
		)
		if msg != "" {
			return nil, Unavailable(fmt.Errorf("%v: %s", runErr, msg))
		}
		return nil, Unavailable(runErr)
	}

	var resp execResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, Unavailable(fmt.Errorf("malformed engine output: %v", err))
	}

	e.logger.Debug("Docking engine finished",
		slog.String("job_id", req.JobID),
		slog.Int("poses", len(resp.Poses)),
		slog.Duration("duration", time.Since(start)),
	)

	return resp.Poses, nil
}
