package engine

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cuongbtq/docking-be/internal/docking/domain"
)

// SimulatedConfig configures the simulated engine
type SimulatedConfig struct {
	Duration time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// SimulatedEngine produces deterministic poses without an external program.
// Used for local development and demos.
type SimulatedEngine struct {
	duration time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewSimulatedEngine creates a SimulatedEngine
func NewSimulatedEngine(cfg SimulatedConfig) *SimulatedEngine {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SimulatedEngine{
		duration: cfg.Duration,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

func (e *SimulatedEngine) Name() string {
	return "simulated"
}

// Dock waits for the configured duration, then returns NumModes poses seeded
// from the ligand and target so the same inputs always dock the same way.
func (e *SimulatedEngine) Dock(ctx context.Context, req Request) ([]domain.Pose, error) {
	if strings.ContainsAny(req.SMILES, " \t\n") {
		return nil, InputError("invalid SMILES: whitespace is not allowed")
	}
	if strings.TrimSpace(req.TargetStructure) == "" {
		return nil, InputError("missing target structure")
	}

	if e.duration > 0 {
		timer := e.clock.Timer(e.duration)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	poses := simulatePoses(req)
	e.logger.Debug("Simulated docking finished",
		slog.String("job_id", req.JobID),
		slog.Int("poses", len(poses)),
	)
	return poses, nil
}

func simulatePoses(req Request) []domain.Pose {
	h := fnv.New64a()
	_, _ = h.Write([]byte(req.SMILES))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.TargetUniprotID))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	n := req.Params.NumModes
	if n <= 0 {
		n = domain.DefaultNumModes
	}
	energyRange := req.Params.EnergyRange
	if energyRange <= 0 {
		energyRange = domain.DefaultEnergyRange
	}

	// best affinity somewhere in [-11, -5] kcal/mol, the rest within energy range of it
	best := -5 - rng.Float64()*6
	affinities := make([]float64, n)
	affinities[0] = best
	for i := 1; i < n; i++ {
		affinities[i] = best + rng.Float64()*energyRange
	}
	sort.Float64s(affinities)

	poses := make([]domain.Pose, n)
	for i, a := range affinities {
		pose := domain.Pose{
			PoseNumber:      i + 1,
			BindingAffinity: round3(a),
		}
		if i > 0 {
			lb := 0.5 + rng.Float64()*2.5
			pose.RMSDLowerBound = round3(lb)
			pose.RMSDUpperBound = round3(lb + rng.Float64()*3)
		}
		poses[i] = pose
	}
	return poses
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
