package domain

import (
	"time"
)

// GridParams is the docking search box, in Ångströms
type GridParams struct {
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	CenterZ float64 `json:"center_z"`
	SizeX   float64 `json:"size_x"`
	SizeY   float64 `json:"size_y"`
	SizeZ   float64 `json:"size_z"`
}

// DockingParams tunes the docking search. Zero fields fall back to defaults.
type DockingParams struct {
	Exhaustiveness int     `json:"exhaustiveness"`
	NumModes       int     `json:"num_modes"`
	EnergyRange    float64 `json:"energy_range"`
}

// DefaultDockingParams returns the engine defaults
func DefaultDockingParams() DockingParams {
	return DockingParams{
		Exhaustiveness: DefaultExhaustiveness,
		NumModes:       DefaultNumModes,
		EnergyRange:    DefaultEnergyRange,
	}
}

// WithDefaults fills unset fields from DefaultDockingParams
func (p DockingParams) WithDefaults() DockingParams {
	if p.Exhaustiveness == 0 {
		p.Exhaustiveness = DefaultExhaustiveness
	}
	if p.NumModes == 0 {
		p.NumModes = DefaultNumModes
	}
	if p.EnergyRange == 0 {
		p.EnergyRange = DefaultEnergyRange
	}
	return p
}

// Pose is one binding conformation returned by the docking engine
type Pose struct {
	PoseNumber      int     `json:"pose_number"`
	BindingAffinity float64 `json:"binding_affinity"`
	RMSDLowerBound  float64 `json:"rmsd_lower_bound"`
	RMSDUpperBound  float64 `json:"rmsd_upper_bound"`
	StructureData   string  `json:"structure_data,omitempty"`
}

// Job represents one docking request and its lifecycle
type Job struct {
	ID              string
	CandidateID     string
	TargetUniprotID string
	DiseaseName     string
	SMILES          string
	GridParams      *GridParams
	DockingParams   *DockingParams
	Status          JobStatus
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ErrorCode       string
	ErrorMessage    string
	Poses           []Pose
	BestAffinity    *float64
	RerunOf         string
}

// EffectiveDockingParams returns the parameters the engine should run with
func (j *Job) EffectiveDockingParams() DockingParams {
	if j.DockingParams == nil {
		return DefaultDockingParams()
	}
	return j.DockingParams.WithDefaults()
}

// Clone returns a deep copy so callers never share mutable state with a store
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}

	c := *j
	if j.GridParams != nil {
		grid := *j.GridParams
		c.GridParams = &grid
	}
	if j.DockingParams != nil {
		params := *j.DockingParams
		c.DockingParams = &params
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.BestAffinity != nil {
		v := *j.BestAffinity
		c.BestAffinity = &v
	}
	if j.Poses != nil {
		c.Poses = make([]Pose, len(j.Poses))
		copy(c.Poses, j.Poses)
	}
	return &c
}
