package domain

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// SubmitRequest carries the immutable inputs of a docking job
type SubmitRequest struct {
	CandidateID     string
	TargetUniprotID string
	DiseaseName     string
	SMILES          string
	GridParams      *GridParams
	DockingParams   *DockingParams
}

// Validate checks required fields and parameter ranges, reporting every problem at once
func (r SubmitRequest) Validate() error {
	var errs *multierror.Error

	if strings.TrimSpace(r.CandidateID) == "" {
		errs = multierror.Append(errs, fmt.Errorf("candidate_id is required"))
	}
	if strings.TrimSpace(r.TargetUniprotID) == "" {
		errs = multierror.Append(errs, fmt.Errorf("target_uniprot_id is required"))
	}
	if strings.TrimSpace(r.SMILES) == "" {
		errs = multierror.Append(errs, fmt.Errorf("smiles is required"))
	}

	if g := r.GridParams; g != nil {
		if g.SizeX <= 0 || g.SizeY <= 0 || g.SizeZ <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("grid_params sizes must be greater than 0"))
		}
	}

	if p := r.DockingParams; p != nil {
		if p.Exhaustiveness < 0 {
			errs = multierror.Append(errs, fmt.Errorf("docking_params.exhaustiveness must not be negative"))
		}
		if p.NumModes < 0 {
			errs = multierror.Append(errs, fmt.Errorf("docking_params.num_modes must not be negative"))
		}
		if p.EnergyRange < 0 {
			errs = multierror.Append(errs, fmt.Errorf("docking_params.energy_range must not be negative"))
		}
	}

	if errs == nil {
		return nil
	}
	errs.ErrorFormat = joinErrors
	return fmt.Errorf("%w: %s", ErrValidation, errs.Error())
}

// RequestFromJob rebuilds the submission inputs of an existing job
func RequestFromJob(job *Job) SubmitRequest {
	c := job.Clone()
	return SubmitRequest{
		CandidateID:     c.CandidateID,
		TargetUniprotID: c.TargetUniprotID,
		DiseaseName:     c.DiseaseName,
		SMILES:          c.SMILES,
		GridParams:      c.GridParams,
		DockingParams:   c.DockingParams,
	}
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
