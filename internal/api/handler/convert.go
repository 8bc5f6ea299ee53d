package handler

import (
	"time"

	"github.com/cuongbtq/docking-be/internal/analysis"
	"github.com/cuongbtq/docking-be/internal/api/dto"
	"github.com/cuongbtq/docking-be/internal/docking/domain"
	"github.com/cuongbtq/docking-be/internal/scheduler"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func seconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	s := int64(d.Round(time.Second) / time.Second)
	return &s
}

func toSubmitRequest(req dto.SubmitRequest) domain.SubmitRequest {
	out := domain.SubmitRequest{
		CandidateID:     req.CandidateID,
		TargetUniprotID: req.TargetUniprotID,
		DiseaseName:     req.DiseaseName,
		SMILES:          req.SMILES,
	}
	if g := req.GridParams; g != nil {
		out.GridParams = &domain.GridParams{
			CenterX: g.CenterX,
			CenterY: g.CenterY,
			CenterZ: g.CenterZ,
			SizeX:   g.SizeX,
			SizeY:   g.SizeY,
			SizeZ:   g.SizeZ,
		}
	}
	if p := req.DockingParams; p != nil {
		out.DockingParams = &domain.DockingParams{
			Exhaustiveness: p.Exhaustiveness,
			NumModes:       p.NumModes,
			EnergyRange:    p.EnergyRange,
		}
	}
	return out
}

func toStatusResponse(view *scheduler.StatusView) dto.StatusResponse {
	job := view.Job
	return dto.StatusResponse{
		JobID:                         job.ID,
		Status:                        job.Status.String(),
		ProgressPercent:               view.ProgressPercent,
		CurrentStep:                   view.CurrentStep,
		EstimatedTimeRemainingSeconds: seconds(view.EstimatedRemaining),
		QueuePosition:                 view.QueuePosition,
		ErrorCode:                     job.ErrorCode,
		ErrorMessage:                  job.ErrorMessage,
		RerunOf:                       job.RerunOf,
		CreatedAt:                     formatTime(job.CreatedAt),
		StartedAt:                     formatTimePtr(job.StartedAt),
		CompletedAt:                   formatTimePtr(job.CompletedAt),
	}
}

func toResultsResponse(job *domain.Job) dto.ResultsResponse {
	resp := dto.ResultsResponse{
		JobID:           job.ID,
		CandidateID:     job.CandidateID,
		TargetUniprotID: job.TargetUniprotID,
		DiseaseName:     job.DiseaseName,
		SMILES:          job.SMILES,
		Status:          job.Status.String(),
		BestAffinity:    job.BestAffinity,
		NumPoses:        len(job.Poses),
		Poses:           make([]dto.PoseDTO, len(job.Poses)),
		ErrorCode:       job.ErrorCode,
		ErrorMessage:    job.ErrorMessage,
		RerunOf:         job.RerunOf,
	}

	for i, p := range job.Poses {
		resp.Poses[i] = dto.PoseDTO{
			PoseNumber:      p.PoseNumber,
			BindingAffinity: p.BindingAffinity,
			RMSDLowerBound:  p.RMSDLowerBound,
			RMSDUpperBound:  p.RMSDUpperBound,
			StructureData:   p.StructureData,
		}
	}

	if g := job.GridParams; g != nil {
		resp.GridParams = &dto.GridParams{
			CenterX: g.CenterX, CenterY: g.CenterY, CenterZ: g.CenterZ,
			SizeX: g.SizeX, SizeY: g.SizeY, SizeZ: g.SizeZ,
		}
	}
	params := job.EffectiveDockingParams()
	resp.DockingParams = &dto.DockingParams{
		Exhaustiveness: params.Exhaustiveness,
		NumModes:       params.NumModes,
		EnergyRange:    params.EnergyRange,
	}

	best, ok := analysis.BestPose(job.Poses)
	if ok {
		stats, _ := analysis.ComputeStatistics(job.Poses)
		resp.Analysis = &dto.AnalysisDTO{
			BestPoseNumber: best.PoseNumber,
			Quality:        string(analysis.QualityLabel(best.BindingAffinity)),
			Statistics:     dto.StatisticsDTO(stats),
		}
	}

	return resp
}

func toJobSummary(job *domain.Job, candidateNames, targetNames map[string]string) dto.JobSummaryDTO {
	return dto.JobSummaryDTO{
		JobID:           job.ID,
		CandidateID:     job.CandidateID,
		CandidateName:   candidateNames[job.CandidateID],
		TargetUniprotID: job.TargetUniprotID,
		TargetName:      targetNames[job.TargetUniprotID],
		DiseaseName:     job.DiseaseName,
		Status:          job.Status.String(),
		BestAffinity:    job.BestAffinity,
		CreatedAt:       formatTime(job.CreatedAt),
		CompletedAt:     formatTimePtr(job.CompletedAt),
		ErrorCode:       job.ErrorCode,
		ErrorMessage:    job.ErrorMessage,
		RerunOf:         job.RerunOf,
	}
}
