package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/docking-be/internal/analysis"
	"github.com/cuongbtq/docking-be/internal/api/dto"
	"github.com/cuongbtq/docking-be/internal/docking/domain"
	"github.com/cuongbtq/docking-be/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// SubmitJob handles POST /api/docking/submit
// Queues a new docking job and returns immediately
func (h *DockingHandler) SubmitJob(c *gin.Context) {
	// 1. Validate request body
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindingError(err))
		return
	}

	// 2. Admit the job
	sub, err := h.service.Submit(c.Request.Context(), toSubmitRequest(req))
	if err != nil {
		h.respondError(c, err)
		return
	}

	eta := sub.EstimatedDuration
	c.JSON(http.StatusAccepted, dto.SubmitResponse{
		JobID:                sub.Job.ID,
		Status:               sub.Job.Status.String(),
		Message:              "Docking job queued",
		QueuePosition:        sub.QueuePosition,
		EstimatedTimeSeconds: seconds(&eta),
	})
}

// GetStatus handles GET /api/docking/status/:job_id
func (h *DockingHandler) GetStatus(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	view, err := h.service.Status(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toStatusResponse(view))
}

// GetResults handles GET /api/docking/jobs/:job_id/results
func (h *DockingHandler) GetResults(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	job, err := h.service.Job(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResultsResponse(job))
}

// CancelJob handles DELETE /api/docking/jobs/:job_id
// Cancels a queued or running job
func (h *DockingHandler) CancelJob(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	job, err := h.service.Cancel(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CancelResponse{
		JobID:   job.ID,
		Status:  job.Status.String(),
		Message: "Docking job cancelled",
	})
}

// RerunJob handles POST /api/docking/jobs/:job_id/rerun
// Resubmits a failed job under a new id; clients should track the new id
func (h *DockingHandler) RerunJob(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	sub, err := h.service.Rerun(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	eta := sub.EstimatedDuration
	c.JSON(http.StatusAccepted, dto.RerunResponse{
		JobID:                sub.Job.ID,
		OriginalJobID:        jobID,
		Status:               sub.Job.Status.String(),
		Message:              fmt.Sprintf("Rerun of job %s queued", jobID),
		QueuePosition:        sub.QueuePosition,
		EstimatedTimeSeconds: seconds(&eta),
	})
}

// ListJobs handles GET /api/docking/jobs
// Lists job history with filtering and page-based pagination
func (h *DockingHandler) ListJobs(c *gin.Context) {
	// 1. Parse query parameters
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.respondError(c, bindingError(err))
		return
	}

	// 2. Build filter
	filter, err := buildFilter(req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// 3. Query one page
	jobs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// 4. Enrich with display names; lookup failures leave names empty
	candidateIDs := make([]string, len(jobs))
	targetIDs := make([]string, len(jobs))
	for i, job := range jobs {
		candidateIDs[i] = job.CandidateID
		targetIDs[i] = job.TargetUniprotID
	}
	candidateNames := h.enricher.Candidates(c.Request.Context(), candidateIDs)
	targetNames := h.enricher.Targets(c.Request.Context(), targetIDs)

	summaries := make([]dto.JobSummaryDTO, len(jobs))
	for i, job := range jobs {
		summaries[i] = toJobSummary(job, candidateNames, targetNames)
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       summaries,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: (total + filter.PageSize - 1) / filter.PageSize,
	})
}

// GetScore handles GET /api/docking/jobs/:job_id/score
// Blends the docking result into a candidate's composite score for display.
// Nothing is persisted.
func (h *DockingHandler) GetScore(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	var req dto.ScoreRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.respondError(c, bindingError(err))
		return
	}

	job, err := h.service.Job(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if job.Status != domain.JobStatusCompleted || job.BestAffinity == nil {
		h.respondError(c, domain.NewInvalidStateError(job.ID, job.Status, "score"))
		return
	}

	weight := analysis.DefaultDockingWeight
	if req.DockingWeight != nil {
		weight = *req.DockingWeight
	}
	best := *job.BestAffinity

	resp := dto.ScoreResponse{
		JobID:              job.ID,
		BestAffinity:       best,
		NormalizedAffinity: analysis.NormalizeAffinity(best),
		OriginalScore:      *req.OriginalScore,
		DockingWeight:      weight,
		UpdatedScore:       analysis.CompositeScoreUpdate(*req.OriginalScore, best, weight),
		Quality:            string(analysis.QualityLabel(best)),
	}
	if req.PredictedAffinity != nil {
		imp := analysis.ImprovementVsPrediction(best, *req.PredictedAffinity)
		resp.Improvement = &dto.ImprovementDTO{
			Direction: string(imp.Direction),
			Magnitude: imp.Magnitude,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Health handles GET /health
func (h *DockingHandler) Health(c *gin.Context) {
	stats := h.service.Stats()
	resp := dto.HealthResponse{
		Status:  "healthy",
		Service: h.serviceName,
		Store:   "ok",
		Queued:  stats.Queued,
		Running: stats.Running,
	}

	// A lost broker degrades health without failing it
	if h.broker != nil {
		resp.Broker = "connected"
		if !h.broker.IsConnected() {
			resp.Broker = "disconnected"
			resp.Status = "degraded"
		}
	}

	if err := h.service.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("Health check failed", slog.String("error", err.Error()))
		resp.Status = "unhealthy"
		resp.Store = "unreachable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// jobID reads the job_id path parameter. Ids that are not UUIDs cannot exist.
func (h *DockingHandler) jobID(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.respondError(c, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID))
		return "", false
	}
	return jobID, true
}

// buildFilter converts history query parameters into a store filter.
// Dates are RFC3339 or YYYY-MM-DD; a date-only end_date covers that whole day.
func buildFilter(req dto.ListJobsRequest) (storage.Filter, error) {
	filter := storage.Filter{
		CandidateID: req.CandidateID,
		TargetID:    req.TargetID,
		Page:        req.Page,
		PageSize:    req.PageSize,
	}

	if req.Status != "" {
		status, err := domain.ParseJobStatus(req.Status)
		if err != nil {
			return storage.Filter{}, err
		}
		filter.Status = status
	}

	if req.StartDate != "" {
		from, _, err := parseDate(req.StartDate)
		if err != nil {
			return storage.Filter{}, fmt.Errorf("%w: start_date: %v", domain.ErrValidation, err)
		}
		filter.CreatedFrom = from
	}

	if req.EndDate != "" {
		to, dateOnly, err := parseDate(req.EndDate)
		if err != nil {
			return storage.Filter{}, fmt.Errorf("%w: end_date: %v", domain.ErrValidation, err)
		}
		if dateOnly {
			filter.CreatedTo = to.AddDate(0, 0, 1)
		} else {
			filter.CreatedTo = to.Add(time.Nanosecond)
		}
	}

	if !filter.CreatedFrom.IsZero() && !filter.CreatedTo.IsZero() && !filter.CreatedFrom.Before(filter.CreatedTo) {
		return storage.Filter{}, fmt.Errorf("%w: start_date must be before end_date", domain.ErrValidation)
	}

	return filter.Normalize(), nil
}

func parseDate(value string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", value)
	}
	return t, true, nil
}
