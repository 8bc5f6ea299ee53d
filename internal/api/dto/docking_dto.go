package dto

// GridParams is the docking search box
type GridParams struct {
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	CenterZ float64 `json:"center_z"`
	SizeX   float64 `json:"size_x"`
	SizeY   float64 `json:"size_y"`
	SizeZ   float64 `json:"size_z"`
}

// DockingParams tunes the docking search
type DockingParams struct {
	Exhaustiveness int     `json:"exhaustiveness"`
	NumModes       int     `json:"num_modes"`
	EnergyRange    float64 `json:"energy_range"`
}

type SubmitRequest struct {
	CandidateID     string         `json:"candidate_id" binding:"required"`
	TargetUniprotID string         `json:"target_uniprot_id" binding:"required"`
	DiseaseName     string         `json:"disease_name"`
	SMILES          string         `json:"smiles" binding:"required"`
	GridParams      *GridParams    `json:"grid_params"`
	DockingParams   *DockingParams `json:"docking_params"`
}

type SubmitResponse struct {
	JobID                string `json:"job_id"`
	Status               string `json:"status"`
	Message              string `json:"message"`
	QueuePosition        int    `json:"queue_position"`
	EstimatedTimeSeconds *int64 `json:"estimated_time_seconds,omitempty"`
}

type StatusResponse struct {
	JobID                         string  `json:"job_id"`
	Status                        string  `json:"status"`
	ProgressPercent               int     `json:"progress_percent"`
	CurrentStep                   string  `json:"current_step"`
	EstimatedTimeRemainingSeconds *int64  `json:"estimated_time_remaining_seconds,omitempty"`
	QueuePosition                 *int    `json:"queue_position,omitempty"`
	ErrorCode                     string  `json:"error_code,omitempty"`
	ErrorMessage                  string  `json:"error_message,omitempty"`
	RerunOf                       string  `json:"rerun_of,omitempty"`
	CreatedAt                     string  `json:"created_at"`
	StartedAt                     *string `json:"started_at,omitempty"`
	CompletedAt                   *string `json:"completed_at,omitempty"`
}

type PoseDTO struct {
	PoseNumber      int     `json:"pose_number"`
	BindingAffinity float64 `json:"binding_affinity"`
	RMSDLowerBound  float64 `json:"rmsd_lower_bound"`
	RMSDUpperBound  float64 `json:"rmsd_upper_bound"`
	StructureData   string  `json:"structure_data,omitempty"`
}

type StatisticsDTO struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Range  float64 `json:"range"`
	Best   float64 `json:"best"`
	Worst  float64 `json:"worst"`
}

// AnalysisDTO summarises a completed pose set
type AnalysisDTO struct {
	BestPoseNumber int           `json:"best_pose_number"`
	Quality        string        `json:"quality"`
	Statistics     StatisticsDTO `json:"statistics"`
}

type ResultsResponse struct {
	JobID           string         `json:"job_id"`
	CandidateID     string         `json:"candidate_id"`
	TargetUniprotID string         `json:"target_uniprot_id"`
	DiseaseName     string         `json:"disease_name"`
	SMILES          string         `json:"smiles"`
	Status          string         `json:"status"`
	BestAffinity    *float64       `json:"best_affinity,omitempty"`
	NumPoses        int            `json:"num_poses"`
	Poses           []PoseDTO      `json:"poses"`
	GridParams      *GridParams    `json:"grid_params,omitempty"`
	DockingParams   *DockingParams `json:"docking_params,omitempty"`
	Analysis        *AnalysisDTO   `json:"analysis,omitempty"`
	ErrorCode       string         `json:"error_code,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	RerunOf         string         `json:"rerun_of,omitempty"`
}

type CancelResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type RerunResponse struct {
	JobID                string `json:"job_id"`
	OriginalJobID        string `json:"original_job_id"`
	Status               string `json:"status"`
	Message              string `json:"message"`
	QueuePosition        int    `json:"queue_position"`
	EstimatedTimeSeconds *int64 `json:"estimated_time_seconds,omitempty"`
}

type ListJobsRequest struct {
	Status      string `form:"status"`
	StartDate   string `form:"start_date"`
	EndDate     string `form:"end_date"`
	TargetID    string `form:"target_id"`
	CandidateID string `form:"candidate_id"`
	Page        int    `form:"page" binding:"omitempty,min=1"`
	PageSize    int    `form:"page_size" binding:"omitempty,min=1"`
}

type JobSummaryDTO struct {
	JobID           string   `json:"job_id"`
	CandidateID     string   `json:"candidate_id"`
	CandidateName   string   `json:"candidate_name,omitempty"`
	TargetUniprotID string   `json:"target_uniprot_id"`
	TargetName      string   `json:"target_name,omitempty"`
	DiseaseName     string   `json:"disease_name"`
	Status          string   `json:"status"`
	BestAffinity    *float64 `json:"best_affinity,omitempty"`
	CreatedAt       string   `json:"created_at"`
	CompletedAt     *string  `json:"completed_at,omitempty"`
	ErrorCode       string   `json:"error_code,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
	RerunOf         string   `json:"rerun_of,omitempty"`
}

type ListJobsResponse struct {
	Jobs       []JobSummaryDTO `json:"jobs"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

type ScoreRequest struct {
	OriginalScore     *float64 `form:"original_score" binding:"required"`
	DockingWeight     *float64 `form:"docking_weight" binding:"omitempty,min=0,max=1"`
	PredictedAffinity *float64 `form:"predicted_affinity"`
}

type ImprovementDTO struct {
	Direction string  `json:"direction"`
	Magnitude float64 `json:"magnitude"`
}

type ScoreResponse struct {
	JobID              string          `json:"job_id"`
	BestAffinity       float64         `json:"best_affinity"`
	NormalizedAffinity float64         `json:"normalized_affinity"`
	OriginalScore      float64         `json:"original_score"`
	DockingWeight      float64         `json:"docking_weight"`
	UpdatedScore       float64         `json:"updated_score"`
	Quality            string          `json:"quality"`
	Improvement        *ImprovementDTO `json:"improvement,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Store   string `json:"store"`
	Broker  string `json:"broker,omitempty"`
	Queued  int    `json:"queued"`
	Running int    `json:"running"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}
