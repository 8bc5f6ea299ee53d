package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys
const uniqueViolation = "23505"

const jobColumns = `
	job_id, candidate_id, target_uniprot_id, disease_name, smiles,
	grid_params, docking_params, status, error_code, error_message,
	best_affinity, rerun_of, created_at, started_at, completed_at
`

// jobRow mirrors the docking_jobs table
type jobRow struct {
	JobID           string          `db:"job_id"`
	CandidateID     string          `db:"candidate_id"`
	TargetUniprotID string          `db:"target_uniprot_id"`
	DiseaseName     string          `db:"disease_name"`
	SMILES          string          `db:"smiles"`
	GridParams      []byte          `db:"grid_params"`
	DockingParams   []byte          `db:"docking_params"`
	Status          string          `db:"status"`
	ErrorCode       string          `db:"error_code"`
	ErrorMessage    string          `db:"error_message"`
	BestAffinity    sql.NullFloat64 `db:"best_affinity"`
	RerunOf         sql.NullString  `db:"rerun_of"`
	CreatedAt       time.Time       `db:"created_at"`
	StartedAt       sql.NullTime    `db:"started_at"`
	CompletedAt     sql.NullTime    `db:"completed_at"`
}

// poseRow mirrors the docking_poses table
type poseRow struct {
	JobID           string         `db:"job_id"`
	PoseNumber      int            `db:"pose_number"`
	BindingAffinity float64        `db:"binding_affinity"`
	RMSDLowerBound  float64        `db:"rmsd_lower_bound"`
	RMSDUpperBound  float64        `db:"rmsd_upper_bound"`
	StructureData   sql.NullString `db:"structure_data"`
}

// PostgresStore persists jobs in PostgreSQL through sqlx
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	health HealthChecker
}

// HealthChecker probes the database more thoroughly than a bare ping
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

func (s *PostgresStore) Create(ctx context.Context, job *domain.Job) error {
	row, err := toJobRow(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO docking_jobs (
			job_id, candidate_id, target_uniprot_id, disease_name, smiles,
			grid_params, docking_params, status, error_code, error_message,
			best_affinity, rerun_of, created_at, started_at, completed_at, updated_at
		) VALUES (
			:job_id, :candidate_id, :target_uniprot_id, :disease_name, :smiles,
			:grid_params, :docking_params, :status, :error_code, :error_message,
			:best_affinity, :rerun_of, :created_at, :started_at, :completed_at, :created_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateID, job.ID)
		}
		return fmt.Errorf("%w: failed to create job: %v", domain.ErrStore, err)
	}

	s.logger.Debug("Job created",
		slog.String("job_id", job.ID),
		slog.String("status", job.Status.String()),
	)

	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	return s.get(ctx, s.db, id, false)
}

// Update locks the job row, validates the condition and writes the transition in one transaction
func (s *PostgresStore) Update(ctx context.Context, id string, update Update) (*domain.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", domain.ErrStore, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	job, err := s.get(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if err := update.Condition.Validate(job, update.op()); err != nil {
		return nil, err
	}

	update.apply(job)

	query := `
		UPDATE docking_jobs
		SET status = $1,
			started_at = $2,
			completed_at = $3,
			error_code = $4,
			error_message = $5,
			best_affinity = $6,
			updated_at = NOW()
		WHERE job_id = $7
	`

	_, err = tx.ExecContext(ctx, query,
		job.Status,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.ErrorCode,
		job.ErrorMessage,
		nullFloat(job.BestAffinity),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to update job: %v", domain.ErrStore, err)
	}

	if len(update.Poses) > 0 {
		rows := make([]poseRow, len(update.Poses))
		for i, p := range update.Poses {
			rows[i] = poseRow{
				JobID:           id,
				PoseNumber:      p.PoseNumber,
				BindingAffinity: p.BindingAffinity,
				RMSDLowerBound:  p.RMSDLowerBound,
				RMSDUpperBound:  p.RMSDUpperBound,
				StructureData:   sql.NullString{String: p.StructureData, Valid: p.StructureData != ""},
			}
		}

		poseQuery := `
			INSERT INTO docking_poses (
				job_id, pose_number, binding_affinity,
				rmsd_lower_bound, rmsd_upper_bound, structure_data
			) VALUES (
				:job_id, :pose_number, :binding_affinity,
				:rmsd_lower_bound, :rmsd_upper_bound, :structure_data
			)
		`
		if _, err := tx.NamedExecContext(ctx, poseQuery, rows); err != nil {
			return nil, fmt.Errorf("%w: failed to insert poses: %v", domain.ErrStore, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit job update: %v", domain.ErrStore, err)
	}

	s.logger.Debug("Job status updated",
		slog.String("job_id", id),
		slog.String("status", job.Status.String()),
	)

	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*domain.Job, int, error) {
	filter = filter.Normalize()

	conditions := []string{"1=1"}
	args := []interface{}{}
	argIdx := 1

	// Filters
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.CandidateID != "" {
		conditions = append(conditions, fmt.Sprintf("candidate_id = $%d", argIdx))
		args = append(args, filter.CandidateID)
		argIdx++
	}

	if filter.TargetID != "" {
		conditions = append(conditions, fmt.Sprintf("target_uniprot_id = $%d", argIdx))
		args = append(args, filter.TargetID)
		argIdx++
	}

	if !filter.CreatedFrom.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.CreatedFrom)
		argIdx++
	}

	if !filter.CreatedTo.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, filter.CreatedTo)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM docking_jobs WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("%w: failed to count jobs: %v", domain.ErrStore, err)
	}

	// Order by created_at DESC, submission_seq DESC for deterministic pagination
	query := "SELECT " + jobColumns + " FROM docking_jobs WHERE " + where +
		" ORDER BY created_at DESC, submission_seq DESC" +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.PageSize, filter.Offset())

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("%w: failed to list jobs: %v", domain.ErrStore, err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toJob()
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}

	return jobs, total, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	query := "SELECT " + jobColumns + " FROM docking_jobs WHERE status = $1 ORDER BY created_at ASC, submission_seq ASC"

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, status); err != nil {
		return nil, fmt.Errorf("%w: failed to list %s jobs: %v", domain.ErrStore, status, err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// WithHealthCheck makes Ping delegate to hc
func (s *PostgresStore) WithHealthCheck(hc HealthChecker) *PostgresStore {
	s.health = hc
	return s
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.health != nil {
		return s.health.HealthCheck(ctx)
	}
	return s.db.PingContext(ctx)
}

// get loads a job and its poses, optionally locking the row inside a transaction
func (s *PostgresStore) get(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*domain.Job, error) {
	query := "SELECT " + jobColumns + " FROM docking_jobs WHERE job_id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var row jobRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("%w: failed to get job: %v", domain.ErrStore, err)
	}

	job, err := row.toJob()
	if err != nil {
		return nil, err
	}

	var poses []poseRow
	poseQuery := `
		SELECT job_id, pose_number, binding_affinity, rmsd_lower_bound, rmsd_upper_bound, structure_data
		FROM docking_poses
		WHERE job_id = $1
		ORDER BY pose_number ASC
	`
	if err := sqlx.SelectContext(ctx, q, &poses, poseQuery, id); err != nil {
		return nil, fmt.Errorf("%w: failed to get poses: %v", domain.ErrStore, err)
	}

	if len(poses) > 0 {
		job.Poses = make([]domain.Pose, len(poses))
		for i, p := range poses {
			job.Poses[i] = domain.Pose{
				PoseNumber:      p.PoseNumber,
				BindingAffinity: p.BindingAffinity,
				RMSDLowerBound:  p.RMSDLowerBound,
				RMSDUpperBound:  p.RMSDUpperBound,
				StructureData:   p.StructureData.String,
			}
		}
	}

	return job, nil
}

func toJobRow(job *domain.Job) (*jobRow, error) {
	row := &jobRow{
		JobID:           job.ID,
		CandidateID:     job.CandidateID,
		TargetUniprotID: job.TargetUniprotID,
		DiseaseName:     job.DiseaseName,
		SMILES:          job.SMILES,
		Status:          string(job.Status),
		ErrorCode:       job.ErrorCode,
		ErrorMessage:    job.ErrorMessage,
		BestAffinity:    nullFloat(job.BestAffinity),
		RerunOf:         sql.NullString{String: job.RerunOf, Valid: job.RerunOf != ""},
		CreatedAt:       job.CreatedAt,
		StartedAt:       nullTime(job.StartedAt),
		CompletedAt:     nullTime(job.CompletedAt),
	}

	var err error
	if job.GridParams != nil {
		if row.GridParams, err = json.Marshal(job.GridParams); err != nil {
			return nil, fmt.Errorf("failed to marshal grid params: %w", err)
		}
	}
	if job.DockingParams != nil {
		if row.DockingParams, err = json.Marshal(job.DockingParams); err != nil {
			return nil, fmt.Errorf("failed to marshal docking params: %w", err)
		}
	}
	return row, nil
}

func (r *jobRow) toJob() (*domain.Job, error) {
	job := &domain.Job{
		ID:              r.JobID,
		CandidateID:     r.CandidateID,
		TargetUniprotID: r.TargetUniprotID,
		DiseaseName:     r.DiseaseName,
		SMILES:          r.SMILES,
		Status:          domain.JobStatus(r.Status),
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
		RerunOf:         r.RerunOf.String,
		CreatedAt:       r.CreatedAt,
	}

	if len(r.GridParams) > 0 {
		var grid domain.GridParams
		if err := json.Unmarshal(r.GridParams, &grid); err != nil {
			return nil, fmt.Errorf("%w: corrupt grid params for job %s: %v", domain.ErrStore, r.JobID, err)
		}
		job.GridParams = &grid
	}
	if len(r.DockingParams) > 0 {
		var params domain.DockingParams
		if err := json.Unmarshal(r.DockingParams, &params); err != nil {
			return nil, fmt.Errorf("%w: corrupt docking params for job %s: %v", domain.ErrStore, r.JobID, err)
		}
		job.DockingParams = &params
	}
	if r.BestAffinity.Valid {
		v := r.BestAffinity.Float64
		job.BestAffinity = &v
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		job.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
