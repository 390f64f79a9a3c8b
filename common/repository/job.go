package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kp-forecasting/forecast-client/common/models"
)

// ErrJobNotFound is returned when no job matches
var ErrJobNotFound = errors.New("job not found")

// DBTX is satisfied by *db.DB, *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// JobRepository records forecast workflows
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new job repository
func NewJobRepository(database DBTX) *JobRepository {
	return &JobRepository{db: database}
}

const jobColumns = `job_id, task_id, product_id, file_name, status, result_reference, error_detail, location, submitted_at, finished_at`

// Create inserts a new job
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO forecast_job (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		job.JobID,
		job.TaskID,
		job.ProductID,
		job.FileName,
		job.Status,
		job.ResultReference,
		job.ErrorDetail,
		job.Location,
		job.SubmittedAt,
		job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// MarkSubmitted stores the task id the service assigned
func (r *JobRepository) MarkSubmitted(ctx context.Context, jobID uuid.UUID, taskID string) error {
	query := `
		UPDATE forecast_job
		SET task_id = $2, status = $3
		WHERE job_id = $1
	`

	tag, err := r.db.Exec(ctx, query, jobID, taskID, models.JobWaiting)
	if err != nil {
		return fmt.Errorf("failed to mark job submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}

	return nil
}

// Finish records the final outcome of a job
func (r *JobRepository) Finish(ctx context.Context, job *models.Job) error {
	if job.FinishedAt == nil {
		now := time.Now().UTC()
		job.FinishedAt = &now
	}

	query := `
		UPDATE forecast_job
		SET task_id = COALESCE($2, task_id),
		    status = $3,
		    result_reference = $4,
		    error_detail = $5,
		    location = $6,
		    finished_at = $7
		WHERE job_id = $1
	`

	tag, err := r.db.Exec(
		ctx,
		query,
		job.JobID,
		job.TaskID,
		job.Status,
		job.ResultReference,
		job.ErrorDetail,
		job.Location,
		job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}

	return nil
}

// GetByTaskID retrieves the latest job for a task id
func (r *JobRepository) GetByTaskID(ctx context.Context, taskID string) (*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM forecast_job
		WHERE task_id = $1
		ORDER BY submitted_at DESC
		LIMIT 1
	`

	job, err := scanJob(r.db.QueryRow(ctx, query, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// List retrieves the most recent jobs, optionally for one product
func (r *JobRepository) List(ctx context.Context, productID string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + jobColumns + `
		FROM forecast_job
		WHERE $1 = '' OR product_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	job := &models.Job{}
	err := row.Scan(
		&job.JobID,
		&job.TaskID,
		&job.ProductID,
		&job.FileName,
		&job.Status,
		&job.ResultReference,
		&job.ErrorDetail,
		&job.Location,
		&job.SubmittedAt,
		&job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
