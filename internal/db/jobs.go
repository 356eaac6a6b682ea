package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bobarin/adreel/internal/models"
	"github.com/google/uuid"
)

var ErrJobNotFound = errors.New("job not found")

const jobColumns = `
	id, input, stage, status, work_dir, scenes_planned, scenes_rendered,
	final_video_path, captioning_error, failed_stage, error_message,
	attempts, started_at, finished_at, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner, job *models.Job) error {
	return row.Scan(
		&job.ID, &job.Input, &job.Stage, &job.Status, &job.WorkDir,
		&job.ScenesPlanned, &job.ScenesRendered, &job.FinalVideoPath,
		&job.CaptioningError, &job.FailedStage, &job.ErrorMessage,
		&job.Attempts, &job.StartedAt, &job.FinishedAt,
		&job.CreatedAt, &job.UpdatedAt,
	)
}

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO ad_jobs (id, input, stage, status, attempts)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.Input, job.Stage, job.Status, job.Attempts,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM ad_jobs WHERE id = $1`

	job := &models.Job{}
	err := scanJob(db.QueryRowContext(ctx, query, id), job)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListJobs returns jobs newest first with an optional status filter, plus the
// total count for the same filter.
func (db *DB) ListJobs(ctx context.Context, status string, limit, offset int) ([]models.Job, int, error) {
	var (
		rows  *sql.Rows
		err   error
		total int
	)

	baseSelect := `SELECT ` + jobColumns + ` FROM ad_jobs`

	if status != "" {
		rows, err = db.QueryContext(ctx, baseSelect+` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	} else {
		rows, err = db.QueryContext(ctx, baseSelect+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		var job models.Job
		if err := scanJob(rows, &job); err != nil {
			return nil, 0, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	if status != "" {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ad_jobs WHERE status = $1`, status).Scan(&total)
	} else {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ad_jobs`).Scan(&total)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	return jobs, total, nil
}

// MarkJobRunning claims a queued job. It returns false when the job is
// already running or finished, so a redelivered message is a no-op.
func (db *DB) MarkJobRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE ad_jobs
		SET status = $1, started_at = NOW(), attempts = attempts + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	res, err := db.ExecContext(ctx, query, models.JobStatusRunning, id, models.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to mark job running: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (db *DB) UpdateJobStage(ctx context.Context, id uuid.UUID, stage models.JobStage, workDir string) error {
	query := `
		UPDATE ad_jobs
		SET stage = $1, work_dir = COALESCE(NULLIF($2, ''), work_dir), updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, stage, workDir, id)
	return err
}

// CompleteJob persists a successful run.
func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, result *models.JobResult) error {
	query := `
		UPDATE ad_jobs
		SET status = $1, stage = $2, work_dir = $3, scenes_planned = $4,
			scenes_rendered = $5, final_video_path = $6, captioning_error = $7,
			failed_stage = NULL, error_message = NULL,
			finished_at = NOW(), updated_at = NOW()
		WHERE id = $8
	`
	_, err := db.ExecContext(
		ctx, query,
		models.JobStatusSucceeded, result.Stage, nullString(result.WorkDir),
		result.ScenesPlanned, result.ScenesRendered,
		nullString(result.FinalVideoPath), nullString(result.CaptioningError), id,
	)
	return err
}

// FailJob records a terminal failure with the stage that could not be produced.
func (db *DB) FailJob(ctx context.Context, id uuid.UUID, failedStage models.JobStage, errorMessage string) error {
	query := `
		UPDATE ad_jobs
		SET status = $1, stage = $2, failed_stage = $3, error_message = $4,
			final_video_path = NULL, finished_at = NOW(), updated_at = NOW()
		WHERE id = $5
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusFailed, models.StageFailed, failedStage, errorMessage, id)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
