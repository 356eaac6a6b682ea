package db

import (
	"context"
	"fmt"

	"github.com/bobarin/adreel/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateArtifact(ctx context.Context, artifact *models.JobArtifact) error {
	query := `
		INSERT INTO job_artifacts (
			id, job_id, type, scene_index, local_path,
			storage_url, content_type, byte_size
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		artifact.ID, artifact.JobID, artifact.Type, artifact.SceneIndex,
		artifact.LocalPath, artifact.StorageURL, artifact.ContentType, artifact.ByteSize,
	).Scan(&artifact.CreatedAt)
}

func (db *DB) ListJobArtifacts(ctx context.Context, jobID uuid.UUID) ([]models.JobArtifact, error) {
	query := `
		SELECT
			id, job_id, type, scene_index, local_path,
			storage_url, content_type, byte_size, created_at
		FROM job_artifacts
		WHERE job_id = $1
		ORDER BY created_at, scene_index NULLS FIRST
	`

	rows, err := db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []models.JobArtifact
	for rows.Next() {
		var a models.JobArtifact
		if err := rows.Scan(
			&a.ID, &a.JobID, &a.Type, &a.SceneIndex, &a.LocalPath,
			&a.StorageURL, &a.ContentType, &a.ByteSize, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}

	return artifacts, rows.Err()
}
