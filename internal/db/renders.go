package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bobarin/storyvoice/internal/models"
)

// ErrRenderNotFound is returned when no render has the requested ID.
var ErrRenderNotFound = errors.New("render not found")

func (db *DB) CreateRender(ctx context.Context, render *models.Render) error {
	query := `
		INSERT INTO renders (id, status)
		VALUES ($1, $2)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(ctx, query, render.ID, render.Status).
		Scan(&render.CreatedAt, &render.UpdatedAt)
}

func (db *DB) GetRender(ctx context.Context, id uuid.UUID) (*models.Render, error) {
	query := `
		SELECT
			id, status, stage, error_stage, error_message,
			audio_path, byte_size, segment_count, created_at, updated_at
		FROM renders
		WHERE id = $1
	`

	render := &models.Render{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&render.ID, &render.Status, &render.Stage, &render.ErrorStage, &render.ErrorMessage,
		&render.AudioPath, &render.ByteSize, &render.SegmentCount,
		&render.CreatedAt, &render.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrRenderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get render: %w", err)
	}

	return render, nil
}

// UpdateRenderStage records pipeline progress and marks the render as processing.
func (db *DB) UpdateRenderStage(ctx context.Context, id uuid.UUID, stage string) error {
	query := `UPDATE renders SET status = $1, stage = $2, updated_at = now() WHERE id = $3`
	_, err := db.ExecContext(ctx, query, models.RenderStatusProcessing, stage, id)
	return err
}

func (db *DB) CompleteRender(ctx context.Context, id uuid.UUID, audioPath string, byteSize int64, segmentCount int) error {
	query := `
		UPDATE renders
		SET status = $1, stage = 'done', audio_path = $2, byte_size = $3, segment_count = $4, updated_at = now()
		WHERE id = $5
	`
	_, err := db.ExecContext(ctx, query, models.RenderStatusCompleted, audioPath, byteSize, segmentCount, id)
	return err
}

func (db *DB) FailRender(ctx context.Context, id uuid.UUID, errorStage, errorMessage string) error {
	query := `
		UPDATE renders
		SET status = $1, stage = 'failed', error_stage = $2, error_message = $3, updated_at = now()
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.RenderStatusFailed, errorStage, errorMessage, id)
	return err
}
