package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/framefold/canvas/common/db"
	"github.com/framefold/canvas/common/models"
)

// BatchRepository handles database operations for execution batches
type BatchRepository struct {
	db *db.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(database *db.DB) *BatchRepository {
	return &BatchRepository{db: database}
}

// Create inserts a new batch
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	query := `
		INSERT INTO batch (id, canvas_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Exec(ctx, query, batch.ID, batch.CanvasID, batch.UserID, batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	return nil
}

// GetByID retrieves a batch by its ID
func (r *BatchRepository) GetByID(ctx context.Context, batchID uuid.UUID) (*models.Batch, error) {
	query := `
		SELECT id, canvas_id, user_id, created_at, finished_at
		FROM batch
		WHERE id = $1
	`

	batch := &models.Batch{}
	err := r.db.QueryRow(ctx, query, batchID).Scan(
		&batch.ID,
		&batch.CanvasID,
		&batch.UserID,
		&batch.CreatedAt,
		&batch.FinishedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return batch, nil
}

// Finish stamps the batch's finished_at timestamp
func (r *BatchRepository) Finish(ctx context.Context, batchID uuid.UUID, finishedAt time.Time) error {
	query := `
		UPDATE batch
		SET finished_at = $2
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, batchID, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to finish batch: %w", err)
	}

	return nil
}
