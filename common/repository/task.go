package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/framefold/canvas/common/db"
	"github.com/framefold/canvas/common/models"
)

// TaskRepository handles database operations for per-run node tasks
type TaskRepository struct {
	db *db.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(database *db.DB) *TaskRepository {
	return &TaskRepository{db: database}
}

// CreateMany inserts the queued task rows for a batch in one transaction
func (r *TaskRepository) CreateMany(ctx context.Context, tasks []*models.Task) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO task (id, node_id, batch_id, status)
			VALUES ($1, $2, $3, $4)
		`

		for _, task := range tasks {
			if _, err := tx.Exec(ctx, query, task.ID, task.NodeID, task.BatchID, task.Status); err != nil {
				return fmt.Errorf("failed to create task %s: %w", task.ID, err)
			}
		}
		return nil
	})
}

// Update writes the mutable execution fields of a task
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE task
		SET status = $2, started_at = $3, finished_at = $4, duration_ms = $5, error = $6, result = $7
		WHERE id = $1
	`

	_, err := r.db.Exec(
		ctx,
		query,
		task.ID,
		task.Status,
		task.StartedAt,
		task.FinishedAt,
		task.DurationMS,
		task.Error,
		task.Result,
	)

	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	return nil
}

// ListByBatch retrieves every task of a batch
func (r *TaskRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.Task, error) {
	query := `
		SELECT id, node_id, batch_id, status, started_at, finished_at, duration_ms, error, result
		FROM task
		WHERE batch_id = $1
	`

	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task := &models.Task{}
		err := rows.Scan(
			&task.ID,
			&task.NodeID,
			&task.BatchID,
			&task.Status,
			&task.StartedAt,
			&task.FinishedAt,
			&task.DurationMS,
			&task.Error,
			&task.Result,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}
