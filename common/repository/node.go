package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/framefold/canvas/common/db"
	"github.com/framefold/canvas/common/models"
)

// NodeRepository handles database operations for individual nodes
type NodeRepository struct {
	db *db.DB
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(database *db.DB) *NodeRepository {
	return &NodeRepository{db: database}
}

// GetByID retrieves a node by its ID
func (r *NodeRepository) GetByID(ctx context.Context, nodeID uuid.UUID) (*models.Node, error) {
	query := `
		SELECT id, canvas_id, type, name, config, result, is_dirty
		FROM node
		WHERE id = $1
	`

	node := &models.Node{}
	err := r.db.QueryRow(ctx, query, nodeID).Scan(
		&node.ID,
		&node.CanvasID,
		&node.Type,
		&node.Name,
		&node.Config,
		&node.Result,
		&node.IsDirty,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	return node, nil
}

// UpdateResult stores a fresh result on the node row and clears the dirty
// flag. Returns ErrNodeNotFound when the row has vanished; callers in the
// execution path treat that as benign.
func (r *NodeRepository) UpdateResult(ctx context.Context, nodeID uuid.UUID, result *models.NodeResult) error {
	query := `
		UPDATE node
		SET result = $2, is_dirty = false
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, nodeID, result)
	if err != nil {
		return fmt.Errorf("failed to update node result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	return nil
}

