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

// CanvasRepository handles database operations for canvases and their graphs
type CanvasRepository struct {
	db *db.DB
}

// NewCanvasRepository creates a new canvas repository
func NewCanvasRepository(database *db.DB) *CanvasRepository {
	return &CanvasRepository{db: database}
}

// Create inserts a new canvas
func (r *CanvasRepository) Create(ctx context.Context, canvas *models.Canvas) error {
	query := `
		INSERT INTO canvas (id, user_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		canvas.ID,
		canvas.UserID,
		canvas.Name,
		canvas.CreatedAt,
		canvas.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create canvas: %w", err)
	}

	return nil
}

// GetByIDForUser retrieves a canvas scoped to its owner
func (r *CanvasRepository) GetByIDForUser(ctx context.Context, canvasID uuid.UUID, userID string) (*models.Canvas, error) {
	query := `
		SELECT id, user_id, name, created_at, updated_at
		FROM canvas
		WHERE id = $1 AND user_id = $2
	`

	canvas := &models.Canvas{}
	err := r.db.QueryRow(ctx, query, canvasID, userID).Scan(
		&canvas.ID,
		&canvas.UserID,
		&canvas.Name,
		&canvas.CreatedAt,
		&canvas.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCanvasNotFound, canvasID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canvas: %w", err)
	}

	return canvas, nil
}

// ListByUser retrieves a user's canvases, most recently updated first
func (r *CanvasRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Canvas, error) {
	query := `
		SELECT id, user_id, name, created_at, updated_at
		FROM canvas
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list canvases: %w", err)
	}
	defer rows.Close()

	var canvases []*models.Canvas
	for rows.Next() {
		canvas := &models.Canvas{}
		err := rows.Scan(
			&canvas.ID,
			&canvas.UserID,
			&canvas.Name,
			&canvas.CreatedAt,
			&canvas.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan canvas: %w", err)
		}
		canvases = append(canvases, canvas)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating canvases: %w", err)
	}

	return canvases, nil
}

// Rename updates the canvas name and touches updated_at
func (r *CanvasRepository) Rename(ctx context.Context, canvasID uuid.UUID, userID, name string) error {
	query := `
		UPDATE canvas
		SET name = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2
	`

	tag, err := r.db.Exec(ctx, query, canvasID, userID, name)
	if err != nil {
		return fmt.Errorf("failed to rename canvas: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCanvasNotFound, canvasID)
	}

	return nil
}

// Delete removes a canvas; nodes, handles, edges, batches and tasks go with
// it via cascading foreign keys
func (r *CanvasRepository) Delete(ctx context.Context, canvasID uuid.UUID, userID string) error {
	query := `DELETE FROM canvas WHERE id = $1 AND user_id = $2`

	tag, err := r.db.Exec(ctx, query, canvasID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete canvas: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCanvasNotFound, canvasID)
	}

	return nil
}

// LoadSnapshot fetches the canvas and its full graph in one shot. The tasks
// slice starts empty; the scheduler fills it with the run's own task rows.
func (r *CanvasRepository) LoadSnapshot(ctx context.Context, canvasID uuid.UUID, userID string) (*models.CanvasSnapshot, error) {
	canvas, err := r.GetByIDForUser(ctx, canvasID, userID)
	if err != nil {
		return nil, err
	}

	nodes, err := r.loadNodes(ctx, canvasID)
	if err != nil {
		return nil, err
	}

	handles, err := r.loadHandles(ctx, canvasID)
	if err != nil {
		return nil, err
	}

	edges, err := r.loadEdges(ctx, canvasID)
	if err != nil {
		return nil, err
	}

	return &models.CanvasSnapshot{
		Canvas:  canvas,
		Nodes:   nodes,
		Edges:   edges,
		Handles: handles,
		Tasks:   []*models.Task{},
	}, nil
}

func (r *CanvasRepository) loadNodes(ctx context.Context, canvasID uuid.UUID) ([]*models.Node, error) {
	query := `
		SELECT id, canvas_id, type, name, config, result, is_dirty
		FROM node
		WHERE canvas_id = $1
	`

	rows, err := r.db.Query(ctx, query, canvasID)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.Node
	for rows.Next() {
		node := &models.Node{}
		err := rows.Scan(
			&node.ID,
			&node.CanvasID,
			&node.Type,
			&node.Name,
			&node.Config,
			&node.Result,
			&node.IsDirty,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

func (r *CanvasRepository) loadHandles(ctx context.Context, canvasID uuid.UUID) ([]*models.Handle, error) {
	query := `
		SELECT h.id, h.node_id, h.type, h.data_types, h.label, h.sort_order, h.required
		FROM handle h
		JOIN node n ON n.id = h.node_id
		WHERE n.canvas_id = $1
	`

	rows, err := r.db.Query(ctx, query, canvasID)
	if err != nil {
		return nil, fmt.Errorf("failed to load handles: %w", err)
	}
	defer rows.Close()

	var handles []*models.Handle
	for rows.Next() {
		handle := &models.Handle{}
		err := rows.Scan(
			&handle.ID,
			&handle.NodeID,
			&handle.Type,
			&handle.DataTypes,
			&handle.Label,
			&handle.Order,
			&handle.Required,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan handle: %w", err)
		}
		handles = append(handles, handle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating handles: %w", err)
	}

	return handles, nil
}

func (r *CanvasRepository) loadEdges(ctx context.Context, canvasID uuid.UUID) ([]*models.Edge, error) {
	query := `
		SELECT id, canvas_id, source_node_id, source_handle_id, target_node_id, target_handle_id
		FROM edge
		WHERE canvas_id = $1
	`

	rows, err := r.db.Query(ctx, query, canvasID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	defer rows.Close()

	var edges []*models.Edge
	for rows.Next() {
		edge := &models.Edge{}
		err := rows.Scan(
			&edge.ID,
			&edge.CanvasID,
			&edge.Source,
			&edge.SourceHandleID,
			&edge.Target,
			&edge.TargetHandleID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}

	return edges, nil
}

// ReplaceGraph writes a patched graph back in one transaction. Surviving
// nodes keep their stored results; is_dirty only ever raises here (the
// scheduler clears it when a node re-executes).
func (r *CanvasRepository) ReplaceGraph(ctx context.Context, canvasID uuid.UUID, nodes []*models.Node, handles []*models.Handle, edges []*models.Edge) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM edge WHERE canvas_id = $1`, canvasID); err != nil {
			return fmt.Errorf("failed to clear edges: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM handle WHERE node_id IN (SELECT id FROM node WHERE canvas_id = $1)`, canvasID); err != nil {
			return fmt.Errorf("failed to clear handles: %w", err)
		}

		keep := make([]string, len(nodes))
		for i, n := range nodes {
			keep[i] = n.ID.String()
		}
		if _, err := tx.Exec(ctx, `DELETE FROM node WHERE canvas_id = $1 AND NOT (id::text = ANY($2))`, canvasID, keep); err != nil {
			return fmt.Errorf("failed to remove deleted nodes: %w", err)
		}

		upsertNode := `
			INSERT INTO node (id, canvas_id, type, name, config, is_dirty)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				type = EXCLUDED.type,
				name = EXCLUDED.name,
				config = EXCLUDED.config,
				is_dirty = node.is_dirty OR EXCLUDED.is_dirty
		`
		for _, n := range nodes {
			if _, err := tx.Exec(ctx, upsertNode, n.ID, canvasID, n.Type, n.Name, n.Config, n.IsDirty); err != nil {
				return fmt.Errorf("failed to upsert node %s: %w", n.ID, err)
			}
		}

		insertHandle := `
			INSERT INTO handle (id, node_id, type, data_types, label, sort_order, required)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		for _, h := range handles {
			if _, err := tx.Exec(ctx, insertHandle, h.ID, h.NodeID, h.Type, h.DataTypes, h.Label, h.Order, h.Required); err != nil {
				return fmt.Errorf("failed to insert handle %s: %w", h.ID, err)
			}
		}

		insertEdge := `
			INSERT INTO edge (id, canvas_id, source_node_id, source_handle_id, target_node_id, target_handle_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		for _, e := range edges {
			if _, err := tx.Exec(ctx, insertEdge, e.ID, canvasID, e.Source, e.SourceHandleID, e.Target, e.TargetHandleID); err != nil {
				return fmt.Errorf("failed to insert edge %s: %w", e.ID, err)
			}
		}

		if _, err := tx.Exec(ctx, `UPDATE canvas SET updated_at = now() WHERE id = $1`, canvasID); err != nil {
			return fmt.Errorf("failed to touch canvas: %w", err)
		}
		return nil
	})
}
