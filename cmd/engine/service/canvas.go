package service

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/validation"
)

// DefaultListLimit caps ListCanvases when the caller does not pass one.
const DefaultListLimit = 50

// CanvasStore is the persistence surface CanvasService needs
type CanvasStore interface {
	Create(ctx context.Context, canvas *models.Canvas) error
	GetByIDForUser(ctx context.Context, canvasID uuid.UUID, userID string) (*models.Canvas, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Canvas, error)
	Rename(ctx context.Context, canvasID uuid.UUID, userID, name string) error
	Delete(ctx context.Context, canvasID uuid.UUID, userID string) error
	LoadSnapshot(ctx context.Context, canvasID uuid.UUID, userID string) (*models.CanvasSnapshot, error)
	ReplaceGraph(ctx context.Context, canvasID uuid.UUID, nodes []*models.Node, handles []*models.Handle, edges []*models.Edge) error
}

// CanvasService handles canvas CRUD and bulk graph mutation
type CanvasService struct {
	canvases       CanvasStore
	patchValidator *validation.PatchValidator
	graphValidator *validation.GraphValidator
	log            Logger
}

// CanvasServiceOpts contains options for creating a CanvasService
type CanvasServiceOpts struct {
	Canvases       CanvasStore
	PatchValidator *validation.PatchValidator
	GraphValidator *validation.GraphValidator
	Logger         Logger
}

// NewCanvasService creates a new canvas service
func NewCanvasService(opts *CanvasServiceOpts) *CanvasService {
	return &CanvasService{
		canvases:       opts.Canvases,
		patchValidator: opts.PatchValidator,
		graphValidator: opts.GraphValidator,
		log:            opts.Logger,
	}
}

// CanvasDocument is the read model for a canvas: metadata plus the full
// graph. Unlike the patch document, node results travel here so the client
// can render cached outputs.
type CanvasDocument struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Nodes     []*models.Node   `json:"nodes"`
	Edges     []*models.Edge   `json:"edges"`
	Handles   []*models.Handle `json:"handles"`
}

// CreateCanvas creates an empty canvas owned by the given user
func (s *CanvasService) CreateCanvas(ctx context.Context, userID, name string) (*models.Canvas, error) {
	if strings.TrimSpace(name) == "" {
		name = "Untitled Canvas"
	}

	now := time.Now()
	canvas := &models.Canvas{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.canvases.Create(ctx, canvas); err != nil {
		return nil, fmt.Errorf("failed to create canvas: %w", err)
	}

	s.log.Info("canvas created", "canvas_id", canvas.ID, "user_id", userID)
	return canvas, nil
}

// GetGraph loads a canvas and its full graph, scoped to the owner
func (s *CanvasService) GetGraph(ctx context.Context, canvasID uuid.UUID, userID string) (*CanvasDocument, error) {
	snapshot, err := s.canvases.LoadSnapshot(ctx, canvasID, userID)
	if err != nil {
		return nil, err
	}
	return documentFromSnapshot(snapshot), nil
}

// ListCanvases returns the user's canvases, most recently updated first
func (s *CanvasService) ListCanvases(ctx context.Context, userID string, limit int) ([]*models.Canvas, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	canvases, err := s.canvases.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if canvases == nil {
		canvases = []*models.Canvas{}
	}
	return canvases, nil
}

// DeleteCanvas removes a canvas and everything hanging off it
func (s *CanvasService) DeleteCanvas(ctx context.Context, canvasID uuid.UUID, userID string) error {
	if err := s.canvases.Delete(ctx, canvasID, userID); err != nil {
		return err
	}

	s.log.Info("canvas deleted", "canvas_id", canvasID, "user_id", userID)
	return nil
}

// PatchGraph applies an RFC 6902 patch to the canvas document, validates the
// result, and persists it in one transaction. Nodes whose config or incoming
// wiring changed come out dirty so the next run re-executes them.
func (s *CanvasService) PatchGraph(ctx context.Context, canvasID uuid.UUID, userID string, operations []map[string]interface{}) (*CanvasDocument, error) {
	s.log.Info("patching canvas", "canvas_id", canvasID, "user_id", userID, "op_count", len(operations))

	// 1. Load the current graph; ownership is checked here.
	snapshot, err := s.canvases.LoadSnapshot(ctx, canvasID, userID)
	if err != nil {
		return nil, err
	}

	// 2. Whitelist the operations before anything touches the document.
	if err := s.patchValidator.ValidateOperations(operations); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	// 3. Build the patch target. Results never enter it, so a patch cannot
	// forge cached outputs.
	doc := patchDocumentFromSnapshot(snapshot)
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal canvas document: %w", err)
	}

	// 4. Apply the patch.
	patchJSON, err := json.Marshal(operations)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	patchedJSON, err := patch.Apply(docJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	next := &models.GraphDoc{}
	if err := json.Unmarshal(patchedJSON, next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	// 5. Validate the patched graph: ids, handle ownership and direction,
	// data type overlap, acyclicity.
	if strings.TrimSpace(next.Name) == "" {
		return nil, fmt.Errorf("%w: canvas name cannot be empty", ErrInvalidGraph)
	}
	if err := s.graphValidator.Validate(next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}

	// 6. Mark what must re-execute. Results and templates are stripped even
	// if the patch smuggled them in; the upsert never writes them either.
	markDirtyNodes(snapshot, next)
	for _, n := range next.Nodes {
		n.CanvasID = canvasID
		n.Result = nil
		n.Template = nil
	}
	for _, e := range next.Edges {
		e.CanvasID = canvasID
	}

	// 7. Persist.
	if next.Name != snapshot.Canvas.Name {
		if err := s.canvases.Rename(ctx, canvasID, userID, next.Name); err != nil {
			return nil, fmt.Errorf("failed to rename canvas: %w", err)
		}
	}
	if err := s.canvases.ReplaceGraph(ctx, canvasID, next.Nodes, next.Handles, next.Edges); err != nil {
		return nil, fmt.Errorf("failed to persist patched graph: %w", err)
	}

	s.log.Info("canvas patched",
		"canvas_id", canvasID,
		"nodes", len(next.Nodes),
		"edges", len(next.Edges),
		"handles", len(next.Handles),
	)

	// 8. Re-read so the response carries the surviving results and the
	// server-side timestamps.
	fresh, err := s.canvases.LoadSnapshot(ctx, canvasID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload patched canvas: %w", err)
	}
	return documentFromSnapshot(fresh), nil
}

// documentFromSnapshot builds the read model. Empty slices stay non-nil so
// the JSON renders [] rather than null.
func documentFromSnapshot(snap *models.CanvasSnapshot) *CanvasDocument {
	doc := &CanvasDocument{
		ID:        snap.Canvas.ID,
		Name:      snap.Canvas.Name,
		CreatedAt: snap.Canvas.CreatedAt,
		UpdatedAt: snap.Canvas.UpdatedAt,
		Nodes:     make([]*models.Node, 0, len(snap.Nodes)),
		Edges:     make([]*models.Edge, 0, len(snap.Edges)),
		Handles:   make([]*models.Handle, 0, len(snap.Handles)),
	}
	doc.Nodes = append(doc.Nodes, snap.Nodes...)
	doc.Edges = append(doc.Edges, snap.Edges...)
	doc.Handles = append(doc.Handles, snap.Handles...)
	return doc
}

// patchDocumentFromSnapshot builds the patch target: the graph without
// results or templates. Slices are non-nil so "add /nodes/-" works on an
// empty canvas.
func patchDocumentFromSnapshot(snap *models.CanvasSnapshot) *models.GraphDoc {
	doc := &models.GraphDoc{
		Name:    snap.Canvas.Name,
		Nodes:   make([]*models.Node, 0, len(snap.Nodes)),
		Edges:   make([]*models.Edge, 0, len(snap.Edges)),
		Handles: make([]*models.Handle, 0, len(snap.Handles)),
	}
	for _, n := range snap.Nodes {
		clean := *n
		clean.Result = nil
		clean.Template = nil
		doc.Nodes = append(doc.Nodes, &clean)
	}
	doc.Edges = append(doc.Edges, snap.Edges...)
	doc.Handles = append(doc.Handles, snap.Handles...)
	return doc
}

// markDirtyNodes raises isDirty on every node the patch invalidated: new
// nodes, nodes whose config changed, and nodes whose incoming wiring changed.
// The flag only ever raises here; clearing is the scheduler's job after a
// successful re-execution.
func markDirtyNodes(prev *models.CanvasSnapshot, next *models.GraphDoc) {
	prevNodes := make(map[uuid.UUID]*models.Node, len(prev.Nodes))
	for _, n := range prev.Nodes {
		prevNodes[n.ID] = n
	}

	prevWiring := incomingSignatures(prev.Edges)
	nextWiring := incomingSignatures(next.Edges)

	for _, n := range next.Nodes {
		old, existed := prevNodes[n.ID]
		switch {
		case !existed:
			n.IsDirty = true
		case !sameJSON(old.Config, n.Config):
			n.IsDirty = true
		case prevWiring[n.ID] != nextWiring[n.ID]:
			n.IsDirty = true
		}
	}
}

// incomingSignatures folds each node's incoming edges into a canonical
// string, so rewiring shows up as a simple inequality. Edge IDs stay out of
// the signature: re-adding an identical connection is not a change.
func incomingSignatures(edges []*models.Edge) map[uuid.UUID]string {
	byTarget := make(map[uuid.UUID][]string)
	for _, e := range edges {
		key := e.Source.String() + "/" + e.SourceHandleID.String() + ">" + e.TargetHandleID.String()
		byTarget[e.Target] = append(byTarget[e.Target], key)
	}

	signatures := make(map[uuid.UUID]string, len(byTarget))
	for target, keys := range byTarget {
		sort.Strings(keys)
		signatures[target] = strings.Join(keys, ",")
	}
	return signatures
}

// sameJSON compares two raw config blobs semantically. Byte comparison would
// misfire: jsonb storage and patch application both re-serialize.
func sameJSON(a, b json.RawMessage) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	if len(a) == 0 || len(b) == 0 {
		return false
	}

	var av, bv interface{}
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
