package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/storage"
)

// Input resolution failures. The first two depend on the required flag; the
// last two mean the snapshot itself is inconsistent.
var (
	ErrMissingRequiredInput = errors.New("missing required input")
	ErrEmptyRequiredInput   = errors.New("empty required input")
	ErrMissingSourceNode    = errors.New("missing source node")
	ErrMissingSourceHandle  = errors.New("missing source handle")
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// InputFilter narrows which incoming edges qualify. Zero values match
// everything.
type InputFilter struct {
	DataType models.DataType // target handle must accept this type
	Label    string          // target handle must carry this label
}

// InputWithHandle pairs a target handle with the value resolved across its
// edge. Value is nil when the source has produced nothing.
type InputWithHandle struct {
	Handle *models.Handle
	Value  *models.OutputItem
}

// Resolver maps a canvas snapshot to the input values a processor sees. It
// never mutates the snapshot; media loading goes through the injected blob
// store.
type Resolver struct {
	store  storage.Store
	logger Logger
}

// New creates a resolver backed by the given blob store
func New(store storage.Store, logger Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
	}
}

// GetInputValue resolves the single input of targetNodeID matching the
// filter. With multiple matching edges the one whose target handle sorts
// first by order wins and a warning is logged. A missing edge or an empty
// value fails only when required is set; otherwise nil is returned.
func (r *Resolver) GetInputValue(snap *models.CanvasSnapshot, targetNodeID uuid.UUID, required bool, filter InputFilter) (*models.OutputItem, error) {
	edges := r.matchingEdges(snap, targetNodeID, filter)
	if len(edges) == 0 {
		if required {
			return nil, fmt.Errorf("%w: node %s has no edge matching %s", ErrMissingRequiredInput, targetNodeID, filter)
		}
		return nil, nil
	}

	if len(edges) > 1 {
		r.logger.Warn("multiple edges match input filter, using first by handle order",
			"node_id", targetNodeID,
			"matches", len(edges),
			"filter", filter.String())
	}

	item, err := r.resolveEdge(snap, edges[0], true)
	if err != nil {
		return nil, err
	}

	if item.IsEmpty() {
		if required {
			return nil, fmt.Errorf("%w: node %s resolved a null value from node %s", ErrEmptyRequiredInput, targetNodeID, edges[0].Source)
		}
		return nil, nil
	}
	return item, nil
}

// GetInputValuesByType resolves every edge matching the filter, in target
// handle order. Entries are nil where the source has produced nothing; the
// caller decides whether that matters.
func (r *Resolver) GetInputValuesByType(snap *models.CanvasSnapshot, targetNodeID uuid.UUID, filter InputFilter) ([]*models.OutputItem, error) {
	edges := r.matchingEdges(snap, targetNodeID, filter)

	items := make([]*models.OutputItem, 0, len(edges))
	for _, edge := range edges {
		item, err := r.resolveEdge(snap, edge, false)
		if err != nil {
			return nil, err
		}
		if item.IsEmpty() {
			item = nil
		}
		items = append(items, item)
	}
	return items, nil
}

// GetAllOutputHandles returns every output handle of nodeID in handle order
func (r *Resolver) GetAllOutputHandles(snap *models.CanvasSnapshot, nodeID uuid.UUID) []*models.Handle {
	var handles []*models.Handle
	for _, h := range snap.Handles {
		if h.NodeID == nodeID && h.Type == models.HandleOutput {
			handles = append(handles, h)
		}
	}
	sort.SliceStable(handles, func(i, j int) bool {
		return handles[i].Order < handles[j].Order
	})
	return handles
}

// GetAllInputValuesWithHandle walks every incoming edge of targetNodeID in
// target handle order, pairing each handle with its resolved value (nil when
// the source has produced nothing). Variable-arity processors enumerate
// their inputs through this.
func (r *Resolver) GetAllInputValuesWithHandle(snap *models.CanvasSnapshot, targetNodeID uuid.UUID) ([]InputWithHandle, error) {
	edges := r.matchingEdges(snap, targetNodeID, InputFilter{})

	inputs := make([]InputWithHandle, 0, len(edges))
	for _, edge := range edges {
		handle := snap.HandleByID(edge.TargetHandleID)
		item, err := r.resolveEdge(snap, edge, false)
		if err != nil {
			return nil, err
		}
		if item.IsEmpty() {
			item = nil
		}
		inputs = append(inputs, InputWithHandle{Handle: handle, Value: item})
	}
	return inputs, nil
}

// LoadMediaBuffer resolves a file reference to bytes. Persisted entities win
// over transient process data when both are present.
func (r *Resolver) LoadMediaBuffer(ctx context.Context, fd *models.FileData) ([]byte, error) {
	if fd == nil {
		return nil, fmt.Errorf("failed to load media: file data is nil")
	}
	if fd.Entity != nil && fd.Entity.Key != "" {
		return r.store.Get(ctx, fd.Entity.Bucket, fd.Entity.Key)
	}
	if fd.ProcessData != nil && fd.ProcessData.TempKey != "" {
		return r.store.GetTemp(ctx, fd.ProcessData.TempKey)
	}
	return nil, fmt.Errorf("failed to load media: file data has neither entity nor temp key")
}

// FileDataMimeType reports the best-known mime type of a file reference:
// the entity's, then the process data's, then a metadata lookup on the temp
// key. Unknown resolves to "".
func (r *Resolver) FileDataMimeType(ctx context.Context, fd *models.FileData) (string, error) {
	if fd == nil {
		return "", nil
	}
	if fd.Entity != nil && fd.Entity.MimeType != "" {
		return fd.Entity.MimeType, nil
	}
	if fd.ProcessData != nil {
		if fd.ProcessData.MimeType != "" {
			return fd.ProcessData.MimeType, nil
		}
		if fd.ProcessData.TempKey != "" {
			info, err := r.store.TempInfo(ctx, fd.ProcessData.TempKey)
			if errors.Is(err, storage.ErrBlobNotFound) {
				return "", nil
			}
			if err != nil {
				return "", fmt.Errorf("failed to look up media metadata: %w", err)
			}
			return info.ContentType, nil
		}
	}
	return "", nil
}

// matchingEdges filters the incoming edges of targetNodeID by the target
// handle's attributes and sorts them by handle order ascending. Edges whose
// target handle is absent from the snapshot cannot be evaluated and drop out.
func (r *Resolver) matchingEdges(snap *models.CanvasSnapshot, targetNodeID uuid.UUID, filter InputFilter) []*models.Edge {
	var matched []*models.Edge
	for _, edge := range snap.IncomingEdges(targetNodeID) {
		handle := snap.HandleByID(edge.TargetHandleID)
		if handle == nil {
			continue
		}
		if filter.DataType != "" && !handle.Accepts(filter.DataType) {
			continue
		}
		if filter.Label != "" && handle.Label != filter.Label {
			continue
		}
		matched = append(matched, edge)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		hi := snap.HandleByID(matched[i].TargetHandleID)
		hj := snap.HandleByID(matched[j].TargetHandleID)
		return hi.Order < hj.Order
	})
	return matched
}

// resolveEdge resolves the value flowing across one edge. In strict mode a
// source node or handle missing from the snapshot is an error; otherwise it
// resolves to nil like any other absent value.
func (r *Resolver) resolveEdge(snap *models.CanvasSnapshot, edge *models.Edge, strict bool) (*models.OutputItem, error) {
	source := snap.NodeByID(edge.Source)
	if source == nil {
		if strict {
			return nil, fmt.Errorf("%w: edge %s references node %s", ErrMissingSourceNode, edge.ID, edge.Source)
		}
		return nil, nil
	}
	if snap.HandleByID(edge.SourceHandleID) == nil {
		if strict {
			return nil, fmt.Errorf("%w: edge %s references handle %s", ErrMissingSourceHandle, edge.ID, edge.SourceHandleID)
		}
		return nil, nil
	}

	// Transient sources park their output on the task row; prefer it.
	result := snap.TaskResultForNode(source.ID)
	if result == nil {
		result = source.Result
	}
	if result == nil {
		return nil, nil
	}

	output := result.SelectedOutput()
	if output == nil {
		return nil, nil
	}
	return itemForHandle(output, edge.SourceHandleID), nil
}

// itemForHandle picks the output item tagged with the edge's source handle.
// Results whose items carry no handle tags at all (single-output nodes) fall
// back to the first item.
func itemForHandle(output *models.Output, sourceHandleID uuid.UUID) *models.OutputItem {
	tagged := false
	for i := range output.Items {
		item := &output.Items[i]
		if item.OutputHandleID != nil {
			tagged = true
			if *item.OutputHandleID == sourceHandleID {
				return item
			}
		}
	}
	if !tagged && len(output.Items) > 0 {
		return &output.Items[0]
	}
	return nil
}

// String renders the filter for log lines
func (f InputFilter) String() string {
	switch {
	case f.DataType != "" && f.Label != "":
		return fmt.Sprintf("{dataType: %s, label: %s}", f.DataType, f.Label)
	case f.DataType != "":
		return fmt.Sprintf("{dataType: %s}", f.DataType)
	case f.Label != "":
		return fmt.Sprintf("{label: %s}", f.Label)
	}
	return "{}"
}
