package processors

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/framefold/canvas/common/models"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Input is what the scheduler hands a processor: the node being executed and
// a snapshot view carrying the node's task and the caller's API key.
type Input struct {
	Node     *models.Node
	Snapshot *models.CanvasSnapshot
}

// Result is a processor's verdict. A failed run carries Error; a successful
// one usually carries NewResult (a terminal node may legitimately produce
// none).
type Result struct {
	Success   bool
	Error     string
	NewResult *models.NodeResult
}

// Processor executes one node type. Implementations may resolve inputs and
// perform arbitrary I/O but must never mutate the snapshot; their only output
// channel is the returned Result.
type Processor interface {
	Type() models.NodeType
	Process(ctx context.Context, in *Input) (*Result, error)
}

// Failure builds a failed result from an error message
func Failure(format string, args ...interface{}) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Succeed builds a successful result carrying the node's new output
func Succeed(result *models.NodeResult) *Result {
	return &Result{Success: true, NewResult: result}
}

// Registry is the static node-type to processor map. It is populated once at
// process start; the scheduler only reads it afterwards.
type Registry struct {
	processors map[models.NodeType]Processor
	logger     Logger
}

// NewRegistry creates an empty processor registry
func NewRegistry(logger Logger) *Registry {
	return &Registry{
		processors: make(map[models.NodeType]Processor),
		logger:     logger,
	}
}

// Register adds a processor for its node type, replacing any previous one
func (r *Registry) Register(p Processor) {
	r.processors[p.Type()] = p
	r.logger.Info("processor registered", "node_type", p.Type())
}

// Get looks up the processor for a node type
func (r *Registry) Get(t models.NodeType) (Processor, bool) {
	p, ok := r.processors[t]
	return p, ok
}

// Types lists the registered node types
func (r *Registry) Types() []models.NodeType {
	types := make([]models.NodeType, 0, len(r.processors))
	for t := range r.processors {
		types = append(types, t)
	}
	return types
}

// outputHandleID finds the node's first output handle (lowest order) so
// emitted items can be tagged for downstream handle matching.
func outputHandleID(snap *models.CanvasSnapshot, nodeID uuid.UUID) *uuid.UUID {
	var best *models.Handle
	for _, h := range snap.Handles {
		if h.NodeID == nodeID && h.Type == models.HandleOutput {
			if best == nil || h.Order < best.Order {
				best = h
			}
		}
	}
	if best == nil {
		return nil
	}
	id := best.ID
	return &id
}
