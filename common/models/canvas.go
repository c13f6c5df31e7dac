package models

import (
	"time"

	"github.com/google/uuid"
)

// Canvas is a user-authored workflow graph.
// Maps to: canvas table
type Canvas struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// User identifies the caller of a run request. The APIKey travels on the
// snapshot so model-backed processors can authenticate without a second lookup.
type User struct {
	ID     string `json:"id"`
	APIKey string `json:"-"`
}

// CanvasSnapshot is the in-memory bundle a scheduler run operates on.
// Nodes, edges, handles and tasks are loaded once per run; the only mutation
// permitted afterwards is InstallResult on a node that just finished.
//
// APIKey and Task are per-execution view fields: the scheduler hands each
// processor a shallow copy of the snapshot with Task set to the node's own
// task row. The slices are shared across copies, the view fields are not.
type CanvasSnapshot struct {
	Canvas  *Canvas   `json:"canvas"`
	Nodes   []*Node   `json:"nodes"`
	Edges   []*Edge   `json:"edges"`
	Handles []*Handle `json:"handles"`
	Tasks   []*Task   `json:"tasks"`

	APIKey string `json:"apiKey,omitempty"`
	Task   *Task  `json:"task,omitempty"`
}

// NodeByID returns the node with the given ID, or nil.
func (s *CanvasSnapshot) NodeByID(id uuid.UUID) *Node {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// HandleByID returns the handle with the given ID, or nil.
func (s *CanvasSnapshot) HandleByID(id uuid.UUID) *Handle {
	for _, h := range s.Handles {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// IncomingEdges returns every edge whose target is the given node.
func (s *CanvasSnapshot) IncomingEdges(nodeID uuid.UUID) []*Edge {
	var edges []*Edge
	for _, e := range s.Edges {
		if e.Target == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

// TaskResultForNode returns the result stored on this run's task row for the
// given node, or nil. Transient nodes persist their output here rather than
// on the node row, so input resolution checks task storage first.
func (s *CanvasSnapshot) TaskResultForNode(nodeID uuid.UUID) *NodeResult {
	for _, t := range s.Tasks {
		if t.NodeID == nodeID && t.Result != nil {
			return t.Result
		}
	}
	return nil
}

// InstallResult writes a node's fresh result into the snapshot so downstream
// resolution observes it without another fetch. Called exactly once per node,
// after its processor has returned.
func (s *CanvasSnapshot) InstallResult(nodeID uuid.UUID, result *NodeResult) {
	for _, n := range s.Nodes {
		if n.ID == nodeID {
			n.Result = result
			return
		}
	}
}

// View returns a shallow copy of the snapshot scoped to one executing task.
func (s *CanvasSnapshot) View(task *Task) *CanvasSnapshot {
	view := *s
	view.Task = task
	return &view
}
