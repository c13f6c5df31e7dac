package scheduler

import (
	"sort"

	"github.com/google/uuid"

	"github.com/framefold/canvas/common/models"
)

// runState is the in-memory bookkeeping for one batch. The task map is built
// before any concurrency starts and never grows; during a generation each
// executor writes only its own task row, and the scheduler reads statuses
// only at the barrier, so the state needs no locking.
type runState struct {
	snapshot  *models.CanvasSnapshot
	batch     *models.Batch
	targets   map[uuid.UUID]bool
	necessary map[uuid.UUID]bool

	taskByNode map[uuid.UUID]*models.Task
	nodeOrder  map[uuid.UUID]int
}

func newRunState(snap *models.CanvasSnapshot, batch *models.Batch, targets, necessary map[uuid.UUID]bool) *runState {
	st := &runState{
		snapshot:   snap,
		batch:      batch,
		targets:    targets,
		necessary:  necessary,
		taskByNode: make(map[uuid.UUID]*models.Task, len(necessary)),
		nodeOrder:  make(map[uuid.UUID]int, len(snap.Nodes)),
	}

	for i, n := range snap.Nodes {
		st.nodeOrder[n.ID] = i
		if !necessary[n.ID] {
			continue
		}
		st.taskByNode[n.ID] = &models.Task{
			ID:      uuid.New(),
			NodeID:  n.ID,
			BatchID: batch.ID,
			Status:  models.TaskQueued,
		}
	}

	return st
}

// tasks returns the run's task rows in snapshot order.
func (st *runState) tasks() []*models.Task {
	out := make([]*models.Task, 0, len(st.taskByNode))
	for _, n := range st.snapshot.Nodes {
		if t, ok := st.taskByNode[n.ID]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (st *runState) taskFor(nodeID uuid.UUID) *models.Task {
	return st.taskByNode[nodeID]
}

func (st *runState) isTarget(nodeID uuid.UUID) bool {
	return st.targets[nodeID]
}

// sortReady orders a ready set by snapshot position. Nodes within a
// generation run concurrently anyway; stable ordering keeps logs and tests
// deterministic.
func (st *runState) sortReady(ready []uuid.UUID) {
	sort.Slice(ready, func(i, j int) bool {
		return st.nodeOrder[ready[i]] < st.nodeOrder[ready[j]]
	})
}

// queued returns the node IDs whose tasks never left QUEUED, in snapshot
// order.
func (st *runState) queued() []uuid.UUID {
	var out []uuid.UUID
	for _, n := range st.snapshot.Nodes {
		if t, ok := st.taskByNode[n.ID]; ok && t.Status == models.TaskQueued {
			out = append(out, n.ID)
		}
	}
	return out
}
