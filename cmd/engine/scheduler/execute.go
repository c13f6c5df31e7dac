package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/framefold/canvas/cmd/engine/processors"
	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/repository"
)

// execOutcome carries what a finished node hands back across the generation
// barrier.
type execOutcome struct {
	result    *models.NodeResult // deep copy to install into the snapshot
	transient bool               // result belongs on the task row, not the node row
}

// executeNode runs one node end to end: skip check, sanity check, dispatch,
// invoke, persist, finalise. It writes only its own task row; the returned
// outcome is installed into the snapshot by the scheduler once the whole
// generation has settled.
func (s *Scheduler) executeNode(ctx context.Context, run *runState, nodeID uuid.UUID) execOutcome {
	task := run.taskFor(nodeID)
	started := time.Now().UTC()
	task.StartedAt = &started
	if err := s.tasks.Update(ctx, task); err != nil {
		s.logger.Error("failed to mark task executing",
			"batch_id", run.batch.ID,
			"task_id", task.ID,
			"error", err)
	}
	s.publishNodeEvent(ctx, run, EventNodeStarted, task)

	node := run.snapshot.NodeByID(nodeID)
	if node == nil {
		s.failTask(ctx, run, task, fmt.Errorf("%w: %s", ErrNodeRemovedBeforeProcessing, nodeID))
		return execOutcome{}
	}

	// Clean non-target nodes with a previous result are served from cache:
	// COMPLETED without invoking the processor.
	if !run.isTarget(nodeID) && !node.IsDirty && node.Result != nil {
		s.logger.Debug("skipping clean node",
			"batch_id", run.batch.ID,
			"node_id", nodeID,
			"node_type", node.Type)
		s.finishTask(ctx, run, task, models.TaskCompleted, "", nil)
		return execOutcome{}
	}

	if _, err := s.nodes.GetByID(ctx, nodeID); err != nil {
		if errors.Is(err, repository.ErrNodeNotFound) {
			s.failTask(ctx, run, task, fmt.Errorf("%w: %s", ErrNodeRemovedBeforeProcessing, nodeID))
		} else {
			s.failTask(ctx, run, task, fmt.Errorf("failed to verify node: %w", err))
		}
		return execOutcome{}
	}

	proc, ok := s.registry.Get(node.Type)
	if !ok {
		s.failTask(ctx, run, task, fmt.Errorf("%w: %s", ErrNoProcessorForType, node.Type))
		return execOutcome{}
	}

	res := s.invoke(ctx, proc, node, run.snapshot.View(task))
	if !res.Success {
		s.failTask(ctx, run, task, errors.New(res.Error))
		return execOutcome{}
	}

	transient := node.Template != nil && node.Template.IsTransient

	if res.NewResult == nil {
		s.finishTask(ctx, run, task, models.TaskCompleted, "", nil)
		s.logger.Info("node completed",
			"batch_id", run.batch.ID,
			"node_id", nodeID,
			"node_type", node.Type,
			"duration_ms", task.DurationMS)
		return execOutcome{}
	}

	installed, err := res.NewResult.Clone()
	if err != nil {
		s.failTask(ctx, run, task, fmt.Errorf("failed to copy node result: %w", err))
		return execOutcome{}
	}

	if !transient {
		if err := s.nodes.UpdateResult(ctx, nodeID, installed); err != nil {
			if errors.Is(err, repository.ErrNodeNotFound) {
				s.logger.Debug("node row gone at persist, keeping in-memory result",
					"batch_id", run.batch.ID,
					"node_id", nodeID)
			} else {
				// The result still installs into the snapshot; downstream
				// resolution reads it even though this task failed.
				s.failTask(ctx, run, task, fmt.Errorf("%w: %v", ErrResultPersistence, err))
				return execOutcome{result: installed}
			}
		}
	}

	var rowResult *models.NodeResult
	if transient {
		rowResult = installed
	}
	s.finishTask(ctx, run, task, models.TaskCompleted, "", rowResult)
	s.logger.Info("node completed",
		"batch_id", run.batch.ID,
		"node_id", nodeID,
		"node_type", node.Type,
		"duration_ms", task.DurationMS)
	return execOutcome{result: installed, transient: transient}
}

// invoke calls the processor with panic and cancellation conversion: a panic
// or returned error becomes a failed Result, never a scheduler crash.
func (s *Scheduler) invoke(ctx context.Context, proc processors.Processor, node *models.Node, view *models.CanvasSnapshot) (res *processors.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("processor panicked",
				"node_id", node.ID,
				"node_type", node.Type,
				"panic", r)
			res = processors.Failure("processor panic: %v", r)
		}
	}()

	if s.processTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.processTimeout)
		defer cancel()
	}

	out, err := proc.Process(ctx, &processors.Input{Node: node, Snapshot: view})
	if err != nil {
		if ctx.Err() != nil {
			return processors.Failure("%v: %v", ErrCancelled, err)
		}
		return &processors.Result{Success: false, Error: err.Error()}
	}
	if out == nil {
		return processors.Failure("processor returned no result")
	}
	return out
}

// finishTask finalises a task row and publishes its terminal event. result,
// when non-nil, rides the row write; transient nodes park their output here
// because they never write the node row.
func (s *Scheduler) finishTask(ctx context.Context, run *runState, task *models.Task, status models.TaskStatus, errMsg string, result *models.NodeResult) {
	now := time.Now().UTC()
	task.Status = status
	task.FinishedAt = &now
	if task.StartedAt != nil {
		ms := now.Sub(*task.StartedAt).Milliseconds()
		task.DurationMS = &ms
	}
	if errMsg != "" {
		task.Error = &errMsg
	}

	row := *task
	row.Result = result
	if err := s.tasks.Update(ctx, &row); err != nil {
		s.logger.Error("failed to finalise task row",
			"batch_id", run.batch.ID,
			"task_id", task.ID,
			"node_id", task.NodeID,
			"error", err)
	}

	eventType := EventNodeCompleted
	if status == models.TaskFailed {
		eventType = EventNodeFailed
	}
	s.publishNodeEvent(ctx, run, eventType, task)
}

// failTask finalises a task as FAILED with the cause's message.
func (s *Scheduler) failTask(ctx context.Context, run *runState, task *models.Task, cause error) {
	s.logger.Warn("node failed",
		"batch_id", run.batch.ID,
		"node_id", task.NodeID,
		"error", cause)
	s.finishTask(ctx, run, task, models.TaskFailed, cause.Error(), nil)
}
