// Package scheduler turns a run request into an ordered, partially parallel
// execution of node processors. A run executes the necessary subgraph of a
// canvas in dependency generations: every node in a generation runs
// concurrently, the next generation starts only once the previous one has
// fully settled, and per-node outcomes land on task rows while the batch as
// a whole always finishes.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framefold/canvas/cmd/engine/processors"
	"github.com/framefold/canvas/common/models"
)

// DefaultMaxParallelism bounds concurrent node executions within a
// generation when no explicit limit is configured.
const DefaultMaxParallelism = 8

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// SnapshotLoader loads the graph a run executes against.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, canvasID uuid.UUID, userID string) (*models.CanvasSnapshot, error)
}

// NodeStore is the node-row surface the executor needs.
type NodeStore interface {
	GetByID(ctx context.Context, nodeID uuid.UUID) (*models.Node, error)
	UpdateResult(ctx context.Context, nodeID uuid.UUID, result *models.NodeResult) error
}

// TaskStore persists per-run task rows.
type TaskStore interface {
	CreateMany(ctx context.Context, tasks []*models.Task) error
	Update(ctx context.Context, task *models.Task) error
}

// BatchStore persists batch rows.
type BatchStore interface {
	Create(ctx context.Context, batch *models.Batch) error
	Finish(ctx context.Context, batchID uuid.UUID, finishedAt time.Time) error
}

// TemplateSource resolves node templates from the static catalog.
type TemplateSource interface {
	ByType(t models.NodeType) (*models.NodeTemplate, bool)
}

// Scheduler executes canvas runs.
type Scheduler struct {
	canvases  SnapshotLoader
	nodes     NodeStore
	tasks     TaskStore
	batches   BatchStore
	templates TemplateSource
	registry  *processors.Registry
	events    EventPublisher
	logger    Logger

	maxParallelism int
	processTimeout time.Duration
}

// Opts contains options for creating a scheduler
type Opts struct {
	Canvases  SnapshotLoader
	Nodes     NodeStore
	Tasks     TaskStore
	Batches   BatchStore
	Templates TemplateSource
	Registry  *processors.Registry
	Events    EventPublisher // optional; nil disables progress events
	Logger    Logger

	MaxParallelism int           // concurrent nodes per generation, default 8
	ProcessTimeout time.Duration // per-processor budget, 0 means none
}

// New creates a scheduler
func New(opts *Opts) *Scheduler {
	maxParallelism := opts.MaxParallelism
	if maxParallelism <= 0 {
		maxParallelism = DefaultMaxParallelism
	}

	return &Scheduler{
		canvases:       opts.Canvases,
		nodes:          opts.Nodes,
		tasks:          opts.Tasks,
		batches:        opts.Batches,
		templates:      opts.Templates,
		registry:       opts.Registry,
		events:         opts.Events,
		logger:         opts.Logger,
		maxParallelism: maxParallelism,
		processTimeout: opts.ProcessTimeout,
	}
}

// ProcessNodes runs a canvas. It selects the necessary subgraph for the
// requested targets (every node when none are given), executes it in
// dependency generations and returns the finished batch. Per-node outcomes
// live on the task rows; the batch itself never fails once created.
func (s *Scheduler) ProcessNodes(ctx context.Context, canvasID uuid.UUID, user models.User, targetNodeIDs []uuid.UUID) (*models.Batch, error) {
	snap, err := s.canvases.LoadSnapshot(ctx, canvasID, user.ID)
	if err != nil {
		return nil, err
	}
	snap.APIKey = user.APIKey
	s.attachTemplates(snap)

	targets := targetSet(snap, targetNodeIDs)
	necessary := necessarySubgraph(snap, targets)

	batch := &models.Batch{
		ID:        uuid.New(),
		CanvasID:  canvasID,
		UserID:    user.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	run := newRunState(snap, batch, targets, necessary)
	snap.Tasks = run.tasks()

	finalCtx := context.WithoutCancel(ctx)

	if err := s.tasks.CreateMany(ctx, snap.Tasks); err != nil {
		s.finishBatch(finalCtx, run)
		return nil, fmt.Errorf("failed to create tasks: %w", err)
	}

	s.logger.Info("batch started",
		"batch_id", batch.ID,
		"canvas_id", canvasID,
		"user_id", user.ID,
		"targets", len(targets),
		"necessary", len(necessary))
	s.publishEvent(ctx, run, &ProgressEvent{Type: EventBatchStarted})

	s.runGenerations(ctx, run)

	reason := ErrDependencyCycleOrDeadlock
	if ctx.Err() != nil {
		reason = ErrCancelled
	}
	s.failUnreached(finalCtx, run, reason)
	s.finishBatch(finalCtx, run)

	return batch, nil
}

// attachTemplates decorates snapshot nodes with their static templates. A
// node whose type has no template fails later at dispatch, per task, rather
// than failing the whole run.
func (s *Scheduler) attachTemplates(snap *models.CanvasSnapshot) {
	for _, n := range snap.Nodes {
		if tpl, ok := s.templates.ByType(n.Type); ok {
			n.Template = tpl
		}
	}
}

// runGenerations drives the generation loop: each pass executes every node
// whose dependencies have resolved, waits for the whole generation to
// settle, installs fresh results into the snapshot, then releases children.
// A FAILED node still releases its children; they fail on their own missing
// inputs instead of hanging the batch.
func (s *Scheduler) runGenerations(ctx context.Context, run *runState) {
	forward, indegree := buildAdjacency(run.snapshot, run.necessary)

	ready := make([]uuid.UUID, 0, len(run.necessary))
	for id := range run.necessary {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	run.sortReady(ready)

	for generation := 0; len(ready) > 0; generation++ {
		if ctx.Err() != nil {
			return
		}

		current := ready
		ready = nil

		for _, id := range current {
			run.taskFor(id).Status = models.TaskExecuting
		}

		s.logger.Debug("generation starting",
			"batch_id", run.batch.ID,
			"generation", generation,
			"nodes", len(current))

		outcomes := make([]execOutcome, len(current))
		sem := make(chan struct{}, s.maxParallelism)
		var wg sync.WaitGroup
		for i, id := range current {
			wg.Add(1)
			go func(i int, id uuid.UUID) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				outcomes[i] = s.executeNode(ctx, run, id)
			}(i, id)
		}
		wg.Wait()

		// Fresh results install after the barrier, so resolvers running in
		// the next generation only ever observe fully settled values.
		for i, id := range current {
			out := outcomes[i]
			if out.result == nil {
				continue
			}
			run.snapshot.InstallResult(id, out.result)
			if out.transient {
				run.taskFor(id).Result = out.result
			}
		}

		for _, id := range current {
			if !run.taskFor(id).Status.Resolved() {
				continue
			}
			for _, child := range forward[id] {
				indegree[child]--
				if indegree[child] == 0 {
					ready = append(ready, child)
				}
			}
		}
		run.sortReady(ready)
	}
}

// failUnreached sweeps tasks that never became ready. With an acyclic
// snapshot and an uncancelled context this is unreachable; it exists so a
// corrupt graph cannot leave tasks QUEUED forever.
func (s *Scheduler) failUnreached(ctx context.Context, run *runState, reason error) {
	for _, id := range run.queued() {
		task := run.taskFor(id)
		s.logger.Warn("task never became ready",
			"batch_id", run.batch.ID,
			"node_id", id,
			"reason", reason)
		s.finishTask(ctx, run, task, models.TaskFailed, reason.Error(), nil)
	}
}

// finishBatch stamps finishedAt on the batch row. The stamp always lands,
// whatever the per-task outcomes were.
func (s *Scheduler) finishBatch(ctx context.Context, run *runState) {
	finished := time.Now().UTC()
	if err := s.batches.Finish(ctx, run.batch.ID, finished); err != nil {
		s.logger.Error("failed to finish batch",
			"batch_id", run.batch.ID,
			"error", err)
	}
	run.batch.FinishedAt = &finished

	completed, failed := 0, 0
	for _, t := range run.taskByNode {
		switch t.Status {
		case models.TaskCompleted:
			completed++
		case models.TaskFailed:
			failed++
		}
	}

	s.logger.Info("batch finished",
		"batch_id", run.batch.ID,
		"canvas_id", run.batch.CanvasID,
		"tasks", len(run.taskByNode),
		"completed", completed,
		"failed", failed)
	s.publishEvent(ctx, run, &ProgressEvent{Type: EventBatchCompleted})
}
