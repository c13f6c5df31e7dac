package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/framefold/canvas/cmd/engine/scheduler"
	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/ratelimit"
	"github.com/framefold/canvas/common/repository"
)

// Per-canvas run admission defaults. The tiered per-user window is the main
// guard; this one just stops tight retry loops against a single canvas.
const (
	DefaultCanvasRunLimit  = 30
	DefaultCanvasRunWindow = 60 // seconds
)

// SnapshotLoader loads a canvas graph scoped to its owner
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, canvasID uuid.UUID, userID string) (*models.CanvasSnapshot, error)
}

// Runner executes a canvas run to completion
type Runner interface {
	ProcessNodes(ctx context.Context, canvasID uuid.UUID, user models.User, targetNodeIDs []uuid.UUID) (*models.Batch, error)
}

// TaskLister reads the task rows of a batch
type TaskLister interface {
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.Task, error)
}

// BatchGetter reads a single batch row
type BatchGetter interface {
	GetByID(ctx context.Context, batchID uuid.UUID) (*models.Batch, error)
}

// RunLimiter is the slice of the rate limiter run admission uses
type RunLimiter interface {
	CheckTieredLimit(ctx context.Context, username string, tier ratelimit.CanvasTier) (*ratelimit.RateLimitResult, error)
	CheckCanvasLimit(ctx context.Context, username, canvasID string, limit int64, windowSec int) (*ratelimit.RateLimitResult, error)
}

// RateLimitError reports a rejected run with enough detail for a 429 response
type RateLimitError struct {
	Tier              ratelimit.CanvasTier
	Limit             int64
	CurrentCount      int64
	RetryAfterSeconds int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s tier allows %d runs per window, retry after %d seconds",
		e.Tier, e.Limit, e.RetryAfterSeconds)
}

// RunService fronts the scheduler: it prices a run by its necessary
// subgraph, admits it through the rate limiter, then blocks on execution.
type RunService struct {
	canvases     SnapshotLoader
	runner       Runner
	tasks        TaskLister
	batches      BatchGetter
	limiter      RunLimiter
	canvasLimit  int64
	canvasWindow int
	log          Logger
}

// RunServiceOpts contains options for creating a RunService
type RunServiceOpts struct {
	Canvases SnapshotLoader
	Runner   Runner
	Tasks    TaskLister
	Batches  BatchGetter
	// Limiter may be nil, which disables admission checks.
	Limiter         RunLimiter
	CanvasRunLimit  int64
	CanvasRunWindow int
	Logger          Logger
}

// NewRunService creates a new run service
func NewRunService(opts *RunServiceOpts) *RunService {
	limit := opts.CanvasRunLimit
	if limit <= 0 {
		limit = DefaultCanvasRunLimit
	}
	window := opts.CanvasRunWindow
	if window <= 0 {
		window = DefaultCanvasRunWindow
	}

	return &RunService{
		canvases:     opts.Canvases,
		runner:       opts.Runner,
		tasks:        opts.Tasks,
		batches:      opts.Batches,
		limiter:      opts.Limiter,
		canvasLimit:  limit,
		canvasWindow: window,
		log:          opts.Logger,
	}
}

// RunResult bundles a batch with its task rows
type RunResult struct {
	Batch *models.Batch  `json:"batch"`
	Tasks []*models.Task `json:"tasks"`
}

// Process runs the requested nodes of a canvas and returns the finished
// batch with its per-task outcomes. An empty target list runs everything.
func (s *RunService) Process(ctx context.Context, canvasID uuid.UUID, user models.User, targetNodeIDs []uuid.UUID) (*RunResult, error) {
	// 1. Load the graph to price the run before admitting it.
	snapshot, err := s.canvases.LoadSnapshot(ctx, canvasID, user.ID)
	if err != nil {
		return nil, err
	}

	// 2. Only the nodes the run would actually execute count toward its tier.
	necessary := scheduler.NecessaryNodes(snapshot, targetNodeIDs)
	profile := ratelimit.InspectCanvas(necessary)
	s.log.Info("run priced",
		"canvas_id", canvasID,
		"user_id", user.ID,
		"tier", profile.Tier,
		"generative_count", profile.GenerativeCount,
		"node_count", profile.TotalNodes,
	)

	// 3. Admission, broadest window first.
	if err := s.admit(ctx, canvasID, user.ID, profile); err != nil {
		return nil, err
	}

	// 4. Run to completion. The scheduler loads its own snapshot; the one
	// above was only for pricing.
	batch, err := s.runner.ProcessNodes(ctx, canvasID, user, targetNodeIDs)
	if err != nil {
		return nil, err
	}

	// 5. Collect the per-task outcomes for the response.
	tasks, err := s.tasks.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch tasks: %w", err)
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}

	return &RunResult{Batch: batch, Tasks: tasks}, nil
}

// GetBatch returns a batch and its tasks, scoped to the batch owner
func (s *RunService) GetBatch(ctx context.Context, batchID uuid.UUID, userID string) (*RunResult, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	// Someone else's batch looks absent rather than forbidden.
	if batch.UserID != userID {
		return nil, fmt.Errorf("%w: %s", repository.ErrBatchNotFound, batchID)
	}

	tasks, err := s.tasks.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch tasks: %w", err)
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}

	return &RunResult{Batch: batch, Tasks: tasks}, nil
}

// admit enforces the tiered per-user window, then the per-canvas window.
// Limiter infrastructure errors fail open; a run is never rejected because
// Redis was unreachable.
func (s *RunService) admit(ctx context.Context, canvasID uuid.UUID, userID string, profile ratelimit.CanvasProfile) error {
	if s.limiter == nil {
		return nil
	}

	result, err := s.limiter.CheckTieredLimit(ctx, userID, profile.Tier)
	if err != nil {
		s.log.Error("tiered rate limit check failed", "user_id", userID, "error", err)
	} else if !result.Allowed {
		return &RateLimitError{
			Tier:              profile.Tier,
			Limit:             result.Limit,
			CurrentCount:      result.CurrentCount,
			RetryAfterSeconds: result.RetryAfterSeconds,
		}
	}

	result, err = s.limiter.CheckCanvasLimit(ctx, userID, canvasID.String(), s.canvasLimit, s.canvasWindow)
	if err != nil {
		s.log.Error("canvas rate limit check failed", "canvas_id", canvasID, "error", err)
	} else if !result.Allowed {
		return &RateLimitError{
			Tier:              profile.Tier,
			Limit:             result.Limit,
			CurrentCount:      result.CurrentCount,
			RetryAfterSeconds: result.RetryAfterSeconds,
		}
	}

	return nil
}
