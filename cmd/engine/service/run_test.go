package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/ratelimit"
	"github.com/framefold/canvas/common/repository"
)

type stubRunner struct {
	batch      *models.Batch
	err        error
	calls      int
	gotCanvas  uuid.UUID
	gotUser    models.User
	gotTargets []uuid.UUID
}

func (r *stubRunner) ProcessNodes(ctx context.Context, canvasID uuid.UUID, user models.User, targetNodeIDs []uuid.UUID) (*models.Batch, error) {
	r.calls++
	r.gotCanvas = canvasID
	r.gotUser = user
	r.gotTargets = targetNodeIDs
	return r.batch, r.err
}

type stubTaskLister struct {
	tasks map[uuid.UUID][]*models.Task
	err   error
}

func (l *stubTaskLister) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.Task, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.tasks[batchID], nil
}

type stubBatchGetter struct {
	batches map[uuid.UUID]*models.Batch
}

func (g *stubBatchGetter) GetByID(ctx context.Context, batchID uuid.UUID) (*models.Batch, error) {
	batch, ok := g.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrBatchNotFound, batchID)
	}
	return batch, nil
}

type stubLimiter struct {
	tierResult   *ratelimit.RateLimitResult
	tierErr      error
	canvasResult *ratelimit.RateLimitResult
	canvasErr    error

	tierCalls   int
	canvasCalls int
	gotTier     ratelimit.CanvasTier
	gotLimit    int64
	gotWindow   int
}

func (l *stubLimiter) CheckTieredLimit(ctx context.Context, username string, tier ratelimit.CanvasTier) (*ratelimit.RateLimitResult, error) {
	l.tierCalls++
	l.gotTier = tier
	return l.tierResult, l.tierErr
}

func (l *stubLimiter) CheckCanvasLimit(ctx context.Context, username, canvasID string, limit int64, windowSec int) (*ratelimit.RateLimitResult, error) {
	l.canvasCalls++
	l.gotLimit = limit
	l.gotWindow = windowSec
	return l.canvasResult, l.canvasErr
}

func allowed() *ratelimit.RateLimitResult {
	return &ratelimit.RateLimitResult{Allowed: true, Limit: 100}
}

func rejected(retryAfter int64) *ratelimit.RateLimitResult {
	return &ratelimit.RateLimitResult{Allowed: false, Limit: 5, CurrentCount: 6, RetryAfterSeconds: retryAfter}
}

// runFixture bundles a RunService with the stubs behind it.
type runFixture struct {
	svc     *RunService
	repo    *mockCanvasRepo
	runner  *stubRunner
	tasks   *stubTaskLister
	batches *stubBatchGetter
	limiter *stubLimiter
}

func newRunFixture(t *testing.T, snap *models.CanvasSnapshot) *runFixture {
	t.Helper()

	repo := newMockCanvasRepo()
	if snap != nil {
		repo.seed(snap)
	}

	batch := &models.Batch{ID: uuid.New(), UserID: "tester", CreatedAt: time.Now()}
	if snap != nil {
		batch.CanvasID = snap.Canvas.ID
	}

	f := &runFixture{
		repo:    repo,
		runner:  &stubRunner{batch: batch},
		tasks:   &stubTaskLister{tasks: make(map[uuid.UUID][]*models.Task)},
		batches: &stubBatchGetter{batches: make(map[uuid.UUID]*models.Batch)},
		limiter: &stubLimiter{tierResult: allowed(), canvasResult: allowed()},
	}

	f.svc = NewRunService(&RunServiceOpts{
		Canvases: repo,
		Runner:   f.runner,
		Tasks:    f.tasks,
		Batches:  f.batches,
		Limiter:  f.limiter,
		Logger:   &testLogger{t: t},
	})
	return f
}

func TestProcess_ReturnsBatchWithTasks(t *testing.T) {
	a := graphNode(models.NodeTypeText, "A", `{"text": "a"}`)
	b := graphNode(models.NodeTypePreview, "B", "")
	snap := testSnapshot("tester", "Board", []*models.Node{a, b}, nil, nil)
	f := newRunFixture(t, snap)

	f.tasks.tasks[f.runner.batch.ID] = []*models.Task{
		{ID: uuid.New(), NodeID: a.ID, BatchID: f.runner.batch.ID, Status: models.TaskCompleted},
		{ID: uuid.New(), NodeID: b.ID, BatchID: f.runner.batch.ID, Status: models.TaskCompleted},
	}

	user := models.User{ID: "tester", APIKey: "sk-test"}
	targets := []uuid.UUID{b.ID}

	result, err := f.svc.Process(context.Background(), snap.Canvas.ID, user, targets)
	require.NoError(t, err)

	assert.Equal(t, f.runner.batch.ID, result.Batch.ID)
	assert.Len(t, result.Tasks, 2)
	assert.Equal(t, 1, f.runner.calls)
	assert.Equal(t, snap.Canvas.ID, f.runner.gotCanvas)
	assert.Equal(t, user, f.runner.gotUser)
	assert.Equal(t, targets, f.runner.gotTargets)
}

func TestProcess_TierRejectionStopsRun(t *testing.T) {
	node := graphNode(models.NodeTypeLLM, "Writer", `{"prompt": "x"}`)
	snap := testSnapshot("tester", "Board", []*models.Node{node}, nil, nil)
	f := newRunFixture(t, snap)
	f.limiter.tierResult = rejected(42)

	_, err := f.svc.Process(context.Background(), snap.Canvas.ID, models.User{ID: "tester"}, nil)
	require.Error(t, err)

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, int64(42), rle.RetryAfterSeconds)
	assert.Equal(t, ratelimit.TierStandard, rle.Tier)
	assert.Equal(t, 0, f.runner.calls)
}

func TestProcess_CanvasWindowRejectionStopsRun(t *testing.T) {
	node := graphNode(models.NodeTypeText, "A", `{"text": "a"}`)
	snap := testSnapshot("tester", "Board", []*models.Node{node}, nil, nil)
	f := newRunFixture(t, snap)
	f.limiter.canvasResult = rejected(7)

	_, err := f.svc.Process(context.Background(), snap.Canvas.ID, models.User{ID: "tester"}, nil)
	require.Error(t, err)

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, int64(7), rle.RetryAfterSeconds)
	assert.Equal(t, 1, f.limiter.tierCalls)
	assert.Equal(t, 1, f.limiter.canvasCalls)
	assert.Equal(t, int64(DefaultCanvasRunLimit), f.limiter.gotLimit)
	assert.Equal(t, DefaultCanvasRunWindow, f.limiter.gotWindow)
	assert.Equal(t, 0, f.runner.calls)
}

func TestProcess_LimiterOutageFailsOpen(t *testing.T) {
	node := graphNode(models.NodeTypeText, "A", `{"text": "a"}`)
	snap := testSnapshot("tester", "Board", []*models.Node{node}, nil, nil)
	f := newRunFixture(t, snap)
	f.limiter.tierErr = errors.New("redis down")
	f.limiter.canvasErr = errors.New("redis down")

	_, err := f.svc.Process(context.Background(), snap.Canvas.ID, models.User{ID: "tester"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.runner.calls)
}

func TestProcess_PricesByNecessarySubgraph(t *testing.T) {
	// text -> llm: targeting only the text node keeps the run in the
	// simple tier even though the canvas carries a generative node.
	text := graphNode(models.NodeTypeText, "Prompt", `{"text": "a"}`)
	llm := graphNode(models.NodeTypeLLM, "Writer", `{"prompt": "x"}`)
	textOut := graphHandle(text.ID, models.HandleOutput, "Output")
	llmIn := graphHandle(llm.ID, models.HandleInput, "Prompt")
	edge := graphEdge(text.ID, textOut.ID, llm.ID, llmIn.ID)
	snap := testSnapshot("tester", "Board",
		[]*models.Node{text, llm},
		[]*models.Handle{textOut, llmIn},
		[]*models.Edge{edge},
	)

	f := newRunFixture(t, snap)
	_, err := f.svc.Process(context.Background(), snap.Canvas.ID, models.User{ID: "tester"}, []uuid.UUID{text.ID})
	require.NoError(t, err)
	assert.Equal(t, ratelimit.TierSimple, f.limiter.gotTier)

	f = newRunFixture(t, snap)
	_, err = f.svc.Process(context.Background(), snap.Canvas.ID, models.User{ID: "tester"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ratelimit.TierStandard, f.limiter.gotTier)
}

func TestProcess_UnknownCanvas(t *testing.T) {
	f := newRunFixture(t, nil)

	_, err := f.svc.Process(context.Background(), uuid.New(), models.User{ID: "tester"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrCanvasNotFound))
	assert.Equal(t, 0, f.runner.calls)
}

func TestProcess_NilLimiterSkipsAdmission(t *testing.T) {
	node := graphNode(models.NodeTypeText, "A", `{"text": "a"}`)
	snap := testSnapshot("tester", "Board", []*models.Node{node}, nil, nil)

	repo := newMockCanvasRepo()
	repo.seed(snap)
	runner := &stubRunner{batch: &models.Batch{ID: uuid.New(), CanvasID: snap.Canvas.ID, UserID: "tester"}}
	svc := NewRunService(&RunServiceOpts{
		Canvases: repo,
		Runner:   runner,
		Tasks:    &stubTaskLister{tasks: make(map[uuid.UUID][]*models.Task)},
		Batches:  &stubBatchGetter{batches: make(map[uuid.UUID]*models.Batch)},
		Logger:   &testLogger{t: t},
	})

	result, err := svc.Process(context.Background(), snap.Canvas.ID, models.User{ID: "tester"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
	assert.NotNil(t, result.Tasks)
}

func TestGetBatch_ReturnsBatchAndTasks(t *testing.T) {
	f := newRunFixture(t, nil)

	batch := &models.Batch{ID: uuid.New(), CanvasID: uuid.New(), UserID: "tester", CreatedAt: time.Now()}
	f.batches.batches[batch.ID] = batch
	f.tasks.tasks[batch.ID] = []*models.Task{
		{ID: uuid.New(), BatchID: batch.ID, Status: models.TaskCompleted},
	}

	result, err := f.svc.GetBatch(context.Background(), batch.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, batch.ID, result.Batch.ID)
	assert.Len(t, result.Tasks, 1)
}

func TestGetBatch_HidesForeignBatch(t *testing.T) {
	f := newRunFixture(t, nil)

	batch := &models.Batch{ID: uuid.New(), UserID: "alice"}
	f.batches.batches[batch.ID] = batch

	_, err := f.svc.GetBatch(context.Background(), batch.ID, "bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrBatchNotFound))
}

func TestGetBatch_Unknown(t *testing.T) {
	f := newRunFixture(t, nil)

	_, err := f.svc.GetBatch(context.Background(), uuid.New(), "tester")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrBatchNotFound))
}
