package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framefold/canvas/cmd/engine/processors"
	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/repository"
	"github.com/framefold/canvas/common/templates"
)

// testLogger implements the Logger interface
type testLogger struct {
	t *testing.T
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[INFO] %s %v", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[ERROR] %s %v", msg, keysAndValues)
}

func (l *testLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[WARN] %s %v", msg, keysAndValues)
}

func (l *testLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[DEBUG] %s %v", msg, keysAndValues)
}

type mockCanvasStore struct {
	snapshot *models.CanvasSnapshot
	err      error
}

func (m *mockCanvasStore) LoadSnapshot(ctx context.Context, canvasID uuid.UUID, userID string) (*models.CanvasSnapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

type mockNodeStore struct {
	mu             sync.Mutex
	rows           map[uuid.UUID]*models.Node
	updated        map[uuid.UUID]*models.NodeResult
	removed        map[uuid.UUID]bool
	persistErr     map[uuid.UUID]error
	persistMissing map[uuid.UUID]bool
}

func newMockNodeStore(snap *models.CanvasSnapshot) *mockNodeStore {
	rows := make(map[uuid.UUID]*models.Node, len(snap.Nodes))
	for _, n := range snap.Nodes {
		rows[n.ID] = n
	}
	return &mockNodeStore{
		rows:           rows,
		updated:        make(map[uuid.UUID]*models.NodeResult),
		removed:        make(map[uuid.UUID]bool),
		persistErr:     make(map[uuid.UUID]error),
		persistMissing: make(map[uuid.UUID]bool),
	}
}

func (m *mockNodeStore) GetByID(ctx context.Context, nodeID uuid.UUID) (*models.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed[nodeID] {
		return nil, fmt.Errorf("%w: %s", repository.ErrNodeNotFound, nodeID)
	}
	node, ok := m.rows[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrNodeNotFound, nodeID)
	}
	return node, nil
}

func (m *mockNodeStore) UpdateResult(ctx context.Context, nodeID uuid.UUID, result *models.NodeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.persistErr[nodeID]; err != nil {
		return err
	}
	if m.persistMissing[nodeID] || m.removed[nodeID] {
		return fmt.Errorf("%w: %s", repository.ErrNodeNotFound, nodeID)
	}
	m.updated[nodeID] = result
	return nil
}

func (m *mockNodeStore) updatedResult(nodeID uuid.UUID) *models.NodeResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updated[nodeID]
}

type mockTaskStore struct {
	mu      sync.Mutex
	created []*models.Task
	updates []models.Task
}

func (m *mockTaskStore) CreateMany(ctx context.Context, tasks []*models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, tasks...)
	return nil
}

func (m *mockTaskStore) Update(ctx context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, *task)
	return nil
}

// lastRowFor returns the final task row write for a node, as the store saw it.
func (m *mockTaskStore) lastRowFor(nodeID uuid.UUID) *models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.updates) - 1; i >= 0; i-- {
		if m.updates[i].NodeID == nodeID {
			row := m.updates[i]
			return &row
		}
	}
	return nil
}

type mockBatchStore struct {
	mu       sync.Mutex
	created  []*models.Batch
	finished map[uuid.UUID]time.Time
}

func (m *mockBatchStore) Create(ctx context.Context, batch *models.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, batch)
	return nil
}

func (m *mockBatchStore) Finish(ctx context.Context, batchID uuid.UUID, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[batchID] = finishedAt
	return nil
}

type mockEvents struct {
	mu     sync.Mutex
	keys   []string
	events []ProgressEvent
}

func (m *mockEvents) Publish(ctx context.Context, topic string, key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var event ProgressEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return err
	}
	m.keys = append(m.keys, key)
	m.events = append(m.events, event)
	return nil
}

func (m *mockEvents) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// stubProcessor records which nodes it ran and answers with a canned or
// scripted result.
type stubProcessor struct {
	nodeType models.NodeType
	handler  func(ctx context.Context, in *processors.Input) (*processors.Result, error)

	mu       sync.Mutex
	executed []uuid.UUID
}

func (p *stubProcessor) Type() models.NodeType { return p.nodeType }

func (p *stubProcessor) Process(ctx context.Context, in *processors.Input) (*processors.Result, error) {
	p.mu.Lock()
	p.executed = append(p.executed, in.Node.ID)
	p.mu.Unlock()

	if p.handler != nil {
		return p.handler(ctx, in)
	}
	return processors.Succeed(stubResult("ok")), nil
}

func (p *stubProcessor) calls() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uuid.UUID, len(p.executed))
	copy(out, p.executed)
	return out
}

func (p *stubProcessor) ran(nodeID uuid.UUID) bool {
	for _, id := range p.calls() {
		if id == nodeID {
			return true
		}
	}
	return false
}

func stubResult(value string) *models.NodeResult {
	return &models.NodeResult{
		Outputs: []models.Output{
			{Items: []models.OutputItem{{Type: models.DataTypeText, Data: value}}},
		},
	}
}

type harness struct {
	scheduler *Scheduler
	canvases  *mockCanvasStore
	nodes     *mockNodeStore
	tasks     *mockTaskStore
	batches   *mockBatchStore
	events    *mockEvents
	registry  *processors.Registry
}

func newHarness(t *testing.T, snap *models.CanvasSnapshot) *harness {
	t.Helper()

	catalog, err := templates.NewCatalog()
	require.NoError(t, err)

	logger := &testLogger{t: t}
	h := &harness{
		canvases: &mockCanvasStore{snapshot: snap},
		nodes:    newMockNodeStore(snap),
		tasks:    &mockTaskStore{},
		batches:  &mockBatchStore{finished: make(map[uuid.UUID]time.Time)},
		events:   &mockEvents{},
		registry: processors.NewRegistry(logger),
	}
	h.scheduler = New(&Opts{
		Canvases:       h.canvases,
		Nodes:          h.nodes,
		Tasks:          h.tasks,
		Batches:        h.batches,
		Templates:      catalog,
		Registry:       h.registry,
		Events:         h.events,
		Logger:         logger,
		MaxParallelism: 4,
	})
	return h
}

func (h *harness) run(t *testing.T, targets ...uuid.UUID) *models.Batch {
	t.Helper()
	user := models.User{ID: "tester", APIKey: "sk-test"}
	batch, err := h.scheduler.ProcessNodes(context.Background(), h.canvases.snapshot.Canvas.ID, user, targets)
	require.NoError(t, err)
	return batch
}

func (h *harness) taskStatus(t *testing.T, nodeID uuid.UUID) models.TaskStatus {
	t.Helper()
	row := h.tasks.lastRowFor(nodeID)
	require.NotNil(t, row, "no task row written for node %s", nodeID)
	return row.Status
}

func (h *harness) taskError(t *testing.T, nodeID uuid.UUID) string {
	t.Helper()
	row := h.tasks.lastRowFor(nodeID)
	require.NotNil(t, row)
	require.NotNil(t, row.Error)
	return *row.Error
}

func TestProcessNodes_LinearChain(t *testing.T) {
	a, b, c := textNode(), textNode(), textNode()
	snap := graphSnapshot(
		[]*models.Node{a, b, c},
		[]*models.Edge{edgeBetween(a, b), edgeBetween(b, c)},
	)
	h := newHarness(t, snap)

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	stub.handler = func(ctx context.Context, in *processors.Input) (*processors.Result, error) {
		assert.Equal(t, "sk-test", in.Snapshot.APIKey)
		require.NotNil(t, in.Snapshot.Task)
		assert.Equal(t, in.Node.ID, in.Snapshot.Task.NodeID)
		return processors.Succeed(stubResult(in.Node.ID.String())), nil
	}
	h.registry.Register(stub)

	batch := h.run(t)

	require.NotNil(t, batch.FinishedAt)
	assert.Len(t, h.tasks.created, 3)
	assert.Contains(t, h.batches.finished, batch.ID)

	require.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID}, stub.calls(), "generations must run in dependency order")

	for _, n := range []*models.Node{a, b, c} {
		assert.Equal(t, models.TaskCompleted, h.taskStatus(t, n.ID))
		assert.NotNil(t, h.nodes.updatedResult(n.ID), "result should persist to the node row")
		require.NotNil(t, n.Result, "result should install into the snapshot")
	}
}

func TestProcessNodes_DiamondMiddleRunsConcurrently(t *testing.T) {
	a, b, c, d := textNode(), textNode(), textNode(), textNode()
	snap := graphSnapshot(
		[]*models.Node{a, b, c, d},
		[]*models.Edge{
			edgeBetween(a, b), edgeBetween(a, c),
			edgeBetween(b, d), edgeBetween(c, d),
		},
	)
	h := newHarness(t, snap)

	bStarted := make(chan struct{})
	cStarted := make(chan struct{})
	meet := func(mine, peer chan struct{}) (*processors.Result, error) {
		close(mine)
		select {
		case <-peer:
			return processors.Succeed(stubResult("ok")), nil
		case <-time.After(2 * time.Second):
			return processors.Failure("peer never started"), nil
		}
	}

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	stub.handler = func(ctx context.Context, in *processors.Input) (*processors.Result, error) {
		switch in.Node.ID {
		case b.ID:
			return meet(bStarted, cStarted)
		case c.ID:
			return meet(cStarted, bStarted)
		default:
			return processors.Succeed(stubResult("ok")), nil
		}
	}
	h.registry.Register(stub)

	h.run(t)

	calls := stub.calls()
	require.Len(t, calls, 4)
	assert.Equal(t, a.ID, calls[0], "root runs first")
	assert.Equal(t, d.ID, calls[3], "join runs last")
	for _, n := range []*models.Node{a, b, c, d} {
		assert.Equal(t, models.TaskCompleted, h.taskStatus(t, n.ID))
	}
}

func TestProcessNodes_FailedParentStillReleasesChildren(t *testing.T) {
	a, b := textNode(), textNode()
	snap := graphSnapshot([]*models.Node{a, b}, []*models.Edge{edgeBetween(a, b)})
	h := newHarness(t, snap)

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	stub.handler = func(ctx context.Context, in *processors.Input) (*processors.Result, error) {
		if in.Node.ID == a.ID {
			return processors.Failure("model quota exhausted"), nil
		}
		if in.Snapshot.NodeByID(a.ID).Result == nil {
			return processors.Failure("empty required input"), nil
		}
		return processors.Succeed(stubResult("ok")), nil
	}
	h.registry.Register(stub)

	batch := h.run(t)

	assert.True(t, stub.ran(b.ID), "child must execute after a failed parent")
	assert.Equal(t, models.TaskFailed, h.taskStatus(t, a.ID))
	assert.Equal(t, "model quota exhausted", h.taskError(t, a.ID))
	assert.Equal(t, models.TaskFailed, h.taskStatus(t, b.ID))
	assert.Equal(t, "empty required input", h.taskError(t, b.ID))
	require.NotNil(t, batch.FinishedAt, "partial failure must not block the batch stamp")
}

func TestProcessNodes_SkipsCleanNonTargets(t *testing.T) {
	a, b := textNode(), textNode()
	a.Result = stubResult("cached")
	a.IsDirty = false
	snap := graphSnapshot([]*models.Node{a, b}, []*models.Edge{edgeBetween(a, b)})
	h := newHarness(t, snap)

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	h.registry.Register(stub)

	h.run(t, b.ID)

	assert.False(t, stub.ran(a.ID), "clean non-target must be served from cache")
	assert.True(t, stub.ran(b.ID))
	assert.Equal(t, models.TaskCompleted, h.taskStatus(t, a.ID))
	assert.Nil(t, h.nodes.updatedResult(a.ID), "skip must not rewrite the node row")

	row := h.tasks.lastRowFor(a.ID)
	require.NotNil(t, row.DurationMS)
	assert.GreaterOrEqual(t, *row.DurationMS, int64(0))
}

func TestProcessNodes_TargetAlwaysRuns(t *testing.T) {
	a := textNode()
	a.Result = stubResult("cached")
	a.IsDirty = false
	snap := graphSnapshot([]*models.Node{a}, nil)
	h := newHarness(t, snap)

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	h.registry.Register(stub)

	h.run(t, a.ID)

	assert.True(t, stub.ran(a.ID), "explicit targets re-run even when clean")
	assert.NotNil(t, h.nodes.updatedResult(a.ID))
}

func TestProcessNodes_DirtyNodeRuns(t *testing.T) {
	a, b := textNode(), textNode()
	a.Result = stubResult("stale")
	a.IsDirty = true
	snap := graphSnapshot([]*models.Node{a, b}, []*models.Edge{edgeBetween(a, b)})
	h := newHarness(t, snap)

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	h.registry.Register(stub)

	h.run(t, b.ID)

	assert.True(t, stub.ran(a.ID), "dirty upstream must re-run")
}

func TestProcessNodes_OnlyNecessarySubgraphGetsTasks(t *testing.T) {
	a, b, isolated := textNode(), textNode(), textNode()
	snap := graphSnapshot(
		[]*models.Node{a, b, isolated},
		[]*models.Edge{edgeBetween(a, b)},
	)
	h := newHarness(t, snap)

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	h.registry.Register(stub)

	h.run(t, b.ID)

	assert.Len(t, h.tasks.created, 2)
	assert.False(t, stub.ran(isolated.ID))
	assert.Nil(t, h.tasks.lastRowFor(isolated.ID))
}

func TestProcessNodes_CycleFailsQueuedTasks(t *testing.T) {
	a, b, standalone := textNode(), textNode(), textNode()
	snap := graphSnapshot(
		[]*models.Node{a, b, standalone},
		[]*models.Edge{edgeBetween(a, b), edgeBetween(b, a)},
	)
	h := newHarness(t, snap)

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	h.registry.Register(stub)

	batch := h.run(t)

	assert.Equal(t, models.TaskCompleted, h.taskStatus(t, standalone.ID))
	for _, n := range []*models.Node{a, b} {
		assert.False(t, stub.ran(n.ID))
		assert.Equal(t, models.TaskFailed, h.taskStatus(t, n.ID))
		assert.Contains(t, h.taskError(t, n.ID), "dependency cycle or deadlock")
	}
	require.NotNil(t, batch.FinishedAt)
}

func TestProcessNodes_TransientResultStaysOffNodeRow(t *testing.T) {
	resize := &models.Node{ID: uuid.New(), Type: models.NodeTypeResize, Name: "resize"}
	snap := graphSnapshot([]*models.Node{resize}, nil)
	h := newHarness(t, snap)

	stub := &stubProcessor{nodeType: models.NodeTypeResize}
	h.registry.Register(stub)

	h.run(t)

	assert.Nil(t, h.nodes.updatedResult(resize.ID), "transient output must not touch the node row")

	row := h.tasks.lastRowFor(resize.ID)
	require.NotNil(t, row)
	assert.Equal(t, models.TaskCompleted, row.Status)
	require.NotNil(t, row.Result, "transient output must ride the task row")

	require.NotNil(t, resize.Result, "transient output still installs into the snapshot")
	task := h.tasks.created[0]
	require.NotNil(t, task.Result, "resolver reads the in-memory task row")
}

func TestProcessNodes_NodeRemovedMidRun(t *testing.T) {
	a := textNode()
	snap := graphSnapshot([]*models.Node{a}, nil)
	h := newHarness(t, snap)
	h.nodes.removed[a.ID] = true

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	h.registry.Register(stub)

	h.run(t)

	assert.False(t, stub.ran(a.ID))
	assert.Equal(t, models.TaskFailed, h.taskStatus(t, a.ID))
	assert.Contains(t, h.taskError(t, a.ID), "node removed before processing")
}

func TestProcessNodes_NoProcessorForType(t *testing.T) {
	gen := &models.Node{ID: uuid.New(), Type: models.NodeTypeImageGen, Name: "gen"}
	snap := graphSnapshot([]*models.Node{gen}, nil)
	h := newHarness(t, snap)

	h.run(t)

	assert.Equal(t, models.TaskFailed, h.taskStatus(t, gen.ID))
	assert.Contains(t, h.taskError(t, gen.ID), "no processor registered for node type")
}

func TestProcessNodes_PanicBecomesTaskFailure(t *testing.T) {
	a, sibling := textNode(), textNode()
	snap := graphSnapshot([]*models.Node{a, sibling}, nil)
	h := newHarness(t, snap)

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	stub.handler = func(ctx context.Context, in *processors.Input) (*processors.Result, error) {
		if in.Node.ID == a.ID {
			panic("nil dereference in processor")
		}
		return processors.Succeed(stubResult("ok")), nil
	}
	h.registry.Register(stub)

	batch := h.run(t)

	assert.Equal(t, models.TaskFailed, h.taskStatus(t, a.ID))
	assert.Contains(t, h.taskError(t, a.ID), "processor panic")
	assert.Equal(t, models.TaskCompleted, h.taskStatus(t, sibling.ID))
	require.NotNil(t, batch.FinishedAt)
}

func TestProcessNodes_CanvasNotFound(t *testing.T) {
	h := newHarness(t, graphSnapshot(nil, nil))
	canvasID := uuid.New()
	h.canvases.err = fmt.Errorf("%w: %s", repository.ErrCanvasNotFound, canvasID)

	_, err := h.scheduler.ProcessNodes(context.Background(), canvasID, models.User{ID: "tester"}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrCanvasNotFound))
	assert.Empty(t, h.batches.created, "no batch row without a snapshot")
}

func TestProcessNodes_PersistFailureFailsTaskButInstallsResult(t *testing.T) {
	a, b := textNode(), textNode()
	snap := graphSnapshot([]*models.Node{a, b}, []*models.Edge{edgeBetween(a, b)})
	h := newHarness(t, snap)
	h.nodes.persistErr[a.ID] = errors.New("connection reset")

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	stub.handler = func(ctx context.Context, in *processors.Input) (*processors.Result, error) {
		if in.Node.ID == b.ID && in.Snapshot.NodeByID(a.ID).Result == nil {
			return processors.Failure("upstream result missing"), nil
		}
		return processors.Succeed(stubResult("ok")), nil
	}
	h.registry.Register(stub)

	h.run(t)

	assert.Equal(t, models.TaskFailed, h.taskStatus(t, a.ID))
	assert.Contains(t, h.taskError(t, a.ID), "failed to persist node result")
	assert.Equal(t, models.TaskCompleted, h.taskStatus(t, b.ID),
		"downstream reads the installed result even when the parent's write failed")
}

func TestProcessNodes_MissingRowAtPersistIsSwallowed(t *testing.T) {
	a := textNode()
	snap := graphSnapshot([]*models.Node{a}, nil)
	h := newHarness(t, snap)
	h.nodes.persistMissing[a.ID] = true

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	h.registry.Register(stub)

	h.run(t)

	assert.Equal(t, models.TaskCompleted, h.taskStatus(t, a.ID))
	row := h.tasks.lastRowFor(a.ID)
	assert.Nil(t, row.Error)
}

func TestProcessNodes_EmptyCanvas(t *testing.T) {
	h := newHarness(t, graphSnapshot(nil, nil))

	batch := h.run(t)

	assert.Empty(t, h.tasks.created)
	require.NotNil(t, batch.FinishedAt)
	assert.Contains(t, h.batches.finished, batch.ID)
}

func TestProcessNodes_PublishesProgressEvents(t *testing.T) {
	a, b := textNode(), textNode()
	snap := graphSnapshot([]*models.Node{a, b}, []*models.Edge{edgeBetween(a, b)})
	h := newHarness(t, snap)

	stub := &stubProcessor{nodeType: models.NodeTypeText}
	h.registry.Register(stub)

	batch := h.run(t)

	types := h.events.types()
	require.NotEmpty(t, types)
	assert.Equal(t, EventBatchStarted, types[0])
	assert.Equal(t, EventBatchCompleted, types[len(types)-1])

	started, completed := 0, 0
	for _, event := range h.events.events {
		assert.Equal(t, batch.ID, event.BatchID)
		switch event.Type {
		case EventNodeStarted:
			started++
		case EventNodeCompleted:
			completed++
		}
	}
	assert.Equal(t, 2, started)
	assert.Equal(t, 2, completed)

	for _, key := range h.events.keys {
		assert.Equal(t, "tester", key)
	}
}
