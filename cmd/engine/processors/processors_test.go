package processors

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framefold/canvas/cmd/engine/resolver"
	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/storage"
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

// fixture assembles the pieces every processor test needs: a store-backed
// resolver and an incrementally built snapshot.
type fixture struct {
	t        *testing.T
	logger   *testLogger
	store    *storage.MemoryStore
	resolver *resolver.Resolver
	snap     *models.CanvasSnapshot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := &testLogger{t: t}
	store := storage.NewMemoryStore()
	return &fixture{
		t:        t,
		logger:   logger,
		store:    store,
		resolver: resolver.New(store, logger),
		snap: &models.CanvasSnapshot{
			Canvas: &models.Canvas{ID: uuid.New(), UserID: "tester"},
		},
	}
}

func (f *fixture) addNode(nodeType models.NodeType, config string) *models.Node {
	node := &models.Node{
		ID:   uuid.New(),
		Type: nodeType,
		Name: string(nodeType),
	}
	if config != "" {
		node.Config = json.RawMessage(config)
	}
	f.snap.Nodes = append(f.snap.Nodes, node)
	return node
}

func (f *fixture) addHandle(node *models.Node, ht models.HandleType, dt models.DataType, label string, order int) *models.Handle {
	h := &models.Handle{
		ID:        uuid.New(),
		NodeID:    node.ID,
		Type:      ht,
		DataTypes: []models.DataType{dt},
		Label:     label,
		Order:     order,
	}
	f.snap.Handles = append(f.snap.Handles, h)
	return h
}

func (f *fixture) connect(src *models.Node, srcHandle *models.Handle, dst *models.Node, dstHandle *models.Handle) {
	f.snap.Edges = append(f.snap.Edges, &models.Edge{
		ID:             uuid.New(),
		Source:         src.ID,
		SourceHandleID: srcHandle.ID,
		Target:         dst.ID,
		TargetHandleID: dstHandle.ID,
	})
}

// addTextSource wires a completed text node into the target's input
func (f *fixture) addTextSource(value string, dst *models.Node, dstHandle *models.Handle) *models.Node {
	src := f.addNode(models.NodeTypeText, "")
	out := f.addHandle(src, models.HandleOutput, models.DataTypeText, "Text", 0)
	outID := out.ID
	src.Result = &models.NodeResult{
		Outputs: []models.Output{
			{Items: []models.OutputItem{{Type: models.DataTypeText, Data: value, OutputHandleID: &outID}}},
		},
	}
	f.connect(src, out, dst, dstHandle)
	return src
}

// addFileSource wires a completed file node holding a stored entity into the
// target's input
func (f *fixture) addFileSource(bucket, key string, data []byte, mime string, dst *models.Node, dstHandle *models.Handle) *models.Node {
	require.NoError(f.t, f.store.Put(context.Background(), bucket, key, data, mime))

	src := f.addNode(models.NodeTypeFile, "")
	out := f.addHandle(src, models.HandleOutput, models.DataTypeImage, "File", 0)
	outID := out.ID
	src.Result = &models.NodeResult{
		Outputs: []models.Output{
			{Items: []models.OutputItem{{
				Type: models.DataTypeImage,
				Data: &models.FileData{Entity: &models.FileEntity{
					Key:      key,
					Bucket:   bucket,
					MimeType: mime,
					Size:     int64(len(data)),
				}},
				OutputHandleID: &outID,
			}}},
		},
	}
	f.connect(src, out, dst, dstHandle)
	return src
}

func (f *fixture) input(node *models.Node) *Input {
	return &Input{Node: node, Snapshot: f.snap}
}

func singleItem(t *testing.T, res *Result) *models.OutputItem {
	t.Helper()
	require.True(t, res.Success, "unexpected failure: %s", res.Error)
	require.NotNil(t, res.NewResult)
	require.Len(t, res.NewResult.Outputs, 1)
	require.Len(t, res.NewResult.Outputs[0].Items, 1)
	return &res.NewResult.Outputs[0].Items[0]
}

func TestRegistry(t *testing.T) {
	logger := &testLogger{t: t}
	registry := NewRegistry(logger)

	registry.Register(NewTextProcessor(logger))

	p, ok := registry.Get(models.NodeTypeText)
	require.True(t, ok)
	assert.Equal(t, models.NodeTypeText, p.Type())

	_, ok = registry.Get(models.NodeTypeLLM)
	assert.False(t, ok)

	assert.Equal(t, []models.NodeType{models.NodeTypeText}, registry.Types())
}

func TestTextProcessor(t *testing.T) {
	f := newFixture(t)
	node := f.addNode(models.NodeTypeText, `{"text": "hello canvas"}`)
	out := f.addHandle(node, models.HandleOutput, models.DataTypeText, "Text", 0)

	res, err := NewTextProcessor(f.logger).Process(context.Background(), f.input(node))
	require.NoError(t, err)

	item := singleItem(t, res)
	text, ok := item.Text()
	require.True(t, ok)
	assert.Equal(t, "hello canvas", text)
	require.NotNil(t, item.OutputHandleID)
	assert.Equal(t, out.ID, *item.OutputHandleID)
}

func TestTextProcessor_EmptyConfig(t *testing.T) {
	f := newFixture(t)
	node := f.addNode(models.NodeTypeText, "")

	res, err := NewTextProcessor(f.logger).Process(context.Background(), f.input(node))
	require.NoError(t, err)

	item := singleItem(t, res)
	text, ok := item.Text()
	require.True(t, ok)
	assert.Empty(t, text, "unconfigured text node emits an empty string")
	assert.Nil(t, item.OutputHandleID, "no output handle on an unwired node")
}

func TestFileProcessor(t *testing.T) {
	f := newFixture(t)
	node := f.addNode(models.NodeTypeFile,
		`{"fileData": {"entity": {"key": "shoot/raw.png", "bucket": "uploads", "mimeType": "image/png", "size": 9}}}`)
	out := f.addHandle(node, models.HandleOutput, models.DataTypeImage, "File", 0)

	res, err := NewFileProcessor(f.logger).Process(context.Background(), f.input(node))
	require.NoError(t, err)

	item := singleItem(t, res)
	assert.Equal(t, models.DataTypeImage, item.Type)
	fd, ok := item.FileData()
	require.True(t, ok)
	require.NotNil(t, fd.Entity)
	assert.Equal(t, "shoot/raw.png", fd.Entity.Key)
	assert.Equal(t, "uploads", fd.Entity.Bucket)
	require.NotNil(t, item.OutputHandleID)
	assert.Equal(t, out.ID, *item.OutputHandleID)
}

func TestFileProcessor_DataTypeOverride(t *testing.T) {
	f := newFixture(t)
	node := f.addNode(models.NodeTypeFile,
		`{"fileData": {"entity": {"key": "clip.mp4", "bucket": "uploads"}}, "dataType": "Video"}`)

	res, err := NewFileProcessor(f.logger).Process(context.Background(), f.input(node))
	require.NoError(t, err)

	item := singleItem(t, res)
	assert.Equal(t, models.DataTypeVideo, item.Type)
}

func TestFileProcessor_NoAttachment(t *testing.T) {
	f := newFixture(t)
	node := f.addNode(models.NodeTypeFile, `{"dataType": "Image"}`)

	res, err := NewFileProcessor(f.logger).Process(context.Background(), f.input(node))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no file attached")
}

func TestFileProcessor_EmptyReference(t *testing.T) {
	f := newFixture(t)
	node := f.addNode(models.NodeTypeFile, `{"fileData": {}}`)

	res, err := NewFileProcessor(f.logger).Process(context.Background(), f.input(node))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "neither a stored entity nor process data")
}
