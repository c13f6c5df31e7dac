package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	before := float64(time.Now().UnixNano()) / 1e9
	ev := NewEvent("user")
	after := float64(time.Now().UnixNano()) / 1e9

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "user", ev.Author)
	assert.GreaterOrEqual(t, ev.Timestamp, before)
	assert.LessOrEqual(t, ev.Timestamp, after)
	assert.Nil(t, ev.Actions.StateDelta)
}

func TestApplyDelta_FoldsInOrder(t *testing.T) {
	state := map[string]interface{}{}

	applyDelta(state, map[string]interface{}{"mood": "drafting", "turns": float64(1)})
	applyDelta(state, map[string]interface{}{"mood": "rendering"})
	applyDelta(state, map[string]interface{}{"turns": float64(2)})

	assert.Equal(t, "rendering", state["mood"], "later deltas win")
	assert.Equal(t, float64(2), state["turns"])
}

func TestApplyDelta_TombstoneDeletes(t *testing.T) {
	state := map[string]interface{}{"draft": "v1", "keep": true}

	applyDelta(state, map[string]interface{}{"draft": Tombstone()})

	_, exists := state["draft"]
	assert.False(t, exists)
	assert.Equal(t, true, state["keep"])
}

func TestApplyDelta_TombstoneThenRewrite(t *testing.T) {
	state := map[string]interface{}{"draft": "v1"}

	applyDelta(state, map[string]interface{}{"draft": Tombstone()})
	applyDelta(state, map[string]interface{}{"draft": "v2"})

	assert.Equal(t, "v2", state["draft"])
}

func TestIsTombstone(t *testing.T) {
	assert.True(t, isTombstone(Tombstone()))

	// Shapes that merely resemble a tombstone are stored as values
	assert.False(t, isTombstone(nil))
	assert.False(t, isTombstone("__del__"))
	assert.False(t, isTombstone(map[string]interface{}{"__del__": false}))
	assert.False(t, isTombstone(map[string]interface{}{"__del__": "true"}))
	assert.False(t, isTombstone(map[string]interface{}{"other": true}))
}

func TestApplyDelta_NearTombstoneIsStored(t *testing.T) {
	state := map[string]interface{}{}
	value := map[string]interface{}{"__del__": false}

	applyDelta(state, map[string]interface{}{"flag": value})

	require.Contains(t, state, "flag")
	assert.Equal(t, value, state["flag"])
}
