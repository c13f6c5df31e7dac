package validation

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addNodeOp(nodeType string) map[string]interface{} {
	return map[string]interface{}{
		"op":   "add",
		"path": "/nodes/-",
		"value": map[string]interface{}{
			"id":   uuid.NewString(),
			"type": nodeType,
			"name": nodeType,
		},
	}
}

func TestValidateOperations_AcceptsTypicalPatch(t *testing.T) {
	v := NewPatchValidator()

	ops := []map[string]interface{}{
		{"op": "replace", "path": "/name", "value": "renamed"},
		addNodeOp("text"),
		{"op": "add", "path": "/edges/-", "value": map[string]interface{}{"id": uuid.NewString()}},
		{"op": "replace", "path": "/handles/0/label", "value": "prompt"},
		{"op": "remove", "path": "/nodes/2"},
	}

	require.NoError(t, v.ValidateOperations(ops))
}

func TestValidateOperations_PathWhitelist(t *testing.T) {
	v := NewPatchValidator()

	allowed := []string{"/name", "/nodes", "/nodes/-", "/nodes/0/config", "/edges/3", "/handles/1/label"}
	for _, path := range allowed {
		ops := []map[string]interface{}{{"op": "remove", "path": path}}
		assert.NoError(t, v.ValidateOperations(ops), "path %s should be patchable", path)
	}

	blocked := []string{"/id", "/results", "/nodesextra", "/namespace", "", "nodes"}
	for _, path := range blocked {
		ops := []map[string]interface{}{{"op": "remove", "path": path}}
		err := v.ValidateOperations(ops)
		require.Error(t, err, "path %q should be rejected", path)
		assert.Contains(t, err.Error(), "not patchable")
	}
}

func TestValidateOperations_RejectsMalformedOps(t *testing.T) {
	v := NewPatchValidator()

	cases := []struct {
		name    string
		op      map[string]interface{}
		wantErr string
	}{
		{
			name:    "missing op",
			op:      map[string]interface{}{"path": "/name", "value": "x"},
			wantErr: "missing or invalid 'op'",
		},
		{
			name:    "op wrong type",
			op:      map[string]interface{}{"op": 7, "path": "/name"},
			wantErr: "missing or invalid 'op'",
		},
		{
			name:    "missing path",
			op:      map[string]interface{}{"op": "replace", "value": "x"},
			wantErr: "missing or invalid 'path'",
		},
		{
			name:    "unsupported op",
			op:      map[string]interface{}{"op": "move", "path": "/nodes/0", "from": "/nodes/1"},
			wantErr: "unsupported operation type",
		},
		{
			name:    "add without value",
			op:      map[string]interface{}{"op": "add", "path": "/nodes/-"},
			wantErr: "'value' required",
		},
		{
			name:    "replace without value",
			op:      map[string]interface{}{"op": "replace", "path": "/name"},
			wantErr: "'value' required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateOperations([]map[string]interface{}{tc.op})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
			assert.Contains(t, err.Error(), "operation 0")
		})
	}
}

func TestValidateOperations_ReportsOffendingIndex(t *testing.T) {
	v := NewPatchValidator()

	ops := []map[string]interface{}{
		{"op": "replace", "path": "/name", "value": "ok"},
		{"op": "remove", "path": "/results"},
	}

	err := v.ValidateOperations(ops)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation 1")
}

func TestValidateOperations_NodeValueShape(t *testing.T) {
	v := NewPatchValidator()

	cases := []struct {
		name    string
		value   interface{}
		wantErr string
	}{
		{
			name:    "value not an object",
			value:   "text",
			wantErr: "must be an object",
		},
		{
			name:    "missing id",
			value:   map[string]interface{}{"type": "text"},
			wantErr: "'id' field",
		},
		{
			name:    "id not a string",
			value:   map[string]interface{}{"id": 42, "type": "text"},
			wantErr: "'id' field",
		},
		{
			name:    "missing type",
			value:   map[string]interface{}{"id": uuid.NewString()},
			wantErr: "'type' field",
		},
		{
			name:    "config as array",
			value:   map[string]interface{}{"id": uuid.NewString(), "type": "text", "config": []interface{}{"text"}},
			wantErr: "'config' must be an object",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ops := []map[string]interface{}{{"op": "add", "path": "/nodes/-", "value": tc.value}}
			err := v.ValidateOperations(ops)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateOperations_NodeConfigOptional(t *testing.T) {
	v := NewPatchValidator()

	op := addNodeOp("text")
	delete(op["value"].(map[string]interface{}), "config")

	require.NoError(t, v.ValidateOperations([]map[string]interface{}{op}))
}

func TestValidateOperations_GenerativeCap(t *testing.T) {
	v := NewPatchValidator()

	// Five generative adds pass, even mixed with non-generative ones
	ops := make([]map[string]interface{}, 0, 8)
	for i := 0; i < 3; i++ {
		ops = append(ops, addNodeOp("image-gen"))
	}
	for i := 0; i < 2; i++ {
		ops = append(ops, addNodeOp("llm"))
	}
	ops = append(ops, addNodeOp("text"), addNodeOp("resize"), addNodeOp("blur"))
	require.NoError(t, v.ValidateOperations(ops))

	// A sixth pushes the patch over the cap
	ops = append(ops, addNodeOp("llm"))
	err := v.ValidateOperations(ops)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("more than %d generative nodes", 5))
	assert.Contains(t, err.Error(), "attempted: 6")
}

func TestValidateOperations_ReplaceDoesNotCountTowardCap(t *testing.T) {
	v := NewPatchValidator()

	// Replacing existing generative nodes is not an addition
	ops := make([]map[string]interface{}, 0, 7)
	for i := 0; i < 7; i++ {
		ops = append(ops, map[string]interface{}{
			"op":   "replace",
			"path": fmt.Sprintf("/nodes/%d/config", i),
			"value": map[string]interface{}{
				"type":  "llm",
				"model": "gpt-4o",
			},
		})
	}

	require.NoError(t, v.ValidateOperations(ops))
}
