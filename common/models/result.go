package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NodeResult is what a processor produces: one or more candidate outputs
// (variants), of which SelectedOutputIndex marks the one downstream nodes
// consume. Results round-trip through jsonb columns, so Data values read
// back as decoded JSON (map[string]any, float64, ...) rather than the
// concrete Go types the processor emitted; the accessors below handle both.
type NodeResult struct {
	Outputs             []Output `json:"outputs"`
	SelectedOutputIndex int      `json:"selectedOutputIndex"`
}

// Output is one variant: the set of items a node emits on one pass.
type Output struct {
	Items []OutputItem `json:"items"`
}

// OutputItem is a single typed value. OutputHandleID names the output handle
// the item belongs to; resolution matches it against an edge's sourceHandleId.
type OutputItem struct {
	Type           DataType   `json:"type"`
	Data           any        `json:"data"`
	OutputHandleID *uuid.UUID `json:"outputHandleId,omitempty"`
}

// SelectedOutput returns the output variant downstream nodes consume, or nil
// when the index is out of range.
func (r *NodeResult) SelectedOutput() *Output {
	if r == nil || len(r.Outputs) == 0 {
		return nil
	}
	idx := r.SelectedOutputIndex
	if idx < 0 || idx >= len(r.Outputs) {
		return nil
	}
	return &r.Outputs[idx]
}

// Clone deep-copies the result via a JSON round-trip. Installed results must
// not alias the processor's own value, which it may keep mutating.
func (r *NodeResult) Clone() (*NodeResult, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node result: %w", err)
	}
	var out NodeResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node result: %w", err)
	}
	return &out, nil
}

// IsEmpty reports whether the item carries no usable value.
func (i *OutputItem) IsEmpty() bool {
	return i == nil || i.Data == nil
}

// Text returns the item's data as a string.
func (i *OutputItem) Text() (string, bool) {
	if i == nil {
		return "", false
	}
	s, ok := i.Data.(string)
	return s, ok
}

// Number returns the item's data as a float64 (the JSON number type).
func (i *OutputItem) Number() (float64, bool) {
	if i == nil {
		return 0, false
	}
	switch v := i.Data.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Bool returns the item's data as a boolean.
func (i *OutputItem) Bool() (bool, bool) {
	if i == nil {
		return false, false
	}
	b, ok := i.Data.(bool)
	return b, ok
}

// FileData returns the item's data as a FileData, re-decoding a JSON map
// when the item came back from storage.
func (i *OutputItem) FileData() (*FileData, bool) {
	if i == nil || i.Data == nil {
		return nil, false
	}
	switch v := i.Data.(type) {
	case *FileData:
		return v, true
	case FileData:
		return &v, true
	case map[string]any:
		if _, isVirtual := v["kind"]; isVirtual {
			return nil, false
		}
		var fd FileData
		if err := redecode(v, &fd); err != nil {
			return nil, false
		}
		if fd.Entity == nil && fd.ProcessData == nil {
			return nil, false
		}
		return &fd, true
	}
	return nil, false
}

// VirtualMedia returns the item's data as a virtual-media tree, re-decoding
// a JSON map when the item came back from storage.
func (i *OutputItem) VirtualMedia() (*VirtualMedia, bool) {
	if i == nil || i.Data == nil {
		return nil, false
	}
	switch v := i.Data.(type) {
	case *VirtualMedia:
		return v, true
	case VirtualMedia:
		return &v, true
	case map[string]any:
		if _, isVirtual := v["kind"]; !isVirtual {
			return nil, false
		}
		var vm VirtualMedia
		if err := redecode(v, &vm); err != nil {
			return nil, false
		}
		return &vm, true
	}
	return nil, false
}

// redecode converts a decoded-JSON value into a concrete type by
// round-tripping through json.
func redecode(from any, to any) error {
	raw, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, to)
}
