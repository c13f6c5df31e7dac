package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// NodeType is the closed set of node type tags. Each maps to exactly one
// registered processor; the set only grows at process start.
type NodeType string

const (
	NodeTypeText       NodeType = "text"
	NodeTypeFile       NodeType = "file"
	NodeTypeImageGen   NodeType = "image-gen"
	NodeTypeLLM        NodeType = "llm"
	NodeTypeResize     NodeType = "resize"
	NodeTypeCrop       NodeType = "crop"
	NodeTypeBlur       NodeType = "blur"
	NodeTypeCompositor NodeType = "compositor"
	NodeTypePreview    NodeType = "preview"
	NodeTypeExport     NodeType = "export"
)

// Node is a typed unit of work on a canvas.
// Maps to: node table
//
// Config is opaque to the engine: each node type has a config schema known
// only to its processor, which reads it with gjson. Result holds the last
// NodeResult a successful run produced (null until then). IsDirty is raised
// by the mutation API whenever config changes and cleared on the next
// successful execution; it drives the scheduler's skip rule.
type Node struct {
	ID       uuid.UUID       `db:"id" json:"id"`
	CanvasID uuid.UUID       `db:"canvas_id" json:"canvasId"`
	Type     NodeType        `db:"type" json:"type"`
	Name     string          `db:"name" json:"name"`
	Config   json.RawMessage `db:"config" json:"config,omitempty"`
	Result   *NodeResult     `db:"result" json:"result,omitempty"`
	IsDirty  bool            `db:"is_dirty" json:"isDirty"`

	// Template is attached by the snapshot loader from the static catalog.
	Template *NodeTemplate `db:"-" json:"template,omitempty"`
}
