package models

import (
	"github.com/google/uuid"
)

// HandleType distinguishes input ports from output ports.
type HandleType string

const (
	HandleInput  HandleType = "Input"
	HandleOutput HandleType = "Output"
)

// DataType is the semantic type carried across an edge.
type DataType string

const (
	DataTypeText    DataType = "Text"
	DataTypeNumber  DataType = "Number"
	DataTypeBoolean DataType = "Boolean"
	DataTypeImage   DataType = "Image"
	DataTypeVideo   DataType = "Video"
	DataTypeAudio   DataType = "Audio"
	DataTypeSVG     DataType = "SVG"
)

// Handle is a typed port on a node. Inputs sink edges, outputs source them.
// Order tie-breaks among multiple handles of the same direction on one node.
// Maps to: handle table
type Handle struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	NodeID    uuid.UUID  `db:"node_id" json:"nodeId"`
	Type      HandleType `db:"type" json:"type"`
	DataTypes []DataType `db:"data_types" json:"dataTypes"`
	Label     string     `db:"label" json:"label"`
	Order     int        `db:"sort_order" json:"order"`
	Required  bool       `db:"required" json:"required"`
}

// Accepts reports whether the handle carries the given data type.
func (h *Handle) Accepts(dt DataType) bool {
	for _, t := range h.DataTypes {
		if t == dt {
			return true
		}
	}
	return false
}

// Edge is a directed connection from an output handle to an input handle.
// Maps to: edge table
type Edge struct {
	ID             uuid.UUID `db:"id" json:"id"`
	CanvasID       uuid.UUID `db:"canvas_id" json:"canvasId"`
	Source         uuid.UUID `db:"source_node_id" json:"source"`
	SourceHandleID uuid.UUID `db:"source_handle_id" json:"sourceHandleId"`
	Target         uuid.UUID `db:"target_node_id" json:"target"`
	TargetHandleID uuid.UUID `db:"target_handle_id" json:"targetHandleId"`
}
