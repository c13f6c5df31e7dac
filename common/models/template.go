package models

// NodeTemplate describes the static shape of a node type: which handles a
// node of that type carries, whether its output is persisted to the node row
// (transient nodes persist to the task row only), and whether it terminates a
// pipeline. Templates ship with the engine as an embedded catalog and never
// change at runtime.
type NodeTemplate struct {
	Type        NodeType     `yaml:"type" json:"type"`
	Name        string       `yaml:"name" json:"name"`
	IsTransient bool         `yaml:"isTransient" json:"isTransient"`
	IsTerminal  bool         `yaml:"isTerminal" json:"isTerminal"`
	Handles     []HandleSpec `yaml:"handles" json:"handles"`
}

// HandleSpec is the template-side description of a handle; concrete Handle
// rows are stamped from it when a node is added to a canvas.
type HandleSpec struct {
	Type      HandleType `yaml:"type" json:"type"`
	DataTypes []DataType `yaml:"dataTypes" json:"dataTypes"`
	Label     string     `yaml:"label" json:"label"`
	Order     int        `yaml:"order" json:"order"`
	Required  bool       `yaml:"required" json:"required"`
}
