package models

// FileData references media bytes either as a persisted object-storage entity
// or as a transient in-flight object (processData). Exactly one side is
// normally set; entity wins when both are.
type FileData struct {
	Entity      *FileEntity  `json:"entity,omitempty"`
	ProcessData *ProcessData `json:"processData,omitempty"`
}

// FileEntity is a persisted object-storage reference.
type FileEntity struct {
	Key      string `json:"key"`
	Bucket   string `json:"bucket"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ProcessData is a transient media reference produced mid-pipeline: the bytes
// live under TempKey in blob storage (or inline as a data URL) until some
// terminal node exports them.
type ProcessData struct {
	TempKey  string  `json:"tempKey,omitempty"`
	DataURL  string  `json:"dataUrl,omitempty"`
	MimeType string  `json:"mimeType,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// VirtualMedia kinds.
const (
	VirtualMediaSource    = "source"
	VirtualMediaOperation = "operation"
)

// VirtualMedia is a deferred media-transformation tree: leaves hold a source
// file, internal nodes hold an operation over their inputs. The engine treats
// the tree as opaque; rendering happens wherever the media pipeline runs.
type VirtualMedia struct {
	Kind      string          `json:"kind"`
	Source    *FileData       `json:"source,omitempty"`
	Operation *MediaOperation `json:"operation,omitempty"`
	Inputs    []*VirtualMedia `json:"inputs,omitempty"`
}

// MediaOperation names a transformation and its parameters.
type MediaOperation struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// NewVirtualSource wraps a file reference as a virtual-media leaf.
func NewVirtualSource(fd *FileData) *VirtualMedia {
	return &VirtualMedia{Kind: VirtualMediaSource, Source: fd}
}

// NewVirtualOperation wraps inputs under a named operation node.
func NewVirtualOperation(name string, params map[string]any, inputs ...*VirtualMedia) *VirtualMedia {
	return &VirtualMedia{
		Kind:      VirtualMediaOperation,
		Operation: &MediaOperation{Name: name, Params: params},
		Inputs:    inputs,
	}
}
