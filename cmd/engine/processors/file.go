package processors

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/framefold/canvas/common/models"
)

// FileProcessor surfaces an uploaded media file as a node output. The upload
// flow stores the bytes and writes the resulting entity reference into the
// node's config; this processor republishes it as a typed output item.
type FileProcessor struct {
	logger Logger
}

// NewFileProcessor creates a file processor
func NewFileProcessor(logger Logger) *FileProcessor {
	return &FileProcessor{logger: logger}
}

func (p *FileProcessor) Type() models.NodeType {
	return models.NodeTypeFile
}

func (p *FileProcessor) Process(ctx context.Context, in *Input) (*Result, error) {
	raw := gjson.GetBytes(in.Node.Config, "fileData")
	if !raw.Exists() {
		return Failure("file node %s has no file attached", in.Node.ID), nil
	}

	var fd models.FileData
	if err := json.Unmarshal([]byte(raw.Raw), &fd); err != nil {
		return Failure("file node %s has an unreadable file reference: %v", in.Node.ID, err), nil
	}
	if fd.Entity == nil && fd.ProcessData == nil {
		return Failure("file node %s references neither a stored entity nor process data", in.Node.ID), nil
	}

	dataType := models.DataType(gjson.GetBytes(in.Node.Config, "dataType").String())
	if dataType == "" {
		dataType = models.DataTypeImage
	}

	result := &models.NodeResult{
		Outputs: []models.Output{
			{Items: []models.OutputItem{{
				Type:           dataType,
				Data:           &fd,
				OutputHandleID: outputHandleID(in.Snapshot, in.Node.ID),
			}}},
		},
	}
	return Succeed(result), nil
}
