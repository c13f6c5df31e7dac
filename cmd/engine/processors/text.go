package processors

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/framefold/canvas/common/models"
)

// TextProcessor emits the node's configured text verbatim. The simplest
// source node: no inputs, one Text output.
type TextProcessor struct {
	logger Logger
}

// NewTextProcessor creates a text processor
func NewTextProcessor(logger Logger) *TextProcessor {
	return &TextProcessor{logger: logger}
}

func (p *TextProcessor) Type() models.NodeType {
	return models.NodeTypeText
}

func (p *TextProcessor) Process(ctx context.Context, in *Input) (*Result, error) {
	text := gjson.GetBytes(in.Node.Config, "text").String()

	result := &models.NodeResult{
		Outputs: []models.Output{
			{Items: []models.OutputItem{{
				Type:           models.DataTypeText,
				Data:           text,
				OutputHandleID: outputHandleID(in.Snapshot, in.Node.ID),
			}}},
		},
	}
	return Succeed(result), nil
}
