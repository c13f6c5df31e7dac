package processors

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/framefold/canvas/cmd/engine/resolver"
	"github.com/framefold/canvas/common/models"
)

// CompositorProcessor layers an arbitrary number of media inputs into one
// composite operation. Layers stack in handle order, first at the bottom;
// unconnected layer handles are simply skipped.
type CompositorProcessor struct {
	resolver *resolver.Resolver
	logger   Logger
}

// NewCompositorProcessor creates a compositor processor
func NewCompositorProcessor(res *resolver.Resolver, logger Logger) *CompositorProcessor {
	return &CompositorProcessor{resolver: res, logger: logger}
}

func (p *CompositorProcessor) Type() models.NodeType {
	return models.NodeTypeCompositor
}

func (p *CompositorProcessor) Process(ctx context.Context, in *Input) (*Result, error) {
	inputs, err := p.resolver.GetAllInputValuesWithHandle(in.Snapshot, in.Node.ID)
	if err != nil {
		return nil, err
	}

	var layers []*models.VirtualMedia
	for _, input := range inputs {
		if input.Value == nil {
			continue
		}
		layer, ok := virtualFromItem(input.Value)
		if !ok {
			label := ""
			if input.Handle != nil {
				label = input.Handle.Label
			}
			return Failure("compositor node %s received a non-media input on %q", in.Node.ID, label), nil
		}
		layers = append(layers, layer)
	}

	if len(layers) == 0 {
		return Failure("compositor node %s has no connected layers", in.Node.ID), nil
	}

	params := map[string]any{}
	if mode := gjson.GetBytes(in.Node.Config, "mode").String(); mode != "" {
		params["mode"] = mode
	}

	tree := models.NewVirtualOperation("composite", params, layers...)

	result := &models.NodeResult{
		Outputs: []models.Output{
			{Items: []models.OutputItem{{
				Type:           models.DataTypeImage,
				Data:           tree,
				OutputHandleID: outputHandleID(in.Snapshot, in.Node.ID),
			}}},
		},
	}
	return Succeed(result), nil
}
