package processors

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/framefold/canvas/cmd/engine/resolver"
	"github.com/framefold/canvas/common/models"
)

// MediaOpProcessor wraps its image input in a deferred media operation.
// Nothing is rendered here: the node emits a virtual-media tree that grows
// one operation per hop, and whatever terminal consumes it decides when to
// materialise pixels. These nodes are transient, so the tree lives on the
// task row and dies with the batch.
type MediaOpProcessor struct {
	nodeType models.NodeType
	opName   string
	params   func(config json.RawMessage) map[string]any
	resolver *resolver.Resolver
	logger   Logger
}

// NewResizeProcessor creates the resize operation processor
func NewResizeProcessor(res *resolver.Resolver, logger Logger) *MediaOpProcessor {
	return &MediaOpProcessor{
		nodeType: models.NodeTypeResize,
		opName:   "resize",
		params:   resizeParams,
		resolver: res,
		logger:   logger,
	}
}

// NewCropProcessor creates the crop operation processor
func NewCropProcessor(res *resolver.Resolver, logger Logger) *MediaOpProcessor {
	return &MediaOpProcessor{
		nodeType: models.NodeTypeCrop,
		opName:   "crop",
		params:   cropParams,
		resolver: res,
		logger:   logger,
	}
}

// NewBlurProcessor creates the blur operation processor
func NewBlurProcessor(res *resolver.Resolver, logger Logger) *MediaOpProcessor {
	return &MediaOpProcessor{
		nodeType: models.NodeTypeBlur,
		opName:   "blur",
		params:   blurParams,
		resolver: res,
		logger:   logger,
	}
}

func (p *MediaOpProcessor) Type() models.NodeType {
	return p.nodeType
}

func (p *MediaOpProcessor) Process(ctx context.Context, in *Input) (*Result, error) {
	item, err := p.resolver.GetInputValue(in.Snapshot, in.Node.ID, true, resolver.InputFilter{
		DataType: models.DataTypeImage,
		Label:    "Image",
	})
	if err != nil {
		return nil, err
	}

	source, ok := virtualFromItem(item)
	if !ok {
		return Failure("%s node %s received a non-media input", p.nodeType, in.Node.ID), nil
	}

	tree := models.NewVirtualOperation(p.opName, p.params(in.Node.Config), source)

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

// virtualFromItem lifts an input item into the virtual-media domain: trees
// pass through, concrete files become source leaves.
func virtualFromItem(item *models.OutputItem) (*models.VirtualMedia, bool) {
	if vm, ok := item.VirtualMedia(); ok {
		return vm, true
	}
	if fd, ok := item.FileData(); ok {
		return models.NewVirtualSource(fd), true
	}
	return nil, false
}

func resizeParams(config json.RawMessage) map[string]any {
	params := map[string]any{}
	if w := gjson.GetBytes(config, "width"); w.Exists() {
		params["width"] = w.Int()
	}
	if h := gjson.GetBytes(config, "height"); h.Exists() {
		params["height"] = h.Int()
	}
	if fit := gjson.GetBytes(config, "fit").String(); fit != "" {
		params["fit"] = fit
	}
	return params
}

func cropParams(config json.RawMessage) map[string]any {
	params := map[string]any{
		"x": gjson.GetBytes(config, "x").Int(),
		"y": gjson.GetBytes(config, "y").Int(),
	}
	if w := gjson.GetBytes(config, "width"); w.Exists() {
		params["width"] = w.Int()
	}
	if h := gjson.GetBytes(config, "height"); h.Exists() {
		params["height"] = h.Int()
	}
	return params
}

func blurParams(config json.RawMessage) map[string]any {
	radius := gjson.GetBytes(config, "radius").Float()
	if radius <= 0 {
		radius = 8
	}
	return map[string]any{"radius": radius}
}
