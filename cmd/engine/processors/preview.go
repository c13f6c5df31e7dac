package processors

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/framefold/canvas/cmd/engine/resolver"
	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/storage"
)

// Media at or under this size is additionally inlined as a data URL so the
// client can render without a second fetch.
const inlineLimit = 256 << 10

// PreviewProcessor materialises its input into a directly displayable form
// on the task row. Text passes through; files are copied into temp storage
// with an optional inline data URL; virtual-media trees pass through for the
// client-side renderer. Transient by template, so nothing survives the batch.
type PreviewProcessor struct {
	resolver *resolver.Resolver
	store    storage.Store
	logger   Logger
}

// NewPreviewProcessor creates a preview processor
func NewPreviewProcessor(res *resolver.Resolver, store storage.Store, logger Logger) *PreviewProcessor {
	return &PreviewProcessor{
		resolver: res,
		store:    store,
		logger:   logger,
	}
}

func (p *PreviewProcessor) Type() models.NodeType {
	return models.NodeTypePreview
}

func (p *PreviewProcessor) Process(ctx context.Context, in *Input) (*Result, error) {
	item, err := p.resolver.GetInputValue(in.Snapshot, in.Node.ID, true, resolver.InputFilter{Label: "Media"})
	if err != nil {
		return nil, err
	}

	preview, err := p.previewItem(ctx, item)
	if err != nil {
		return nil, err
	}

	return Succeed(&models.NodeResult{
		Outputs: []models.Output{{Items: []models.OutputItem{*preview}}},
	}), nil
}

func (p *PreviewProcessor) previewItem(ctx context.Context, item *models.OutputItem) (*models.OutputItem, error) {
	if _, ok := item.Text(); ok {
		out := *item
		out.OutputHandleID = nil
		return &out, nil
	}

	if vm, ok := item.VirtualMedia(); ok {
		return &models.OutputItem{Type: item.Type, Data: vm}, nil
	}

	fd, ok := item.FileData()
	if !ok {
		return nil, fmt.Errorf("preview input is neither text nor media")
	}

	data, err := p.resolver.LoadMediaBuffer(ctx, fd)
	if err != nil {
		return nil, fmt.Errorf("failed to load preview media: %w", err)
	}
	mime, err := p.resolver.FileDataMimeType(ctx, fd)
	if err != nil {
		return nil, err
	}

	tempKey, err := p.store.PutTemp(ctx, data, mime)
	if err != nil {
		return nil, fmt.Errorf("failed to stage preview media: %w", err)
	}

	pd := &models.ProcessData{
		TempKey:  tempKey,
		MimeType: mime,
	}
	if len(data) <= inlineLimit {
		pd.DataURL = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
	}

	return &models.OutputItem{
		Type: item.Type,
		Data: &models.FileData{ProcessData: pd},
	}, nil
}
