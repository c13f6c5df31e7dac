package processors

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/framefold/canvas/cmd/engine/resolver"
	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/storage"
)

// ExportProcessor copies its input media into durable storage under a stable
// key and records the entity on the node. Virtual-media trees cannot be
// exported directly; a render step must sit between them and an export node.
type ExportProcessor struct {
	resolver *resolver.Resolver
	store    storage.Store
	bucket   string
	logger   Logger
}

// NewExportProcessor creates an export processor
func NewExportProcessor(res *resolver.Resolver, store storage.Store, bucket string, logger Logger) *ExportProcessor {
	return &ExportProcessor{
		resolver: res,
		store:    store,
		bucket:   bucket,
		logger:   logger,
	}
}

func (p *ExportProcessor) Type() models.NodeType {
	return models.NodeTypeExport
}

func (p *ExportProcessor) Process(ctx context.Context, in *Input) (*Result, error) {
	item, err := p.resolver.GetInputValue(in.Snapshot, in.Node.ID, true, resolver.InputFilter{Label: "Media"})
	if err != nil {
		return nil, err
	}

	if _, isVirtual := item.VirtualMedia(); isVirtual {
		return Failure("export node %s received an unrendered media tree", in.Node.ID), nil
	}
	fd, ok := item.FileData()
	if !ok {
		return Failure("export node %s received a non-media input", in.Node.ID), nil
	}

	data, err := p.resolver.LoadMediaBuffer(ctx, fd)
	if err != nil {
		return nil, fmt.Errorf("failed to load media for export: %w", err)
	}
	mime, err := p.resolver.FileDataMimeType(ctx, fd)
	if err != nil {
		return nil, err
	}

	key := gjson.GetBytes(in.Node.Config, "filename").String()
	if key == "" {
		key = uuid.NewString()
	}
	key = "exports/" + key

	if err := p.store.Put(ctx, p.bucket, key, data, mime); err != nil {
		return nil, fmt.Errorf("failed to export media: %w", err)
	}

	p.logger.Info("media exported", "node_id", in.Node.ID, "bucket", p.bucket, "key", key, "size", len(data))

	result := &models.NodeResult{
		Outputs: []models.Output{
			{Items: []models.OutputItem{{
				Type: item.Type,
				Data: &models.FileData{
					Entity: &models.FileEntity{
						Key:      key,
						Bucket:   p.bucket,
						MimeType: mime,
						Size:     int64(len(data)),
					},
				},
			}}},
		},
	}
	return Succeed(result), nil
}
