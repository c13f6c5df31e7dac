package processors

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	"github.com/framefold/canvas/cmd/engine/resolver"
	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/storage"
)

// ImageCreator is the slice of the OpenAI client the image processor uses
type ImageCreator interface {
	CreateImage(ctx context.Context, request openai.ImageRequest) (openai.ImageResponse, error)
}

// ImageClientFactory builds an image client for a caller's API key
type ImageClientFactory func(apiKey string) ImageCreator

// OpenAIImageFactory returns a factory producing real OpenAI clients
func OpenAIImageFactory(baseURL string) ImageClientFactory {
	return func(apiKey string) ImageCreator {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		return openai.NewClientWithConfig(cfg)
	}
}

// ImageGenProcessor renders images from the resolved prompt. Each requested
// variant becomes its own output, so downstream nodes follow the node's
// selectedOutputIndex to the variant the user picked. Bytes land in the
// persisted bucket; the result references them as entities.
type ImageGenProcessor struct {
	resolver    *resolver.Resolver
	store       storage.Store
	bucket      string
	newClient   ImageClientFactory
	fallbackKey string
	logger      Logger
}

// NewImageGenProcessor creates an image generation processor
func NewImageGenProcessor(res *resolver.Resolver, store storage.Store, bucket string, factory ImageClientFactory, fallbackKey string, logger Logger) *ImageGenProcessor {
	return &ImageGenProcessor{
		resolver:    res,
		store:       store,
		bucket:      bucket,
		newClient:   factory,
		fallbackKey: fallbackKey,
		logger:      logger,
	}
}

func (p *ImageGenProcessor) Type() models.NodeType {
	return models.NodeTypeImageGen
}

func (p *ImageGenProcessor) Process(ctx context.Context, in *Input) (*Result, error) {
	promptItem, err := p.resolver.GetInputValue(in.Snapshot, in.Node.ID, true, resolver.InputFilter{
		DataType: models.DataTypeText,
		Label:    "Prompt",
	})
	if err != nil {
		return nil, err
	}
	prompt, ok := promptItem.Text()
	if !ok {
		return Failure("image-gen node %s received a non-text prompt", in.Node.ID), nil
	}

	apiKey := in.Snapshot.APIKey
	if apiKey == "" {
		apiKey = p.fallbackKey
	}
	if apiKey == "" {
		return Failure("image-gen node %s has no API key to call the model with", in.Node.ID), nil
	}

	model := gjson.GetBytes(in.Node.Config, "model").String()
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	size := gjson.GetBytes(in.Node.Config, "size").String()
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}
	variants := int(gjson.GetBytes(in.Node.Config, "variants").Int())
	if variants < 1 {
		variants = 1
	}
	if variants > 4 {
		variants = 4
	}

	client := p.newClient(apiKey)
	handleID := outputHandleID(in.Snapshot, in.Node.ID)

	outputs := make([]models.Output, 0, variants)
	for i := 0; i < variants; i++ {
		resp, err := client.CreateImage(ctx, openai.ImageRequest{
			Prompt:         prompt,
			Model:          model,
			N:              1,
			Size:           size,
			ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		})
		if err != nil {
			return nil, fmt.Errorf("image generation failed: %w", err)
		}
		if len(resp.Data) == 0 {
			return Failure("image-gen node %s received an empty image response", in.Node.ID), nil
		}

		data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode generated image: %w", err)
		}

		key := fmt.Sprintf("generated/%s.png", uuid.NewString())
		if err := p.store.Put(ctx, p.bucket, key, data, "image/png"); err != nil {
			return nil, fmt.Errorf("failed to store generated image: %w", err)
		}

		outputs = append(outputs, models.Output{
			Items: []models.OutputItem{{
				Type: models.DataTypeImage,
				Data: &models.FileData{
					Entity: &models.FileEntity{
						Key:      key,
						Bucket:   p.bucket,
						MimeType: "image/png",
						Size:     int64(len(data)),
					},
				},
				OutputHandleID: handleID,
			}},
		})

		p.logger.Debug("image variant stored", "node_id", in.Node.ID, "variant", i, "key", key, "size", len(data))
	}

	return Succeed(&models.NodeResult{Outputs: outputs}), nil
}
