package jobhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"engine/internal/domain"
	"engine/internal/engine"
	"engine/internal/provider"
	"engine/internal/storage"
)

const maxImagesPerJob = 4

// ImageInput is the caller-supplied payload for image_generation jobs.
type ImageInput struct {
	Prompt      string `json:"prompt"`
	Quantity    int    `json:"quantity,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// ImageResult is the persisted result payload.
type ImageResult struct {
	Assets []AssetRef `json:"assets"`
}

// ImageHandler generates images via the provider and stores each asset.
type ImageHandler struct {
	provider provider.GenerationProvider
	blobs    storage.BlobStore
	cost     int64
}

func NewImageHandler(p provider.GenerationProvider, blobs storage.BlobStore, cost int64) *ImageHandler {
	return &ImageHandler{provider: p, blobs: blobs, cost: cost}
}

func (h *ImageHandler) Type() domain.JobType { return domain.JobTypeImageGeneration }

func (h *ImageHandler) Cost(_ *domain.Job) int64 { return h.cost }

func (h *ImageHandler) Execute(ctx context.Context, task *engine.Task) ([]byte, error) {
	var input ImageInput
	if err := decodeInput(task.Job, &input); err != nil {
		return abort(ctx, task, "invalid input", err)
	}
	if input.Prompt == "" {
		return abort(ctx, task, "invalid input",
			fmt.Errorf("%w: prompt is required", domain.ErrValidation))
	}
	if input.Quantity <= 0 {
		input.Quantity = 1
	}
	if input.Quantity > maxImagesPerJob {
		input.Quantity = maxImagesPerJob
	}

	if err := report(ctx, task, 10, "generating images"); err != nil {
		return nil, err
	}
	assets, err := h.provider.GenerateImages(ctx, provider.ImageRequest{
		Prompt:      input.Prompt,
		Quantity:    input.Quantity,
		AspectRatio: input.AspectRatio,
		JobID:       task.Job.ID,
	})
	if err != nil {
		return abort(ctx, task, "provider failure",
			fmt.Errorf("generate images: %w", err))
	}

	if err := report(ctx, task, 70, "uploading assets"); err != nil {
		return nil, err
	}
	refs := make([]AssetRef, 0, len(assets))
	for i, asset := range assets {
		key := assetKey(task.Job.ID, fmt.Sprintf("image_%d.%s", i+1, extForMIME(asset.Format)))
		storedKey, err := h.blobs.Write(ctx, key, asset.Format, asset.Data)
		if err != nil {
			return abort(ctx, task, "upload failure",
				fmt.Errorf("%w: %v", domain.ErrUploadFailure, err))
		}
		refs = append(refs, AssetRef{
			Key:    storedKey,
			Format: asset.Format,
			Width:  asset.Width,
			Height: asset.Height,
		})
	}

	result, err := json.Marshal(ImageResult{Assets: refs})
	if err != nil {
		return abort(ctx, task, "result encoding failure",
			fmt.Errorf("marshal result: %w", err))
	}
	return result, nil
}

var _ engine.Handler = (*ImageHandler)(nil)
