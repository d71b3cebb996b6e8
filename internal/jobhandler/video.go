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

const (
	minVideoDurationSec = 2
	maxVideoDurationSec = 30
)

// VideoInput is the caller-supplied payload for video_generation jobs.
type VideoInput struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"`
}

// VideoResult is the persisted result payload.
type VideoResult struct {
	Asset       AssetRef `json:"asset"`
	DurationSec int      `json:"duration_sec"`
}

// VideoHandler renders a single video through the provider. It is the
// longest-running handler and reports step-wise progress so pollers show
// movement during the render.
type VideoHandler struct {
	provider provider.GenerationProvider
	blobs    storage.BlobStore
	cost     int64
}

func NewVideoHandler(p provider.GenerationProvider, blobs storage.BlobStore, cost int64) *VideoHandler {
	return &VideoHandler{provider: p, blobs: blobs, cost: cost}
}

func (h *VideoHandler) Type() domain.JobType { return domain.JobTypeVideoGeneration }

func (h *VideoHandler) Cost(_ *domain.Job) int64 { return h.cost }

func (h *VideoHandler) Execute(ctx context.Context, task *engine.Task) ([]byte, error) {
	var input VideoInput
	if err := decodeInput(task.Job, &input); err != nil {
		return abort(ctx, task, "invalid input", err)
	}
	if input.Prompt == "" {
		return abort(ctx, task, "invalid input",
			fmt.Errorf("%w: prompt is required", domain.ErrValidation))
	}
	if input.DurationSec <= 0 {
		input.DurationSec = minVideoDurationSec
	}
	if input.DurationSec > maxVideoDurationSec {
		input.DurationSec = maxVideoDurationSec
	}

	if err := reportStep(ctx, task, 1, 10, "rendering video"); err != nil {
		return nil, err
	}
	asset, err := h.provider.GenerateVideo(ctx, provider.VideoRequest{
		Prompt:      input.Prompt,
		AspectRatio: input.AspectRatio,
		DurationSec: input.DurationSec,
		JobID:       task.Job.ID,
	})
	if err != nil {
		return abort(ctx, task, "provider failure",
			fmt.Errorf("generate video: %w", err))
	}

	if err := reportStep(ctx, task, 2, 80, "uploading video"); err != nil {
		return nil, err
	}
	key := assetKey(task.Job.ID, fmt.Sprintf("video.%s", extForMIME(asset.Format)))
	storedKey, err := h.blobs.Write(ctx, key, asset.Format, asset.Data)
	if err != nil {
		return abort(ctx, task, "upload failure",
			fmt.Errorf("%w: %v", domain.ErrUploadFailure, err))
	}

	result, err := json.Marshal(VideoResult{
		Asset: AssetRef{
			Key:    storedKey,
			Format: asset.Format,
			Width:  asset.Width,
			Height: asset.Height,
		},
		DurationSec: input.DurationSec,
	})
	if err != nil {
		return abort(ctx, task, "result encoding failure",
			fmt.Errorf("marshal result: %w", err))
	}
	return result, nil
}

// reportStep is the step-counted variant of report.
func reportStep(ctx context.Context, task *engine.Task, step, progress int, message string) error {
	err := task.ReportStep(ctx, step, progress, message)
	if err == nil {
		return nil
	}
	if engine.Cancelled(err) {
		if refundErr := task.RefundSpend(ctx, "job cancelled"); refundErr != nil {
			return fmt.Errorf("%w (additionally: %v)", err, refundErr)
		}
	}
	return err
}

var _ engine.Handler = (*VideoHandler)(nil)
