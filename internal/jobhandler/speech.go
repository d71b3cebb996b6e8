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

const maxSpeechTextLen = 8000

// SpeechInput is the caller-supplied payload for audio_generation jobs.
type SpeechInput struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// SpeechResult is the persisted result payload.
type SpeechResult struct {
	Asset AssetRef `json:"asset"`
	Voice string   `json:"voice,omitempty"`
}

// SpeechHandler synthesizes narration audio and stores the artifact.
type SpeechHandler struct {
	provider provider.GenerationProvider
	blobs    storage.BlobStore
	cost     int64
}

func NewSpeechHandler(p provider.GenerationProvider, blobs storage.BlobStore, cost int64) *SpeechHandler {
	return &SpeechHandler{provider: p, blobs: blobs, cost: cost}
}

func (h *SpeechHandler) Type() domain.JobType { return domain.JobTypeAudioGeneration }

func (h *SpeechHandler) Cost(_ *domain.Job) int64 { return h.cost }

func (h *SpeechHandler) Execute(ctx context.Context, task *engine.Task) ([]byte, error) {
	var input SpeechInput
	if err := decodeInput(task.Job, &input); err != nil {
		return abort(ctx, task, "invalid input", err)
	}
	if input.Text == "" {
		return abort(ctx, task, "invalid input",
			fmt.Errorf("%w: text is required", domain.ErrValidation))
	}
	if len(input.Text) > maxSpeechTextLen {
		return abort(ctx, task, "invalid input",
			fmt.Errorf("%w: text exceeds %d characters", domain.ErrValidation, maxSpeechTextLen))
	}

	if err := report(ctx, task, 10, "synthesizing speech"); err != nil {
		return nil, err
	}
	asset, err := h.provider.SynthesizeSpeech(ctx, provider.SpeechRequest{
		Text:  input.Text,
		Voice: input.Voice,
		JobID: task.Job.ID,
	})
	if err != nil {
		return abort(ctx, task, "provider failure",
			fmt.Errorf("synthesize speech: %w", err))
	}

	if err := report(ctx, task, 80, "uploading audio"); err != nil {
		return nil, err
	}
	key := assetKey(task.Job.ID, fmt.Sprintf("speech.%s", extForMIME(asset.Format)))
	storedKey, err := h.blobs.Write(ctx, key, asset.Format, asset.Data)
	if err != nil {
		return abort(ctx, task, "upload failure",
			fmt.Errorf("%w: %v", domain.ErrUploadFailure, err))
	}

	result, err := json.Marshal(SpeechResult{
		Asset: AssetRef{Key: storedKey, Format: asset.Format},
		Voice: input.Voice,
	})
	if err != nil {
		return abort(ctx, task, "result encoding failure",
			fmt.Errorf("marshal result: %w", err))
	}
	return result, nil
}

var _ engine.Handler = (*SpeechHandler)(nil)
