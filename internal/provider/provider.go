// Package provider defines the contract between job handlers and external
// generation services. Providers are opaque to the engine: handlers hand over
// a normalized request and receive raw asset bytes to upload.
package provider

import "context"

// ImageRequest describes a normalized image generation request.
type ImageRequest struct {
	Prompt      string
	Quantity    int
	AspectRatio string
	JobID       string
}

// VideoRequest describes a normalized video generation request.
type VideoRequest struct {
	Prompt      string
	AspectRatio string
	DurationSec int
	JobID       string
}

// SpeechRequest describes a normalized speech synthesis request.
type SpeechRequest struct {
	Text  string
	Voice string
	JobID string
}

// Asset is one generated artifact, owned by the caller.
type Asset struct {
	Format string // MIME type
	Data   []byte
	Width  int
	Height int
}

// GenerationProvider is the capability handlers call out to. Calls may block
// on the network; a call already in flight is not interrupted by job
// cancellation.
type GenerationProvider interface {
	GenerateImages(ctx context.Context, req ImageRequest) ([]Asset, error)
	GenerateVideo(ctx context.Context, req VideoRequest) (*Asset, error)
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) (*Asset, error)
}
