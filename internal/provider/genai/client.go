// Package genai implements provider.GenerationProvider against a Gemini-style
// generateContent API. Without an API key the client produces deterministic
// synthetic assets, which keeps the worker pipeline (claiming, billing,
// uploads, persistence) fully exercisable in local and CI environments.
package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"engine/internal/domain"
	"engine/internal/infra"
	"engine/internal/provider"
)

// Options controls client construction.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a lightweight facade over the generateContent endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     infra.Logger
}

// NewClient constructs a client with sane defaults. A nil HTTP client gets a
// reusable one with a generation-sized timeout.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	logger := infra.Logger(zerolog.New(io.Discard))
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// GenerateImages produces req.Quantity images.
func (c *Client) GenerateImages(ctx context.Context, req provider.ImageRequest) ([]provider.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	if c.apiKey == "" {
		return c.syntheticAssets("image/png", req.JobID, req.Prompt, quantity), nil
	}
	parts, err := c.generateContent(ctx, req.Prompt, quantity, "image/png")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	assets := decodeInlineAssets(parts, "image/")
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: response carried no image data", domain.ErrProviderFailure)
	}
	return assets, nil
}

// GenerateVideo produces a single video asset.
func (c *Client) GenerateVideo(ctx context.Context, req provider.VideoRequest) (*provider.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		assets := c.syntheticAssets("video/mp4", req.JobID, req.Prompt, 1)
		return &assets[0], nil
	}
	parts, err := c.generateContent(ctx, req.Prompt, 1, "video/mp4")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	assets := decodeInlineAssets(parts, "video/")
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: response carried no video data", domain.ErrProviderFailure)
	}
	return &assets[0], nil
}

// SynthesizeSpeech produces a single audio asset.
func (c *Client) SynthesizeSpeech(ctx context.Context, req provider.SpeechRequest) (*provider.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := req.Text
	if req.Voice != "" {
		prompt = fmt.Sprintf("[voice=%s] %s", req.Voice, req.Text)
	}
	if c.apiKey == "" {
		assets := c.syntheticAssets("audio/mpeg", req.JobID, prompt, 1)
		return &assets[0], nil
	}
	parts, err := c.generateContent(ctx, prompt, 1, "audio/mpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	assets := decodeInlineAssets(parts, "audio/")
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: response carried no audio data", domain.ErrProviderFailure)
	}
	return &assets[0], nil
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type generationConfig struct {
	CandidateCount   int    `json:"candidateCount,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

func (c *Client) generateContent(ctx context.Context, prompt string, candidates int, mime string) ([]part, error) {
	body, err := json.Marshal(generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			CandidateCount:   candidates,
			ResponseMimeType: mime,
		},
	})
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded generateContentResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<20)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := decoded.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("generateContent: %s", msg)
	}
	var parts []part
	for _, cand := range decoded.Candidates {
		parts = append(parts, cand.Content.Parts...)
	}
	return parts, nil
}

func decodeInlineAssets(parts []part, mimePrefix string) []provider.Asset {
	var assets []provider.Asset
	for _, p := range parts {
		if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MimeType, mimePrefix) {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil || len(data) == 0 {
			continue
		}
		assets = append(assets, provider.Asset{
			Format: p.InlineData.MimeType,
			Data:   data,
		})
	}
	return assets
}

// syntheticAssets derives stable placeholder bytes from the job id and
// prompt, so repeated runs of the same job produce identical artifacts.
func (c *Client) syntheticAssets(mime, jobID, prompt string, quantity int) []provider.Asset {
	c.logger.Debug().
		Str("model", c.model).
		Str("job_id", jobID).
		Msg("genai: api key missing, producing synthetic assets")
	assets := make([]provider.Asset, quantity)
	for i := 0; i < quantity; i++ {
		sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", c.model, jobID, prompt, i)))
		payload := []byte(fmt.Sprintf("synthetic %s asset %s #%d %s", mime, jobID, i+1, hex.EncodeToString(sum[:])))
		assets[i] = provider.Asset{Format: mime, Data: payload, Width: 1024, Height: 1024}
	}
	return assets
}

var _ provider.GenerationProvider = (*Client)(nil)
