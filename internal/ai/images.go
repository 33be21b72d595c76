package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // DALL-E returns PNG
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/retry"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

const (
	newsPhotoPrompt = "Professional news photography: %s. Photorealistic, high quality, journalistic style."
	thumbnailPrompt = "A high-quality, professional image representing: %s"

	maxImageBytes = 20 << 20
)

// GeneratedImage is a downloaded generated image.
type GeneratedImage struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// ImageOption configures the ImageGenerator.
type ImageOption func(*ImageGenerator)

// WithSleep replaces the backoff timer, for tests.
func WithSleep(fn retry.SleepFunc) ImageOption {
	return func(g *ImageGenerator) { g.policy.Sleep = fn }
}

// WithHTTPClient sets the client used for the API and image downloads.
func WithHTTPClient(c *http.Client) ImageOption {
	return func(g *ImageGenerator) { g.client = c }
}

// ImageGenerator calls the OpenAI images API (DALL-E 3).
type ImageGenerator struct {
	cfg      config.ImagesConfig
	apiKey   string
	client   *http.Client
	policy   retry.Policy
	logger   *slog.Logger
	warnOnce sync.Once
	width    int
	height   int
}

// NewImageGenerator creates an image generator. An empty apiKey disables
// generation; calls then return nil after a single warning.
func NewImageGenerator(cfg config.ImagesConfig, apiKey string, logger *slog.Logger, opts ...ImageOption) *ImageGenerator {
	g := &ImageGenerator{
		cfg:    cfg,
		apiKey: apiKey,
		client: &http.Client{Timeout: 120 * time.Second},
		policy: retry.Policy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			Multiplier: 2,
			Retryable:  types.IsRateLimited,
		},
		logger: logger.With("component", "image_generator"),
		width:  1024,
		height: 1024,
	}
	if _, err := fmt.Sscanf(cfg.Size, "%dx%d", &g.width, &g.height); err != nil {
		g.width, g.height = 1024, 1024
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate creates a news-style image for prompt and downloads it. It
// returns nil when generation is unavailable, blocked, or keeps failing.
func (g *ImageGenerator) Generate(ctx context.Context, prompt string) *GeneratedImage {
	url := g.generateURL(ctx, fmt.Sprintf(newsPhotoPrompt, prompt))
	if url == "" {
		return nil
	}

	// Generated URLs expire, so the bytes are fetched right away.
	data, err := g.download(ctx, url)
	if err != nil {
		g.logger.Error("image download failed", "error", err)
		return nil
	}

	g.logger.Info("image generated", "bytes", len(data))
	return &GeneratedImage{
		Data:     data,
		MimeType: "image/png",
		Width:    g.width,
		Height:   g.height,
	}
}

// GenerateURL returns the URL of an image representing query, for use as a
// thumbnail when search finds nothing.
func (g *ImageGenerator) GenerateURL(ctx context.Context, query string) string {
	return g.generateURL(ctx, fmt.Sprintf(thumbnailPrompt, query))
}

func (g *ImageGenerator) generateURL(ctx context.Context, prompt string) string {
	if g.apiKey == "" {
		g.warnOnce.Do(func() {
			g.logger.Warn("image generation disabled",
				"error", &types.ConfigurationError{Setting: "OPENAI_API_KEY", Capability: "image generation"})
		})
		return ""
	}

	url, err := retry.Value(ctx, g.policy, func(ctx context.Context, attempt int) (string, error) {
		if attempt > 0 {
			g.logger.Warn("retrying image generation after rate limit", "attempt", attempt)
		}
		return g.requestImage(ctx, prompt)
	})
	switch {
	case err == nil:
		return url
	case types.IsContentPolicy(err):
		g.logger.Warn("image generation blocked by content filter", "prompt", clip(prompt, 100))
	case errors.Is(err, retry.ErrExhausted):
		g.logger.Error("image generation rate limited, giving up", "retries", g.policy.MaxRetries, "error", err)
	default:
		g.logger.Error("image generation failed", "error", err)
	}
	return ""
}

func (g *ImageGenerator) requestImage(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":           g.cfg.Model,
		"prompt":          prompt,
		"n":               1,
		"size":            g.cfg.Size,
		"quality":         "standard",
		"response_format": "url",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(g.cfg.OpenAIEndpoint, "/") + "/images/generations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &types.GenerationError{Op: "dall-e", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classifyHTTP("dall-e", resp.StatusCode, raw)
	}

	var result struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &types.GenerationError{Op: "dall-e", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return "", &types.GenerationError{Op: "dall-e", Err: errors.New("no image URL returned")}
	}
	return result.Data[0].URL, nil
}

func (g *ImageGenerator) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, types.ErrEmptyResponse
	}
	return data, nil
}

// ToJPEG re-encodes an image as JPEG at the given quality. The input is
// returned unchanged if it cannot be decoded or encoded.
func ToJPEG(data []byte, quality int, logger *slog.Logger) []byte {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		logger.Warn("jpeg conversion failed, keeping original", "error", err)
		return data
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		logger.Warn("jpeg conversion failed, keeping original", "error", err)
		return data
	}

	logger.Debug("converted image to jpeg", "from_bytes", len(data), "to_bytes", buf.Len())
	return buf.Bytes()
}
