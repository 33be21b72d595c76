package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

// ImageResult is one candidate thumbnail.
type ImageResult struct {
	URL       string `json:"url"`
	Alt       string `json:"alt"`
	Source    string `json:"source"`
	SourceURL string `json:"sourceUrl"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	DisplayLink string `json:"displayLink"`
	Image       struct {
		ContextLink   string `json:"contextLink"`
		ThumbnailLink string `json:"thumbnailLink"`
	} `json:"image"`
}

func (i searchItem) imageURL() string {
	if i.Image.ThumbnailLink != "" {
		return i.Image.ThumbnailLink
	}
	return i.Link
}

// Validate rejects items with no usable image link.
func (i searchItem) Validate() error {
	return validation.Validate(i.imageURL(), validation.Required, is.URL)
}

func (i searchItem) result(query string) ImageResult {
	r := ImageResult{
		URL:       i.imageURL(),
		Alt:       i.Title,
		Source:    i.DisplayLink,
		SourceURL: i.Image.ContextLink,
	}
	if r.Alt == "" {
		r.Alt = "Image related to " + query
	}
	if r.Source == "" {
		r.Source = "Google Images"
	}
	if r.SourceURL == "" {
		r.SourceURL = i.Link
	}
	return r
}

// ImageSearcher finds thumbnails through Google Custom Search, falling back
// to a generated image when search is unconfigured or finds nothing.
type ImageSearcher struct {
	cfg      config.ImagesConfig
	client   *http.Client
	fallback *ImageGenerator
	logger   *slog.Logger
	warnOnce sync.Once
}

// NewImageSearcher creates a searcher. fallback may be nil.
func NewImageSearcher(cfg config.ImagesConfig, fallback *ImageGenerator, logger *slog.Logger) *ImageSearcher {
	return &ImageSearcher{
		cfg:      cfg,
		client:   &http.Client{Timeout: 30 * time.Second},
		fallback: fallback,
		logger:   logger.With("component", "image_searcher"),
	}
}

// Search returns up to count images for query (capped at 10).
func (s *ImageSearcher) Search(ctx context.Context, query string, count int) []ImageResult {
	count = min(max(count, 1), 10)
	if s.cfg.GoogleAPIKey == "" || s.cfg.GoogleSearchEngineID == "" {
		s.warnOnce.Do(func() {
			s.logger.Warn("image search not configured, falling back to AI generation",
				"error", &types.ConfigurationError{Setting: "GOOGLE_API_KEY/GOOGLE_SEARCH_ENGINE_ID", Capability: "image search"})
		})
		return s.generated(ctx, query)
	}

	items, err := s.query(ctx, query, count)
	if err != nil {
		var fe *types.FetchError
		if errors.As(err, &fe) && (fe.StatusCode == http.StatusForbidden || fe.StatusCode == http.StatusTooManyRequests) {
			s.logger.Warn("image search quota exceeded or rate limited, skipping", "status", fe.StatusCode)
		} else {
			s.logger.Error("image search failed", "query", query, "error", err)
		}
		return nil
	}

	results := make([]ImageResult, 0, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			s.logger.Debug("dropping search item", "title", item.Title, "error", err)
			continue
		}
		results = append(results, item.result(query))
		if len(results) == count {
			break
		}
	}

	if len(results) == 0 {
		s.logger.Info("no images found, falling back to AI generation", "query", query)
		return s.generated(ctx, query)
	}
	return results
}

// Thumbnail returns the best image URL for query, or "".
func (s *ImageSearcher) Thumbnail(ctx context.Context, query string) string {
	results := s.Search(ctx, query, 1)
	if len(results) == 0 {
		return ""
	}
	return results[0].URL
}

func (s *ImageSearcher) query(ctx context.Context, query string, count int) ([]searchItem, error) {
	params := url.Values{}
	params.Set("key", s.cfg.GoogleAPIKey)
	params.Set("cx", s.cfg.GoogleSearchEngineID)
	params.Set("q", query)
	params.Set("searchType", "image")
	params.Set("num", strconv.Itoa(count))

	endpoint := s.cfg.SearchEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &types.FetchError{URL: s.cfg.SearchEndpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &types.FetchError{
			URL:        s.cfg.SearchEndpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	var data searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return data.Items, nil
}

func (s *ImageSearcher) generated(ctx context.Context, query string) []ImageResult {
	if s.fallback == nil {
		return nil
	}
	u := s.fallback.GenerateURL(ctx, query)
	if u == "" {
		return nil
	}
	return []ImageResult{{
		URL:       u,
		Alt:       "AI-generated image for " + query,
		Source:    "OpenAI DALL-E",
		SourceURL: u,
	}}
}
