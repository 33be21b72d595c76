// Package video builds the short-feed cards derived from stored records and
// runs the retroactive job that backfills them.
package video

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/IshaanNene/CivicScrape/internal/ai"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/observability"
)

const jpegMime = "image/jpeg"

// Store is the slice of storage.Store videos need.
type Store interface {
	FindWithoutVideos(ctx context.Context, kind content.Kind, limit int, stale bool) ([]*content.Stored, error)
	VideoSourceHash(ctx context.Context, kind content.Kind, contentID string) (string, bool, error)
	UpsertVideo(ctx context.Context, v *content.Video) error
}

// MarketingWriter produces feed copy. It never fails.
type MarketingWriter interface {
	Write(ctx context.Context, title, body, label string) ai.MarketingCopy
}

// ImageGenerator renders an image for a prompt, or returns nil.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) *ai.GeneratedImage
}

// Generator builds and stores one video per record.
type Generator struct {
	store       Store
	marketing   MarketingWriter
	images      ImageGenerator
	metrics     *observability.RunMetrics
	jpegQuality int
	logger      *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithRand fixes the engagement source, for tests.
func WithRand(r *rand.Rand) GeneratorOption {
	return func(g *Generator) { g.rng = r }
}

// NewGenerator creates a video generator. images may be nil, in which case
// videos are stored without image data.
func NewGenerator(store Store, marketing MarketingWriter, images ImageGenerator, metrics *observability.RunMetrics, jpegQuality int, logger *slog.Logger, opts ...GeneratorOption) *Generator {
	if metrics == nil {
		metrics = observability.NewRunMetrics(logger, nil)
	}
	if jpegQuality <= 0 {
		jpegQuality = 85
	}
	g := &Generator{
		store:       store,
		marketing:   marketing,
		images:      images,
		metrics:     metrics,
		jpegQuality: jpegQuality,
		logger:      logger.With("component", "video_generator"),
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate writes the video for st unless one already exists for the
// record's current hash. It reports whether a video was written.
func (g *Generator) Generate(ctx context.Context, st *content.Stored) (bool, error) {
	logger := g.logger.With("kind", st.Kind, "id", st.ID)

	prev, found, err := g.store.VideoSourceHash(ctx, st.Kind, st.ID)
	if err != nil {
		return false, err
	}
	if found && prev == st.ContentHash {
		logger.Debug("video unchanged, skipping")
		g.metrics.VideosSkipped.Add(1)
		return false, nil
	}

	desc, err := content.Describe(st.Kind)
	if err != nil {
		return false, err
	}

	mc := g.marketing.Write(ctx, st.Title, st.FullText, desc.Label)
	v := &content.Video{
		ContentType:       st.Kind,
		ContentID:         st.ID,
		Title:             mc.Title,
		Description:       mc.Description,
		ImageMimeType:     jpegMime,
		ThumbnailURL:      st.ThumbnailURL,
		Author:            st.Author,
		Engagement:        g.engagement(),
		SourceContentHash: st.ContentHash,
	}

	if g.images != nil {
		if img := g.images.Generate(ctx, mc.ImagePrompt); img != nil {
			data := ai.ToJPEG(img.Data, g.jpegQuality, logger)
			if bytes.Equal(data, img.Data) {
				v.ImageMimeType = img.MimeType
			}
			v.ImageData = data
			v.ImageWidth = img.Width
			v.ImageHeight = img.Height
		}
	}

	if err := g.store.UpsertVideo(ctx, v); err != nil {
		return false, err
	}

	g.metrics.VideosGenerated.Add(1)
	logger.Info("video generated", "title", v.Title, "image_bytes", len(v.ImageData), "regenerated", found)
	return true, nil
}

// engagement draws the synthetic feed counters shown on a new video.
func (g *Generator) engagement() content.EngagementMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return content.EngagementMetrics{
		Likes:    1000 + g.rng.IntN(50000),
		Comments: 50 + g.rng.IntN(2000),
		Shares:   10 + g.rng.IntN(1000),
	}
}
