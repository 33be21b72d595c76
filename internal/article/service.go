// Package article serves generated articles at a requested depth, caching
// every depth on the record so it is written once.
package article

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/CivicScrape/internal/ai"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

// Store is the slice of storage.Store the service needs.
type Store interface {
	GetByID(ctx context.Context, kind content.Kind, id string) (*content.Stored, error)
	SaveArticleGeneration(ctx context.Context, kind content.Kind, id string, gen content.ArticleGeneration, citations []content.Citation) error
}

// Writer generates one article.
type Writer interface {
	WriteArticle(ctx context.Context, req ai.ArticleRequest) (ai.Article, error)
}

// Result is an article returned by GetOrGenerate.
type Result struct {
	Depth   int
	Content string
	Cached  bool
}

// Service reads cached depths and generates missing ones.
type Service struct {
	store  Store
	writer Writer
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a new article service.
func NewService(store Store, writer Writer, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		writer: writer,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With("component", "article_service"),
	}
}

// GetOrGenerate returns the article for id at depth. A cached generation
// wins; depth 3 also accepts the default article written at ingest.
func (s *Service) GetOrGenerate(ctx context.Context, kind content.Kind, id string, depth int) (*Result, error) {
	if !ai.ValidDepth(depth) {
		return nil, fmt.Errorf("%w: got %d", types.ErrInvalidDepth, depth)
	}
	desc, err := content.Describe(kind)
	if err != nil {
		return nil, err
	}

	st, err := s.store.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if g, ok := st.Generation(depth); ok {
		return &Result{Depth: depth, Content: g.Content, Cached: true}, nil
	}
	if depth == ai.DefaultDepth && st.AIGeneratedArticle != "" {
		return &Result{Depth: depth, Content: st.AIGeneratedArticle, Cached: true}, nil
	}
	if st.FullText == "" {
		return nil, fmt.Errorf("%s %s: %w", kind, id, types.ErrNoFullText)
	}

	art, err := s.writer.WriteArticle(ctx, ai.ArticleRequest{
		Title:     st.Title,
		FullText:  st.FullText,
		Label:     desc.Label,
		SourceURL: st.URL,
		Depth:     depth,
	})
	if err != nil {
		return nil, err
	}
	if art.Content == "" {
		return nil, &types.GenerationError{Op: "article", Kind: types.GenerationOther, Err: types.ErrEmptyResponse}
	}

	gen := content.ArticleGeneration{Depth: depth, Content: art.Content, GeneratedAt: s.now()}
	if err := s.store.SaveArticleGeneration(ctx, kind, id, gen, art.Citations); err != nil {
		return nil, err
	}

	s.logger.Info("article generated", "kind", kind, "id", id, "depth", depth, "citations", len(art.Citations))
	return &Result{Depth: depth, Content: art.Content}, nil
}

// PreGenerateAll fills every depth for id. Failures are logged per depth and
// the first one is returned after all depths were tried.
func (s *Service) PreGenerateAll(ctx context.Context, kind content.Kind, id string) error {
	var first error
	for depth := ai.MinDepth; depth <= ai.MaxDepth; depth++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := s.GetOrGenerate(ctx, kind, id, depth)
		if err != nil {
			s.logger.Error("depth generation failed", "kind", kind, "id", id, "depth", depth, "error", err)
			if first == nil {
				first = err
			}
			continue
		}
		s.logger.Debug("depth ready", "kind", kind, "id", id, "depth", depth, "cached", res.Cached)
	}
	return first
}
