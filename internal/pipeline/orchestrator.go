package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/IshaanNene/CivicScrape/internal/ai"
	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/observability"
	"github.com/IshaanNene/CivicScrape/internal/storage"
)

// Summarizer writes a one-line description. It never fails.
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) string
}

// ArticleWriter writes a markdown article with citations.
type ArticleWriter interface {
	WriteArticle(ctx context.Context, req ai.ArticleRequest) (ai.Article, error)
}

// KeywordExtractor turns a record into an image search query.
type KeywordExtractor interface {
	Keywords(ctx context.Context, title, text, label string) string
}

// Thumbnailer finds an image URL for a query, or returns "".
type Thumbnailer interface {
	Thumbnail(ctx context.Context, query string) string
}

// Enrichers are the generators the orchestrator may call. A nil field turns
// that enrichment off.
type Enrichers struct {
	Summarizer Summarizer
	Articles   ArticleWriter
	Keywords   KeywordExtractor
	Thumbnails Thumbnailer
}

// Classification is the state of an incoming record relative to the store.
type Classification int

const (
	ClassNew Classification = iota
	ClassChanged
	ClassUnchanged
)

func (c Classification) String() string {
	switch c {
	case ClassNew:
		return "new"
	case ClassChanged:
		return "changed"
	default:
		return "unchanged"
	}
}

// Plan says which paid enrichments to run for one record.
type Plan struct {
	Article bool
	Image   bool
}

// Result reports what one upsert did.
type Result struct {
	Stored           *content.Stored
	Classification   Classification
	ArticleGenerated bool
	ImageSearched    bool
}

// Orchestrator classifies each scraped record against the store, runs only
// the enrichments the classification calls for and persists the result.
type Orchestrator struct {
	store   storage.Store
	enrich  Enrichers
	metrics *observability.RunMetrics
	cfg     config.EnrichConfig
	locks   *keyedMutex
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(store storage.Store, enrich Enrichers, metrics *observability.RunMetrics, cfg config.EnrichConfig, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.ArticleDepth == 0 {
		cfg.ArticleDepth = ai.DefaultDepth
	}
	if metrics == nil {
		metrics = observability.NewRunMetrics(logger, nil)
	}
	o := &Orchestrator{
		store:   store,
		enrich:  enrich,
		metrics: metrics,
		cfg:     cfg,
		locks:   newKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Classify compares the stored state with the incoming hash.
func Classify(existing *content.Existing, found bool, newHash string) Classification {
	switch {
	case !found || existing == nil:
		return ClassNew
	case existing.ContentHash != newHash:
		return ClassChanged
	default:
		return ClassUnchanged
	}
}

// PlanFor applies the enrichment table. Images are also held back while a
// record is in its thumbnail cooldown.
func (o *Orchestrator) PlanFor(c Classification, rec content.Record, existing *content.Existing) Plan {
	hasText := rec.Base().FullText != ""
	if !hasText {
		return Plan{}
	}

	switch c {
	case ClassNew:
		return Plan{Article: true, Image: true}
	case ClassChanged:
		return Plan{Article: true, Image: !existing.HasThumbnail && !o.coolingDown(existing)}
	default:
		return Plan{Image: !existing.HasThumbnail && !o.coolingDown(existing)}
	}
}

func (o *Orchestrator) coolingDown(e *content.Existing) bool {
	if o.cfg.ThumbnailMaxAttempts <= 0 || e.ThumbnailFailures < o.cfg.ThumbnailMaxAttempts {
		return false
	}
	if e.ThumbnailSearchedAt == nil {
		return false
	}
	return o.now().Sub(*e.ThumbnailSearchedAt) < o.cfg.ThumbnailRetryAfter
}

// Upsert runs one record through classification, conditional enrichment and
// persistence. Generator failures leave the field unset; only a storage
// failure is returned.
func (o *Orchestrator) Upsert(ctx context.Context, rec content.Record) (*Result, error) {
	start := o.now()
	desc, err := content.Describe(rec.Kind())
	if err != nil {
		return nil, err
	}
	key := rec.NaturalKey()
	logger := o.logger.With("kind", desc.Kind, "key", key.String())

	unlock := o.locks.Lock(string(desc.Kind) + "|" + key.String())
	defer unlock()

	hash := content.HashRecord(rec)

	existing, found, err := o.store.CheckExisting(ctx, desc, key)
	if err != nil {
		logger.Warn("existence check failed, treating as new", "error", err)
		existing, found = nil, false
	}

	class := Classify(existing, found, hash)
	o.metrics.TotalProcessed.Add(1)
	switch class {
	case ClassNew:
		o.metrics.NewEntries.Add(1)
	case ClassChanged:
		o.metrics.ExistingChanged.Add(1)
	default:
		o.metrics.ExistingUnchanged.Add(1)
	}

	plan := o.PlanFor(class, rec, existing)
	logger.Debug("record classified", "class", class, "article", plan.Article, "image", plan.Image)

	w := &storage.Write{Record: rec, Hash: hash, Now: o.now()}
	res := &Result{Classification: class}

	if plan.Article {
		o.writeArticle(ctx, rec, w, res, logger)
	}
	if plan.Image {
		o.findThumbnail(ctx, rec, w, res, logger)
	}

	stored, err := o.store.Upsert(ctx, w)
	if err != nil {
		return nil, err
	}
	res.Stored = stored

	o.metrics.ObserveUpsert(string(desc.Kind), class.String(), o.now().Sub(start))
	logger.Info("record upserted",
		"id", stored.ID,
		"class", class,
		"article", res.ArticleGenerated,
		"image", res.ImageSearched,
	)
	return res, nil
}

func (o *Orchestrator) writeArticle(ctx context.Context, rec content.Record, w *storage.Write, res *Result, logger *slog.Logger) {
	base := rec.Base()

	if base.Description == "" && o.enrich.Summarizer != nil {
		if src := rec.SummarySource(); src != "" {
			summary := o.enrich.Summarizer.Summarize(ctx, base.Title, src)
			if summary != "" {
				w.Description = &summary
			}
			o.metrics.ObserveGeneration("summary", outcome(summary != ""))
		}
	}

	if o.enrich.Articles == nil {
		return
	}
	article, err := o.enrich.Articles.WriteArticle(ctx, ai.ArticleRequest{
		Title:     base.Title,
		FullText:  base.FullText,
		Label:     rec.PromptLabel(),
		SourceURL: base.URL,
		Depth:     o.cfg.ArticleDepth,
	})
	if err != nil {
		logger.Warn("article request rejected", "error", err)
		o.metrics.ObserveGeneration("article", "error")
		return
	}
	o.metrics.ObserveGeneration("article", outcome(article.Content != ""))
	if article.Content == "" {
		return
	}

	w.Article = &article.Content
	w.Citations = article.Citations
	res.ArticleGenerated = true
	o.metrics.AIArticlesGenerated.Add(1)
}

func (o *Orchestrator) findThumbnail(ctx context.Context, rec content.Record, w *storage.Write, res *Result, logger *slog.Logger) {
	if o.enrich.Thumbnails == nil {
		return
	}
	base := rec.Base()

	query := base.Title
	if o.enrich.Keywords != nil {
		query = o.enrich.Keywords.Keywords(ctx, base.Title, base.FullText, rec.PromptLabel())
	}

	url := o.enrich.Thumbnails.Thumbnail(ctx, query)
	res.ImageSearched = true
	o.metrics.ImagesSearched.Add(1)
	o.metrics.ObserveGeneration("thumbnail", outcome(url != ""))

	if url == "" {
		logger.Debug("no thumbnail found", "query", query)
		w.ThumbnailAttempt = storage.ThumbnailFailed
		return
	}
	w.Thumbnail = url
	w.ThumbnailAttempt = storage.ThumbnailFound
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "empty"
}
