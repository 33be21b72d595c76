// Package storage persists scraped records, their enrichments and the videos
// derived from them.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/content"
)

// Store is the interface for all storage backends.
type Store interface {
	// CheckExisting looks a record up by natural key. A missing record is
	// reported as found=false with a nil error.
	CheckExisting(ctx context.Context, desc content.Descriptor, key content.NaturalKey) (*content.Existing, bool, error)

	// Upsert inserts or updates a record in one statement and returns the
	// stored row. The version history is appended when the hash changes.
	Upsert(ctx context.Context, w *Write) (*content.Stored, error)

	// GetByID reads one record. A missing id yields types.ErrNotFound.
	GetByID(ctx context.Context, kind content.Kind, id string) (*content.Stored, error)

	// SaveArticleGeneration caches an article at one depth, replacing any
	// entry at the same depth, and replaces the citations.
	SaveArticleGeneration(ctx context.Context, kind content.Kind, id string, gen content.ArticleGeneration, citations []content.Citation) error

	// FindWithoutVideos lists records with full text and no video. With
	// stale set, records whose video was built from an older hash are
	// included too.
	FindWithoutVideos(ctx context.Context, kind content.Kind, limit int, stale bool) ([]*content.Stored, error)

	// VideoSourceHash returns the source hash the record's video was built
	// from, if a video exists.
	VideoSourceHash(ctx context.Context, kind content.Kind, contentID string) (string, bool, error)

	// UpsertVideo writes a video keyed by (content type, content id).
	UpsertVideo(ctx context.Context, v *content.Video) error

	// Stats counts rows per kind.
	Stats(ctx context.Context) ([]content.KindStats, error)

	// Migrate creates the tables and indexes if they do not exist.
	Migrate(ctx context.Context) error

	// Close releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// ThumbnailAttempt records what happened to an image search during an upsert.
type ThumbnailAttempt int

const (
	// ThumbnailNotAttempted leaves the thumbnail columns as they are.
	ThumbnailNotAttempted ThumbnailAttempt = iota
	// ThumbnailFailed increments the failure count and stamps the attempt.
	ThumbnailFailed
	// ThumbnailFound stores the URL and resets the failure count.
	ThumbnailFound
)

// Write is one upsert. Optional enrichment fields are written only when set;
// otherwise the stored value is kept.
type Write struct {
	Record content.Record
	Hash   string

	// Description overrides the scraped description, e.g. with a summary.
	Description *string
	Article     *string
	// Citations replace the stored list whenever Article is set.
	Citations []content.Citation

	Thumbnail        string
	ThumbnailAttempt ThumbnailAttempt

	Now time.Time
}

// description returns the description to persist, or nil to keep the
// stored one.
func (w *Write) description() *string {
	if w.Description != nil && *w.Description != "" {
		return w.Description
	}
	if d := w.Record.Base().Description; d != "" {
		return &d
	}
	return nil
}

func (w *Write) article() *string {
	if w.Article != nil && *w.Article != "" {
		return w.Article
	}
	return nil
}

func (w *Write) now() time.Time {
	if w.Now.IsZero() {
		return time.Now().UTC()
	}
	return w.Now
}

// New opens the backend selected by cfg.Storage.Driver.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "postgres", "":
		return NewPostgresStore(ctx, cfg, logger)
	case "mongodb":
		return NewMongoStore(ctx, cfg, logger)
	case "memory":
		return NewMemoryStore(logger), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func storedAuthor(desc content.Descriptor, author string) string {
	if author != "" {
		return author
	}
	switch desc.Kind {
	case content.KindCourtCase:
		return "court"
	default:
		return "unknown"
	}
}
