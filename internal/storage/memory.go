package storage

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

const backendMemory = "memory"

type memoryRow struct {
	stored              content.Stored
	thumbnailFailures   int
	thumbnailSearchedAt *time.Time
}

// MemoryStore keeps everything in process. It backs --dry-run and tests and
// follows the same merge rules as the SQL upsert.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[content.Kind]map[string]*memoryRow // natural key → row
	byID   map[string]*memoryRow
	videos map[string]*content.Video // kind|content id → video
	logger *slog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		rows:   make(map[content.Kind]map[string]*memoryRow),
		byID:   make(map[string]*memoryRow),
		videos: make(map[string]*content.Video),
		logger: logger.With("component", "memory_store"),
	}
}

func (s *MemoryStore) Name() string { return backendMemory }

func (s *MemoryStore) Close() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.logger.Info("memory store closing", "records", len(s.byID), "videos", len(s.videos))
	return nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) CheckExisting(_ context.Context, desc content.Descriptor, key content.NaturalKey) (*content.Existing, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[desc.Kind][key.String()]
	if !ok {
		return nil, false, nil
	}
	e := row.existingView()
	return &e, true, nil
}

func (r *memoryRow) existingView() content.Existing {
	e := content.Existing{
		ContentHash:       r.stored.ContentHash,
		HasArticle:        r.stored.AIGeneratedArticle != "",
		HasThumbnail:      r.stored.ThumbnailURL != "",
		ThumbnailFailures: r.thumbnailFailures,
	}
	if r.thumbnailSearchedAt != nil {
		t := *r.thumbnailSearchedAt
		e.ThumbnailSearchedAt = &t
	}
	return e
}

func (s *MemoryStore) Upsert(_ context.Context, w *Write) (*content.Stored, error) {
	rec := w.Record
	desc, err := content.Describe(rec.Kind())
	if err != nil {
		return nil, err
	}
	key := rec.NaturalKey().String()
	now := w.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := s.rows[desc.Kind]
	if byKey == nil {
		byKey = make(map[string]*memoryRow)
		s.rows[desc.Kind] = byKey
	}

	row, found := byKey[key]
	if !found {
		row = &memoryRow{stored: content.Stored{
			ID:        uuid.NewString(),
			Kind:      desc.Kind,
			CreatedAt: now,
			Versions:  []content.Version{},
		}}
		byKey[key] = row
		s.byID[row.stored.ID] = row
	} else if row.stored.ContentHash != w.Hash {
		row.stored.Versions = append(row.stored.Versions, content.Version{
			Hash:      row.stored.ContentHash,
			UpdatedAt: row.stored.UpdatedAt,
			Changes:   content.ChangeContentUpdated,
		})
		// Cached depth articles describe the old text.
		row.stored.ArticleGenerations = nil
	}

	base := rec.Base()
	st := &row.stored
	st.Title = base.Title
	st.FullText = base.FullText
	st.URL = base.URL
	st.Author = storedAuthor(desc, columnString(rec.Columns(), desc.AuthorColumn))
	if d := w.description(); d != nil {
		st.Description = *d
	}
	if a := w.article(); a != nil {
		st.AIGeneratedArticle = *a
		st.Citations = slices.Clone(w.Citations)
	}
	switch w.ThumbnailAttempt {
	case ThumbnailFailed:
		row.thumbnailFailures++
		row.thumbnailSearchedAt = &now
	case ThumbnailFound:
		st.ThumbnailURL = w.Thumbnail
		row.thumbnailFailures = 0
		row.thumbnailSearchedAt = &now
	}
	st.ContentHash = w.Hash
	st.UpdatedAt = now

	return cloneStored(st), nil
}

func (s *MemoryStore) GetByID(_ context.Context, kind content.Kind, id string) (*content.Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.byID[id]
	if !ok || row.stored.Kind != kind {
		return nil, &types.StorageError{Backend: backendMemory, Op: "get", Key: id, Err: types.ErrNotFound}
	}
	return cloneStored(&row.stored), nil
}

func (s *MemoryStore) SaveArticleGeneration(_ context.Context, kind content.Kind, id string, gen content.ArticleGeneration, citations []content.Citation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[id]
	if !ok || row.stored.Kind != kind {
		return &types.StorageError{Backend: backendMemory, Op: "save_article", Key: id, Err: types.ErrNotFound}
	}

	gens := slices.DeleteFunc(row.stored.ArticleGenerations, func(g content.ArticleGeneration) bool {
		return g.Depth == gen.Depth
	})
	row.stored.ArticleGenerations = append(gens, gen)
	row.stored.Citations = slices.Clone(citations)
	return nil
}

func (s *MemoryStore) FindWithoutVideos(_ context.Context, kind content.Kind, limit int, stale bool) ([]*content.Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*content.Stored
	for _, row := range s.rows[kind] {
		if row.stored.FullText == "" {
			continue
		}
		v, ok := s.videos[videoKey(kind, row.stored.ID)]
		if ok && (!stale || v.SourceContentHash == row.stored.ContentHash) {
			continue
		}
		out = append(out, cloneStored(&row.stored))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) VideoSourceHash(_ context.Context, kind content.Kind, contentID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.videos[videoKey(kind, contentID)]
	if !ok {
		return "", false, nil
	}
	return v.SourceContentHash, true, nil
}

func (s *MemoryStore) UpsertVideo(_ context.Context, v *content.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := videoKey(v.ContentType, v.ContentID)
	cp := *v
	if prev, ok := s.videos[k]; ok {
		cp.ID = prev.ID
		cp.Engagement = prev.Engagement
		if cp.ThumbnailURL == "" {
			cp.ThumbnailURL = prev.ThumbnailURL
		}
	} else if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	s.videos[k] = &cp
	return nil
}

// Video returns a stored video, for tests and dry-run reporting.
func (s *MemoryStore) Video(kind content.Kind, contentID string) (*content.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[videoKey(kind, contentID)]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

func (s *MemoryStore) Stats(context.Context) ([]content.KindStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]content.KindStats, 0, len(content.Kinds))
	for _, kind := range content.Kinds {
		ks := content.KindStats{Kind: kind}
		for _, row := range s.rows[kind] {
			ks.Total++
			if row.stored.AIGeneratedArticle != "" {
				ks.WithArticle++
			}
			if row.stored.ThumbnailURL != "" {
				ks.WithThumbnail++
			}
		}
		for _, v := range s.videos {
			if v.ContentType == kind {
				ks.WithVideo++
			}
		}
		out = append(out, ks)
	}
	return out, nil
}

func videoKey(kind content.Kind, id string) string {
	return string(kind) + "|" + id
}

func columnString(cols []content.Column, name string) string {
	for _, c := range cols {
		if c.Name == name {
			if s, ok := c.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

func cloneStored(st *content.Stored) *content.Stored {
	cp := *st
	cp.ArticleGenerations = slices.Clone(st.ArticleGenerations)
	cp.Citations = slices.Clone(st.Citations)
	cp.Versions = slices.Clone(st.Versions)
	return &cp
}
