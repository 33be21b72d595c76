package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

const (
	backendPostgres = "postgres"

	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore keeps records in Postgres, one table per kind.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore connects to cfg.PostgresURL and, when enabled, applies
// the schema.
func NewPostgresStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*PostgresStore, error) {
	if cfg.PostgresURL == "" {
		return nil, &types.ConfigurationError{Setting: "POSTGRES_URL", Capability: "postgres storage"}
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, "postgres", cfg.PostgresURL)
	if err != nil {
		return nil, &types.StorageError{Backend: backendPostgres, Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	s := NewPostgresStoreFromDB(db, logger)
	if cfg.AutoMigrate {
		if err := s.Migrate(connectCtx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an open connection.
func NewPostgresStoreFromDB(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.With("component", "postgres_store")}
}

func (s *PostgresStore) Name() string { return backendPostgres }

func (s *PostgresStore) Close() error { return s.db.Close() }

// Migrate applies the idempotent DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &types.StorageError{Backend: backendPostgres, Op: "migrate", Err: err}
		}
	}
	s.logger.Info("schema migrated", "statements", len(schema))
	return nil
}

type existingRow struct {
	ContentHash         string       `db:"content_hash"`
	HasArticle          bool         `db:"has_article"`
	HasThumbnail        bool         `db:"has_thumbnail"`
	ThumbnailFailures   int          `db:"thumbnail_search_failures"`
	ThumbnailSearchedAt sql.NullTime `db:"thumbnail_searched_at"`
}

// CheckExisting runs a projection-only lookup by natural key.
func (s *PostgresStore) CheckExisting(ctx context.Context, desc content.Descriptor, key content.NaturalKey) (*content.Existing, bool, error) {
	query, args, err := psql.
		Select(
			"content_hash",
			"COALESCE(ai_generated_article, '') <> '' AS has_article",
			"COALESCE(thumbnail_url, '') <> '' AS has_thumbnail",
			"thumbnail_search_failures",
			"thumbnail_searched_at",
		).
		From(desc.Table).
		Where(sq.Eq(key.Map())).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, false, s.fail("check", key.String(), err)
	}

	var row existingRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, s.fail("check", key.String(), err)
	}

	existing := &content.Existing{
		ContentHash:       row.ContentHash,
		HasArticle:        row.HasArticle,
		HasThumbnail:      row.HasThumbnail,
		ThumbnailFailures: row.ThumbnailFailures,
	}
	if row.ThumbnailSearchedAt.Valid {
		t := row.ThumbnailSearchedAt.Time
		existing.ThumbnailSearchedAt = &t
	}
	return existing, true, nil
}

// Upsert writes the record with a single INSERT ... ON CONFLICT statement.
// All SET expressions read the pre-update row, so the previous hash and
// timestamp land in versions exactly when the hash changes, and the cached
// depth articles are dropped in the same statement.
func (s *PostgresStore) Upsert(ctx context.Context, w *Write) (*content.Stored, error) {
	rec := w.Record
	desc, err := content.Describe(rec.Kind())
	if err != nil {
		return nil, err
	}
	key := rec.NaturalKey()
	now := w.now()

	citations := w.Citations
	if citations == nil {
		citations = []content.Citation{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return nil, s.fail("upsert", key.String(), err)
	}

	var (
		thumbnail  any
		searchedAt any
		failures   int
	)
	switch w.ThumbnailAttempt {
	case ThumbnailFailed:
		failures = 1
		searchedAt = now
	case ThumbnailFound:
		thumbnail = w.Thumbnail
		searchedAt = now
	}

	cols := rec.Columns()
	names := make([]string, 0, len(cols)+11)
	values := make([]any, 0, len(cols)+11)
	set := make([]string, 0, len(cols)+9)
	for _, c := range cols {
		names = append(names, c.Name)
		values = append(values, c.Value)
		if !slices.Contains(desc.KeyColumns, c.Name) {
			set = append(set, fmt.Sprintf("%[1]s = EXCLUDED.%[1]s", c.Name))
		}
	}

	names = append(names,
		"description", "ai_generated_article", "citations", "thumbnail_url",
		"thumbnail_search_failures", "thumbnail_searched_at",
		"content_hash", "versions", "article_generations", "created_at", "updated_at",
	)
	values = append(values,
		nullable(w.description()), nullable(w.article()), sq.Expr("?::jsonb", string(citationsJSON)), thumbnail,
		failures, searchedAt,
		w.Hash, sq.Expr("'[]'::jsonb"), sq.Expr("'[]'::jsonb"), now, now,
	)

	t := desc.Table
	set = append(set,
		fmt.Sprintf("description = COALESCE(EXCLUDED.description, %s.description)", t),
		fmt.Sprintf("ai_generated_article = COALESCE(EXCLUDED.ai_generated_article, %s.ai_generated_article)", t),
		fmt.Sprintf("citations = CASE WHEN EXCLUDED.ai_generated_article IS NOT NULL THEN EXCLUDED.citations ELSE %s.citations END", t),
		fmt.Sprintf("thumbnail_url = COALESCE(EXCLUDED.thumbnail_url, %s.thumbnail_url)", t),
		fmt.Sprintf(`thumbnail_search_failures = CASE
			WHEN EXCLUDED.thumbnail_searched_at IS NULL THEN %[1]s.thumbnail_search_failures
			WHEN EXCLUDED.thumbnail_url IS NOT NULL THEN 0
			ELSE %[1]s.thumbnail_search_failures + 1 END`, t),
		fmt.Sprintf("thumbnail_searched_at = COALESCE(EXCLUDED.thumbnail_searched_at, %s.thumbnail_searched_at)", t),
		fmt.Sprintf(`versions = CASE
			WHEN %[1]s.content_hash <> EXCLUDED.content_hash
			THEN %[1]s.versions || jsonb_build_array(jsonb_build_object(
				'hash', %[1]s.content_hash, 'updatedAt', %[1]s.updated_at, 'changes', '%[2]s'))
			ELSE %[1]s.versions END`, t, content.ChangeContentUpdated),
		fmt.Sprintf(`article_generations = CASE
			WHEN %[1]s.content_hash <> EXCLUDED.content_hash THEN '[]'::jsonb
			ELSE %[1]s.article_generations END`, t),
		"content_hash = EXCLUDED.content_hash",
		"updated_at = EXCLUDED.updated_at",
	)

	query, args, err := psql.
		Insert(t).
		Columns(names...).
		Values(values...).
		Suffix(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
			strings.Join(desc.KeyColumns, ", "),
			strings.Join(set, ", "),
			strings.Join(storedColumns(desc, ""), ", "),
		)).
		ToSql()
	if err != nil {
		return nil, s.fail("upsert", key.String(), err)
	}

	var row storedRow
	if err := s.db.QueryRowxContext(ctx, query, args...).StructScan(&row); err != nil {
		return nil, s.fail("upsert", key.String(), err)
	}
	return row.toStored(desc), nil
}

// GetByID reads one record by id.
func (s *PostgresStore) GetByID(ctx context.Context, kind content.Kind, id string) (*content.Stored, error) {
	desc, err := content.Describe(kind)
	if err != nil {
		return nil, err
	}

	query, args, err := psql.
		Select(storedColumns(desc, "")...).
		From(desc.Table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, s.fail("get", id, err)
	}

	var row storedRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.fail("get", id, types.ErrNotFound)
		}
		return nil, s.fail("get", id, err)
	}
	return row.toStored(desc), nil
}

// SaveArticleGeneration replaces the entry at gen.Depth in one UPDATE, so
// concurrent writers never lose each other's depths.
func (s *PostgresStore) SaveArticleGeneration(ctx context.Context, kind content.Kind, id string, gen content.ArticleGeneration, citations []content.Citation) error {
	desc, err := content.Describe(kind)
	if err != nil {
		return err
	}
	if citations == nil {
		citations = []content.Citation{}
	}
	genJSON, err := json.Marshal(gen)
	if err != nil {
		return s.fail("save_article", id, err)
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return s.fail("save_article", id, err)
	}

	query, args, err := psql.
		Update(desc.Table).
		Set("article_generations", sq.Expr(`COALESCE(
			(SELECT jsonb_agg(g) FROM jsonb_array_elements(article_generations) AS g
			 WHERE (g->>'depth')::int <> ?), '[]'::jsonb) || jsonb_build_array(?::jsonb)`,
			gen.Depth, string(genJSON))).
		Set("citations", sq.Expr("?::jsonb", string(citationsJSON))).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return s.fail("save_article", id, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return s.fail("save_article", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.fail("save_article", id, types.ErrNotFound)
	}
	return nil
}

// FindWithoutVideos lists records that need a video, newest first.
func (s *PostgresStore) FindWithoutVideos(ctx context.Context, kind content.Kind, limit int, stale bool) ([]*content.Stored, error) {
	desc, err := content.Describe(kind)
	if err != nil {
		return nil, err
	}

	q := psql.
		Select(storedColumns(desc, "t.")...).
		From(desc.Table+" AS t").
		LeftJoin("video AS v ON v.content_type = ? AND v.content_id = t.id", string(kind)).
		Where("COALESCE(t.full_text, '') <> ''")
	if stale {
		q = q.Where("(v.id IS NULL OR v.source_content_hash <> t.content_hash)")
	} else {
		q = q.Where("v.id IS NULL")
	}
	q = q.OrderBy("t.created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, s.fail("find_without_videos", string(kind), err)
	}

	var rows []storedRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, s.fail("find_without_videos", string(kind), err)
	}

	out := make([]*content.Stored, len(rows))
	for i := range rows {
		out[i] = rows[i].toStored(desc)
	}
	return out, nil
}

// VideoSourceHash returns the hash the current video was generated from.
func (s *PostgresStore) VideoSourceHash(ctx context.Context, kind content.Kind, contentID string) (string, bool, error) {
	query, args, err := psql.
		Select("source_content_hash").
		From("video").
		Where(sq.Eq{"content_type": string(kind), "content_id": contentID}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", false, s.fail("video_hash", contentID, err)
	}

	var hash string
	if err := s.db.GetContext(ctx, &hash, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, s.fail("video_hash", contentID, err)
	}
	return hash, true, nil
}

// UpsertVideo inserts or regenerates the video for a record. Engagement
// counters are kept from the first insert.
func (s *PostgresStore) UpsertVideo(ctx context.Context, v *content.Video) error {
	engagement, err := json.Marshal(v.Engagement)
	if err != nil {
		return s.fail("upsert_video", v.ContentID, err)
	}

	var imageData, mime, width, height any
	if len(v.ImageData) > 0 {
		imageData, mime, width, height = v.ImageData, v.ImageMimeType, v.ImageWidth, v.ImageHeight
	}

	query, args, err := psql.
		Insert("video").
		Columns(
			"content_type", "content_id", "title", "description",
			"image_data", "image_mime_type", "image_width", "image_height",
			"thumbnail_url", "author", "engagement_metrics", "source_content_hash",
		).
		Values(
			string(v.ContentType), v.ContentID, v.Title, v.Description,
			imageData, mime, width, height,
			nullable(&v.ThumbnailURL), v.Author, sq.Expr("?::jsonb", string(engagement)), v.SourceContentHash,
		).
		Suffix(`ON CONFLICT (content_type, content_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			image_data = EXCLUDED.image_data,
			image_mime_type = EXCLUDED.image_mime_type,
			image_width = EXCLUDED.image_width,
			image_height = EXCLUDED.image_height,
			thumbnail_url = COALESCE(EXCLUDED.thumbnail_url, video.thumbnail_url),
			source_content_hash = EXCLUDED.source_content_hash,
			updated_at = NOW()`).
		ToSql()
	if err != nil {
		return s.fail("upsert_video", v.ContentID, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.fail("upsert_video", v.ContentID, err)
	}
	return nil
}

type statsRow struct {
	Total         int64 `db:"total"`
	WithArticle   int64 `db:"with_article"`
	WithThumbnail int64 `db:"with_thumbnail"`
	WithVideo     int64 `db:"with_video"`
}

// Stats counts rows, articles, thumbnails and videos per kind.
func (s *PostgresStore) Stats(ctx context.Context) ([]content.KindStats, error) {
	out := make([]content.KindStats, 0, len(content.Kinds))
	for _, kind := range content.Kinds {
		desc := content.MustDescribe(kind)
		query, args, err := psql.
			Select(
				"COUNT(*) AS total",
				"COUNT(*) FILTER (WHERE COALESCE(ai_generated_article, '') <> '') AS with_article",
				"COUNT(*) FILTER (WHERE COALESCE(thumbnail_url, '') <> '') AS with_thumbnail",
			).
			Column(sq.Expr("(SELECT COUNT(*) FROM video WHERE content_type = ?) AS with_video", string(kind))).
			From(desc.Table).
			ToSql()
		if err != nil {
			return nil, s.fail("stats", string(kind), err)
		}

		var row statsRow
		if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
			return nil, s.fail("stats", string(kind), err)
		}
		out = append(out, content.KindStats{
			Kind:          kind,
			Total:         row.Total,
			WithArticle:   row.WithArticle,
			WithThumbnail: row.WithThumbnail,
			WithVideo:     row.WithVideo,
		})
	}
	return out, nil
}

func (s *PostgresStore) fail(op, key string, err error) error {
	return &types.StorageError{Backend: backendPostgres, Op: op, Key: key, Err: err}
}

// storedColumns is the projection read back into storedRow.
func storedColumns(desc content.Descriptor, prefix string) []string {
	cols := []string{
		"id", "title", "description", "full_text", "url",
		desc.AuthorColumn + " AS author",
		"content_hash", "ai_generated_article", "thumbnail_url",
		"article_generations", "citations", "versions",
		"created_at", "updated_at",
	}
	for i := range cols {
		cols[i] = prefix + cols[i]
	}
	return cols
}

type storedRow struct {
	ID                 string                              `db:"id"`
	Title              string                              `db:"title"`
	Description        sql.NullString                      `db:"description"`
	FullText           sql.NullString                      `db:"full_text"`
	URL                sql.NullString                      `db:"url"`
	Author             sql.NullString                      `db:"author"`
	ContentHash        string                              `db:"content_hash"`
	AIGeneratedArticle sql.NullString                      `db:"ai_generated_article"`
	ThumbnailURL       sql.NullString                      `db:"thumbnail_url"`
	ArticleGenerations jsonList[content.ArticleGeneration] `db:"article_generations"`
	Citations          jsonList[content.Citation]          `db:"citations"`
	Versions           jsonList[content.Version]           `db:"versions"`
	CreatedAt          time.Time                           `db:"created_at"`
	UpdatedAt          time.Time                           `db:"updated_at"`
}

func (r *storedRow) toStored(desc content.Descriptor) *content.Stored {
	return &content.Stored{
		ID:                 r.ID,
		Kind:               desc.Kind,
		Title:              r.Title,
		Description:        r.Description.String,
		FullText:           r.FullText.String,
		URL:                r.URL.String,
		Author:             storedAuthor(desc, r.Author.String),
		ContentHash:        r.ContentHash,
		AIGeneratedArticle: r.AIGeneratedArticle.String,
		ThumbnailURL:       r.ThumbnailURL.String,
		ArticleGenerations: r.ArticleGenerations,
		Citations:          r.Citations,
		Versions:           r.Versions,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// jsonList scans a JSONB array column.
type jsonList[T any] []T

func (j *jsonList[T]) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported jsonb source %T", src)
	}
	return json.Unmarshal(raw, (*[]T)(j))
}

func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
