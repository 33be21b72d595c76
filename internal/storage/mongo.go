package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

const (
	backendMongo    = "mongodb"
	videoCollection = "video"
)

// MongoStore keeps one collection per kind plus a video collection. Records
// carry a uuid "id" alongside Mongo's own _id.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoStore connects to cfg.MongoURI.
func NewMongoStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*MongoStore, error) {
	if cfg.MongoURI == "" {
		return nil, &types.ConfigurationError{Setting: "MONGODB_URI", Capability: "mongodb storage"}
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, &types.StorageError{Backend: backendMongo, Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: backendMongo, Op: "ping", Err: err}
	}

	s := NewMongoStoreFromDB(client.Database(cfg.MongoDatabase), logger)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
	}
	return s, nil
}

// NewMongoStoreFromDB wraps an open database handle.
func NewMongoStoreFromDB(db *mongo.Database, logger *slog.Logger) *MongoStore {
	return &MongoStore{
		client: db.Client(),
		db:     db,
		logger: logger.With("component", "mongo_store"),
	}
}

func (s *MongoStore) Name() string { return backendMongo }

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Migrate creates the unique indexes that back the natural keys.
func (s *MongoStore) Migrate(ctx context.Context) error {
	for _, kind := range content.Kinds {
		desc := content.MustDescribe(kind)
		keys := bson.D{}
		for _, col := range desc.KeyColumns {
			keys = append(keys, bson.E{Key: col, Value: 1})
		}
		_, err := s.db.Collection(desc.Table).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: keys, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		})
		if err != nil {
			return s.fail("migrate", desc.Table, err)
		}
	}

	_, err := s.db.Collection(videoCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "content_type", Value: 1}, {Key: "content_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return s.fail("migrate", videoCollection, err)
	}
	return nil
}

func keyFilter(key content.NaturalKey) bson.D {
	f := bson.D{}
	for _, p := range key {
		f = append(f, bson.E{Key: p.Column, Value: p.Value})
	}
	return f
}

type mongoExisting struct {
	ContentHash         string     `bson:"content_hash"`
	AIGeneratedArticle  string     `bson:"ai_generated_article"`
	ThumbnailURL        string     `bson:"thumbnail_url"`
	ThumbnailFailures   int        `bson:"thumbnail_search_failures"`
	ThumbnailSearchedAt *time.Time `bson:"thumbnail_searched_at"`
}

func (s *MongoStore) CheckExisting(ctx context.Context, desc content.Descriptor, key content.NaturalKey) (*content.Existing, bool, error) {
	opts := options.FindOne().SetProjection(bson.D{
		{Key: "content_hash", Value: 1},
		{Key: "ai_generated_article", Value: 1},
		{Key: "thumbnail_url", Value: 1},
		{Key: "thumbnail_search_failures", Value: 1},
		{Key: "thumbnail_searched_at", Value: 1},
	})

	var doc mongoExisting
	err := s.db.Collection(desc.Table).FindOne(ctx, keyFilter(key), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.fail("check", key.String(), err)
	}

	return &content.Existing{
		ContentHash:         doc.ContentHash,
		HasArticle:          doc.AIGeneratedArticle != "",
		HasThumbnail:        doc.ThumbnailURL != "",
		ThumbnailFailures:   doc.ThumbnailFailures,
		ThumbnailSearchedAt: doc.ThumbnailSearchedAt,
	}, true, nil
}

// Upsert runs a pipeline update so the version append and hash refresh read
// the same pre-update document.
func (s *MongoStore) Upsert(ctx context.Context, w *Write) (*content.Stored, error) {
	rec := w.Record
	desc, err := content.Describe(rec.Kind())
	if err != nil {
		return nil, err
	}
	key := rec.NaturalKey()
	now := w.now()

	set := bson.D{}
	for _, c := range rec.Columns() {
		set = append(set, bson.E{Key: c.Name, Value: literal(c.Value)})
	}
	if d := w.description(); d != nil {
		set = append(set, bson.E{Key: "description", Value: literal(*d)})
	}
	if a := w.article(); a != nil {
		citations := w.Citations
		if citations == nil {
			citations = []content.Citation{}
		}
		set = append(set,
			bson.E{Key: "ai_generated_article", Value: literal(*a)},
			bson.E{Key: "citations", Value: literal(citations)},
		)
	}
	switch w.ThumbnailAttempt {
	case ThumbnailFailed:
		set = append(set,
			bson.E{Key: "thumbnail_search_failures", Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$thumbnail_search_failures", 0}}}, 1,
			}}}},
			bson.E{Key: "thumbnail_searched_at", Value: now},
		)
	case ThumbnailFound:
		set = append(set,
			bson.E{Key: "thumbnail_url", Value: literal(w.Thumbnail)},
			bson.E{Key: "thumbnail_search_failures", Value: 0},
			bson.E{Key: "thumbnail_searched_at", Value: now},
		)
	}

	priorVersions := bson.D{{Key: "$ifNull", Value: bson.A{"$versions", bson.A{}}}}
	set = append(set,
		bson.E{Key: "versions", Value: bson.D{{Key: "$cond", Value: bson.A{
			hashChanged(w.Hash),
			bson.D{{Key: "$concatArrays", Value: bson.A{priorVersions, bson.A{bson.D{
				{Key: "hash", Value: "$content_hash"},
				{Key: "updatedAt", Value: "$updated_at"},
				{Key: "changes", Value: content.ChangeContentUpdated},
			}}}}},
			priorVersions,
		}}}},
		bson.E{Key: "id", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$id", uuid.NewString()}}}},
		bson.E{Key: "article_generations", Value: bson.D{{Key: "$cond", Value: bson.A{
			hashChanged(w.Hash),
			bson.A{},
			bson.D{{Key: "$ifNull", Value: bson.A{"$article_generations", bson.A{}}}},
		}}}},
		bson.E{Key: "citations", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$citations", bson.A{}}}}},
		bson.E{Key: "thumbnail_search_failures", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$thumbnail_search_failures", 0}}}},
		bson.E{Key: "created_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$created_at", now}}}},
		bson.E{Key: "content_hash", Value: literal(w.Hash)},
		bson.E{Key: "updated_at", Value: now},
	)

	pipeline := mongo.Pipeline{{{Key: "$set", Value: dedupeSet(set)}}}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	raw, err := s.db.Collection(desc.Table).FindOneAndUpdate(ctx, keyFilter(key), pipeline, opts).Raw()
	if err != nil {
		return nil, s.fail("upsert", key.String(), err)
	}
	return decodeStored(desc, raw)
}

// hashChanged matches an existing document whose stored hash differs from
// hash. A fresh insert has no hash and does not match.
func hashChanged(hash string) bson.D {
	return bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "$ne", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$content_hash", nil}}}, nil}}},
		bson.D{{Key: "$ne", Value: bson.A{"$content_hash", literal(hash)}}},
	}}}
}

// literal stops scraped strings that start with "$" from being read as
// field paths inside a pipeline update.
func literal(v any) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

// dedupeSet keeps the first occurrence of each field, so enrichment values
// win over the $ifNull defaults appended after them.
func dedupeSet(set bson.D) bson.D {
	seen := make(map[string]bool, len(set))
	out := make(bson.D, 0, len(set))
	for _, e := range set {
		if seen[e.Key] {
			continue
		}
		seen[e.Key] = true
		out = append(out, e)
	}
	return out
}

type mongoStored struct {
	ID                 string                      `bson:"id"`
	Title              string                      `bson:"title"`
	Description        string                      `bson:"description"`
	FullText           string                      `bson:"full_text"`
	URL                string                      `bson:"url"`
	ContentHash        string                      `bson:"content_hash"`
	AIGeneratedArticle string                      `bson:"ai_generated_article"`
	ThumbnailURL       string                      `bson:"thumbnail_url"`
	ArticleGenerations []content.ArticleGeneration `bson:"article_generations"`
	Citations          []content.Citation          `bson:"citations"`
	Versions           []content.Version           `bson:"versions"`
	CreatedAt          time.Time                   `bson:"created_at"`
	UpdatedAt          time.Time                   `bson:"updated_at"`
}

func decodeStored(desc content.Descriptor, raw bson.Raw) (*content.Stored, error) {
	var doc mongoStored
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, &types.StorageError{Backend: backendMongo, Op: "decode", Err: err}
	}
	author, _ := raw.Lookup(desc.AuthorColumn).StringValueOK()

	return &content.Stored{
		ID:                 doc.ID,
		Kind:               desc.Kind,
		Title:              doc.Title,
		Description:        doc.Description,
		FullText:           doc.FullText,
		URL:                doc.URL,
		Author:             storedAuthor(desc, author),
		ContentHash:        doc.ContentHash,
		AIGeneratedArticle: doc.AIGeneratedArticle,
		ThumbnailURL:       doc.ThumbnailURL,
		ArticleGenerations: doc.ArticleGenerations,
		Citations:          doc.Citations,
		Versions:           doc.Versions,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}, nil
}

func (s *MongoStore) GetByID(ctx context.Context, kind content.Kind, id string) (*content.Stored, error) {
	desc, err := content.Describe(kind)
	if err != nil {
		return nil, err
	}

	raw, err := s.db.Collection(desc.Table).FindOne(ctx, bson.D{{Key: "id", Value: id}}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.fail("get", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, s.fail("get", id, err)
	}
	return decodeStored(desc, raw)
}

func (s *MongoStore) SaveArticleGeneration(ctx context.Context, kind content.Kind, id string, gen content.ArticleGeneration, citations []content.Citation) error {
	desc, err := content.Describe(kind)
	if err != nil {
		return err
	}
	if citations == nil {
		citations = []content.Citation{}
	}

	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "article_generations", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
			bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$article_generations", bson.A{}}}}},
				{Key: "as", Value: "g"},
				{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$g.depth", gen.Depth}}}},
			}}},
			bson.D{{Key: "$literal", Value: []content.ArticleGeneration{gen}}},
		}}}},
		{Key: "citations", Value: literal(citations)},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}}

	res, err := s.db.Collection(desc.Table).UpdateOne(ctx, bson.D{{Key: "id", Value: id}}, pipeline)
	if err != nil {
		return s.fail("save_article", id, err)
	}
	if res.MatchedCount == 0 {
		return s.fail("save_article", id, types.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) FindWithoutVideos(ctx context.Context, kind content.Kind, limit int, stale bool) ([]*content.Stored, error) {
	desc, err := content.Describe(kind)
	if err != nil {
		return nil, err
	}

	noVideo := bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$size", Value: "$videos"}}, 0}}}
	match := noVideo
	if stale {
		match = bson.D{{Key: "$or", Value: bson.A{
			noVideo,
			bson.D{{Key: "$ne", Value: bson.A{
				bson.D{{Key: "$arrayElemAt", Value: bson.A{"$videos.source_content_hash", 0}}},
				"$content_hash",
			}}},
		}}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "full_text", Value: bson.D{{Key: "$nin", Value: bson.A{nil, ""}}}}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: videoCollection},
			{Key: "let", Value: bson.D{{Key: "cid", Value: "$id"}}},
			{Key: "pipeline", Value: mongo.Pipeline{
				{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$content_id", "$$cid"}}},
					bson.D{{Key: "$eq", Value: bson.A{"$content_type", string(kind)}}},
				}}}}}}},
			}},
			{Key: "as", Value: "videos"},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "$expr", Value: match}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}

	cur, err := s.db.Collection(desc.Table).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, s.fail("find_without_videos", string(kind), err)
	}
	defer cur.Close(ctx)

	var out []*content.Stored
	for cur.Next(ctx) {
		st, err := decodeStored(desc, cur.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := cur.Err(); err != nil {
		return nil, s.fail("find_without_videos", string(kind), err)
	}
	return out, nil
}

func (s *MongoStore) VideoSourceHash(ctx context.Context, kind content.Kind, contentID string) (string, bool, error) {
	var doc struct {
		SourceContentHash string `bson:"source_content_hash"`
	}
	err := s.db.Collection(videoCollection).FindOne(ctx,
		bson.D{{Key: "content_type", Value: string(kind)}, {Key: "content_id", Value: contentID}},
		options.FindOne().SetProjection(bson.D{{Key: "source_content_hash", Value: 1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.fail("video_hash", contentID, err)
	}
	return doc.SourceContentHash, true, nil
}

func (s *MongoStore) UpsertVideo(ctx context.Context, v *content.Video) error {
	now := time.Now().UTC()
	set := bson.D{
		{Key: "title", Value: v.Title},
		{Key: "description", Value: v.Description},
		{Key: "author", Value: v.Author},
		{Key: "source_content_hash", Value: v.SourceContentHash},
		{Key: "updated_at", Value: now},
	}
	if len(v.ImageData) > 0 {
		set = append(set,
			bson.E{Key: "image_data", Value: v.ImageData},
			bson.E{Key: "image_mime_type", Value: v.ImageMimeType},
			bson.E{Key: "image_width", Value: v.ImageWidth},
			bson.E{Key: "image_height", Value: v.ImageHeight},
		)
	} else {
		set = append(set,
			bson.E{Key: "image_data", Value: nil},
			bson.E{Key: "image_mime_type", Value: nil},
			bson.E{Key: "image_width", Value: nil},
			bson.E{Key: "image_height", Value: nil},
		)
	}
	if v.ThumbnailURL != "" {
		set = append(set, bson.E{Key: "thumbnail_url", Value: v.ThumbnailURL})
	}

	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "id", Value: uuid.NewString()},
			{Key: "engagement_metrics", Value: v.Engagement},
			{Key: "created_at", Value: now},
		}},
	}
	filter := bson.D{{Key: "content_type", Value: string(v.ContentType)}, {Key: "content_id", Value: v.ContentID}}

	if _, err := s.db.Collection(videoCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return s.fail("upsert_video", v.ContentID, err)
	}
	return nil
}

func (s *MongoStore) Stats(ctx context.Context) ([]content.KindStats, error) {
	out := make([]content.KindStats, 0, len(content.Kinds))
	nonEmpty := bson.D{{Key: "$nin", Value: bson.A{nil, ""}}}

	for _, kind := range content.Kinds {
		coll := s.db.Collection(content.MustDescribe(kind).Table)
		ks := content.KindStats{Kind: kind}

		counts := []struct {
			dst    *int64
			coll   *mongo.Collection
			filter bson.D
		}{
			{&ks.Total, coll, bson.D{}},
			{&ks.WithArticle, coll, bson.D{{Key: "ai_generated_article", Value: nonEmpty}}},
			{&ks.WithThumbnail, coll, bson.D{{Key: "thumbnail_url", Value: nonEmpty}}},
			{&ks.WithVideo, s.db.Collection(videoCollection), bson.D{{Key: "content_type", Value: string(kind)}}},
		}
		for _, c := range counts {
			n, err := c.coll.CountDocuments(ctx, c.filter)
			if err != nil {
				return nil, s.fail("stats", string(kind), err)
			}
			*c.dst = n
		}
		out = append(out, ks)
	}
	return out, nil
}

func (s *MongoStore) fail(op, key string, err error) error {
	return &types.StorageError{Backend: backendMongo, Op: op, Key: key, Err: err}
}
