package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

var storedCols = []string{
	"id", "title", "description", "full_text", "url", "author",
	"content_hash", "ai_generated_article", "thumbnail_url",
	"article_generations", "citations", "versions", "created_at", "updated_at",
}

func newPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewPostgresStoreFromDB(sqlx.NewDb(mockDB, "postgres"), testLogger), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresCheckExisting(t *testing.T) {
	s, mock := newPostgresStore(t)
	searched := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT content_hash, .+ FROM bill WHERE bill_number = \$1 AND source_website = \$2 LIMIT 1`).
		WithArgs("H.R. 1", "congress.gov").
		WillReturnRows(sqlmock.NewRows([]string{
			"content_hash", "has_article", "has_thumbnail", "thumbnail_search_failures", "thumbnail_searched_at",
		}).AddRow("abc", true, false, 2, searched))

	ex, found, err := s.CheckExisting(context.Background(), content.MustDescribe(content.KindBill), testBill("").NaturalKey())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "abc", ex.ContentHash)
	assert.True(t, ex.HasArticle)
	assert.False(t, ex.HasThumbnail)
	assert.Equal(t, 2, ex.ThumbnailFailures)
	require.NotNil(t, ex.ThumbnailSearchedAt)
	assert.True(t, searched.Equal(*ex.ThumbnailSearchedAt))

	expectationsMet(t, mock)
}

func TestPostgresCheckExistingMissing(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM court_case WHERE case_number = \$1`).
		WithArgs("1:24-cv-001").
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}))

	key := content.NaturalKey{{Column: "case_number", Value: "1:24-cv-001"}}
	ex, found, err := s.CheckExisting(context.Background(), content.MustDescribe(content.KindCourtCase), key)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, ex)

	expectationsMet(t, mock)
}

func TestPostgresUpsert(t *testing.T) {
	s, mock := newPostgresStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO bill \(bill_number,source_website,title,.+\) VALUES .+ ON CONFLICT \(bill_number, source_website\) DO UPDATE SET .+versions = CASE.+article_generations = CASE WHEN bill\.content_hash <> EXCLUDED\.content_hash THEN '\[\]'::jsonb ELSE bill\.article_generations END.+ RETURNING id, title`).
		WillReturnRows(sqlmock.NewRows(storedCols).AddRow(
			"8a4c", "Lower Energy Costs Act", "Summary", "A bill to lower energy costs.",
			"https://www.congress.gov/bill/118th-congress/house-bill/1", "congress.gov",
			"newhash", nil, nil,
			[]byte(`[]`),
			[]byte(`[]`),
			[]byte(`[{"hash":"oldhash","updatedAt":"2025-02-01T00:00:00Z","changes":"Content updated"}]`),
			now.Add(-time.Hour), now,
		))

	w := write(testBill("Passed House"), now)
	w.Description = strPtr("Summary")
	st, err := s.Upsert(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, "8a4c", st.ID)
	assert.Equal(t, content.KindBill, st.Kind)
	assert.Equal(t, "congress.gov", st.Author)
	require.Len(t, st.Versions, 1)
	assert.Equal(t, "oldhash", st.Versions[0].Hash)
	assert.Empty(t, st.AIGeneratedArticle)

	expectationsMet(t, mock)
}

func TestPostgresUpsertFailure(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectQuery("INSERT INTO government_content").WillReturnError(assert.AnError)

	rec := &content.GovernmentContent{Core: content.Core{Title: "Fact Sheet", URL: "https://www.whitehouse.gov/fact-sheets/x"}}
	_, err := s.Upsert(context.Background(), write(rec, time.Now()))
	require.Error(t, err)

	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "postgres", se.Backend)
	assert.Equal(t, "upsert", se.Op)
	assert.ErrorIs(t, err, assert.AnError)

	expectationsMet(t, mock)
}

func TestPostgresGetByIDNotFound(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectQuery(`SELECT id, .+ FROM bill WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(storedCols))

	_, err := s.GetByID(context.Background(), content.KindBill, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	expectationsMet(t, mock)
}

func TestPostgresSaveArticleGeneration(t *testing.T) {
	s, mock := newPostgresStore(t)
	gen := content.ArticleGeneration{Depth: 2, Content: "brief", GeneratedAt: time.Now()}

	mock.ExpectExec(`UPDATE bill SET article_generations = .+WHERE \(g->>'depth'\)::int <> \$1.+ WHERE id = \$4`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SaveArticleGeneration(context.Background(), content.KindBill, "8a4c", gen, nil))

	mock.ExpectExec("UPDATE bill SET article_generations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.SaveArticleGeneration(context.Background(), content.KindBill, "gone", gen, nil)
	assert.ErrorIs(t, err, types.ErrNotFound)

	expectationsMet(t, mock)
}

func TestPostgresFindWithoutVideos(t *testing.T) {
	s, mock := newPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT t.id, .+ FROM court_case AS t LEFT JOIN video AS v ON v.content_type = \$1 AND v.content_id = t.id WHERE .+ AND \(v.id IS NULL OR v.source_content_hash <> t.content_hash\) ORDER BY t.created_at DESC LIMIT 5`).
		WithArgs("court_case").
		WillReturnRows(sqlmock.NewRows(storedCols).AddRow(
			"c1", "Doe v. Roe", nil, "Opinion text", "https://courtlistener.com/c1", nil,
			"h", nil, nil, []byte(`[]`), []byte(`[]`), []byte(`[]`), now, now,
		))

	got, err := s.FindWithoutVideos(context.Background(), content.KindCourtCase, 5, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "court", got[0].Author)
	assert.Equal(t, "Opinion text", got[0].FullText)

	expectationsMet(t, mock)
}

func TestPostgresVideoSourceHash(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectQuery(`SELECT source_content_hash FROM video WHERE content_id = \$1 AND content_type = \$2`).
		WithArgs("8a4c", "bill").
		WillReturnRows(sqlmock.NewRows([]string{"source_content_hash"}).AddRow("h1"))

	hash, found, err := s.VideoSourceHash(context.Background(), content.KindBill, "8a4c")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "h1", hash)

	expectationsMet(t, mock)
}

func TestPostgresUpsertVideo(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectExec(`INSERT INTO video .+ ON CONFLICT \(content_type, content_id\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.UpsertVideo(context.Background(), &content.Video{
		ContentType:       content.KindBill,
		ContentID:         "8a4c",
		Title:             "Energy bill",
		Description:       "What it does",
		Author:            "congress.gov",
		SourceContentHash: "h1",
	})
	require.NoError(t, err)

	expectationsMet(t, mock)
}

func TestPostgresStats(t *testing.T) {
	s, mock := newPostgresStore(t)

	for i, kind := range content.Kinds {
		mock.ExpectQuery("SELECT COUNT.+FROM " + content.MustDescribe(kind).Table).
			WithArgs(string(kind)).
			WillReturnRows(sqlmock.NewRows([]string{"total", "with_article", "with_thumbnail", "with_video"}).
				AddRow(10+i, 4, 3, 2))
	}

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, content.KindBill, stats[0].Kind)
	assert.Equal(t, int64(10), stats[0].Total)
	assert.Equal(t, int64(12), stats[2].Total)
	assert.Equal(t, int64(2), stats[1].WithVideo)

	expectationsMet(t, mock)
}

func TestPostgresMigrate(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS pgcrypto").WillReturnResult(sqlmock.NewResult(0, 0))
	for range schema[1:] {
		mock.ExpectExec("CREATE (TABLE|INDEX) IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, s.Migrate(context.Background()))
	expectationsMet(t, mock)
}
