package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/CivicScrape/internal/ai"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/observability"
	"github.com/IshaanNene/CivicScrape/internal/storage"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeMarketing struct{ labels []string }

func (f *fakeMarketing) Write(_ context.Context, title, _, label string) ai.MarketingCopy {
	f.labels = append(f.labels, label)
	return ai.MarketingCopy{Title: "Energy bill", Description: "What " + title + " does.", ImagePrompt: "power lines"}
}

type fakeImages struct {
	calls int
	img   *ai.GeneratedImage
}

func (f *fakeImages) Generate(_ context.Context, _ string) *ai.GeneratedImage {
	f.calls++
	return f.img
}

func pngImage(t *testing.T) *ai.GeneratedImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &ai.GeneratedImage{Data: buf.Bytes(), MimeType: "image/png", Width: 1024, Height: 1024}
}

func seedBill(t *testing.T, store *storage.MemoryStore, number, status string, at time.Time) *content.Stored {
	t.Helper()
	rec := &content.Bill{
		Core:          content.Core{Title: "Bill " + number, FullText: "Full text of " + number, URL: "https://congress.gov/" + number},
		BillNumber:    number,
		SourceWebsite: "congress.gov",
		Status:        status,
	}
	st, err := store.Upsert(context.Background(), &storage.Write{Record: rec, Hash: content.HashRecord(rec), Now: at})
	require.NoError(t, err)
	return st
}

func TestGeneratorWritesJPEGVideo(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(testLogger)
	st := seedBill(t, store, "H.R. 1", "Introduced", time.Now())
	m := &fakeMarketing{}
	images := &fakeImages{img: pngImage(t)}
	metrics := observability.NewRunMetrics(testLogger, nil)
	g := NewGenerator(store, m, images, metrics, 85, testLogger, WithRand(rand.New(rand.NewPCG(1, 2))))

	generated, err := g.Generate(ctx, st)
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Equal(t, []string{"bill"}, m.labels)

	v, ok := store.Video(content.KindBill, st.ID)
	require.True(t, ok)
	assert.Equal(t, "Energy bill", v.Title)
	assert.Equal(t, "image/jpeg", v.ImageMimeType)
	assert.Equal(t, 1024, v.ImageWidth)
	assert.Equal(t, "congress.gov", v.Author)
	assert.Equal(t, st.ContentHash, v.SourceContentHash)

	_, format, err := image.Decode(bytes.NewReader(v.ImageData))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	e := v.Engagement
	assert.True(t, e.Likes >= 1000 && e.Likes <= 50999, "likes %d", e.Likes)
	assert.True(t, e.Comments >= 50 && e.Comments <= 2049, "comments %d", e.Comments)
	assert.True(t, e.Shares >= 10 && e.Shares <= 1009, "shares %d", e.Shares)

	// Same hash: skipped without any generator call.
	generated, err = g.Generate(ctx, st)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, 1, images.calls)
	assert.Equal(t, int64(1), metrics.VideosGenerated.Load())
	assert.Equal(t, int64(1), metrics.VideosSkipped.Load())
}

func TestGeneratorWithoutImage(t *testing.T) {
	store := storage.NewMemoryStore(testLogger)
	st := seedBill(t, store, "S. 5", "Introduced", time.Now())
	g := NewGenerator(store, &fakeMarketing{}, &fakeImages{}, nil, 0, testLogger)

	generated, err := g.Generate(context.Background(), st)
	require.NoError(t, err)
	assert.True(t, generated)

	v, ok := store.Video(content.KindBill, st.ID)
	require.True(t, ok)
	assert.Empty(t, v.ImageData)
	assert.Zero(t, v.ImageWidth)
}

func TestJobBackfillAndStale(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(testLogger)
	t0 := time.Now()
	first := seedBill(t, store, "H.R. 1", "Introduced", t0)
	seedBill(t, store, "H.R. 2", "Introduced", t0.Add(time.Minute))

	images := &fakeImages{img: pngImage(t)}
	g := NewGenerator(store, &fakeMarketing{}, images, nil, 85, testLogger)
	job := NewJob(store, g, testLogger)

	results, err := job.Run(ctx, JobOptions{Kinds: []content.Kind{content.KindBill}, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, results[0].Found)
	assert.Zero(t, images.calls)

	results, err = job.Run(ctx, JobOptions{Kinds: []content.Kind{content.KindBill}})
	require.NoError(t, err)
	assert.Equal(t, KindResult{Kind: content.KindBill, Found: 2, Generated: 2}, results[0])

	before, _ := store.Video(content.KindBill, first.ID)

	results, err = job.Run(ctx, JobOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Zero(t, results[0].Found)

	// H.R. 1 changes: only --stale picks it up again.
	seedBill(t, store, "H.R. 1", "Passed House", t0.Add(time.Hour))
	results, err = job.Run(ctx, JobOptions{Kinds: []content.Kind{content.KindBill}})
	require.NoError(t, err)
	assert.Zero(t, results[0].Found)

	results, err = job.Run(ctx, JobOptions{Kinds: []content.Kind{content.KindBill}, Stale: true, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Generated)

	after, _ := store.Video(content.KindBill, first.ID)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Engagement, after.Engagement)
	assert.NotEqual(t, before.SourceContentHash, after.SourceContentHash)

	var buf bytes.Buffer
	PrintResults(&buf, results, false)
	assert.True(t, strings.Contains(buf.String(), "Videos generated: 1"))
}

type brokenStore struct {
	*storage.MemoryStore
}

func (brokenStore) UpsertVideo(context.Context, *content.Video) error {
	return errors.New("write failed")
}

func TestJobCountsRecordErrors(t *testing.T) {
	mem := storage.NewMemoryStore(testLogger)
	seedBill(t, mem, "H.R. 1", "Introduced", time.Now())
	store := brokenStore{mem}
	metrics := observability.NewRunMetrics(testLogger, nil)
	g := NewGenerator(store, &fakeMarketing{}, nil, metrics, 85, testLogger)

	results, err := NewJob(store, g, testLogger).Run(context.Background(), JobOptions{Kinds: []content.Kind{content.KindBill}})
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Errors)
	assert.Equal(t, int64(1), metrics.Errors.Load())
}
