package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchFixture = `{
  "items": [
    {"title": "", "link": "not a url", "displayLink": "bad.example"},
    {
      "title": "US Capitol at sunrise",
      "link": "https://images.example.gov/capitol.jpg",
      "displayLink": "images.example.gov",
      "image": {
        "contextLink": "https://example.gov/capitol",
        "thumbnailLink": "https://encrypted-tbn0.gstatic.com/images?q=tbn:capitol"
      }
    },
    {"link": "https://images.example.gov/senate.jpg"}
  ]
}`

func newSearchServer(t *testing.T, status int, body string) (*httptest.Server, *[]string) {
	t.Helper()
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		queries = append(queries, q.Get("q"))
		assert.Equal(t, "image", q.Get("searchType"))
		assert.Equal(t, "key", q.Get("key"))
		assert.Equal(t, "cx", q.Get("cx"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &queries
}

func TestImageSearcherMapsResults(t *testing.T) {
	srv, queries := newSearchServer(t, http.StatusOK, searchFixture)

	cfg := testImagesConfig("")
	cfg.SearchEndpoint = srv.URL
	cfg.GoogleAPIKey = "key"
	cfg.GoogleSearchEngineID = "cx"

	s := NewImageSearcher(cfg, nil, testLogger)
	results := s.Search(context.Background(), "capitol building", 3)
	require.Len(t, results, 2)

	assert.Equal(t, ImageResult{
		URL:       "https://encrypted-tbn0.gstatic.com/images?q=tbn:capitol",
		Alt:       "US Capitol at sunrise",
		Source:    "images.example.gov",
		SourceURL: "https://example.gov/capitol",
	}, results[0])
	assert.Equal(t, ImageResult{
		URL:       "https://images.example.gov/senate.jpg",
		Alt:       "Image related to capitol building",
		Source:    "Google Images",
		SourceURL: "https://images.example.gov/senate.jpg",
	}, results[1])

	assert.Equal(t, "https://encrypted-tbn0.gstatic.com/images?q=tbn:capitol", s.Thumbnail(context.Background(), "capitol building"))
	assert.Equal(t, []string{"capitol building", "capitol building"}, *queries)
}

func TestImageSearcherQuotaReturnsEmpty(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusTooManyRequests} {
		srv, _ := newSearchServer(t, status, `{"error":{"message":"quota"}}`)

		api := &imageAPI{png: testPNG(t)}
		imgSrv := newImageServer(t, api)

		cfg := testImagesConfig(imgSrv.URL)
		cfg.SearchEndpoint = srv.URL
		cfg.GoogleAPIKey = "key"
		cfg.GoogleSearchEngineID = "cx"

		s := NewImageSearcher(cfg, NewImageGenerator(cfg, "sk", testLogger), testLogger)
		assert.Empty(t, s.Search(context.Background(), "q", 1), "status %d", status)
		assert.Equal(t, int32(0), api.calls.Load(), "quota errors must not fall back")
	}
}

func TestImageSearcherFallsBackToGeneration(t *testing.T) {
	api := &imageAPI{png: testPNG(t)}
	imgSrv := newImageServer(t, api)

	// Unconfigured search.
	cfg := testImagesConfig(imgSrv.URL)
	s := NewImageSearcher(cfg, NewImageGenerator(cfg, "sk", testLogger), testLogger)
	results := s.Search(context.Background(), "solar panels", 1)
	require.Len(t, results, 1)
	assert.Equal(t, imgSrv.URL+"/img.png", results[0].URL)
	assert.Equal(t, "AI-generated image for solar panels", results[0].Alt)
	assert.Equal(t, "OpenAI DALL-E", results[0].Source)
	assert.Equal(t, "A high-quality, professional image representing: solar panels", api.prompts[0])

	// Configured search with no items.
	srv, _ := newSearchServer(t, http.StatusOK, `{}`)
	cfg.SearchEndpoint = srv.URL
	cfg.GoogleAPIKey = "key"
	cfg.GoogleSearchEngineID = "cx"
	s = NewImageSearcher(cfg, NewImageGenerator(cfg, "sk", testLogger), testLogger)
	assert.Equal(t, imgSrv.URL+"/img.png", s.Thumbnail(context.Background(), "solar panels"))
}

func TestImageSearcherNoFallback(t *testing.T) {
	s := NewImageSearcher(testImagesConfig(""), nil, testLogger)
	assert.Equal(t, "", s.Thumbnail(context.Background(), "q"))
}
