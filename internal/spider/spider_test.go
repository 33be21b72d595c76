package spider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/fetcher"
	"github.com/IshaanNene/CivicScrape/internal/observability"
	"github.com/IshaanNene/CivicScrape/internal/parser"
	"github.com/IshaanNene/CivicScrape/internal/pipeline"
	"github.com/IshaanNene/CivicScrape/internal/storage"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// recorder collects upserted records. failFirst makes the first upsert fail
// with a storage error.
type recorder struct {
	mu        sync.Mutex
	recs      []content.Record
	failFirst bool
	calls     int
}

func (r *recorder) Upsert(_ context.Context, rec content.Record) (*pipeline.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failFirst && r.calls == 1 {
		return nil, &types.StorageError{Backend: "memory", Op: "upsert", Err: errors.New("disk full")}
	}
	r.recs = append(r.recs, rec)
	return &pipeline.Result{}, nil
}

func (r *recorder) sorted() []content.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]content.Record(nil), r.recs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Base().URL < out[j].Base().URL })
	return out
}

func testSpiderConfig() config.SpiderConfig {
	return config.SpiderConfig{
		ItemTimeout:     5 * time.Second,
		Concurrency:     2,
		MaxListingPages: 5,
		Congress:        118,
		Chamber:         "House",
		Sections:        []string{"news"},
	}
}

func newTestRunner(t *testing.T, up Upserter, cfg config.SpiderConfig, metrics *observability.RunMetrics) *Runner {
	t.Helper()
	fcfg := config.DefaultConfig()
	fcfg.Fetcher.Type = "http"
	fcfg.Fetcher.Timeout = 5 * time.Second
	f, err := fetcher.NewHTTPFetcher(fcfg, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	noSleep := func(context.Context, time.Duration) error { return nil }
	return NewRunner(f, up, cfg, metrics, testLogger, WithSleep(noSleep))
}

func serve(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func whitehouseItem(headline, datetime string) string {
	date := ""
	if datetime != "" {
		date = `<div class="wp-block-post-date"><time datetime="` + datetime + `">January 20, 2025</time></div>`
	}
	return `<html><body>
<h1 class="wp-block-whitehouse-topper__headline">` + headline + `</h1>
` + date + `
<div class="entry-content">
  <div class="topper">Topper text</div>
  <p>First paragraph.</p>
  <p>  </p>
  <p>Second paragraph.</p>
</div>
</body></html>`
}

func whitehouseSite(t *testing.T) *httptest.Server {
	return serve(t, whitehousePages())
}

func whitehousePages() map[string]string {
	return map[string]string{
		"/news/": `<html><body>
<h2 class="wp-block-post-title"><a href="/fact-sheets/2025/01/fact-sheet-energy/">Fact Sheet</a></h2>
<h2 class="wp-block-post-title"><a href="/presidential-actions/2025/01/declaring-an-emergency/">EO</a></h2>
<a class="wp-block-query-pagination-next" href="/news/page/2/">Next</a>
</body></html>`,
		"/news/page/2/": `<html><body>
<h2 class="wp-block-post-title"><a href="/fact-sheets/2025/01/fact-sheet-energy/">Fact Sheet</a></h2>
<h2 class="wp-block-post-title"><a href="/briefings-statements/2025/01/statement/">Statement</a></h2>
</body></html>`,
		"/fact-sheets/2025/01/fact-sheet-energy/":               whitehouseItem("Fact Sheet: Unleashing American Energy", "2025-01-20T12:00:00-05:00"),
		"/presidential-actions/2025/01/declaring-an-emergency/": whitehouseItem("Executive Order on Declaring a National Energy Emergency", "2025-01-20"),
		"/briefings-statements/2025/01/statement/":              whitehouseItem("Statement from the Press Secretary", ""),
	}
}

func TestWhitehouseSpider(t *testing.T) {
	srv := whitehouseSite(t)
	rec := &recorder{}
	metrics := observability.NewRunMetrics(testLogger, nil)
	r := newTestRunner(t, rec, testSpiderConfig(), metrics)

	wh := NewWhitehouse(testSpiderConfig())
	wh.BaseURL = srv.URL
	fixed := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	wh.now = func() time.Time { return fixed }

	require.NoError(t, r.Run(context.Background(), wh))

	recs := rec.sorted()
	require.Len(t, recs, 3, "duplicate listing links are fetched once")
	assert.Equal(t, int64(3), metrics.ItemsScraped.Load())

	statement := recs[0].(*content.GovernmentContent)
	assert.Equal(t, "Briefing Statement", statement.Type)
	assert.Equal(t, fixed, statement.PublishedDate, "pages without a date fall back to now")

	fact := recs[1].(*content.GovernmentContent)
	assert.Equal(t, "Fact Sheet: Unleashing American Energy", fact.Title)
	assert.Equal(t, "Fact Sheet", fact.Type)
	assert.Equal(t, "whitehouse.gov", fact.Source)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", fact.FullText)
	assert.Equal(t, "First paragraph. Second paragraph.", fact.Description)
	assert.Equal(t, 2025, fact.PublishedDate.Year())

	action := recs[2].(*content.GovernmentContent)
	assert.Equal(t, "Executive Order", action.Type)
}

func TestWhitehouseMetadataFallback(t *testing.T) {
	req, err := types.NewRequest("https://www.whitehouse.gov/news/2025/01/remarks/")
	require.NoError(t, err)
	resp := &types.Response{Request: req, StatusCode: 200, Body: []byte(`<html><head>
<meta property="og:description" content="Remarks by the President at the signing.">
<meta property="article:published_time" content="2025-01-20T17:30:00+00:00">
</head><body><h1>Remarks by the President</h1><div class="entry-content"></div></body></html>`)}
	p, err := parser.NewPage(resp, testLogger)
	require.NoError(t, err)

	rec, err := NewWhitehouse(testSpiderConfig()).Parse(p)
	require.NoError(t, err)
	gc := rec.(*content.GovernmentContent)
	assert.Equal(t, "Remarks by the President", gc.Title)
	assert.Equal(t, "News Article", gc.Type)
	assert.Equal(t, "Remarks by the President at the signing.", gc.Description)
	assert.Equal(t, time.Date(2025, 1, 20, 17, 30, 0, 0, time.UTC), gc.PublishedDate.UTC())
}

func TestWhitehouseSections(t *testing.T) {
	cfg := testSpiderConfig()
	cfg.Sections = []string{"news", "/presidential-actions/"}
	wh := NewWhitehouse(cfg)

	assert.Equal(t, []string{
		"https://www.whitehouse.gov/news/",
		"https://www.whitehouse.gov/presidential-actions/",
	}, wh.Listings())
}

const congressHouseBill = `<html><body>
<h1 class="legDetail">H.R.1 - Lower Energy Costs Act<span>118th Congress (2023-2024)</span></h1>
<table class="standard01">
  <tr><th>Sponsor:</th><td>Rep. Scalise, Steve [R-LA-1] (Introduced 03/14/2023)</td></tr>
</table>
<p class="bill-status">Passed House
  (03/30/2023)</p>
<div class="summary">This bill addresses energy production.<script>$(document).ready(function(){})</script></div>
<div class="bill-text">Be it enacted by the Senate and House of Representatives.</div>
</body></html>`

const congressSenateBill = `<html><body>
<h1>S.5 - Laken Riley Act<span>119th Congress (2025-2026)</span></h1>
<div class="bill-text">An act to require detention.</div>
</body></html>`

func TestCongressSpider(t *testing.T) {
	var searchQuery atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = fmt.Fprint(w, `<html><body><a href="/bill/118th-congress/senate-bill/5?s=1">S.5</a></body></html>`)
			return
		}
		searchQuery.Store(r.URL.Query().Get("q"))
		_, _ = fmt.Fprint(w, `<html><body>
<a href="/bill/118th-congress/house-bill/1">H.R.1</a>
<a href="/bill/118th-congress/house-bill/1/text">Text</a>
<a href="/member/steve-scalise/S001176">Sponsor</a>
<a class="next" href="/search?page=2">Next</a>
</body></html>`)
	})
	mux.HandleFunc("/bill/118th-congress/house-bill/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, congressHouseBill)
	})
	mux.HandleFunc("/bill/118th-congress/senate-bill/5", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, congressSenateBill)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	r := newTestRunner(t, rec, testSpiderConfig(), nil)
	c := NewCongress(testSpiderConfig())
	c.BaseURL = srv.URL

	require.NoError(t, r.Run(context.Background(), c))
	assert.Equal(t, `{"congress":118,"chamber":"House","type":"bills"}`, searchQuery.Load())

	recs := rec.sorted()
	require.Len(t, recs, 2)

	hr := recs[0].(*content.Bill)
	assert.Equal(t, "H.R.1", hr.BillNumber)
	assert.Equal(t, "Lower Energy Costs Act", hr.Title)
	assert.Equal(t, "Rep. Scalise, Steve [R-LA-1]", hr.Sponsor)
	require.NotNil(t, hr.IntroducedDate)
	assert.Equal(t, time.Date(2023, 3, 14, 0, 0, 0, 0, time.UTC), *hr.IntroducedDate)
	assert.Equal(t, "Passed House", hr.Status)
	assert.Equal(t, "This bill addresses energy production.", hr.Summary)
	assert.Equal(t, hr.Summary, hr.Description)
	assert.Equal(t, "Be it enacted by the Senate and House of Representatives.", hr.FullText)
	assert.Equal(t, 118, hr.Congress)
	assert.Equal(t, "House", hr.Chamber)
	assert.Equal(t, "house_bill", hr.BillType)
	assert.Equal(t, "congress.gov", hr.SourceWebsite)

	s := recs[1].(*content.Bill)
	assert.Equal(t, "S.5", s.BillNumber)
	assert.Equal(t, "Laken Riley Act", s.Title)
	assert.Equal(t, "Senate", s.Chamber)
	assert.Nil(t, s.IntroducedDate)
}

func TestGovtrackSpider(t *testing.T) {
	srv := serve(t, map[string]string{
		"/congress/bills/": `<html><body>
<a href="/congress/bills/119/hr1">H.R. 1</a>
<a href="/congress/bills/119/s5">S. 5</a>
<a href="/congress/bills/subjects/taxation/4294">Taxation</a>
</body></html>`,
		"/congress/bills/119/hr1/text": `<html><body>
<div class="h1-multiline"><h1>H.R. 1: One Big Beautiful Bill Act</h1></div>
<p>Sponsor: Rep. Jodey Arrington [R-TX19]</p>
<p>Introduced: May 20, 2025</p>
<p class="bill-status">Enacted - Signed by the President</p>
<div class="summary">Reconciliation bill.</div>
<div id="content"><article class="bill">SEC. 1. Short title. This Act may be cited as the One Big Beautiful Bill Act.</article></div>
</body></html>`,
		"/congress/bills/119/s5/text": `<html><body>
<div class="h1-multiline"><h1>S. 5: Laken Riley Act</h1></div>
<div id="content"><p>Text not available.</p></div>
</body></html>`,
	})

	rec := &recorder{}
	metrics := observability.NewRunMetrics(testLogger, nil)
	r := newTestRunner(t, rec, testSpiderConfig(), metrics)
	g := NewGovtrack(testSpiderConfig())
	g.BaseURL = srv.URL

	require.NoError(t, r.Run(context.Background(), g))

	recs := rec.sorted()
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), metrics.ItemsSkipped.Load(), "bills without text are skipped")

	b := recs[0].(*content.Bill)
	assert.Equal(t, "H.R. 1", b.BillNumber)
	assert.Equal(t, "One Big Beautiful Bill Act", b.Title)
	assert.Equal(t, srv.URL+"/congress/bills/119/hr1", b.URL)
	assert.Equal(t, "Rep. Jodey Arrington [R-TX19]", b.Sponsor)
	require.NotNil(t, b.IntroducedDate)
	assert.Equal(t, time.May, b.IntroducedDate.Month())
	assert.Equal(t, "Reconciliation bill.", b.Summary)
	assert.Equal(t, 119, b.Congress)
	assert.Equal(t, "House", b.Chamber)
	assert.Equal(t, "house_bill", b.BillType)
	assert.Equal(t, "govtrack", b.SourceWebsite)
}

func TestRunnerRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/news/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `<h2 class="wp-block-post-title"><a href="/fact-sheets/a/">A</a></h2>`)
	})
	mux.HandleFunc("/fact-sheets/a/", func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, whitehouseItem("Fact Sheet: Retry", "2025-01-20"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testSpiderConfig()
	cfg.MaxRetries = 3
	rec := &recorder{}
	r := newTestRunner(t, rec, cfg, nil)
	wh := NewWhitehouse(cfg)
	wh.BaseURL = srv.URL

	require.NoError(t, r.Run(context.Background(), wh))
	assert.Equal(t, int32(3), hits.Load())
	assert.Len(t, rec.sorted(), 1)
}

func TestRunnerDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/news/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `<h2 class="wp-block-post-title"><a href="/fact-sheets/gone/">Gone</a></h2>`)
	})
	mux.HandleFunc("/fact-sheets/gone/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testSpiderConfig()
	cfg.MaxRetries = 3
	metrics := observability.NewRunMetrics(testLogger, nil)
	r := newTestRunner(t, &recorder{}, cfg, metrics)
	wh := NewWhitehouse(cfg)
	wh.BaseURL = srv.URL

	require.NoError(t, r.Run(context.Background(), wh))
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int64(1), metrics.Errors.Load())
}

func TestRunnerMaxItems(t *testing.T) {
	srv := whitehouseSite(t)
	cfg := testSpiderConfig()
	cfg.MaxItems = 1

	rec := &recorder{}
	r := newTestRunner(t, rec, cfg, nil)
	wh := NewWhitehouse(cfg)
	wh.BaseURL = srv.URL

	require.NoError(t, r.Run(context.Background(), wh))
	assert.Len(t, rec.sorted(), 1)
}

func TestRunnerContinuesAfterStorageError(t *testing.T) {
	srv := whitehouseSite(t)
	cfg := testSpiderConfig()
	cfg.Concurrency = 1

	rec := &recorder{failFirst: true}
	metrics := observability.NewRunMetrics(testLogger, nil)
	r := newTestRunner(t, rec, cfg, metrics)
	wh := NewWhitehouse(cfg)
	wh.BaseURL = srv.URL

	require.NoError(t, r.Run(context.Background(), wh))
	assert.Equal(t, 3, rec.calls)
	assert.Len(t, rec.sorted(), 2)
	assert.Equal(t, int64(1), metrics.Errors.Load())
}

func TestRunnerListingFailure(t *testing.T) {
	srv := serve(t, map[string]string{})
	r := newTestRunner(t, &recorder{}, testSpiderConfig(), nil)
	wh := NewWhitehouse(testSpiderConfig())
	wh.BaseURL = srv.URL

	err := r.Run(context.Background(), wh)
	require.Error(t, err)
	var fe *types.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestRunnerWithOrchestrator(t *testing.T) {
	srv := whitehouseSite(t)
	store := storage.NewMemoryStore(testLogger)
	metrics := observability.NewRunMetrics(testLogger, nil)
	orch := pipeline.NewOrchestrator(store, pipeline.Enrichers{}, metrics, config.EnrichConfig{}, testLogger)

	wh := NewWhitehouse(testSpiderConfig())
	wh.BaseURL = srv.URL

	for run := 0; run < 2; run++ {
		r := newTestRunner(t, orch, testSpiderConfig(), metrics)
		require.NoError(t, r.Run(context.Background(), wh))
	}

	snap := metrics.Snapshot()
	assert.Equal(t, int64(3), snap.NewEntries)
	assert.Equal(t, int64(3), snap.ExistingUnchanged)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	for _, s := range stats {
		if s.Kind == content.KindGovernmentContent {
			assert.Equal(t, int64(3), s.Total)
		}
	}
}

func TestResolve(t *testing.T) {
	cfg := testSpiderConfig()

	all, err := Resolve("all", cfg)
	require.NoError(t, err)
	var names []string
	for _, sp := range all {
		names = append(names, sp.Name())
	}
	assert.Equal(t, []string{"govtrack", "whitehouse", "congress"}, names)

	one, err := Resolve("Congress", cfg)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "congress", one[0].Name())

	_, err = Resolve("scotus", cfg)
	assert.Error(t, err)
}
