package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "civicscrape"

// Instruments are the Prometheus metrics that have no RunMetrics counterpart.
type Instruments struct {
	UpsertDuration *prometheus.HistogramVec
	GeneratorCalls *prometheus.CounterVec
}

// NewInstruments creates and registers the instruments on reg.
func NewInstruments(reg prometheus.Registerer) *Instruments {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Instruments{
		UpsertDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "upsert_duration_seconds",
				Help:      "Duration of one record upsert including enrichment",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{"kind", "classification"},
		),
		GeneratorCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "generator_calls_total",
				Help:      "External generator calls by outcome",
			},
			[]string{"generator", "outcome"},
		),
	}
}

// Collector exposes a RunMetrics as Prometheus counters.
type Collector struct {
	run   *RunMetrics
	descs map[string]*prometheus.Desc
}

var runCounters = []struct {
	name string
	help string
	get  func(Snapshot) int64
}{
	{"records_processed_total", "Records passed to upsert", func(s Snapshot) int64 { return s.TotalProcessed }},
	{"records_new_total", "Records classified as new", func(s Snapshot) int64 { return s.NewEntries }},
	{"records_unchanged_total", "Existing records with an unchanged hash", func(s Snapshot) int64 { return s.ExistingUnchanged }},
	{"records_changed_total", "Existing records with a changed hash", func(s Snapshot) int64 { return s.ExistingChanged }},
	{"articles_generated_total", "Articles generated", func(s Snapshot) int64 { return s.AIArticlesGenerated }},
	{"images_searched_total", "Thumbnail searches performed", func(s Snapshot) int64 { return s.ImagesSearched }},
	{"videos_generated_total", "Videos generated", func(s Snapshot) int64 { return s.VideosGenerated }},
	{"videos_skipped_total", "Videos skipped as current", func(s Snapshot) int64 { return s.VideosSkipped }},
	{"items_scraped_total", "Item pages extracted", func(s Snapshot) int64 { return s.ItemsScraped }},
	{"items_skipped_total", "Item pages skipped without content", func(s Snapshot) int64 { return s.ItemsSkipped }},
	{"errors_total", "Per-item errors", func(s Snapshot) int64 { return s.Errors }},
	{"api_calls_saved_total", "Estimated paid calls avoided", func(s Snapshot) int64 { return s.APICallsSaved() }},
}

// NewCollector wraps run for registration.
func NewCollector(run *RunMetrics) *Collector {
	c := &Collector{run: run, descs: make(map[string]*prometheus.Desc, len(runCounters))}
	for _, rc := range runCounters {
		c.descs[rc.name] = prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", rc.name), rc.help, nil, nil)
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.run.Snapshot()
	for _, rc := range runCounters {
		ch <- prometheus.MustNewConstMetric(c.descs[rc.name], prometheus.CounterValue, float64(rc.get(s)))
	}
}

// Server serves /metrics and /health until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds a metrics server for the metrics gathered by reg.
func NewServer(port int, path string, reg *prometheus.Registry, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("component", "metrics"),
	}
}

// Start runs the server in the background and shuts it down when ctx ends.
func (s *Server) Start(ctx context.Context) {
	s.logger.Info("metrics server starting", "addr", s.srv.Addr)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()
}
