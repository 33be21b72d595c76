package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// callsPerUnchanged is the number of paid API calls an unchanged record
// would otherwise cost: summary, article, keywords and image search.
const callsPerUnchanged = 4

// RunMetrics tracks the outcome of one pipeline run. It is passed explicitly
// to the orchestrator, spiders and batch jobs; every counter is safe for
// concurrent use.
type RunMetrics struct {
	TotalProcessed      atomic.Int64
	NewEntries          atomic.Int64
	ExistingUnchanged   atomic.Int64
	ExistingChanged     atomic.Int64
	AIArticlesGenerated atomic.Int64
	ImagesSearched      atomic.Int64
	VideosGenerated     atomic.Int64
	VideosSkipped       atomic.Int64

	// Spider metrics
	ItemsScraped atomic.Int64
	ItemsSkipped atomic.Int64
	Errors       atomic.Int64

	instruments *Instruments
	logger      *slog.Logger
}

// NewRunMetrics creates a new RunMetrics instance. instruments may be nil.
func NewRunMetrics(logger *slog.Logger, instruments *Instruments) *RunMetrics {
	return &RunMetrics{
		instruments: instruments,
		logger:      logger.With("component", "metrics"),
	}
}

// ObserveUpsert records how long one upsert took and how it was classified.
func (m *RunMetrics) ObserveUpsert(kind, classification string, d time.Duration) {
	if m.instruments == nil {
		return
	}
	m.instruments.UpsertDuration.WithLabelValues(kind, classification).Observe(d.Seconds())
}

// ObserveGeneration counts one external generator call by outcome.
func (m *RunMetrics) ObserveGeneration(generator, outcome string) {
	if m.instruments == nil {
		return
	}
	m.instruments.GeneratorCalls.WithLabelValues(generator, outcome).Inc()
}

// Snapshot is a point-in-time copy of RunMetrics.
type Snapshot struct {
	TotalProcessed      int64 `json:"totalProcessed"`
	NewEntries          int64 `json:"newEntries"`
	ExistingUnchanged   int64 `json:"existingUnchanged"`
	ExistingChanged     int64 `json:"existingChanged"`
	AIArticlesGenerated int64 `json:"aiArticlesGenerated"`
	ImagesSearched      int64 `json:"imagesSearched"`
	VideosGenerated     int64 `json:"videosGenerated"`
	VideosSkipped       int64 `json:"videosSkipped"`
	ItemsScraped        int64 `json:"itemsScraped"`
	ItemsSkipped        int64 `json:"itemsSkipped"`
	Errors              int64 `json:"errors"`
}

// APICallsSaved estimates paid calls avoided by skipping unchanged content.
func (s Snapshot) APICallsSaved() int64 {
	return s.ExistingUnchanged * callsPerUnchanged
}

// Snapshot returns the current counter values.
func (m *RunMetrics) Snapshot() Snapshot {
	return Snapshot{
		TotalProcessed:      m.TotalProcessed.Load(),
		NewEntries:          m.NewEntries.Load(),
		ExistingUnchanged:   m.ExistingUnchanged.Load(),
		ExistingChanged:     m.ExistingChanged.Load(),
		AIArticlesGenerated: m.AIArticlesGenerated.Load(),
		ImagesSearched:      m.ImagesSearched.Load(),
		VideosGenerated:     m.VideosGenerated.Load(),
		VideosSkipped:       m.VideosSkipped.Load(),
		ItemsScraped:        m.ItemsScraped.Load(),
		ItemsSkipped:        m.ItemsSkipped.Load(),
		Errors:              m.Errors.Load(),
	}
}

// Reset zeroes every counter so the instance can serve another run.
func (m *RunMetrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.TotalProcessed, &m.NewEntries, &m.ExistingUnchanged, &m.ExistingChanged,
		&m.AIArticlesGenerated, &m.ImagesSearched, &m.VideosGenerated, &m.VideosSkipped,
		&m.ItemsScraped, &m.ItemsSkipped, &m.Errors,
	} {
		c.Store(0)
	}
}

// LogSummary writes the snapshot as one structured log line.
func (m *RunMetrics) LogSummary(name string) {
	s := m.Snapshot()
	m.logger.Info("run complete",
		"run", name,
		"processed", s.TotalProcessed,
		"new", s.NewEntries,
		"unchanged", s.ExistingUnchanged,
		"changed", s.ExistingChanged,
		"articles", s.AIArticlesGenerated,
		"images", s.ImagesSearched,
		"videos", s.VideosGenerated,
		"videos_skipped", s.VideosSkipped,
		"errors", s.Errors,
		"api_calls_saved", s.APICallsSaved(),
	)
}

// PrintSummary writes a human-readable summary block to w.
func (m *RunMetrics) PrintSummary(w io.Writer, name string) {
	s := m.Snapshot()
	rule := strings.Repeat("━", 40)

	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "%s Metrics Summary\n", name)
	fmt.Fprintf(w, "%s\n", rule)
	fmt.Fprintf(w, "Total Processed:       %d\n", s.TotalProcessed)
	fmt.Fprintf(w, "New Entries:           %d\n", s.NewEntries)
	fmt.Fprintf(w, "Existing (Unchanged):  %d\n", s.ExistingUnchanged)
	fmt.Fprintf(w, "Existing (Changed):    %d\n", s.ExistingChanged)
	fmt.Fprintf(w, "AI Articles Generated: %d\n", s.AIArticlesGenerated)
	fmt.Fprintf(w, "Images Searched:       %d\n", s.ImagesSearched)
	fmt.Fprintf(w, "Videos Generated:      %d\n", s.VideosGenerated)
	fmt.Fprintf(w, "Videos Skipped:        %d\n", s.VideosSkipped)
	fmt.Fprintf(w, "Errors:                %d\n", s.Errors)
	fmt.Fprintf(w, "API Calls Saved:       ~%d (from skipping unchanged content)\n", s.APICallsSaved())
	fmt.Fprintf(w, "%s\n\n", rule)
}
