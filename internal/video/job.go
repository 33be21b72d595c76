package video

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/IshaanNene/CivicScrape/internal/content"
)

// JobOptions select what the retroactive job processes.
type JobOptions struct {
	Kinds []content.Kind
	// Limit caps records per kind; zero means no cap.
	Limit int
	// Stale also regenerates videos built from an older content hash.
	Stale  bool
	DryRun bool
}

// KindResult is the job outcome for one kind.
type KindResult struct {
	Kind      content.Kind
	Found     int
	Generated int
	Skipped   int
	Errors    int
}

// Job backfills videos for records that have none.
type Job struct {
	store  Store
	gen    *Generator
	logger *slog.Logger
}

// NewJob creates a new retroactive video job.
func NewJob(store Store, gen *Generator, logger *slog.Logger) *Job {
	return &Job{store: store, gen: gen, logger: logger.With("component", "video_job")}
}

// Run walks the requested kinds in order. A failed record is logged and
// counted; only a failed listing stops the run.
func (j *Job) Run(ctx context.Context, opts JobOptions) ([]KindResult, error) {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = content.Kinds
	}

	results := make([]KindResult, 0, len(kinds))
	for _, kind := range kinds {
		res, err := j.runKind(ctx, kind, opts)
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("list %s without videos: %w", kind, err)
		}
	}
	return results, nil
}

func (j *Job) runKind(ctx context.Context, kind content.Kind, opts JobOptions) (KindResult, error) {
	res := KindResult{Kind: kind}
	logger := j.logger.With("kind", kind)

	records, err := j.store.FindWithoutVideos(ctx, kind, opts.Limit, opts.Stale)
	if err != nil {
		return res, err
	}
	res.Found = len(records)
	logger.Info("records without videos", "count", res.Found, "stale", opts.Stale)

	if opts.DryRun {
		for _, st := range records {
			logger.Info("would generate video", "id", st.ID, "title", st.Title)
		}
		return res, nil
	}

	for _, st := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		generated, err := j.gen.Generate(ctx, st)
		switch {
		case err != nil:
			res.Errors++
			j.gen.metrics.Errors.Add(1)
			logger.Error("video generation failed", "id", st.ID, "error", err)
		case generated:
			res.Generated++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// PrintResults writes the per-kind table and totals.
func PrintResults(w io.Writer, results []KindResult, dryRun bool) {
	var total KindResult
	for _, r := range results {
		fmt.Fprintf(w, "%-20s found=%-5d generated=%-5d skipped=%-5d errors=%d\n",
			r.Kind, r.Found, r.Generated, r.Skipped, r.Errors)
		total.Found += r.Found
		total.Generated += r.Generated
		total.Skipped += r.Skipped
		total.Errors += r.Errors
	}
	if dryRun {
		fmt.Fprintf(w, "[DRY RUN] would generate videos for %d records\n", total.Found)
		return
	}
	fmt.Fprintf(w, "Videos generated: %d, skipped: %d, errors: %d\n", total.Generated, total.Skipped, total.Errors)
}
