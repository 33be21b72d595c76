package spider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/fetcher"
	"github.com/IshaanNene/CivicScrape/internal/observability"
	"github.com/IshaanNene/CivicScrape/internal/parser"
	"github.com/IshaanNene/CivicScrape/internal/pipeline"
	"github.com/IshaanNene/CivicScrape/internal/retry"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

// Upserter persists one cleaned record.
type Upserter interface {
	Upsert(ctx context.Context, rec content.Record) (*pipeline.Result, error)
}

// Runner drives spiders through the listing and item phases.
type Runner struct {
	fetcher fetcher.Fetcher
	upsert  Upserter
	cfg     config.SpiderConfig
	metrics *observability.RunMetrics
	limiter *rate.Limiter
	robots  *robotsPolicy
	sleep   retry.SleepFunc
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSleep replaces the retry backoff timer, for tests.
func WithSleep(fn retry.SleepFunc) RunnerOption {
	return func(r *Runner) { r.sleep = fn }
}

// NewRunner creates a new Runner. Every page fetch waits on a limiter that
// releases one token per cfg.Delay, slowed further by a robots.txt
// Crawl-delay when cfg.RespectRobots is set.
func NewRunner(f fetcher.Fetcher, up Upserter, cfg config.SpiderConfig, metrics *observability.RunMetrics, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if metrics == nil {
		metrics = observability.NewRunMetrics(logger, nil)
	}

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	r := &Runner{
		fetcher: f,
		upsert:  up,
		cfg:     cfg,
		metrics: metrics,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "spider"),
	}
	if cfg.RespectRobots {
		r.robots = newRobotsPolicy(nil, r.logger)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run crawls one spider. Failures on single items are logged and counted;
// an error is returned only when no item link could be collected at all.
func (r *Runner) Run(ctx context.Context, sp Spider) error {
	logger := r.logger.With("spider", sp.Name())
	start := time.Now()

	links, err := r.collect(ctx, sp, logger)
	if len(links) == 0 {
		if err != nil {
			return fmt.Errorf("spider %s: %w", sp.Name(), err)
		}
		logger.Warn("no item links found")
		return nil
	}
	logger.Info("listing phase complete", "links", len(links))

	pipe := pipeline.Default(r.logger)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, link := range links {
		g.Go(func() error {
			r.processItem(gctx, sp, pipe, link, logger)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("spider finished",
		"items", len(links),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return ctx.Err()
}

// collect walks each listing section, following pagination until the item
// cap or the page cap is reached.
func (r *Runner) collect(ctx context.Context, sp Spider, logger *slog.Logger) ([]string, error) {
	limit := sp.MaxItems()
	if r.cfg.MaxItems > 0 {
		limit = r.cfg.MaxItems
	}
	maxPages := r.cfg.MaxListingPages
	if maxPages < 1 {
		maxPages = 1
	}

	seen := make(linkSet)
	var (
		links   []string
		lastErr error
	)

	for _, listing := range sp.Listings() {
		next := listing
		for page := 0; next != "" && page < maxPages && len(links) < limit; page++ {
			if err := ctx.Err(); err != nil {
				return links, err
			}

			req, resp, err := r.fetch(ctx, next, types.TagListing, sp, "")
			if err != nil {
				logger.Error("listing fetch failed", "url", next, "error", err)
				r.metrics.Errors.Add(1)
				lastErr = err
				break
			}
			p, err := parser.NewPage(resp, r.logger)
			if err != nil {
				logger.Error("listing parse failed", "url", next, "error", err)
				lastErr = err
				break
			}

			found := 0
			for _, href := range sp.ItemLinks(p) {
				abs, err := req.Resolve(href)
				if err != nil || !seen.add(abs) {
					continue
				}
				links = append(links, abs)
				found++
				if len(links) >= limit {
					break
				}
			}
			logger.Debug("listing page scanned", "url", next, "found", found, "total", len(links))

			next = ""
			if href := sp.NextPage(p); href != "" {
				if abs, err := req.Resolve(href); err == nil {
					next = abs
				}
			}
		}
		if len(links) >= limit {
			break
		}
	}
	return links, lastErr
}

func (r *Runner) processItem(ctx context.Context, sp Spider, pipe *pipeline.Pipeline, link string, logger *slog.Logger) {
	if r.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ItemTimeout)
		defer cancel()
	}

	target := sp.ItemURL(link)
	logger = logger.With("url", target)

	_, resp, err := r.fetch(ctx, target, types.TagItem, sp, sp.WaitSelector())
	if errors.Is(err, types.ErrDisallowed) {
		logger.Info("item disallowed by robots.txt")
		r.metrics.ItemsSkipped.Add(1)
		return
	}
	if err != nil {
		logger.Error("item fetch failed", "error", err)
		r.metrics.Errors.Add(1)
		return
	}
	p, err := parser.NewPage(resp, r.logger)
	if err != nil {
		logger.Error("item parse failed", "error", err)
		r.metrics.Errors.Add(1)
		return
	}

	rec, err := sp.Parse(p)
	if err != nil {
		logger.Warn("item extraction failed", "error", err)
		r.metrics.Errors.Add(1)
		return
	}
	if rec == nil {
		logger.Debug("item skipped")
		r.metrics.ItemsSkipped.Add(1)
		return
	}
	r.metrics.ItemsScraped.Add(1)

	cleaned, err := pipe.Process(rec)
	if err != nil {
		logger.Warn("item rejected", "error", err)
		r.metrics.Errors.Add(1)
		return
	}
	if cleaned == nil {
		r.metrics.ItemsSkipped.Add(1)
		return
	}

	if _, err := r.upsert.Upsert(ctx, cleaned); err != nil {
		var se *types.StorageError
		if errors.As(err, &se) {
			logger.Error("storage failure", "key", cleaned.NaturalKey().String(), "error", err)
		} else {
			logger.Error("upsert failed", "key", cleaned.NaturalKey().String(), "error", err)
		}
		r.metrics.Errors.Add(1)
	}
}

// fetch gets one page through the limiter, retrying retryable fetch errors
// with exponential backoff.
func (r *Runner) fetch(ctx context.Context, url, tag string, sp Spider, wait string) (*types.Request, *types.Response, error) {
	req, err := types.NewRequest(url)
	if err != nil {
		return nil, nil, err
	}
	req.Tag = tag
	req.Spider = sp.Name()
	req.WaitSelector = wait

	if r.robots != nil {
		allowed, delay := r.robots.Check(ctx, url)
		if !allowed {
			return nil, nil, &types.FetchError{URL: url, Err: types.ErrDisallowed}
		}
		r.slowTo(delay)
	}

	policy := retry.Policy{
		MaxRetries: r.cfg.MaxRetries,
		BaseDelay:  r.cfg.RetryDelay,
		Retryable:  types.IsRetryableFetch,
		Sleep:      r.sleep,
	}
	resp, err := retry.Value(ctx, policy, func(ctx context.Context, attempt int) (*types.Response, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if attempt > 0 {
			r.logger.Debug("retrying fetch", "url", url, "attempt", attempt)
		}
		resp, err := r.fetcher.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return nil, &types.FetchError{
				URL:        url,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
			}
		}
		return resp, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return req, resp, nil
}

// slowTo lowers the fetch rate to one page per delay if that is slower than
// the current rate.
func (r *Runner) slowTo(delay time.Duration) {
	if delay <= 0 {
		return
	}
	if limit := rate.Every(delay); limit < r.limiter.Limit() {
		r.limiter.SetLimit(limit)
		r.logger.Info("honoring robots.txt crawl delay", "delay", delay)
	}
}
