package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/fetcher"
	"github.com/IshaanNene/CivicScrape/internal/pipeline"
	"github.com/IshaanNene/CivicScrape/internal/spider"
)

// scrapeFlags are the spider overrides shared by scrape and schedule.
type scrapeFlags struct {
	delayMS    int
	timeoutMS  int
	headless   bool
	maxRetries int
	concurrent int
	dryRun     bool
	maxItems   int
	congress   int
	chamber    string
	sections   []string
	robots     bool
}

func (f *scrapeFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.delayMS, "delay", 1000, "milliseconds between page fetches")
	cmd.Flags().IntVar(&f.timeoutMS, "timeout", 30000, "page load timeout in milliseconds")
	cmd.Flags().BoolVar(&f.headless, "headless", true, "run the browser headless")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", 3, "retries per failed page fetch")
	cmd.Flags().IntVarP(&f.concurrent, "concurrency", "n", 1, "item pages processed in parallel")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "scrape into memory without enrichment")
	cmd.Flags().IntVarP(&f.maxItems, "max-items", "m", 0, "item pages per spider (0 = spider default)")
	cmd.Flags().IntVar(&f.congress, "congress", 119, "congress number for the congress spider")
	cmd.Flags().StringVar(&f.chamber, "chamber", "House", "chamber for the congress spider")
	cmd.Flags().StringSliceVar(&f.sections, "section", []string{"news"}, "whitehouse.gov sections to crawl")
	cmd.Flags().BoolVar(&f.robots, "respect-robots", false, "skip pages robots.txt disallows and honor its crawl delay")
}

// apply copies the flags the user set onto cfg, so unset flags keep the
// config file values.
func (f *scrapeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("delay") {
		cfg.Spider.Delay = time.Duration(f.delayMS) * time.Millisecond
	}
	if set("timeout") {
		cfg.Fetcher.Timeout = time.Duration(f.timeoutMS) * time.Millisecond
	}
	if set("headless") {
		cfg.Fetcher.Headless = f.headless
	}
	if set("max-retries") {
		cfg.Spider.MaxRetries = f.maxRetries
	}
	if set("concurrency") {
		cfg.Spider.Concurrency = f.concurrent
	}
	if set("max-items") {
		cfg.Spider.MaxItems = f.maxItems
	}
	if set("congress") {
		cfg.Spider.Congress = f.congress
	}
	if set("chamber") {
		cfg.Spider.Chamber = f.chamber
	}
	if set("section") {
		cfg.Spider.Sections = f.sections
	}
	if set("respect-robots") {
		cfg.Spider.RespectRobots = f.robots
	}
	if f.dryRun {
		cfg.Storage.Driver = "memory"
	}
}

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	var flags scrapeFlags

	cmd := &cobra.Command{
		Use:   "scrape [whitehouse|congress|govtrack|all]",
		Short: "Scrape source sites and upsert their records",
		Long: `Scrape one spider, or all of them in the order govtrack, whitehouse, congress.

New records are enriched with a description, an article and a thumbnail.
Changed records get a new article. Unchanged records cost no AI calls.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: append(spider.Names(), "all"),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "all"
			if len(args) == 1 {
				name = args[0]
			}
			if _, err := spider.Resolve(name, config.SpiderConfig{}); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, func(cfg *config.Config) { flags.apply(cmd, cfg) })
			if err != nil {
				return err
			}
			defer a.Close()

			enrich := pipeline.Enrichers{}
			if flags.dryRun {
				a.logger.Info("dry run: records stay in memory and enrichment is off")
			} else {
				enrich = a.enrichers()
			}

			if err := runScrape(ctx, a, name, enrich); err != nil {
				return err
			}
			a.metrics.LogSummary("scrape")
			a.metrics.PrintSummary(os.Stdout, "Scrape")
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

// runScrape runs the selected spiders one after another. A spider that fails
// is logged and the next one still runs; only setup failures are returned.
func runScrape(ctx context.Context, a *app, name string, enrich pipeline.Enrichers) error {
	spiders, err := spider.Resolve(name, a.cfg.Spider)
	if err != nil {
		return err
	}

	f, err := fetcher.New(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer f.Close()

	orch := pipeline.NewOrchestrator(a.store, enrich, a.metrics, a.cfg.Enrich, a.logger)
	runner := spider.NewRunner(f, orch, a.cfg.Spider, a.metrics, a.logger)

	for _, sp := range spiders {
		a.logger.Info("spider starting", "spider", sp.Name(), "fetcher", f.Type())
		if err := runner.Run(ctx, sp); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error("spider failed", "spider", sp.Name(), "error", err)
		}
	}
	return nil
}
