package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/pipeline"
	"github.com/IshaanNene/CivicScrape/internal/spider"
)

// scheduleCmd creates the "schedule" subcommand, which repeats a scrape on a
// cron schedule until interrupted.
func scheduleCmd() *cobra.Command {
	var (
		flags    scrapeFlags
		cronSpec string
	)

	cmd := &cobra.Command{
		Use:   "schedule [whitehouse|congress|govtrack|all]",
		Short: "Run scrapes on a cron schedule",
		Args:  cobra.MaximumNArgs(1),
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

			a, err := newApp(ctx, func(cfg *config.Config) {
				flags.apply(cmd, cfg)
				if cmd.Flags().Changed("cron") {
					cfg.Schedule.Cron = cronSpec
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			enrich := pipeline.Enrichers{}
			if !flags.dryRun {
				enrich = a.enrichers()
			}

			c, err := newScheduler(a.logger, a.cfg.Schedule.Cron, func() {
				a.metrics.Reset()
				if err := runScrape(ctx, a, name, enrich); err != nil {
					a.logger.Error("scheduled scrape failed", "error", err)
					return
				}
				a.metrics.LogSummary("scrape")
			})
			if err != nil {
				return err
			}

			a.logger.Info("scheduler started", "cron", a.cfg.Schedule.Cron, "spider", name)
			c.Start()
			<-ctx.Done()

			a.logger.Info("scheduler stopping, waiting for the running scrape")
			<-c.Stop().Done()
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&cronSpec, "cron", "0 */6 * * *", "five-field cron expression")
	return cmd
}

// newScheduler registers run on the cron expression expr. Overlapping runs
// are skipped and a panicking run is recovered.
func newScheduler(logger *slog.Logger, expr string, run func()) (*cron.Cron, error) {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.With("component", "scheduler").Handler(), slog.LevelInfo))
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(expr, run); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return c, nil
}
