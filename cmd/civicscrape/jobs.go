package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/CivicScrape/internal/ai"
	"github.com/IshaanNene/CivicScrape/internal/article"
	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/video"
)

// videosCmd creates the "videos" subcommand, which backfills short-form
// videos for stored records.
func videosCmd() *cobra.Command {
	var (
		kindFlag string
		limit    int
		dryRun   bool
		stale    bool
	)

	cmd := &cobra.Command{
		Use:   "videos",
		Short: "Generate videos for records that have none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var kinds []content.Kind
			if kindFlag != "all" {
				kind, err := content.ParseKind(kindFlag)
				if err != nil {
					return err
				}
				kinds = []content.Kind{kind}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, func(cfg *config.Config) {
				if cmd.Flags().Changed("limit") {
					cfg.Video.Limit = limit
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			gen := video.NewGenerator(a.store,
				ai.NewMarketingWriter(a.llm(), a.logger),
				a.imageGenerator(),
				a.metrics,
				a.cfg.Images.JPEGQuality,
				a.logger,
			)
			opts := video.JobOptions{Kinds: kinds, Limit: a.cfg.Video.Limit, Stale: stale, DryRun: dryRun}
			results, err := video.NewJob(a.store, gen, a.logger).Run(ctx, opts)
			video.PrintResults(os.Stdout, results, dryRun)
			if err != nil {
				return err
			}
			if !dryRun {
				a.metrics.PrintSummary(os.Stdout, "Video")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&kindFlag, "type", "t", "all", "bill, government_content, court_case or all")
	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "records per kind")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list records without generating")
	cmd.Flags().BoolVar(&stale, "stale", false, "also regenerate videos built from older content")
	return cmd
}

// articleCmd creates the "article" subcommand, which reads or writes the
// article for one record at a depth.
func articleCmd() *cobra.Command {
	var (
		depth int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "article <kind> <id>",
		Short: "Get or generate an article at a depth (1-5)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := content.ParseKind(args[0])
			if err != nil {
				return err
			}
			if !all && !ai.ValidDepth(depth) {
				return fmt.Errorf("--depth must be between %d and %d", ai.MinDepth, ai.MaxDepth)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			svc := article.NewService(a.store, ai.NewArticleWriter(a.llm(), a.logger), a.logger)
			if all {
				if err := svc.PreGenerateAll(ctx, kind, args[1]); err != nil {
					return err
				}
				fmt.Printf("Generated depths %d-%d for %s %s\n", ai.MinDepth, ai.MaxDepth, kind, args[1])
				return nil
			}

			res, err := svc.GetOrGenerate(ctx, kind, args[1], depth)
			if err != nil {
				return err
			}
			source := "generated"
			if res.Cached {
				source = "cached"
			}
			fmt.Fprintf(os.Stderr, "depth %d (%s)\n", res.Depth, source)
			fmt.Println(res.Content)
			return nil
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "d", ai.DefaultDepth, "article depth, 1 (brief) to 5 (in depth)")
	cmd.Flags().BoolVar(&all, "all", false, "generate every depth")
	return cmd
}

// statsCmd creates the "stats" subcommand.
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record, article, thumbnail and video counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tRECORDS\tARTICLES\tTHUMBNAILS\tVIDEOS")
			var total content.KindStats
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", s.Kind, s.Total, s.WithArticle, s.WithThumbnail, s.WithVideo)
				total.Total += s.Total
				total.WithArticle += s.WithArticle
				total.WithThumbnail += s.WithThumbnail
				total.WithVideo += s.WithVideo
			}
			fmt.Fprintf(tw, "total\t%d\t%d\t%d\t%d\n", total.Total, total.WithArticle, total.WithThumbnail, total.WithVideo)
			return tw.Flush()
		},
	}
}

// migrateCmd creates the "migrate" subcommand.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables, collections and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), func(cfg *config.Config) { cfg.Storage.AutoMigrate = false })
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Schema is up to date (%s)\n", a.store.Name())
			return nil
		},
	}
}
