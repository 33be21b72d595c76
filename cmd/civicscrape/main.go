package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/CivicScrape/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "civicscrape",
		Short: "CivicScrape: government content scraper and enricher",
		Long: `CivicScrape harvests bills, White House content and court cases from public
websites, stores them with change tracking and enriches new or changed records
with AI-written descriptions, articles and thumbnails.

Unchanged records are detected by content hash and skip every paid call.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(videosCmd())
	rootCmd.AddCommand(articleCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("CivicScrape %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
// Secrets are reported as set or unset, never printed.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Spider:\n")
			fmt.Printf("  Delay:             %s\n", cfg.Spider.Delay)
			fmt.Printf("  Item Timeout:      %s\n", cfg.Spider.ItemTimeout)
			fmt.Printf("  Max Retries:       %d\n", cfg.Spider.MaxRetries)
			fmt.Printf("  Concurrency:       %d\n", cfg.Spider.Concurrency)
			fmt.Printf("  Congress:          %d (%s)\n", cfg.Spider.Congress, cfg.Spider.Chamber)
			fmt.Printf("  Sections:          %s\n", strings.Join(cfg.Spider.Sections, ", "))
			fmt.Printf("  Respect Robots:    %v\n", cfg.Spider.RespectRobots)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Type:              %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Headless:          %v\n", cfg.Fetcher.Headless)
			fmt.Printf("  Stealth:           %v\n", cfg.Fetcher.Stealth)
			fmt.Printf("  Timeout:           %s\n", cfg.Fetcher.Timeout)
			fmt.Printf("  Proxies:           %d (%s)\n", len(cfg.Fetcher.Proxy.URLs), cfg.Fetcher.Proxy.Rotation)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Driver:            %s\n", cfg.Storage.Driver)
			fmt.Printf("  Postgres URL:      %s\n", setOrUnset(cfg.Storage.PostgresURL))
			fmt.Printf("  MongoDB URI:       %s\n", setOrUnset(cfg.Storage.MongoURI))
			fmt.Printf("  Auto Migrate:      %v\n", cfg.Storage.AutoMigrate)
			fmt.Printf("\nAI:\n")
			fmt.Printf("  Provider:          %s\n", cfg.AI.Provider)
			fmt.Printf("  Model:             %s\n", cfg.AI.Model)
			fmt.Printf("  OpenAI Key:        %s\n", setOrUnset(cfg.AI.OpenAIAPIKey))
			fmt.Printf("  Anthropic Key:     %s\n", setOrUnset(cfg.AI.AnthropicAPIKey))
			fmt.Printf("\nImages:\n")
			fmt.Printf("  Google Search:     %s\n", setOrUnset(cfg.Images.GoogleAPIKey+cfg.Images.GoogleSearchEngineID))
			fmt.Printf("  Model:             %s (%s)\n", cfg.Images.Model, cfg.Images.Size)
			fmt.Printf("\nEnrichment:\n")
			fmt.Printf("  Article Depth:     %d\n", cfg.Enrich.ArticleDepth)
			fmt.Printf("  Thumbnail Retries: %d, then wait %s\n", cfg.Enrich.ThumbnailMaxAttempts, cfg.Enrich.ThumbnailRetryAfter)
			fmt.Printf("\nSchedule:\n")
			fmt.Printf("  Cron:              %s\n", cfg.Schedule.Cron)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

func setOrUnset(v string) string {
	if v == "" {
		return "(unset)"
	}
	return "(set)"
}

// setupLogger creates a structured logger from the logging section. The
// --verbose flag forces debug level.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
