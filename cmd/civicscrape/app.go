package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IshaanNene/CivicScrape/internal/ai"
	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/observability"
	"github.com/IshaanNene/CivicScrape/internal/pipeline"
	"github.com/IshaanNene/CivicScrape/internal/storage"
)

// app holds what every command shares once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Store
	metrics *observability.RunMetrics
}

// loadConfig reads and validates configuration after override has applied
// the command's flags.
func loadConfig(override func(*config.Config)) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if override != nil {
		override(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, setupLogger(cfg.Logging), nil
}

// newApp opens the store and, when enabled, starts the metrics server. The
// server stops when ctx ends; Close releases the store.
func newApp(ctx context.Context, override func(*config.Config)) (*app, error) {
	cfg, logger, err := loadConfig(override)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewRunMetrics(logger, observability.NewInstruments(reg))
	reg.MustRegister(observability.NewCollector(metrics))
	if cfg.Metrics.Enabled {
		observability.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, reg, logger).Start(ctx)
	}

	logger.Debug("storage ready", "backend", store.Name())
	return &app{cfg: cfg, logger: logger, store: store, metrics: metrics}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing storage", "error", err)
	}
}

// llm builds the text generator. An unconfigured provider is only a warning:
// every writer falls back to a deterministic result.
func (a *app) llm() *ai.LLMClient {
	client := ai.NewLLMClient(ai.LLMConfigFrom(a.cfg.AI), a.logger)
	if err := client.Configured(); err != nil {
		a.logger.Warn("AI generation disabled", "error", err)
	}
	return client
}

func (a *app) imageGenerator() *ai.ImageGenerator {
	return ai.NewImageGenerator(a.cfg.Images, a.cfg.AI.OpenAIAPIKey, a.logger)
}

// enrichers wires the generators the orchestrator calls during ingestion.
func (a *app) enrichers() pipeline.Enrichers {
	llm := a.llm()
	return pipeline.Enrichers{
		Summarizer: ai.NewSummarizer(llm, a.logger),
		Articles:   ai.NewArticleWriter(llm, a.logger),
		Keywords:   ai.NewKeywordExtractor(llm, a.logger),
		Thumbnails: ai.NewImageSearcher(a.cfg.Images, a.imageGenerator(), a.logger),
	}
}
