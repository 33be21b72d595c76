// Package pipeline cleans scraped records and hands them to the upsert
// orchestrator, which decides which enrichments each record needs.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/IshaanNene/CivicScrape/internal/content"
)

// Stage processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Stage interface {
	// Name returns the stage's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(rec content.Record) (content.Record, error)
}

// Pipeline chains stages together.
type Pipeline struct {
	stages []Stage
	logger *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the chain every spider runs before the orchestrator.
func Default(logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(NormalizeStage{})
	p.Use(RequireTitleStage{})
	p.Use(TruncateStage{Max: MaxTitleLength})
	p.Use(NewDedupStage())
	return p
}

// Use adds a stage to the chain.
func (p *Pipeline) Use(s Stage) {
	p.stages = append(p.stages, s)
	p.logger.Debug("stage added", "name", s.Name(), "position", len(p.stages))
}

// Process runs the record through all stages in order.
func (p *Pipeline) Process(rec content.Record) (content.Record, error) {
	current := rec

	for _, s := range p.stages {
		result, err := s.Process(current)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name(), err)
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", s.Name(), "url", rec.Base().URL)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of stages in the chain.
func (p *Pipeline) Len() int {
	return len(p.stages)
}
