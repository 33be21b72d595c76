package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	summaryMaxChars   = 100
	summaryInputChars = 2000
)

// Summarizer writes the short description shown on list views.
type Summarizer struct {
	gen    Generator
	logger *slog.Logger
}

// NewSummarizer creates a new content summarizer.
func NewSummarizer(gen Generator, logger *slog.Logger) *Summarizer {
	return &Summarizer{gen: gen, logger: logger.With("component", "summarizer")}
}

// Summarize returns a summary of at most 100 characters. It never fails:
// when generation errors or comes back empty the content is truncated.
func (s *Summarizer) Summarize(ctx context.Context, title, content string) string {
	prompt := fmt.Sprintf(`Write a short, engaging summary of at most 100 characters for this government content. Lead with the key action or its impact.

Title: %s

Content: %s

Summary (max 100 characters):`, title, clip(content, summaryInputChars))

	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("summarization failed, truncating content", "title", title, "error", err)
		return fallbackSummary(content)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return fallbackSummary(content)
	}
	return truncateRunes(out, summaryMaxChars)
}

func fallbackSummary(content string) string {
	return clip(content, summaryMaxChars-3) + "..."
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
