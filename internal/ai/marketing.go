package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	marketingTitleChars = 25
	marketingInputChars = 1000
)

// MarketingCopy is the feed card text for a video.
type MarketingCopy struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImagePrompt string `json:"imagePrompt"`
}

// Validate checks the shape of a generated copy.
func (m MarketingCopy) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&m.Description, validation.Required),
		validation.Field(&m.ImagePrompt, validation.Required),
	)
}

// MarketingWriter produces short social-feed copy and an image prompt.
type MarketingWriter struct {
	gen    Generator
	logger *slog.Logger
}

// NewMarketingWriter creates a new marketing copy writer.
func NewMarketingWriter(gen Generator, logger *slog.Logger) *MarketingWriter {
	return &MarketingWriter{gen: gen, logger: logger.With("component", "marketing_writer")}
}

// Write returns marketing copy for a record. Any failure falls back to copy
// derived from the title and content.
func (w *MarketingWriter) Write(ctx context.Context, title, body, label string) MarketingCopy {
	prompt := fmt.Sprintf(`You are a professional marketing copywriter writing engaging social media content.

Write feed copy for this %s. Reply with a single JSON object and nothing else:
{
  "title": "attention-grabbing title, 25 characters or fewer",
  "description": "an engaging description of about 50 words in a conversational tone",
  "imagePrompt": "a detailed prompt for a striking, photorealistic image that captures this content"
}

Article Title: %s
Content Preview: %s`, label, title, clip(body, marketingInputChars))

	out, err := w.gen.Generate(ctx, prompt)
	if err != nil {
		w.logger.Warn("marketing copy generation failed", "title", title, "error", err)
		return fallbackMarketing(title, body)
	}

	var mc MarketingCopy
	if err := json.Unmarshal([]byte(extractJSON(out)), &mc); err != nil {
		w.logger.Warn("marketing copy is not valid JSON", "title", title, "error", err)
		return fallbackMarketing(title, body)
	}
	mc.Title = strings.TrimSpace(mc.Title)
	mc.Description = strings.TrimSpace(mc.Description)
	mc.ImagePrompt = strings.TrimSpace(mc.ImagePrompt)
	if err := mc.Validate(); err != nil {
		w.logger.Warn("marketing copy failed validation", "title", title, "error", err)
		return fallbackMarketing(title, body)
	}

	mc.Title = truncateRunes(mc.Title, marketingTitleChars)
	return mc
}

func fallbackMarketing(title, body string) MarketingCopy {
	return MarketingCopy{
		Title:       truncateRunes(title, marketingTitleChars),
		Description: clip(body, 200) + "...",
		ImagePrompt: "professional news photography about " + title,
	}
}
