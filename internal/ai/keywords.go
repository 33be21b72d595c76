package ai

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

const keywordInputChars = 500

var (
	nonWordPattern = regexp.MustCompile(`[^\w\s]`)
	quoteReplacer  = strings.NewReplacer(`"`, "", `'`, "")
)

// KeywordExtractor turns a record into a short photographable search query.
type KeywordExtractor struct {
	gen    Generator
	logger *slog.Logger
}

// NewKeywordExtractor creates a new keyword extractor.
func NewKeywordExtractor(gen Generator, logger *slog.Logger) *KeywordExtractor {
	return &KeywordExtractor{gen: gen, logger: logger.With("component", "keyword_extractor")}
}

// Keywords returns 2-4 visual search keywords, or a title-derived query if
// generation fails.
func (k *KeywordExtractor) Keywords(ctx context.Context, title, content, label string) string {
	prompt := fmt.Sprintf(`From this %s title and content, produce 2-4 search keywords for finding a relevant stock photo. Pick concrete things a news photographer could actually shoot.

GOOD examples (specific and visual):
- capitol building washington dc
- hospital doctor medical equipment
- construction workers infrastructure
- classroom students education
- solar panels renewable energy

BAD examples (abstract, nothing to photograph):
- government policy legislation
- economic impact financial
- social justice equality

Title: %s

Content: %s

Reply with ONLY the 2-4 keywords separated by spaces. No quotes, no explanation:`, label, title, clip(content, keywordInputChars))

	out, err := k.gen.Generate(ctx, prompt)
	if err == nil {
		if q := strings.TrimSpace(quoteReplacer.Replace(strings.TrimSpace(out))); q != "" {
			return q
		}
	} else {
		k.logger.Warn("keyword generation failed, using title words", "title", title, "error", err)
	}
	return TitleKeywords(title)
}

// TitleKeywords keeps the first three words longer than three letters.
func TitleKeywords(title string) string {
	cleaned := nonWordPattern.ReplaceAllString(strings.ToLower(title), "")
	var words []string
	for _, w := range strings.Fields(cleaned) {
		if len(w) > 3 {
			words = append(words, w)
		}
		if len(words) == 3 {
			break
		}
	}
	return strings.Join(words, " ")
}
