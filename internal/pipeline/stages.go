package pipeline

import (
	"html"
	"regexp"
	"sync"

	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/parser"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

// MaxTitleLength caps stored titles.
const MaxTitleLength = 250

var tagRe = regexp.MustCompile(`<[^>]*>`)

// NormalizeStage strips markup from titles and collapses whitespace in the
// title and description.
type NormalizeStage struct{}

func (NormalizeStage) Name() string { return "normalize" }

func (NormalizeStage) Process(rec content.Record) (content.Record, error) {
	b := rec.Base()
	b.Title = parser.CleanText(html.UnescapeString(tagRe.ReplaceAllString(b.Title, "")))
	b.Description = parser.CleanText(b.Description)
	return rec, nil
}

// RequireTitleStage rejects records that have no title.
type RequireTitleStage struct{}

func (RequireTitleStage) Name() string { return "require_title" }

func (RequireTitleStage) Process(rec content.Record) (content.Record, error) {
	if rec.Base().Title == "" {
		return nil, &types.ExtractionError{URL: rec.Base().URL, Field: "title", Err: types.ErrMissingTitle}
	}
	return rec, nil
}

// TruncateStage caps the title at Max runes.
type TruncateStage struct {
	Max int
}

func (s TruncateStage) Name() string { return "truncate" }

func (s TruncateStage) Process(rec content.Record) (content.Record, error) {
	b := rec.Base()
	b.Title = parser.Truncate(b.Title, s.Max)
	return rec, nil
}

// DedupStage drops records whose natural key was already seen in this run.
// Listing pages often link the same item twice.
type DedupStage struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupStage() *DedupStage {
	return &DedupStage{seen: make(map[string]struct{})}
}

func (s *DedupStage) Name() string { return "dedup" }

func (s *DedupStage) Process(rec content.Record) (content.Record, error) {
	key := string(rec.Kind()) + "|" + rec.NaturalKey().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[key]; exists {
		return nil, nil
	}
	s.seen[key] = struct{}{}
	return rec, nil
}
