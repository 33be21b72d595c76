package ai

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/types"
)

const (
	// DefaultDepth is the depth written during ingestion.
	DefaultDepth = 3
	MinDepth     = 1
	MaxDepth     = 5

	articleInputChars = 5000
	sourcesHeading    = "## Sources"
)

var citationPattern = regexp.MustCompile(`\[(\d+)\]\s*([^-\n]+?)\s*-\s*(https?://\S+)`)

// depthPrompt is the length target and section layout for one depth.
type depthPrompt struct {
	Words        string
	Instructions string
}

var depthPrompts = map[int]depthPrompt{
	1: {
		Words: "100-200 words",
		Instructions: `Write a VERY SHORT article covering only what matters most.

## Structure (one section):
- Open with 2-3 sentences on what this is and why it matters
- Give 3-5 key bullet points
- Close with one sentence on the immediate impact

Leave out history and detailed analysis.`,
	},
	2: {
		Words: "300-400 words",
		Instructions: `Write a SUMMARY article covering the essentials.

## Structure (2 sections):
### What This Means For You (50-75 words)
The direct impact in 2-3 sentences.

### Overview (250-325 words)
- What this is about
- Key facts and figures
- Who is affected
- Immediate implications

Stick to current facts and direct effects.`,
	},
	3: {
		Words: "500-700 words",
		Instructions: `Write a STANDARD article with balanced analysis.

## Structure (4 sections):
### What This Means For You (75-100 words)
The direct impact, with examples.

### Overview (200-250 words)
What is happening, the context and the key details.

### Impact & Implications (150-200 words)
Short and long term effects and who they reach.

### The Debate (150-200 words)
A short account of both sides of the political spectrum.`,
	},
	4: {
		Words: "800-1000 words",
		Instructions: `Write a DETAILED article with thorough coverage.

## Structure (5 sections):
### What This Means For You (100-150 words)
The direct impact, with concrete examples and scenarios.

### Overview (250-300 words)
Full context, background, key players and a detailed explanation.

### Impact & Implications (250-300 words)
Effects across different groups and timelines.

### The Debate (200-250 words)
Multiple viewpoints with specific arguments from each side.

### What's Next (100-150 words)
The timeline, expected developments and what to watch for.`,
	},
	5: {
		Words: "1200+ words",
		Instructions: `Write an EXPERT-LEVEL article with in-depth analysis.

## Structure (6 sections):
### What This Means For You (150-200 words)
Impact analysis with several scenarios and examples.

### Historical Context (200-300 words)
Background, precedents and the events that led here.

### Overview (300-400 words)
A complete explanation of the details, players and mechanisms.

### Impact & Implications (300-400 words)
Knock-on effects across society, the economy and policy.

### The Debate (250-300 words)
Perspectives across the political spectrum with specific arguments.

### Expert Analysis & Future Outlook (200-300 words)
What experts say, likely scenarios and long-term implications.

Use specific data and expert perspectives throughout.`,
	},
}

// ValidDepth reports whether depth is within 1..5.
func ValidDepth(depth int) bool {
	return depth >= MinDepth && depth <= MaxDepth
}

// ArticleRequest describes the article to write.
type ArticleRequest struct {
	Title     string
	FullText  string
	Label     string
	SourceURL string
	Depth     int
}

// Article is a generated markdown article with its parsed sources.
type Article struct {
	Content   string
	Citations []content.Citation
}

// ArticleWriter turns full text into a sectioned markdown article.
type ArticleWriter struct {
	gen    Generator
	logger *slog.Logger
}

// NewArticleWriter creates a new article writer.
func NewArticleWriter(gen Generator, logger *slog.Logger) *ArticleWriter {
	return &ArticleWriter{gen: gen, logger: logger.With("component", "article_writer")}
}

// WriteArticle generates the article at req.Depth. Only an invalid depth is
// returned as an error; a failed generation yields an empty Article.
func (w *ArticleWriter) WriteArticle(ctx context.Context, req ArticleRequest) (Article, error) {
	if req.Depth == 0 {
		req.Depth = DefaultDepth
	}
	if !ValidDepth(req.Depth) {
		return Article{}, fmt.Errorf("%w: got %d", types.ErrInvalidDepth, req.Depth)
	}

	out, err := w.gen.Generate(ctx, buildArticlePrompt(req))
	if err != nil {
		w.logger.Warn("article generation failed", "title", req.Title, "depth", req.Depth, "error", err)
		return Article{}, nil
	}

	out = strings.TrimSpace(out)
	return Article{
		Content:   RemoveSources(out),
		Citations: ExtractCitations(out),
	}, nil
}

func buildArticlePrompt(req ArticleRequest) string {
	dp := depthPrompts[req.Depth]
	label := req.Label
	if label == "" {
		label = "government content"
	}

	return fmt.Sprintf(`You make government and legal material clear and engaging for everyday readers. Rewrite the following %[1]s as a well-structured markdown article.

**Target Length:** %[2]s

%[3]s

**Source material:**
Title: %[4]s
Source: %[5]s
Full Text: %[6]s

**Formatting Guidelines:**
- Use markdown headers (##) for each section
- Use **bold** for key terms
- Use bullet points or numbered lists where they help
- Use blockquotes (>) for direct quotes
- Keep paragraphs to 2-4 sentences
- Write at an 8th-grade reading level
- Stay factual, balanced and objective

**CRITICAL - Citations:**
Support claims with inline citations:
- Put [1], [2], [3] and so on after each claim that needs a source
- Finish with a "## Sources" section, one line per source:
  [1] What this source verifies - URL
  [2] Short description - URL
- For bills cite congress.gov, govtrack.us or the official bill page
- For court cases cite official court sites or legal databases
- For government content cite whitehouse.gov or official agency sites
- The original source URL is always citation [1]

Example:
The bill provides $50 billion in funding [1] and has sponsors from both parties [2].

## Sources
[1] Bill text and funding details - https://congress.gov/bill/...
[2] Cosponsor list - https://govtrack.us/...

Write the article now:`, label, dp.Words, dp.Instructions, req.Title, req.SourceURL, clip(req.FullText, articleInputChars))
}

// sourcesSpan locates the "## Sources" section: from its heading to the next
// level-2 heading or the end of the text.
func sourcesSpan(article string) (start, end int, ok bool) {
	start = strings.Index(article, sourcesHeading+"\n")
	if start < 0 {
		return 0, 0, false
	}
	body := start + len(sourcesHeading) + 1
	end = len(article)
	if next := strings.Index(article[body:], "##"); next >= 0 {
		end = body + next
	}
	return start, end, true
}

// ExtractCitations parses "[n] text - url" lines from the Sources section.
func ExtractCitations(article string) []content.Citation {
	start, end, ok := sourcesSpan(article)
	if !ok {
		return nil
	}
	section := article[start+len(sourcesHeading)+1 : end]

	var citations []content.Citation
	for _, m := range citationPattern.FindAllStringSubmatch(section, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		citations = append(citations, content.Citation{
			Number: n,
			Text:   strings.TrimSpace(m[2]),
			URL:    strings.TrimSpace(m[3]),
		})
	}
	return citations
}

// RemoveSources drops the Sources section, since citations are stored apart
// from the article body.
func RemoveSources(article string) string {
	start, end, ok := sourcesSpan(article)
	if !ok {
		return strings.TrimSpace(article)
	}
	return strings.TrimSpace(article[:start] + article[end:])
}
