package spider

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/parser"
)

const (
	whitehouseBaseURL  = "https://www.whitehouse.gov"
	whitehouseMaxItems = 20
	descriptionLength  = 500
)

// Whitehouse crawls news, fact sheets, briefings and presidential actions
// from whitehouse.gov.
type Whitehouse struct {
	BaseURL  string
	Sections []string

	now func() time.Time
}

// NewWhitehouse creates the whitehouse.gov spider for the configured
// sections.
func NewWhitehouse(cfg config.SpiderConfig) *Whitehouse {
	sections := cfg.Sections
	if len(sections) == 0 {
		sections = []string{"news"}
	}
	return &Whitehouse{
		BaseURL:  whitehouseBaseURL,
		Sections: sections,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *Whitehouse) Name() string { return "whitehouse" }

func (w *Whitehouse) Listings() []string {
	base := strings.TrimRight(w.BaseURL, "/")
	urls := make([]string, 0, len(w.Sections))
	for _, s := range w.Sections {
		urls = append(urls, base+"/"+strings.Trim(s, "/")+"/")
	}
	return urls
}

func (w *Whitehouse) ItemLinks(p *parser.Page) []string {
	return p.Links(".wp-block-post-title > a")
}

func (w *Whitehouse) NextPage(p *parser.Page) string {
	return p.Attr(".wp-block-query-pagination-next", "href")
}

func (w *Whitehouse) ItemURL(link string) string { return link }

func (w *Whitehouse) MaxItems() int { return whitehouseMaxItems }

func (w *Whitehouse) WaitSelector() string { return ".entry-content" }

func (w *Whitehouse) Parse(p *parser.Page) (content.Record, error) {
	title := p.FirstText(".wp-block-whitehouse-topper__headline", "h1")
	fullText := entryText(p.Doc.Find(".entry-content").First())

	published, ok := w.publishedDate(p)
	if !ok {
		published = w.now()
	}

	description := parser.Truncate(fullText, descriptionLength)
	if description == "" {
		description = parser.Truncate(p.Meta("og:description", "description"), descriptionLength)
	}

	return &content.GovernmentContent{
		Core: content.Core{
			Title:       title,
			Description: description,
			FullText:    fullText,
			URL:         p.URL,
		},
		Type:          whitehouseType(title, p.URL),
		PublishedDate: published,
		Source:        "whitehouse.gov",
	}, nil
}

// publishedDate reads the visible post date, then the page metadata.
func (w *Whitehouse) publishedDate(p *parser.Page) (time.Time, bool) {
	candidates := []string{
		p.Attr(".wp-block-post-date > time", "datetime"),
		p.Text(".wp-block-post-date > time"),
		p.Meta("article:published_time"),
		p.LinkedData("datePublished"),
	}
	for _, c := range candidates {
		if t, ok := parser.ParseDate(c); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// entryText joins the text of every child after the first div of the entry
// body; that div holds the page topper. Without a div the whole body is used.
func entryText(entry *goquery.Selection) string {
	if entry.Length() == 0 {
		return ""
	}
	children := entry.Children()
	first := -1
	children.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "div" {
			first = i
			return false
		}
		return true
	})
	if first < 0 {
		return strings.TrimSpace(entry.Text())
	}

	var parts []string
	children.Slice(first+1, children.Length()).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}

func whitehouseType(title, url string) string {
	switch {
	case strings.Contains(url, "/fact-sheets/"):
		return "Fact Sheet"
	case strings.Contains(url, "/briefings-statements/"):
		return "Briefing Statement"
	case strings.Contains(url, "/presidential-actions/"):
		return parser.ClassifyAction(title, url).Label()
	default:
		return "News Article"
	}
}
