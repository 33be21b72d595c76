package spider

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/parser"
)

const (
	congressBaseURL  = "https://www.congress.gov"
	congressMaxItems = 100
	summaryLength    = 1000
	scriptMarker     = "$(document)"
)

var (
	congressBillPath = regexp.MustCompile(`/bill/(\d+)(?:th|st|nd|rd)-congress/(house|senate)-[a-z-]+/\d+/?(?:\?.*)?$`)
	congressSuffix   = regexp.MustCompile(`\d+(?:th|st|nd|rd)\s*Congress\s*\(.*$`)
)

// Congress crawls bill pages from the congress.gov search results for one
// congress and chamber.
type Congress struct {
	BaseURL  string
	Number   int
	Chamber  string
	maxTitle int
}

// NewCongress creates the congress.gov spider.
func NewCongress(cfg config.SpiderConfig) *Congress {
	chamber := cfg.Chamber
	if chamber == "" {
		chamber = "House"
	}
	number := cfg.Congress
	if number == 0 {
		number = 119
	}
	return &Congress{
		BaseURL:  congressBaseURL,
		Number:   number,
		Chamber:  chamber,
		maxTitle: 250,
	}
}

func (c *Congress) Name() string { return "congress" }

func (c *Congress) Listings() []string {
	// q is the JSON search object {"congress":N,"chamber":"House","type":"bills"}.
	q := fmt.Sprintf("%%7B%%22congress%%22%%3A%d%%2C%%22chamber%%22%%3A%%22%s%%22%%2C%%22type%%22%%3A%%22bills%%22%%7D", c.Number, c.Chamber)
	return []string{strings.TrimRight(c.BaseURL, "/") + "/search?q=" + q + "&pageSort=documentNumber%3Adesc"}
}

func (c *Congress) ItemLinks(p *parser.Page) []string {
	var links []string
	for _, href := range p.Links("a[href*='/bill/']") {
		if congressBillPath.MatchString(href) {
			links = append(links, href)
		}
	}
	return links
}

func (c *Congress) NextPage(p *parser.Page) string {
	return p.Attr("a.next, a[rel=next]", "href")
}

func (c *Congress) ItemURL(link string) string { return link }

func (c *Congress) MaxItems() int { return congressMaxItems }

func (c *Congress) WaitSelector() string { return "h1" }

func (c *Congress) Parse(p *parser.Page) (content.Record, error) {
	number, ok := parser.BillNumber(p.FirstText(".bill-number", "h1"))
	if !ok {
		return nil, p.Missing("bill_number")
	}

	title := parser.FirstLine(parser.StripBillNumber(p.FirstText(".bill-title", "h1")))
	title = parser.CutAt(title, scriptMarker)
	title = strings.TrimSpace(congressSuffix.ReplaceAllString(title, ""))
	title = strings.TrimSpace(strings.TrimLeft(title, "-\u2013\u2014: "))
	title = parser.Truncate(title, c.maxTitle)

	sponsor := p.LabelValue("Sponsor:")
	introduced := introducedDate(p, sponsor)
	if i := strings.Index(sponsor, "(Introduced"); i >= 0 {
		sponsor = strings.TrimSpace(sponsor[:i])
	}

	summary := parser.Truncate(parser.CutAt(p.FirstText(".summary", "[class*=summary]"), scriptMarker), summaryLength)

	bill := &content.Bill{
		Core: content.Core{
			Title:       title,
			Description: summary,
			FullText:    p.FirstText(".bill-text", "[class*=text]"),
			URL:         p.URL,
		},
		BillNumber:     number,
		SourceWebsite:  "congress.gov",
		Sponsor:        sponsor,
		Status:         parser.FirstLine(p.FirstText(".bill-status", "[class*=status]")),
		Summary:        summary,
		Chamber:        parser.Chamber(number),
		BillType:       parser.BillType(p.URL),
		IntroducedDate: introduced,
	}
	if m := congressBillPath.FindStringSubmatch(p.URL); m != nil {
		bill.Congress, _ = strconv.Atoi(m[1])
		bill.Chamber = strings.ToUpper(m[2][:1]) + m[2][1:]
	}
	return bill, nil
}

// introducedDate reads the "Introduced" label, falling back to the date that
// congress.gov appends to the sponsor line.
func introducedDate(p *parser.Page, sponsor string) *time.Time {
	if t, ok := parser.ExtractDate(p.LabelValue("Introduced:")); ok {
		return &t
	}
	if t, ok := parser.ExtractDate(sponsor); ok {
		return &t
	}
	return nil
}
