package spider

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/parser"
)

const (
	govtrackBaseURL  = "https://www.govtrack.us"
	govtrackMaxItems = 20
	govtrackMaxWords = 1000
)

var govtrackBillPath = regexp.MustCompile(`/congress/bills/(\d+)/[a-z]+\d+/?$`)

// Govtrack crawls the govtrack.us bill docket and reads each bill's text
// page.
type Govtrack struct {
	BaseURL string
}

// NewGovtrack creates the govtrack.us spider.
func NewGovtrack(config.SpiderConfig) *Govtrack {
	return &Govtrack{BaseURL: govtrackBaseURL}
}

func (g *Govtrack) Name() string { return "govtrack" }

func (g *Govtrack) Listings() []string {
	return []string{strings.TrimRight(g.BaseURL, "/") + "/congress/bills/#docket"}
}

func (g *Govtrack) ItemLinks(p *parser.Page) []string {
	var links []string
	for _, href := range p.Links("a[href*='/congress/bills/']") {
		if govtrackBillPath.MatchString(href) {
			links = append(links, href)
		}
	}
	return links
}

// NextPage is empty: the docket lists every recent bill on one page.
func (g *Govtrack) NextPage(*parser.Page) string { return "" }

func (g *Govtrack) ItemURL(link string) string {
	return strings.TrimRight(link, "/") + "/text"
}

func (g *Govtrack) MaxItems() int { return govtrackMaxItems }

func (g *Govtrack) WaitSelector() string { return "#content" }

func (g *Govtrack) Parse(p *parser.Page) (content.Record, error) {
	fullText := p.Text("#content article.bill")
	if fullText == "" {
		return nil, nil
	}
	fullText, _ = parser.TruncateWords(fullText, govtrackMaxWords)

	heading := p.Text(".h1-multiline > h1")
	if heading == "" {
		return nil, p.Missing("heading")
	}
	numberPart, title, found := strings.Cut(heading, ":")
	if !found {
		return nil, p.Missing("bill_number")
	}
	number, ok := parser.BillNumber(numberPart)
	if !ok {
		number = strings.TrimSpace(numberPart)
	}

	sponsor := p.LabelValue("Sponsor:")
	introduced := introducedDate(p, "")
	summary := p.Text(".summary")
	url := strings.TrimSuffix(p.URL, "/text")

	bill := &content.Bill{
		Core: content.Core{
			Title:       strings.TrimSpace(title),
			Description: summary,
			FullText:    fullText,
			URL:         url,
		},
		BillNumber:     number,
		SourceWebsite:  "govtrack",
		Sponsor:        sponsor,
		Status:         parser.FirstLine(p.Text(".bill-status")),
		Summary:        summary,
		Chamber:        parser.Chamber(number),
		BillType:       parser.BillType(url),
		IntroducedDate: introduced,
	}
	if m := govtrackBillPath.FindStringSubmatch(url); m != nil {
		bill.Congress, _ = strconv.Atoi(m[1])
	}
	return bill, nil
}
