// Package spider crawls the public source sites in two phases: listing pages
// are walked to collect item links, then each item page is fetched, parsed
// into a content record and handed to the upsert orchestrator.
package spider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/IshaanNene/CivicScrape/internal/config"
	"github.com/IshaanNene/CivicScrape/internal/content"
	"github.com/IshaanNene/CivicScrape/internal/parser"
)

// Spider describes how to crawl one source site.
type Spider interface {
	// Name returns the spider's identifier, as used on the command line.
	Name() string

	// Listings returns the first listing page of every section to crawl.
	Listings() []string

	// ItemLinks returns the item links found on a listing page.
	ItemLinks(p *parser.Page) []string

	// NextPage returns the href of the following listing page, or "".
	NextPage(p *parser.Page) string

	// ItemURL maps a collected link to the page that holds the record.
	ItemURL(link string) string

	// MaxItems is the default cap on item pages per run.
	MaxItems() int

	// WaitSelector is the element a browser fetcher waits for on item pages.
	WaitSelector() string

	// Parse turns an item page into a record. A nil record with a nil error
	// skips the page.
	Parse(p *parser.Page) (content.Record, error)
}

// Order is the sequence "all" runs the spiders in.
var Order = []string{"govtrack", "whitehouse", "congress"}

type factory func(cfg config.SpiderConfig) Spider

var registry = map[string]factory{
	"whitehouse": func(cfg config.SpiderConfig) Spider { return NewWhitehouse(cfg) },
	"congress":   func(cfg config.SpiderConfig) Spider { return NewCongress(cfg) },
	"govtrack":   func(cfg config.SpiderConfig) Spider { return NewGovtrack(cfg) },
}

// Names returns the registered spider names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the spiders selected by name; "all" expands to Order.
func Resolve(name string, cfg config.SpiderConfig) ([]Spider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "all" {
		spiders := make([]Spider, 0, len(Order))
		for _, n := range Order {
			spiders = append(spiders, registry[n](cfg))
		}
		return spiders, nil
	}
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown spider %q (want one of %s or all)", name, strings.Join(Names(), ", "))
	}
	return []Spider{f(cfg)}, nil
}
