// Package parser holds the field extraction helpers shared by the spiders.
package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/CivicScrape/internal/types"
)

// Page is one fetched page prepared for field extraction. CSS selectors go
// through goquery and XPath expressions through htmlquery over the same
// parsed tree.
type Page struct {
	URL string
	Doc *goquery.Document

	logger *slog.Logger
}

// NewPage parses resp for extraction.
func NewPage(resp *types.Response, logger *slog.Logger) (*Page, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ExtractionError{URL: resp.URL(), Field: "document", Err: err}
	}
	return &Page{
		URL:    resp.URL(),
		Doc:    doc,
		logger: logger.With("component", "parser"),
	}, nil
}

// Text returns the trimmed text of the first element matching selector.
func (p *Page) Text(selector string) string {
	return strings.TrimSpace(p.Doc.Find(selector).First().Text())
}

// FirstText tries each selector in order and returns the first non-empty
// text.
func (p *Page) FirstText(selectors ...string) string {
	for _, sel := range selectors {
		if v := p.Text(sel); v != "" {
			return v
		}
	}
	return ""
}

// Attr returns an attribute of the first element matching selector.
func (p *Page) Attr(selector, attr string) string {
	v, _ := p.Doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}

// Links returns the href of every element matching selector, in document
// order and without duplicates.
func (p *Page) Links(selector string) []string {
	seen := make(map[string]bool)
	var links []string
	p.Doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || seen[href] {
			return
		}
		seen[href] = true
		links = append(links, href)
	})
	return links
}

// Missing wraps a field that could not be extracted.
func (p *Page) Missing(field string) error {
	return &types.ExtractionError{URL: p.URL, Field: field, Err: fmt.Errorf("no match")}
}
