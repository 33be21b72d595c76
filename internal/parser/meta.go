package parser

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Meta returns the content of the first <meta> tag whose property or name
// matches one of keys, in the order given. OpenGraph tags use property and
// plain meta tags use name; both are accepted.
func (p *Page) Meta(keys ...string) string {
	for _, key := range keys {
		var found string
		p.Doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			prop, _ := s.Attr("property")
			name, _ := s.Attr("name")
			if !strings.EqualFold(prop, key) && !strings.EqualFold(name, key) {
				return true
			}
			found = strings.TrimSpace(s.AttrOr("content", ""))
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// LinkedData returns the first string value of field found in the page's
// JSON-LD blocks. Objects nested under @graph are searched too.
func (p *Page) LinkedData(field string) string {
	var found string
	p.Doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		var doc any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			p.logger.Debug("skipping malformed JSON-LD", "url", p.URL, "error", err)
			return true
		}
		found = findLinkedData(doc, field)
		return found == ""
	})
	return found
}

func findLinkedData(node any, field string) string {
	switch v := node.(type) {
	case map[string]any:
		if s, ok := v[field].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		if graph, ok := v["@graph"]; ok {
			return findLinkedData(graph, field)
		}
	case []any:
		for _, item := range v {
			if s := findLinkedData(item, field); s != "" {
				return s
			}
		}
	}
	return ""
}
