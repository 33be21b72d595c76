package parser

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

func (p *Page) root() *html.Node {
	if len(p.Doc.Nodes) == 0 {
		return nil
	}
	return p.Doc.Nodes[0]
}

// XPath returns the trimmed inner text of every node matching expr.
func (p *Page) XPath(expr string) []string {
	root := p.root()
	if root == nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		p.logger.Warn("invalid xpath", "selector", expr, "error", err)
		return nil
	}

	var values []string
	for _, node := range nodes {
		if val := strings.TrimSpace(htmlquery.InnerText(node)); val != "" {
			values = append(values, val)
		}
	}
	return values
}

// LabelValue finds the element whose own text carries label (for example
// "Sponsor:") and returns the first line of text after it. When the label
// stands alone, as in <th>Sponsor:</th><td>…</td>, the next sibling element
// holds the value.
func (p *Page) LabelValue(label string) string {
	root := p.root()
	if root == nil {
		return ""
	}
	expr := fmt.Sprintf("//body//*[not(self::script) and not(self::style)][text()[contains(., %q)]]", label)
	node, err := htmlquery.Query(root, expr)
	if err != nil {
		p.logger.Warn("invalid xpath", "selector", expr, "error", err)
		return ""
	}
	if node == nil {
		return ""
	}

	text := htmlquery.InnerText(node)
	if i := strings.Index(text, label); i >= 0 {
		text = text[i+len(label):]
	}
	if v := FirstLine(text); v != "" {
		return v
	}

	sibling := htmlquery.FindOne(node, "following-sibling::*[1]")
	if sibling == nil {
		return ""
	}
	return FirstLine(htmlquery.InnerText(sibling))
}
