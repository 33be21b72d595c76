package content

import (
	"time"
)

// Core holds the fields every kind shares.
type Core struct {
	Title       string
	Description string
	FullText    string
	URL         string
}

// Field is one named value in a hash projection.
type Field struct {
	Name  string
	Value string
}

// Column is one scraped column written on insert and update. A nil Value is
// stored as NULL.
type Column struct {
	Name  string
	Value any
}

// Record is a freshly scraped item of any kind.
type Record interface {
	Kind() Kind
	Base() *Core
	NaturalKey() NaturalKey

	// HashFields returns the mutable semantic fields in hash order.
	HashFields() []Field

	// SummarySource is the text handed to the summarizer.
	SummarySource() string

	// PromptLabel names the record in generation prompts.
	PromptLabel() string

	// Columns lists the scraped columns other than description, which the
	// store merges separately.
	Columns() []Column
}

// Bill is a piece of congressional legislation.
type Bill struct {
	Core
	BillNumber     string
	SourceWebsite  string
	Sponsor        string
	Status         string
	Summary        string
	Chamber        string
	BillType       string
	Congress       int
	IntroducedDate *time.Time
}

func (b *Bill) Kind() Kind { return KindBill }
func (b *Bill) Base() *Core { return &b.Core }

func (b *Bill) NaturalKey() NaturalKey {
	return NaturalKey{{"bill_number", b.BillNumber}, {"source_website", b.SourceWebsite}}
}

func (b *Bill) HashFields() []Field {
	return []Field{
		{"title", b.Title},
		{"description", b.Description},
		{"status", b.Status},
		{"summary", b.Summary},
		{"fullText", b.FullText},
	}
}

func (b *Bill) SummarySource() string {
	if b.Summary != "" {
		return b.Summary
	}
	return b.FullText
}

func (b *Bill) PromptLabel() string { return "bill" }

func (b *Bill) Columns() []Column {
	return []Column{
		{"bill_number", b.BillNumber},
		{"source_website", b.SourceWebsite},
		{"title", b.Title},
		{"sponsor", nullString(b.Sponsor)},
		{"status", nullString(b.Status)},
		{"introduced_date", nullTime(b.IntroducedDate)},
		{"congress", nullInt(b.Congress)},
		{"chamber", nullString(b.Chamber)},
		{"bill_type", nullString(b.BillType)},
		{"summary", nullString(b.Summary)},
		{"full_text", nullString(b.FullText)},
		{"url", b.URL},
	}
}

// GovernmentContent is an executive action, fact sheet, briefing or news
// post published by the White House.
type GovernmentContent struct {
	Core
	Type          string
	PublishedDate time.Time
	Source        string
}

func (g *GovernmentContent) Kind() Kind { return KindGovernmentContent }
func (g *GovernmentContent) Base() *Core { return &g.Core }

func (g *GovernmentContent) NaturalKey() NaturalKey {
	return NaturalKey{{"url", g.URL}}
}

func (g *GovernmentContent) HashFields() []Field {
	return []Field{
		{"title", g.Title},
		{"description", g.Description},
		{"fullText", g.FullText},
	}
}

func (g *GovernmentContent) SummarySource() string { return g.FullText }

func (g *GovernmentContent) PromptLabel() string {
	if g.Type != "" {
		return g.Type
	}
	return "government content"
}

func (g *GovernmentContent) Columns() []Column {
	published := g.PublishedDate
	if published.IsZero() {
		published = time.Now().UTC()
	}
	source := g.Source
	if source == "" {
		source = "whitehouse.gov"
	}
	return []Column{
		{"url", g.URL},
		{"title", g.Title},
		{"type", g.Type},
		{"published_date", published},
		{"full_text", nullString(g.FullText)},
		{"source", source},
	}
}

// CourtCase is a docketed case before a court.
type CourtCase struct {
	Core
	CaseNumber string
	Court      string
	Status     string
	FiledDate  *time.Time
}

func (c *CourtCase) Kind() Kind { return KindCourtCase }
func (c *CourtCase) Base() *Core { return &c.Core }

func (c *CourtCase) NaturalKey() NaturalKey {
	return NaturalKey{{"case_number", c.CaseNumber}}
}

func (c *CourtCase) HashFields() []Field {
	return []Field{
		{"title", c.Title},
		{"description", c.Description},
		{"status", c.Status},
		{"fullText", c.FullText},
	}
}

func (c *CourtCase) SummarySource() string { return c.FullText }

func (c *CourtCase) PromptLabel() string { return "court case" }

func (c *CourtCase) Columns() []Column {
	return []Column{
		{"case_number", c.CaseNumber},
		{"title", c.Title},
		{"court", c.Court},
		{"filed_date", nullTime(c.FiledDate)},
		{"status", nullString(c.Status)},
		{"full_text", nullString(c.FullText)},
		{"url", c.URL},
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
