package content

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	fields := []Field{{"title", "A"}, {"description", "B"}, {"fullText", "C"}}

	first := Hash(fields)
	second := Hash(fields)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.Equal(t, strings.ToLower(first), first)
}

func TestHashIgnoresUnhashedMetadata(t *testing.T) {
	early := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)

	a := &Bill{
		Core:           Core{Title: "H.R. 1", FullText: "A", URL: "https://www.govtrack.us/a"},
		BillNumber:     "H.R. 1",
		SourceWebsite:  "govtrack",
		Sponsor:        "Rep. One",
		IntroducedDate: &early,
	}
	b := &Bill{
		Core:           Core{Title: "H.R. 1", FullText: "A", URL: "https://www.govtrack.us/b"},
		BillNumber:     "H.R. 1",
		SourceWebsite:  "govtrack",
		Sponsor:        "Rep. Two",
		IntroducedDate: &late,
	}

	assert.Equal(t, HashRecord(a), HashRecord(b))
}

func TestHashDetectsHashedFieldChanges(t *testing.T) {
	base := func() *Bill {
		return &Bill{
			Core:    Core{Title: "T", Description: "D", FullText: "F"},
			Status:  "Introduced",
			Summary: "S",
		}
	}
	original := HashRecord(base())

	mutations := map[string]func(*Bill){
		"title":       func(b *Bill) { b.Title = "T2" },
		"description": func(b *Bill) { b.Description = "D2" },
		"status":      func(b *Bill) { b.Status = "Passed House" },
		"summary":     func(b *Bill) { b.Summary = "S2" },
		"fullText":    func(b *Bill) { b.FullText = "F2" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			b := base()
			mutate(b)
			assert.NotEqual(t, original, HashRecord(b))
		})
	}
}

func TestHashFieldOrderMatters(t *testing.T) {
	ab := Hash([]Field{{"a", "1"}, {"b", "2"}})
	ba := Hash([]Field{{"b", "2"}, {"a", "1"}})
	assert.NotEqual(t, ab, ba)
}

func TestHashEmptyValueDiffersFromMovedValue(t *testing.T) {
	// "x" as title must not hash like "x" as description.
	asTitle := Hash([]Field{{"title", "x"}, {"description", ""}})
	asDescription := Hash([]Field{{"title", ""}, {"description", "x"}})
	assert.NotEqual(t, asTitle, asDescription)
}

func TestGovernmentContentHashProjection(t *testing.T) {
	g := &GovernmentContent{
		Core: Core{Title: "Fact Sheet", Description: "d", FullText: "f", URL: "https://www.whitehouse.gov/x"},
		Type: "Fact Sheet",
	}
	h1 := HashRecord(g)

	g.Type = "News Article"
	g.PublishedDate = time.Now()
	assert.Equal(t, h1, HashRecord(g), "type and dates are not hashed")
}

func TestCourtCaseHashIncludesStatus(t *testing.T) {
	c := &CourtCase{Core: Core{Title: "Doe v. Roe"}, CaseNumber: "22-101", Status: "Pending"}
	h1 := HashRecord(c)
	c.Status = "Decided"
	assert.NotEqual(t, h1, HashRecord(c))
}

func TestDescribeAndParseKind(t *testing.T) {
	for _, k := range Kinds {
		d, err := Describe(k)
		require.NoError(t, err)
		assert.Equal(t, k, d.Kind)
		assert.NotEmpty(t, d.KeyColumns)
	}

	_, err := Describe("treaty")
	assert.Error(t, err)

	k, err := ParseKind("case")
	require.NoError(t, err)
	assert.Equal(t, KindCourtCase, k)

	k, err = ParseKind("general")
	require.NoError(t, err)
	assert.Equal(t, KindGovernmentContent, k)
}

func TestNaturalKeys(t *testing.T) {
	b := &Bill{BillNumber: "H.R. 1", SourceWebsite: "congress.gov"}
	assert.Equal(t, "H.R. 1|congress.gov", b.NaturalKey().String())
	assert.Equal(t, map[string]any{"bill_number": "H.R. 1", "source_website": "congress.gov"}, b.NaturalKey().Map())

	// Key columns line up with the descriptor.
	for _, r := range []Record{b, &GovernmentContent{}, &CourtCase{}} {
		d := MustDescribe(r.Kind())
		key := r.NaturalKey()
		require.Len(t, key, len(d.KeyColumns))
		for i, part := range key {
			assert.Equal(t, d.KeyColumns[i], part.Column)
		}
	}
}
