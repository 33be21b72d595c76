package content

import (
	"fmt"
	"strings"

	"github.com/IshaanNene/CivicScrape/internal/types"
)

// Kind identifies one of the record families produced by the spiders.
type Kind string

const (
	KindBill              Kind = "bill"
	KindGovernmentContent Kind = "government_content"
	KindCourtCase         Kind = "court_case"
)

// Kinds lists every kind in the order batch jobs walk them.
var Kinds = []Kind{KindBill, KindGovernmentContent, KindCourtCase}

// Descriptor captures the storage layout that differs between kinds. The
// orchestrator and the stores are written once against it.
type Descriptor struct {
	Kind Kind

	// Table is the relational table (or Mongo collection) for the kind.
	Table string

	// KeyColumns are the natural-key columns, matching NaturalKey order.
	KeyColumns []string

	// AuthorColumn holds the publisher shown on derived videos.
	AuthorColumn string

	// Label is the noun used in generation prompts.
	Label string
}

var descriptors = map[Kind]Descriptor{
	KindBill: {
		Kind:         KindBill,
		Table:        "bill",
		KeyColumns:   []string{"bill_number", "source_website"},
		AuthorColumn: "source_website",
		Label:        "bill",
	},
	KindGovernmentContent: {
		Kind:         KindGovernmentContent,
		Table:        "government_content",
		KeyColumns:   []string{"url"},
		AuthorColumn: "source",
		Label:        "government content",
	},
	KindCourtCase: {
		Kind:         KindCourtCase,
		Table:        "court_case",
		KeyColumns:   []string{"case_number"},
		AuthorColumn: "court",
		Label:        "court case",
	},
}

// Describe returns the descriptor for k.
func Describe(k Kind) (Descriptor, error) {
	d, ok := descriptors[k]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", types.ErrUnknownKind, k)
	}
	return d, nil
}

// MustDescribe is Describe for kinds known at compile time.
func MustDescribe(k Kind) Descriptor {
	d, err := Describe(k)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseKind accepts the canonical kind names plus the short aliases used on
// the command line ("case", "general").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bill", "bills":
		return KindBill, nil
	case "government_content", "government-content", "general", "gov":
		return KindGovernmentContent, nil
	case "court_case", "court-case", "case":
		return KindCourtCase, nil
	}
	return "", fmt.Errorf("%w: %q", types.ErrUnknownKind, s)
}

// KeyPart is one column of a natural key.
type KeyPart struct {
	Column string
	Value  string
}

// NaturalKey identifies a record independently of its storage id.
type NaturalKey []KeyPart

// String renders the key for logs and lock names.
func (k NaturalKey) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = p.Value
	}
	return strings.Join(parts, "|")
}

// Map returns the key as column → value.
func (k NaturalKey) Map() map[string]any {
	m := make(map[string]any, len(k))
	for _, p := range k {
		m[p.Column] = p.Value
	}
	return m
}
