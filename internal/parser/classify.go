package parser

import (
	"regexp"
	"strings"
)

// ActionType classifies a White House presidential action.
type ActionType string

const (
	ActionExecutiveOrder             ActionType = "executive_order"
	ActionPresidentialMemorandum     ActionType = "presidential_memorandum"
	ActionProclamation               ActionType = "proclamation"
	ActionNationalSecurityMemorandum ActionType = "national_security_memorandum"
	ActionPresidentialAction         ActionType = "presidential_action"
)

var actionLabels = map[ActionType]string{
	ActionExecutiveOrder:             "Executive Order",
	ActionPresidentialMemorandum:     "Presidential Memorandum",
	ActionProclamation:               "Proclamation",
	ActionNationalSecurityMemorandum: "National Security Memorandum",
	ActionPresidentialAction:         "Presidential Action",
}

// Label is the display name stored as the content type.
func (a ActionType) Label() string {
	if l, ok := actionLabels[a]; ok {
		return l
	}
	return actionLabels[ActionPresidentialAction]
}

// ClassifyAction infers the action type from the title, then the URL.
func ClassifyAction(title, url string) ActionType {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "executive order"):
		return ActionExecutiveOrder
	case strings.Contains(t, "national security memorandum"):
		return ActionNationalSecurityMemorandum
	case strings.Contains(t, "presidential memorandum"):
		return ActionPresidentialMemorandum
	case strings.Contains(t, "proclamation"):
		return ActionProclamation
	}

	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "executive-order"):
		return ActionExecutiveOrder
	case strings.Contains(u, "memorandum"):
		return ActionPresidentialMemorandum
	case strings.Contains(u, "proclamation"):
		return ActionProclamation
	}
	return ActionPresidentialAction
}

// Bill type codes. Longer path segments are matched first so "hjres" is not
// taken for "hres".
var billTypes = []struct {
	slug    string
	segment string
	kind    string
}{
	{"house-joint-resolution", "hjres", "house_joint_resolution"},
	{"senate-joint-resolution", "sjres", "senate_joint_resolution"},
	{"house-concurrent-resolution", "hconres", "house_concurrent_resolution"},
	{"senate-concurrent-resolution", "sconres", "senate_concurrent_resolution"},
	{"house-resolution", "hres", "house_resolution"},
	{"senate-resolution", "sres", "senate_resolution"},
	{"house-bill", "hr", "house_bill"},
	{"senate-bill", "s", "senate_bill"},
}

var govtrackSegment = regexp.MustCompile(`/congress/bills/\d+/([a-z]+)\d+`)

// BillType classifies a bill from its congress.gov or govtrack URL.
func BillType(identifier string) string {
	id := strings.ToLower(identifier)
	for _, bt := range billTypes {
		if strings.Contains(id, "/"+bt.slug+"/") || strings.Contains(id, "/"+bt.segment+"/") {
			return bt.kind
		}
	}
	if m := govtrackSegment.FindStringSubmatch(id); m != nil {
		for _, bt := range billTypes {
			if m[1] == bt.segment {
				return bt.kind
			}
		}
	}
	return "bill"
}

var billNumberRe = regexp.MustCompile(`(?i)([HS]\.\s?(?:(?:R\.|J\.\s?Res\.|Con\.\s?Res\.|Res\.)\s?)?\d+)`)

// BillNumber extracts a citation such as "H.R. 1", "S.5" or "S.J.Res. 12".
func BillNumber(text string) (string, bool) {
	m := billNumberRe.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.TrimSpace(m), true
}

// StripBillNumber removes the first bill citation from text.
func StripBillNumber(text string) string {
	loc := billNumberRe.FindStringIndex(text)
	if loc == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
}

// Chamber derives the originating chamber from a bill number.
func Chamber(billNumber string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(billNumber)), "h") {
		return "House"
	}
	return "Senate"
}
