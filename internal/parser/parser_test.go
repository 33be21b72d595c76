package parser

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/IshaanNene/CivicScrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const billHTML = `<!DOCTYPE html>
<html>
<head><title>H.R.1 - 119th Congress</title></head>
<body>
    <h1 class="legDetail">H.R.1 - One Big Beautiful Bill Act</h1>
    <table class="standard01">
        <tr><th>Sponsor:</th><td>Rep. Arrington, Jodey C. [R-TX-19]
            (Introduced 05/20/2025)</td></tr>
        <tr><th>Committees:</th><td>House - Budget</td></tr>
    </table>
    <p>Introduced: 05/20/2025</p>
    <script>var x = "Sponsor: nobody";</script>
    <div class="content">
        <a href="/bill/119th-congress/house-bill/1">H.R.1</a>
        <a href="/bill/119th-congress/house-bill/2">H.R.2</a>
        <a href="/bill/119th-congress/house-bill/1">H.R.1 again</a>
    </div>
</body>
</html>`

func makePage(t *testing.T, url, body string) *Page {
	t.Helper()
	req, err := types.NewRequest(url)
	if err != nil {
		t.Fatal(err)
	}
	resp := &types.Response{Request: req, StatusCode: 200, Body: []byte(body)}
	page, err := NewPage(resp, testLogger)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	return page
}

func TestPageCSSHelpers(t *testing.T) {
	page := makePage(t, "https://www.congress.gov/bill/119th-congress/house-bill/1", billHTML)

	if got := page.Text("h1"); got != "H.R.1 - One Big Beautiful Bill Act" {
		t.Errorf("unexpected h1 %q", got)
	}
	if got := page.FirstText(".bill-title", "h1"); got == "" {
		t.Error("expected fallback selector to match")
	}

	links := page.Links(".content a")
	if len(links) != 2 {
		t.Fatalf("expected 2 unique links, got %d: %v", len(links), links)
	}
	if links[0] != "/bill/119th-congress/house-bill/1" {
		t.Errorf("unexpected first link %q", links[0])
	}
}

func TestLabelValue(t *testing.T) {
	page := makePage(t, "https://www.congress.gov/bill/119th-congress/house-bill/1", billHTML)

	if got := page.LabelValue("Sponsor:"); got != "Rep. Arrington, Jodey C. [R-TX-19]" {
		t.Errorf("expected sponsor from sibling cell, got %q", got)
	}
	if got := page.LabelValue("Introduced:"); got != "05/20/2025" {
		t.Errorf("expected inline introduced value, got %q", got)
	}
	if got := page.LabelValue("Cosponsors:"); got != "" {
		t.Errorf("expected empty value for missing label, got %q", got)
	}
}

func TestXPath(t *testing.T) {
	page := makePage(t, "https://www.congress.gov/", billHTML)

	values := page.XPath("//div[@class='content']/a")
	if len(values) != 3 {
		t.Fatalf("expected 3 anchors, got %d", len(values))
	}
	if values := page.XPath("//*["); values != nil {
		t.Error("invalid xpath should return nil")
	}
}

func TestExtractDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Introduced: 01/03/2025", "2025-01-03"},
		{"posted 2025-02-14 at noon", "2025-02-14"},
		{"2025-01-20T17:35:41-05:00", "2025-01-20"},
		{"Signed January 20, 2025 at the White House", "2025-01-20"},
		{"on 4 July 2025", "2025-07-04"},
	}

	for _, tt := range tests {
		got, ok := ExtractDate(tt.input)
		if !ok {
			t.Errorf("ExtractDate(%q) found nothing", tt.input)
			continue
		}
		if got.Format("2006-01-02") != tt.want {
			t.Errorf("ExtractDate(%q) = %s, want %s", tt.input, got.Format("2006-01-02"), tt.want)
		}
	}

	if _, ok := ExtractDate("no dates here"); ok {
		t.Error("expected no date")
	}
}

func TestParseDate(t *testing.T) {
	got, ok := ParseDate("  2025-03-01 ")
	if !ok || !got.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected parse %v %v", got, ok)
	}
	if _, ok := ParseDate("Tuesday"); ok {
		t.Error("expected failure")
	}
}

func TestTextHelpers(t *testing.T) {
	if got := CleanText("  a \n\n b\t c "); got != "a b c" {
		t.Errorf("CleanText = %q", got)
	}
	if got := FirstLine("\n  first \nsecond"); got != "first" {
		t.Errorf("FirstLine = %q", got)
	}
	if got := CutAt("Summary text $(document).ready()", "$(document)"); got != "Summary text" {
		t.Errorf("CutAt = %q", got)
	}
	if got := Truncate("héllo", 2); got != "hé" {
		t.Errorf("Truncate = %q", got)
	}
	got, cut := TruncateWords("one two three", 2)
	if got != "one two" || !cut {
		t.Errorf("TruncateWords = %q %v", got, cut)
	}
}

func TestClassifyAction(t *testing.T) {
	tests := []struct {
		title, url string
		want       ActionType
	}{
		{"Executive Order on Energy", "", ActionExecutiveOrder},
		{"National Security Memorandum 2", "", ActionNationalSecurityMemorandum},
		{"A Proclamation on Flag Day", "", ActionProclamation},
		{"Restoring Order", "https://www.whitehouse.gov/presidential-actions/2025/01/executive-order-x/", ActionExecutiveOrder},
		{"Guidance", "https://www.whitehouse.gov/presidential-actions/2025/01/memorandum-y/", ActionPresidentialMemorandum},
		{"Remarks", "https://www.whitehouse.gov/remarks/", ActionPresidentialAction},
	}
	for _, tt := range tests {
		if got := ClassifyAction(tt.title, tt.url); got != tt.want {
			t.Errorf("ClassifyAction(%q, %q) = %s, want %s", tt.title, tt.url, got, tt.want)
		}
	}
	if ActionProclamation.Label() != "Proclamation" {
		t.Error("unexpected label")
	}
}

func TestBillHelpers(t *testing.T) {
	cases := map[string]string{
		"https://www.congress.gov/bill/119th-congress/house-bill/1":              "house_bill",
		"https://www.congress.gov/bill/119th-congress/senate-joint-resolution/7": "senate_joint_resolution",
		"https://www.govtrack.us/congress/bills/119/hjres12":                     "house_joint_resolution",
		"https://www.govtrack.us/congress/bills/119/s5":                          "senate_bill",
		"https://www.govtrack.us/congress/bills/119/hconres3/text":               "house_concurrent_resolution",
		"something else": "bill",
	}
	for in, want := range cases {
		if got := BillType(in); got != want {
			t.Errorf("BillType(%q) = %s, want %s", in, got, want)
		}
	}

	num, ok := BillNumber("H.R. 1: One Big Beautiful Bill Act")
	if !ok || num != "H.R. 1" {
		t.Errorf("BillNumber = %q %v", num, ok)
	}
	if num, ok := BillNumber("S.5 - Laken Riley Act"); !ok || num != "S.5" {
		t.Errorf("BillNumber(senate) = %q %v", num, ok)
	}
	if got := StripBillNumber("S.J.Res. 12 - Disapproval"); got != "- Disapproval" {
		t.Errorf("StripBillNumber = %q", got)
	}
	if Chamber("H.R. 1") != "House" || Chamber("S. 5") != "Senate" {
		t.Error("unexpected chamber")
	}
}
