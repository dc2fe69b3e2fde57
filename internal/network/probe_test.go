package network

import (
	"encoding/json"
	"testing"
)

func TestFirstStringProbeOrder(t *testing.T) {
	row := map[string]any{
		"clickref": "later",
		"clickRef": "winner",
		"subId":    "also-later",
	}
	got, ok := FirstString(row, "clickRef", "clickref", "subId")
	if !ok || got != "winner" {
		t.Errorf("FirstString = %q (%v), want winner", got, ok)
	}
}

func TestFirstStringSkipsEmptyAndNil(t *testing.T) {
	row := map[string]any{
		"clickRef": "",
		"clickref": nil,
		"subId":    "sub-7",
	}
	got, ok := FirstString(row, "clickRef", "clickref", "subId")
	if !ok || got != "sub-7" {
		t.Errorf("FirstString = %q (%v), want sub-7", got, ok)
	}
	if _, ok := FirstString(row, "clickRef", "clickref"); ok {
		t.Error("all-empty probe should report absent")
	}
}

func TestFirstStringCoercesNumbers(t *testing.T) {
	row := map[string]any{"id": json.Number("42"), "alt": float64(7)}
	if got, _ := FirstString(row, "id"); got != "42" {
		t.Errorf("json.Number coercion = %q", got)
	}
	if got, _ := FirstString(row, "alt"); got != "7" {
		t.Errorf("float coercion = %q", got)
	}
}

func TestFirstAmountParsing(t *testing.T) {
	cases := []struct {
		name string
		row  map[string]any
		keys []string
		want string
		ok   bool
	}{
		{"float", map[string]any{"commission": 12.5}, []string{"commission"}, "12.5", true},
		{"string", map[string]any{"commission": "12.50"}, []string{"commission"}, "12.5", true},
		{"comma decimal", map[string]any{"commission": "1 234,56"}, []string{"commission"}, "1234.56", true},
		{"thousands", map[string]any{"commission": "1,234.56"}, []string{"commission"}, "1234.56", true},
		{"skips unparseable", map[string]any{"commission": "n/a", "reward": "3.75"}, []string{"commission", "reward"}, "3.75", true},
		{"absent", map[string]any{}, []string{"commission"}, "0", false},
	}
	for _, tc := range cases {
		got, ok := FirstAmount(tc.row, tc.keys...)
		if ok != tc.ok {
			t.Errorf("%s: ok = %v, want %v", tc.name, ok, tc.ok)
			continue
		}
		if ok && got.String() != tc.want {
			t.Errorf("%s: amount = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestMatchSubID(t *testing.T) {
	if !MatchSubID("anything", nil, MatchExact) {
		t.Error("empty filter should pass everything")
	}
	if !MatchSubID("blog-1", []string{"blog-1", "blog-2"}, MatchExact) {
		t.Error("exact member should pass")
	}
	if !MatchSubID("BLOG-1", []string{"blog-1"}, MatchExact) {
		t.Error("exact matching compares case-insensitively")
	}
	if MatchSubID("blog-11", []string{"blog-1"}, MatchExact) {
		t.Error("exact matching must not accept substrings")
	}
	if !MatchSubID("campaign-BLOG-1-summer", []string{"blog-1"}, MatchContains) {
		t.Error("contains matching is case insensitive")
	}
	if MatchSubID("campaign-x", []string{"blog-1"}, MatchContains) {
		t.Error("non-substring should fail contains match")
	}
}

func TestMatchAnySubID(t *testing.T) {
	if MatchAnySubID(nil, []string{"blog-1"}, MatchExact) {
		t.Error("row without sub-ID values must fail a non-empty filter")
	}
	if !MatchAnySubID([]string{"other", "blog-1"}, []string{"blog-1"}, MatchExact) {
		t.Error("any matching value should pass the row")
	}
	if !MatchAnySubID(nil, nil, MatchExact) {
		t.Error("empty filter passes rows without values")
	}
}

func TestSubIDValues(t *testing.T) {
	row := map[string]any{"clickRef": "a", "clickRef3": "c", "clickRef2": nil}
	got := SubIDValues(row, "clickRef", "clickRef2", "clickRef3")
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("SubIDValues = %v, want [a c]", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	confirmed := []string{"approved", "paid"}
	pending := []string{"pending"}
	if got := ClassifyStatus("Approved", confirmed, pending); got != StatusConfirmed {
		t.Errorf("Approved classified as %v", got)
	}
	if got := ClassifyStatus(" PENDING ", confirmed, pending); got != StatusPending {
		t.Errorf("PENDING classified as %v", got)
	}
	if got := ClassifyStatus("declined", confirmed, pending); got != StatusIgnored {
		t.Errorf("declined classified as %v", got)
	}
}

func TestDetectCurrency(t *testing.T) {
	rows := []map[string]any{
		{"amount": 1.0},
		{"currency": "sek"},
		{"currency": "NOK"},
	}
	if got := DetectCurrency(rows, []string{"currency"}, "EUR"); got != "SEK" {
		t.Errorf("detected %s, want SEK", got)
	}

	// only the first three rows are consulted
	far := []map[string]any{{}, {}, {}, {"currency": "USD"}}
	if got := DetectCurrency(far, []string{"currency"}, "eur"); got != "EUR" {
		t.Errorf("out-of-window currency should fall back, got %s", got)
	}
}
