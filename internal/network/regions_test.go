package network

import "testing"

func TestNormalizeCountry(t *testing.T) {
	cases := map[string]string{
		"Sweden":         "SE",
		"UNITED KINGDOM": "GB",
		"uk":             "GB",
		"se":             "SE",
		" Norway ":       "NO",
		"XX":             "XX",
	}
	for in, want := range cases {
		if got := NormalizeCountry(in); got != want {
			t.Errorf("NormalizeCountry(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCurrencyForCountry(t *testing.T) {
	if got := CurrencyForCountry("se"); got != "SEK" {
		t.Errorf("SE currency = %s, want SEK", got)
	}
	if got := CurrencyForCountry("UK"); got != "GBP" {
		t.Errorf("UK currency = %s, want GBP via GB alias", got)
	}
	if got := CurrencyForCountry("ZZ"); got != "" {
		t.Errorf("unknown country currency = %q, want empty", got)
	}
}

func TestAnyCountryMatch(t *testing.T) {
	if !AnyCountryMatch([]string{"Denmark", "Sweden"}, "SE") {
		t.Error("alias list should match SE")
	}
	if AnyCountryMatch([]string{"Denmark"}, "SE") {
		t.Error("DK-only list should not match SE")
	}
	if AnyCountryMatch(nil, "SE") {
		t.Error("empty list should not match")
	}
	// the requested side folds through the alias table too
	if !AnyCountryMatch([]string{"United Kingdom"}, "UK") {
		t.Error("United Kingdom should match requested UK")
	}
	if !AnyCountryMatch([]string{"GB"}, "UK") {
		t.Error("GB should match requested UK")
	}
	if !AnyCountryMatch([]string{"uk"}, "GB") {
		t.Error("uk should match requested GB")
	}
}
