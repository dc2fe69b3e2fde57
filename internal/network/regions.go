package network

import "strings"

// countryAliases folds the spelled-out region names some APIs return into
// ISO-3166 alpha-2 codes.
var countryAliases = map[string]string{
	"SWEDEN":         "SE",
	"NORWAY":         "NO",
	"DENMARK":        "DK",
	"FINLAND":        "FI",
	"GERMANY":        "DE",
	"AUSTRIA":        "AT",
	"SWITZERLAND":    "CH",
	"UNITED KINGDOM": "GB",
	"GREAT BRITAIN":  "GB",
	"UK":             "GB",
	"ENGLAND":        "GB",
	"UNITED STATES":  "US",
	"USA":            "US",
	"NETHERLANDS":    "NL",
	"HOLLAND":        "NL",
	"BELGIUM":        "BE",
	"FRANCE":         "FR",
	"SPAIN":          "ES",
	"ITALY":          "IT",
	"PORTUGAL":       "PT",
	"IRELAND":        "IE",
	"POLAND":         "PL",
	"CZECH REPUBLIC": "CZ",
	"CZECHIA":        "CZ",
	"SLOVAKIA":       "SK",
	"HUNGARY":        "HU",
	"ROMANIA":        "RO",
	"CANADA":         "CA",
	"AUSTRALIA":      "AU",
}

// currencyByCountry maps a country code to its home currency. Used as a
// weak signal when an API reports no region at all.
var currencyByCountry = map[string]string{
	"SE": "SEK",
	"NO": "NOK",
	"DK": "DKK",
	"FI": "EUR",
	"DE": "EUR",
	"AT": "EUR",
	"NL": "EUR",
	"BE": "EUR",
	"FR": "EUR",
	"ES": "EUR",
	"IT": "EUR",
	"PT": "EUR",
	"IE": "EUR",
	"SK": "EUR",
	"GB": "GBP",
	"US": "USD",
	"PL": "PLN",
	"CZ": "CZK",
	"HU": "HUF",
	"RO": "RON",
	"CH": "CHF",
	"CA": "CAD",
	"AU": "AUD",
}

// NormalizeCountry returns the ISO alpha-2 code for a region value,
// folding aliases and case. Unknown values come back upper-cased as-is.
func NormalizeCountry(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if cc, ok := countryAliases[s]; ok {
		return cc
	}
	return s
}

// CurrencyForCountry returns the home currency for a country, or "" when
// unknown. The input is folded through the alias table first, so "UK"
// resolves the same as "GB".
func CurrencyForCountry(cc string) string {
	return currencyByCountry[NormalizeCountry(cc)]
}

// AnyCountryMatch reports whether any of the raw region values normalizes
// to the given country. Both sides pass through the alias table.
func AnyCountryMatch(values []string, country string) bool {
	country = NormalizeCountry(country)
	for _, v := range values {
		if NormalizeCountry(v) == country {
			return true
		}
	}
	return false
}
