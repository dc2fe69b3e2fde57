// Package network contains the affiliate network adapters and the shared
// machinery they build on: field probing, status vocabularies, sub-ID
// filtering, and currency detection.
package network

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zaorak/affiliate-hub/internal/fx"
)

// MatchMode selects how sub-ID filters apply to a transaction row.
type MatchMode string

const (
	// MatchExact keeps rows whose sub-ID is a member of the filter set.
	MatchExact MatchMode = "exact"
	// MatchContains keeps rows whose sub-ID contains any filter value,
	// compared case-insensitively.
	MatchContains MatchMode = "contains"
)

// Query describes one commission lookup window. Countries scopes
// advertiser-level filtering for networks that support it.
type Query struct {
	Start     time.Time
	End       time.Time
	SubIDs    []string
	Match     MatchMode
	Currency  string
	Countries []string
}

// Meta carries per-snapshot bookkeeping for display and diagnostics.
type Meta struct {
	RawCount      int    `json:"raw_count"`
	FilteredCount int    `json:"filtered_count"`
	Reason        string `json:"reason,omitempty"`
}

// CommissionSnapshot is the normalized result of one network lookup.
// All amounts are expressed in the target currency. RawRows carries the
// source rows behind the buckets, untouched, for drill-down.
type CommissionSnapshot struct {
	Network        string           `json:"network"`
	Currency       string           `json:"currency"`
	SourceCurrency string           `json:"source_currency,omitempty"`
	FXRate         decimal.Decimal  `json:"fx_rate"`
	Total          decimal.Decimal  `json:"total"`
	Confirmed      decimal.Decimal  `json:"confirmed"`
	Pending        decimal.Decimal  `json:"pending"`
	RawRows        []map[string]any `json:"raw_rows,omitempty"`
	Meta           Meta             `json:"meta"`
}

// Summarize converts source-currency buckets into a target-currency
// snapshot. Total is the sum of the two buckets after conversion; the
// rows that survived filtering ride along as RawRows.
func Summarize(ctx context.Context, conv fx.Converter, name, source, target string, confirmed, pending decimal.Decimal, raw, filtered []map[string]any) CommissionSnapshot {
	rate := conv.Rate(ctx, source, target)
	c := confirmed.Mul(rate)
	p := pending.Mul(rate)
	return CommissionSnapshot{
		Network:        name,
		Currency:       strings.ToUpper(target),
		SourceCurrency: strings.ToUpper(source),
		FXRate:         rate,
		Total:          c.Add(p),
		Confirmed:      c,
		Pending:        p,
		RawRows:        filtered,
		Meta:           Meta{RawCount: len(raw), FilteredCount: len(filtered)},
	}
}

// BlankSnapshot returns an all-zero snapshot carrying a failure reason.
// Transport failures surface this way instead of an error so one broken
// network never sinks the whole report.
func BlankSnapshot(network, currency, reason string) CommissionSnapshot {
	return CommissionSnapshot{
		Network:  network,
		Currency: currency,
		FXRate:   decimal.NewFromInt(1),
		Meta:     Meta{Reason: reason},
	}
}

// Programme is one advertiser relationship as a network reports it.
type Programme struct {
	Network      string `json:"network"`
	AdvertiserID string `json:"advertiser_id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Relationship string `json:"relationship"`
	Country      string `json:"country"`
	Currency     string `json:"currency,omitempty"`
	FeedURL      string `json:"feed_url,omitempty"`
}

// Fetcher exposes commission lookups for one network.
type Fetcher interface {
	Name() string
	Commissions(ctx context.Context, q Query) (CommissionSnapshot, error)
}

// ProgrammeFetcher lists advertiser relationships for one network and
// country. Used by the watch engine.
type ProgrammeFetcher interface {
	Name() string
	Programmes(ctx context.Context, country string) ([]Programme, error)
}

// ConfigurationError marks a request the operator must fix; callers treat
// it differently from transport failures, which degrade to blank snapshots.
type ConfigurationError struct {
	Network string
	Detail  string
}

func (e *ConfigurationError) Error() string {
	return e.Network + ": " + e.Detail
}

// MatchSubID reports whether a row-level sub-ID passes the filter.
// An empty filter set passes everything. Both modes compare
// case-insensitively; exact requires set membership, contains requires
// substring containment.
func MatchSubID(value string, subIDs []string, mode MatchMode) bool {
	if len(subIDs) == 0 {
		return true
	}
	lv := strings.ToLower(value)
	for _, s := range subIDs {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if mode == MatchContains {
			if strings.Contains(lv, s) {
				return true
			}
		} else if lv == s {
			return true
		}
	}
	return false
}

// MatchAnySubID applies the filter across every sub-ID value a row
// carries. A row with no sub-ID values fails a non-empty filter.
func MatchAnySubID(values []string, subIDs []string, mode MatchMode) bool {
	if len(subIDs) == 0 {
		return true
	}
	for _, v := range values {
		if MatchSubID(v, subIDs, mode) {
			return true
		}
	}
	return false
}

// SubIDValues collects the present sub-ID fields of a row in probe order.
func SubIDValues(row map[string]any, keys ...string) []string {
	vals := make([]string, 0, 2)
	for _, k := range keys {
		if s, ok := FirstString(row, k); ok {
			vals = append(vals, s)
		}
	}
	return vals
}

// StatusClass buckets a raw network status into the shared vocabulary.
type StatusClass int

const (
	StatusIgnored StatusClass = iota
	StatusConfirmed
	StatusPending
)

// ClassifyStatus maps a raw status onto confirmed/pending/ignored using
// the adapter's vocabularies. Comparison is case-insensitive; anything
// outside both sets is ignored.
func ClassifyStatus(raw string, confirmed, pending []string) StatusClass {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, c := range confirmed {
		if s == c {
			return StatusConfirmed
		}
	}
	for _, p := range pending {
		if s == p {
			return StatusPending
		}
	}
	return StatusIgnored
}

// DetectCurrency scans the leading rows for a currency code via the given
// probe keys, falling back to the network default.
func DetectCurrency(rows []map[string]any, keys []string, fallback string) string {
	limit := len(rows)
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		if cur, ok := FirstString(rows[i], keys...); ok {
			return strings.ToUpper(cur)
		}
	}
	return strings.ToUpper(fallback)
}

// dateParam formats a window bound the way most network APIs accept it.
func dateParam(t time.Time) string {
	return t.Format("2006-01-02")
}
