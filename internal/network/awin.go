package network

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zaorak/affiliate-hub/internal/config"
	"github.com/zaorak/affiliate-hub/internal/fx"
)

// awinTransactionsMaxDays is the hard window limit of the transactions
// endpoint. Longer windows are a caller mistake, not something to truncate.
const awinTransactionsMaxDays = 31

var (
	awinSubIDKeys    = []string{"clickRef", "clickRef2", "clickRef3", "clickRef4", "clickRef5", "clickRef6"}
	awinFormatRe     = regexp.MustCompile(`/format/[^/]+/`)
	awinDelimiterRe  = regexp.MustCompile(`/delimiter/[^/]+`)
	awinFeedURLKeys  = []string{"Data feed download URL", "Download URL", "URL", "Url", "Datafeed URL"}
	awinFeedIDKeys   = []string{"Feed ID", "feed id", "FeedID", "datafeed id"}
	awinAdvertiserID = []string{"Advertiser ID", "advertiser id", "AdvertiserID"}
)

// AWIN talks to the AWIN publisher API. Aggregate earnings come from the
// advertiser report; sub-ID filtered earnings require the transactions
// endpoint, which batches by advertiser and caps the window length.
type AWIN struct {
	cfg      config.AWINConfig
	client   *Client
	fx       fx.Converter
	logger   zerolog.Logger
	catalog  *Cache[[]Programme]
	feedRows *Cache[[]AWINFeedRow]
}

// AWINFeedRow is one normalized row of the publisher feed list CSV.
type AWINFeedRow struct {
	AdvertiserID int64
	Region       string
	Status       string
	Fields       map[string]string
}

// NewAWIN constructs the AWIN adapter.
func NewAWIN(cfg config.NetworksConfig, fxc fx.Converter, logger zerolog.Logger) *AWIN {
	return &AWIN{
		cfg:      cfg.AWIN,
		client:   NewHTTPClient("awin", cfg.RequestTimeout, cfg.RateLimit, logger),
		fx:       fxc,
		logger:   logger.With().Str("component", "awin").Logger(),
		catalog:  NewCache[[]Programme](cfg.CatalogTTL),
		feedRows: NewCache[[]AWINFeedRow](cfg.CatalogTTL),
	}
}

func (a *AWIN) Name() string { return "awin" }

func (a *AWIN) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.cfg.Token)
	return h
}

// Commissions returns the normalized earnings for the window. With sub-ID
// filters the transaction listing is used; without, the aggregate
// advertiser report which has no window cap.
func (a *AWIN) Commissions(ctx context.Context, q Query) (CommissionSnapshot, error) {
	if a.cfg.Token == "" || a.cfg.PublisherID == "" {
		return BlankSnapshot(a.Name(), q.Currency, "awin credentials not configured"), nil
	}
	if len(q.SubIDs) > 0 {
		if q.End.Sub(q.Start) > awinTransactionsMaxDays*24*time.Hour {
			return CommissionSnapshot{}, &ConfigurationError{
				Network: a.Name(),
				Detail:  fmt.Sprintf("transactions endpoint supports at most %d days, got %s to %s", awinTransactionsMaxDays, dateParam(q.Start), dateParam(q.End)),
			}
		}
		return a.commissionsFromTransactions(ctx, q), nil
	}
	return a.commissionsFromReport(ctx, q), nil
}

func (a *AWIN) commissionsFromReport(ctx context.Context, q Query) CommissionSnapshot {
	params := url.Values{}
	params.Set("accessToken", a.cfg.Token)
	params.Set("startDate", dateParam(q.Start))
	params.Set("endDate", dateParam(q.End))
	params.Set("timezone", "UTC")
	if len(q.Countries) > 0 {
		params.Set("region", strings.Join(q.Countries, ","))
	}

	var payload any
	u := fmt.Sprintf("%s/publishers/%s/reports/advertiser?%s", strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.PublisherID, params.Encode())
	if err := a.client.GetJSON(ctx, u, a.header(), &payload); err != nil {
		a.logger.Warn().Err(err).Msg("advertiser report failed")
		return BlankSnapshot(a.Name(), q.Currency, "awin report: "+err.Error())
	}

	rows := RowsFromPayload(payload, "rows")
	confirmed, pending, total := decimal.Zero, decimal.Zero, decimal.Zero
	for _, row := range rows {
		if v, ok := FirstAmount(row, "confirmedComm"); ok {
			confirmed = confirmed.Add(v)
		}
		if v, ok := FirstAmount(row, "pendingComm"); ok {
			pending = pending.Add(v)
		}
		if v, ok := FirstAmount(row, "totalComm"); ok {
			total = total.Add(v)
		}
	}

	src := DetectCurrency(rows, []string{"currency", "currencyCode"}, a.cfg.DefaultCurrency)
	snap := Summarize(ctx, a.fx, a.Name(), src, q.Currency, confirmed, pending, rows, rows)
	if !total.IsZero() {
		snap.Total = total.Mul(snap.FXRate)
	}
	return snap
}

func (a *AWIN) commissionsFromTransactions(ctx context.Context, q Query) CommissionSnapshot {
	advertisers := a.advertiserIDs(ctx, q.Countries)

	base := url.Values{}
	base.Set("accessToken", a.cfg.Token)
	base.Set("startDate", q.Start.Format("2006-01-02")+"T00:00:00Z")
	base.Set("endDate", q.End.Format("2006-01-02")+"T23:59:59Z")
	base.Set("timezone", "UTC")
	base.Set("dateType", "transaction")

	u := fmt.Sprintf("%s/publishers/%s/transactions", strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.PublisherID)

	var all []map[string]any
	fetch := func(params url.Values) error {
		var payload any
		if err := a.client.GetJSON(ctx, u+"?"+params.Encode(), a.header(), &payload); err != nil {
			return err
		}
		all = append(all, RowsFromPayload(payload, "rows")...)
		return nil
	}

	if len(advertisers) == 0 {
		if err := fetch(base); err != nil {
			a.logger.Warn().Err(err).Msg("transactions fetch failed")
			return BlankSnapshot(a.Name(), q.Currency, "awin transactions: "+err.Error())
		}
	} else {
		// the endpoint accepts at most 50 advertiser IDs per call
		for i := 0; i < len(advertisers); i += 50 {
			end := i + 50
			if end > len(advertisers) {
				end = len(advertisers)
			}
			params := url.Values{}
			for k, v := range base {
				params[k] = v
			}
			ids := make([]string, 0, end-i)
			for _, id := range advertisers[i:end] {
				ids = append(ids, strconv.FormatInt(id, 10))
			}
			params.Set("advertiserIds", strings.Join(ids, ","))
			if err := fetch(params); err != nil {
				a.logger.Warn().Err(err).Msg("transactions fetch failed")
				return BlankSnapshot(a.Name(), q.Currency, "awin transactions: "+err.Error())
			}
		}
	}

	filtered := make([]map[string]any, 0, len(all))
	for _, row := range all {
		if MatchAnySubID(SubIDValues(row, awinSubIDKeys...), q.SubIDs, q.Match) {
			filtered = append(filtered, row)
		}
	}

	confirmed, pending := decimal.Zero, decimal.Zero
	for _, row := range filtered {
		status, _ := FirstString(row, "status")
		amount, _ := FirstAmount(row, "commissionAmount", "commission", "publisherCommission")
		switch ClassifyStatus(status, []string{"approved"}, []string{"pending"}) {
		case StatusConfirmed:
			confirmed = confirmed.Add(amount)
		case StatusPending:
			pending = pending.Add(amount)
		}
	}

	src := DetectCurrency(filtered, []string{"currency", "commissionCurrency"}, a.cfg.DefaultCurrency)
	return Summarize(ctx, a.fx, a.Name(), src, q.Currency, confirmed, pending, all, filtered)
}

// advertiserIDs collects the advertiser IDs of the joined programmes for
// the given countries. Lookup failures shrink the scope instead of
// failing the earnings call.
func (a *AWIN) advertiserIDs(ctx context.Context, countries []string) []int64 {
	seen := map[int64]struct{}{}
	var ids []int64
	for _, cc := range countries {
		progs, err := a.Programmes(ctx, cc)
		if err != nil {
			a.logger.Warn().Err(err).Str("country", cc).Msg("programme lookup failed, narrowing advertiser scope")
			continue
		}
		for _, p := range progs {
			id, err := strconv.ParseInt(p.AdvertiserID, 10, 64)
			if err != nil {
				continue
			}
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Programmes lists the publisher's programme relationships for a country.
func (a *AWIN) Programmes(ctx context.Context, country string) ([]Programme, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if cached, ok := a.catalog.Get(country); ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("accessToken", a.cfg.Token)
	if country != "" {
		params.Set("countryCode", country)
	}

	var payload any
	u := fmt.Sprintf("%s/publishers/%s/programmes?%s", strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.PublisherID, params.Encode())
	if err := a.client.GetJSON(ctx, u, a.header(), &payload); err != nil {
		return nil, fmt.Errorf("awin programmes: %w", err)
	}

	rows := RowsFromPayload(payload, "programmes")
	out := make([]Programme, 0, len(rows))
	for _, row := range rows {
		id, ok := FirstString(row, "advertiserId", "programId", "id")
		if !ok {
			continue
		}
		name, _ := FirstString(row, "advertiserName", "programName", "name")
		if name == "" {
			name = "(unknown)"
		}
		status, _ := FirstString(row, "status", "programmeStatus", "state")
		relationship, _ := FirstString(row, "relationship", "membershipStatus", "relation")
		currency, _ := FirstString(row, "currencyCode", "currency")

		out = append(out, Programme{
			Network:      a.Name(),
			AdvertiserID: id,
			Name:         name,
			Status:       strings.ToLower(status),
			Relationship: strings.ToLower(relationship),
			Country:      country,
			Currency:     strings.ToUpper(currency),
		})
	}

	a.catalog.Set(country, out)
	return out, nil
}

// FeedRows downloads and parses the publisher feed list CSV. The list is
// never fatal: failures come back as an empty slice.
func (a *AWIN) FeedRows(ctx context.Context) []AWINFeedRow {
	if a.cfg.FeedAPIKey == "" {
		return nil
	}
	if cached, ok := a.feedRows.Get("feeds"); ok {
		return cached
	}

	u := strings.TrimRight(a.cfg.FeedListURL, "/") + "/" + a.cfg.FeedAPIKey
	text, err := a.client.GetText(ctx, u)
	if err != nil {
		a.logger.Warn().Err(err).Msg("feed list download failed")
		return nil
	}

	rows, err := parseAWINFeedCSV(text)
	if err != nil {
		a.logger.Warn().Err(err).Msg("feed list parse failed")
		return nil
	}
	a.feedRows.Set("feeds", rows)
	return rows
}

func parseAWINFeedCSV(text string) ([]AWINFeedRow, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	rows := make([]AWINFeedRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		fields := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				fields[strings.TrimSpace(h)] = strings.TrimSpace(rec[i])
			}
		}
		row := AWINFeedRow{Fields: fields}
		for _, k := range awinAdvertiserID {
			if v := fields[k]; v != "" {
				if id, err := strconv.ParseInt(v, 10, 64); err == nil {
					row.AdvertiserID = id
				}
				break
			}
		}
		row.Region = strings.ToUpper(firstField(fields, "Primary Region", "primary region"))
		row.Status = strings.ToLower(firstField(fields, "Membership Status", "membership status"))
		rows = append(rows, row)
	}
	return rows, nil
}

func sniffDelimiter(text string) rune {
	sample := text
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	if line, _, ok := strings.Cut(sample, "\n"); ok {
		sample = line
	}
	if strings.Count(sample, ";") > strings.Count(sample, ",") {
		return ';'
	}
	return ','
}

func firstField(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}

// FeedsFor resolves the feed URLs for an advertiser, preferring feeds
// tagged for the requested country.
func (a *AWIN) FeedsFor(ctx context.Context, advertiserID int64, country string) []string {
	rows := a.FeedRows(ctx)
	country = strings.ToUpper(strings.TrimSpace(country))

	var preferred, rest []string
	seen := map[string]struct{}{}
	add := func(dst *[]string, u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		*dst = append(*dst, u)
	}

	for _, row := range rows {
		if row.AdvertiserID != advertiserID {
			continue
		}
		u := a.feedURLFromRow(row)
		if row.Region == country {
			add(&preferred, u)
		} else {
			add(&rest, u)
		}
	}
	return append(preferred, rest...)
}

// feedURLFromRow returns the download URL for one feed list row, rewriting
// the format segment and stripping CSV-only parameters for XML downloads.
func (a *AWIN) feedURLFromRow(row AWINFeedRow) string {
	format := strings.ToLower(strings.TrimSpace(a.cfg.FeedFormat))
	if format == "" {
		format = "xml"
	}
	for _, k := range awinFeedURLKeys {
		u := strings.TrimSpace(row.Fields[k])
		if u == "" {
			continue
		}
		u = awinFormatRe.ReplaceAllString(u, "/format/"+format+"/")
		if strings.HasPrefix(format, "xml") {
			u = awinDelimiterRe.ReplaceAllString(u, "")
		}
		return u
	}
	for _, k := range awinFeedIDKeys {
		if id := strings.TrimSpace(row.Fields[k]); id != "" {
			return a.buildFeedURL(id, format)
		}
	}
	return ""
}

func (a *AWIN) buildFeedURL(feedID, format string) string {
	lang := strings.TrimSpace(a.cfg.FeedLanguage)
	if lang == "" {
		lang = "en"
	}
	return fmt.Sprintf("https://datafeed.api.productserve.com/datafeed/download/apikey/%s/fid/%s/format/%s/language/%s",
		a.cfg.FeedAPIKey, feedID, format, lang)
}

// TrackingLink builds a cread deeplink for an advertiser.
func (a *AWIN) TrackingLink(advertiserID int64, clickRef, destURL string) string {
	params := url.Values{}
	params.Set("awinmid", strconv.FormatInt(advertiserID, 10))
	params.Set("awinaffid", a.cfg.PublisherID)
	if s := strings.TrimSpace(clickRef); s != "" {
		params.Set("clickref", s)
	}
	if s := strings.TrimSpace(destURL); s != "" {
		params.Set("ued", s)
	}
	return "https://www.awin1.com/cread.php?" + params.Encode()
}
