package network

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zaorak/affiliate-hub/internal/config"
	"github.com/zaorak/affiliate-hub/internal/fx"
)

// impactMaxPages caps pagination against a misbehaving API. Hitting the
// ceiling is a stop condition, not an error.
const impactMaxPages = 10

var impactSubIDKeys = []string{"SubId1", "SubId2", "SubId3", "SharedId", "PromoCode"}

// Impact talks to the Impact.com media partner API using basic auth with
// the account SID and auth token.
type Impact struct {
	cfg     config.ImpactConfig
	client  *Client
	fx      fx.Converter
	logger  zerolog.Logger
	catalog *Cache[[]map[string]any]
	feeds   *Cache[map[string][]string]
}

// NewImpact constructs the Impact adapter.
func NewImpact(cfg config.NetworksConfig, fxc fx.Converter, logger zerolog.Logger) *Impact {
	return &Impact{
		cfg:     cfg.Impact,
		client:  NewHTTPClient("impact", cfg.RequestTimeout, cfg.RateLimit, logger),
		fx:      fxc,
		logger:  logger.With().Str("component", "impact").Logger(),
		catalog: NewCache[[]map[string]any](cfg.CatalogTTL),
		feeds:   NewCache[map[string][]string](cfg.CatalogTTL),
	}
}

func (im *Impact) Name() string { return "impact" }

func (im *Impact) configured() bool {
	return im.cfg.AccountSID != "" && im.cfg.AuthToken != ""
}

// getPaged walks a paginated listing, following @nextpageuri until the
// API stops or the page ceiling is reached.
func (im *Impact) getPaged(ctx context.Context, path, rowsKey string, params url.Values) ([]map[string]any, error) {
	base := fmt.Sprintf("%s/%s%s", strings.TrimRight(im.cfg.BaseURL, "/"), im.cfg.AccountSID, path)

	var all []map[string]any
	page := 1
	for {
		params.Set("Page", strconv.Itoa(page))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.SetBasicAuth(im.cfg.AccountSID, im.cfg.AuthToken)

		var payload map[string]any
		if err := im.client.DoJSON(req, nil, &payload); err != nil {
			return nil, err
		}

		all = append(all, RowsFromPayload(payload, rowsKey)...)

		next, _ := FirstString(payload, "@nextpageuri", "@nextPageUri")
		if next == "" {
			break
		}
		page++
		if page > impactMaxPages {
			break
		}
	}
	return all, nil
}

// Commissions aggregates Actions over the window.
func (im *Impact) Commissions(ctx context.Context, q Query) (CommissionSnapshot, error) {
	if !im.configured() {
		return BlankSnapshot(im.Name(), q.Currency, "impact credentials not configured"), nil
	}

	params := url.Values{}
	params.Set("ActionDateStart", dateParam(q.Start)+"T00:00:00Z")
	params.Set("ActionDateEnd", dateParam(q.End)+"T23:59:59Z")
	params.Set("PageSize", "20000")

	rows, err := im.getPaged(ctx, "/Actions", "Actions", params)
	if err != nil {
		im.logger.Warn().Err(err).Msg("actions fetch failed")
		return BlankSnapshot(im.Name(), q.Currency, "impact actions: "+err.Error()), nil
	}

	filtered := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if MatchAnySubID(SubIDValues(row, impactSubIDKeys...), q.SubIDs, q.Match) {
			filtered = append(filtered, row)
		}
	}

	confirmed, pending := decimal.Zero, decimal.Zero
	for _, row := range filtered {
		state, _ := FirstString(row, "State")
		payout, _ := FirstAmount(row, "Payout", "DeltaPayout")
		switch ClassifyStatus(state, []string{"approved"}, []string{"pending"}) {
		case StatusConfirmed:
			confirmed = confirmed.Add(payout)
		case StatusPending:
			pending = pending.Add(payout)
		}
	}

	src := DetectCurrency(filtered, []string{"Currency"}, im.cfg.DefaultCurrency)
	return Summarize(ctx, im.fx, im.Name(), src, q.Currency, confirmed, pending, rows, filtered), nil
}

// Programmes lists the joined campaigns matching a market. Impact has no
// server-side country filter, so campaigns are filtered locally by
// shipping regions, then primary region, then currency as a weak signal.
// Campaigns with no authoritative region data are kept.
func (im *Impact) Programmes(ctx context.Context, country string) ([]Programme, error) {
	country = NormalizeCountry(country)

	rows, err := im.campaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("impact campaigns: %w", err)
	}

	out := make([]Programme, 0, len(rows))
	for _, row := range rows {
		if !im.matchesMarket(row, country) {
			continue
		}
		id, ok := FirstString(row, "CampaignId")
		if !ok {
			continue
		}
		name, _ := FirstString(row, "CampaignName", "AdvertiserName")
		if name == "" {
			name = "(unknown)"
		}
		status, _ := FirstString(row, "InsertionOrderStatus", "Status")
		relationship, _ := FirstString(row, "ContractStatus")
		currency, _ := FirstString(row, "Currency")

		out = append(out, Programme{
			Network:      im.Name(),
			AdvertiserID: id,
			Name:         name,
			Status:       strings.ToLower(status),
			Relationship: strings.ToLower(relationship),
			Country:      country,
			Currency:     strings.ToUpper(currency),
		})
	}
	return out, nil
}

func (im *Impact) campaigns(ctx context.Context) ([]map[string]any, error) {
	if cached, ok := im.catalog.Get("campaigns"); ok {
		return cached, nil
	}
	params := url.Values{}
	params.Set("InsertionOrderStatus", "Active")
	params.Set("PageSize", "200")
	rows, err := im.getPaged(ctx, "/Campaigns", "Campaigns", params)
	if err != nil {
		return nil, err
	}
	im.catalog.Set("campaigns", rows)
	return rows, nil
}

// matchesMarket applies the market heuristic: the campaign must ship to
// the country, and its primary region must match when present. Without a
// primary region the campaign currency decides; without that mapping the
// shipping match alone is enough.
func (im *Impact) matchesMarket(row map[string]any, country string) bool {
	if country == "" {
		return true
	}

	regions := regionValues(row["ShippingRegions"])
	if len(regions) > 0 && !AnyCountryMatch(regions, country) {
		return false
	}

	if primary, ok := FirstString(row, "PrimaryRegion", "Primary Region", "primaryRegion", "primary_region"); ok {
		return NormalizeCountry(primary) == country
	}

	expected := CurrencyForCountry(country)
	if expected == "" {
		return true
	}
	cur, ok := FirstString(row, "Currency")
	if !ok {
		return true
	}
	return strings.ToUpper(cur) == expected
}

func regionValues(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		for _, k := range []string{"ShippingRegion", "Region"} {
			if inner, ok := t[k]; ok {
				return regionValues(inner)
			}
		}
	}
	return nil
}

// FeedsFor resolves catalog feed URLs for a campaign, preferring the
// items API URI over raw file locations. URLs are de-duplicated keeping
// first-seen order.
func (im *Impact) FeedsFor(ctx context.Context, campaignID string) ([]string, error) {
	feeds, err := im.catalogFeeds(ctx)
	if err != nil {
		return nil, err
	}
	return feeds[campaignID], nil
}

func (im *Impact) catalogFeeds(ctx context.Context) (map[string][]string, error) {
	if cached, ok := im.feeds.Get("catalogs"); ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("PageSize", "200")
	rows, err := im.getPaged(ctx, "/Catalogs", "Catalogs", params)
	if err != nil {
		return nil, fmt.Errorf("impact catalogs: %w", err)
	}

	feeds := make(map[string][]string)
	for _, row := range rows {
		campID, ok := FirstString(row, "CampaignId")
		if !ok {
			continue
		}
		var urls []string
		if itemsURI, ok := FirstString(row, "ItemsUri"); ok {
			urls = append(urls, "https://api.impact.com"+itemsURI)
		}
		if locs, ok := row["Locations"].([]any); ok {
			for _, loc := range locs {
				if s, ok := loc.(string); ok && strings.TrimSpace(s) != "" {
					urls = append(urls, strings.TrimSpace(s))
				}
			}
		}
		for _, u := range urls {
			if !containsString(feeds[campID], u) {
				feeds[campID] = append(feeds[campID], u)
			}
		}
	}

	im.feeds.Set("catalogs", feeds)
	return feeds, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
