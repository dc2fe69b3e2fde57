package network

import (
	"context"
	"encoding/base64"
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

// partnerizeMaxPages caps both participation and feed pagination.
const partnerizeMaxPages = 20

var (
	partnerizeSubIDKeys  = []string{"clickref", "click_ref", "publisher_reference"}
	partnerizeAmountKeys = []string{"publisher_commission", "commission", "conversion_value", "value"}
	partnerizeConfirmed  = []string{"approved", "paid"}
	partnerizePending    = []string{"pending"}
)

// Partnerize talks to the Partnerize partner API with basic auth built
// from the application key and the user API key. Current participation
// payloads carry a backend quirk where some field names end in a colon,
// so every probe tries both spellings.
type Partnerize struct {
	cfg      config.PartnerizeConfig
	client   *Client
	fx       fx.Converter
	logger   zerolog.Logger
	catalog  *Cache[[]Programme]
	feedsMap *Cache[map[string][]string]
}

// NewPartnerize constructs the Partnerize adapter.
func NewPartnerize(cfg config.NetworksConfig, fxc fx.Converter, logger zerolog.Logger) *Partnerize {
	return &Partnerize{
		cfg:      cfg.Partnerize,
		client:   NewHTTPClient("partnerize", cfg.RequestTimeout, cfg.RateLimit, logger),
		fx:       fxc,
		logger:   logger.With().Str("component", "partnerize").Logger(),
		catalog:  NewCache[[]Programme](cfg.CatalogTTL),
		feedsMap: NewCache[map[string][]string](cfg.CatalogTTL),
	}
}

func (p *Partnerize) Name() string { return "partnerize" }

func (p *Partnerize) configured() bool {
	return p.cfg.AppKey != "" && p.cfg.APIKey != "" && p.cfg.PublisherID != ""
}

func (p *Partnerize) header() http.Header {
	h := http.Header{}
	token := base64.StdEncoding.EncodeToString([]byte(p.cfg.AppKey + ":" + p.cfg.APIKey))
	h.Set("Authorization", "Basic "+token)
	return h
}

func (p *Partnerize) get(ctx context.Context, path string, params url.Values, out any) error {
	u := strings.TrimRight(p.cfg.BaseURL, "/") + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return p.client.GetJSON(ctx, u, p.header(), out)
}

// Commissions aggregates conversions over the window.
func (p *Partnerize) Commissions(ctx context.Context, q Query) (CommissionSnapshot, error) {
	if !p.configured() {
		return BlankSnapshot(p.Name(), q.Currency, "partnerize credentials not configured"), nil
	}

	var all []map[string]any
	pageSize := 100
	for page := 1; page <= partnerizeMaxPages; page++ {
		params := url.Values{}
		params.Set("start_date", dateParam(q.Start))
		params.Set("end_date", dateParam(q.End))
		params.Set("page", strconv.Itoa(page))
		params.Set("page_size", strconv.Itoa(pageSize))

		var payload any
		if err := p.get(ctx, "/v3/partner/"+p.cfg.PublisherID+"/conversions", params, &payload); err != nil {
			p.logger.Warn().Err(err).Msg("conversions fetch failed")
			return BlankSnapshot(p.Name(), q.Currency, "partnerize conversions: "+err.Error()), nil
		}
		rows := RowsFromPayload(payload, "data", "conversions")
		all = append(all, rows...)
		if len(rows) < pageSize {
			break
		}
	}

	filtered := make([]map[string]any, 0, len(all))
	for _, row := range all {
		if MatchAnySubID(SubIDValues(row, partnerizeSubIDKeys...), q.SubIDs, q.Match) {
			filtered = append(filtered, row)
		}
	}

	confirmed, pending := decimal.Zero, decimal.Zero
	for _, row := range filtered {
		status, _ := FirstString(row, "status", "conversion_status")
		amount, _ := FirstAmount(row, partnerizeAmountKeys...)
		switch ClassifyStatus(status, partnerizeConfirmed, partnerizePending) {
		case StatusConfirmed:
			confirmed = confirmed.Add(amount)
		case StatusPending:
			pending = pending.Add(amount)
		}
	}

	src := DetectCurrency(filtered, []string{"currency", "conversion_currency"}, p.cfg.DefaultCurrency)
	return Summarize(ctx, p.fx, p.Name(), src, q.Currency, confirmed, pending, all, filtered), nil
}

// Programmes lists the account's campaign participations for a country.
// The v3 participations listing is primary; when it yields nothing the v1
// campaign listing serves as fallback. Campaigns with promotional
// countries are filtered against the requested country; campaigns without
// any are kept.
func (p *Partnerize) Programmes(ctx context.Context, country string) ([]Programme, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if cached, ok := p.catalog.Get(country); ok {
		return cached, nil
	}

	all, err := p.participationsV3(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("v3 participations failed, trying v1 campaigns")
		all, err = p.campaignsV1(ctx)
		if err != nil {
			return nil, fmt.Errorf("partnerize programmes: %w", err)
		}
	}

	out := make([]Programme, 0, len(all))
	for _, prog := range all {
		if country != "" && prog.Country != "" && !strings.Contains(prog.Country, country) {
			continue
		}
		prog.Country = country
		out = append(out, prog)
	}

	p.catalog.Set(country, out)
	return out, nil
}

func (p *Partnerize) participationsV3(ctx context.Context) ([]Programme, error) {
	var all []Programme
	pageSize := 100
	for page := 1; page <= partnerizeMaxPages; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("page_size", strconv.Itoa(pageSize))
		params.Add("status", "a")
		params.Add("status", "p")
		params.Add("campaign_status", "a")

		var payload any
		if err := p.get(ctx, "/v3/partner/"+p.cfg.PublisherID+"/participations", params, &payload); err != nil {
			return nil, err
		}
		rows := RowsFromPayload(payload, "data")
		for _, row := range rows {
			if prog, ok := p.participationToProgramme(row); ok {
				all = append(all, prog)
			}
		}
		if len(rows) < pageSize {
			break
		}
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no participations returned")
	}
	return all, nil
}

func (p *Partnerize) participationToProgramme(row map[string]any) (Programme, bool) {
	id, ok := FirstString(row, "campaign_id", "campaign_id:")
	if !ok {
		return Programme{}, false
	}
	status, _ := FirstString(row, "status", "status:")
	currency, _ := FirstString(row, "default_currency", "default_currency:")

	name := "(unknown)"
	if info := childMap(row, "campaign_info", "campaign_info:"); info != nil {
		if t, ok := FirstString(info, "title", "name"); ok {
			name = t
		}
	}

	promos := promotionalCountries(row["promotional_countries"])
	if promos == nil {
		promos = promotionalCountries(row["promotional_countries:"])
	}

	return Programme{
		Network:      p.Name(),
		AdvertiserID: id,
		Name:         name,
		Status:       strings.ToLower(status),
		Relationship: strings.ToLower(status),
		Country:      strings.Join(promos, ","),
		Currency:     strings.ToUpper(currency),
	}, true
}

func (p *Partnerize) campaignsV1(ctx context.Context) ([]Programme, error) {
	var payload any
	if err := p.get(ctx, "/user/publisher/"+p.cfg.PublisherID+"/campaign", nil, &payload); err != nil {
		return nil, err
	}

	rows := RowsFromPayload(payload, "campaigns")
	var all []Programme
	for _, item := range rows {
		inner := childMap(item, "campaign")
		if inner == nil {
			inner = item
		}
		id, ok := FirstString(inner, "campaign_id", "campaign_id:", "id")
		if !ok {
			continue
		}
		status, _ := FirstString(inner, "status")
		if status == "" {
			status, _ = FirstString(item, "status")
		}
		currency, _ := FirstString(inner, "default_currency", "currency")
		name, _ := FirstString(inner, "title", "name")
		if name == "" {
			name = "(unknown)"
		}
		promos := promotionalCountries(inner["countries"])
		if promos == nil {
			promos = promotionalCountries(inner["country_codes"])
		}
		if promos == nil {
			promos = promotionalCountries(item["countries"])
		}

		all = append(all, Programme{
			Network:      p.Name(),
			AdvertiserID: id,
			Name:         name,
			Status:       strings.ToLower(status),
			Relationship: strings.ToLower(status),
			Country:      strings.Join(promos, ","),
			Currency:     strings.ToUpper(currency),
		})
	}
	return all, nil
}

// promotionalCountries tolerates the three shapes the API has been seen
// returning: list, keyed map, or a bare string.
func promotionalCountries(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			if s, ok := it.(string); ok {
				out = append(out, strings.ToUpper(s))
			}
		}
		return out
	case map[string]any:
		out := make([]string, 0, len(t))
		for k := range t {
			out = append(out, strings.ToUpper(k))
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{strings.ToUpper(t)}
	}
	return nil
}

func childMap(row map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if m, ok := row[k].(map[string]any); ok {
			return m
		}
	}
	return nil
}

// FeedsFor resolves the active feed URLs for a campaign from the
// publisher feed listing.
func (p *Partnerize) FeedsFor(ctx context.Context, campaignID string) ([]string, error) {
	feeds, err := p.feedsByCampaign(ctx)
	if err != nil {
		return nil, err
	}
	return feeds[campaignID], nil
}

func (p *Partnerize) feedsByCampaign(ctx context.Context) (map[string][]string, error) {
	if cached, ok := p.feedsMap.Get("feeds"); ok {
		return cached, nil
	}

	feeds := make(map[string][]string)
	pageSize := 50
	for page := 1; page <= partnerizeMaxPages; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("page_size", strconv.Itoa(pageSize))
		params.Set("active", "y")

		var payload any
		if err := p.get(ctx, "/user/publisher/"+p.cfg.PublisherID+"/feed", params, &payload); err != nil {
			return nil, fmt.Errorf("partnerize feeds: %w", err)
		}

		rows := RowsFromPayload(payload, "campaigns")
		if len(rows) == 0 {
			break
		}
		for _, item := range rows {
			camp := childMap(item, "campaign")
			if camp == nil {
				camp = item
			}
			cid, ok := FirstString(camp, "campaign_id", "id")
			if !ok {
				continue
			}
			feedRows := RowsFromPayload(camp["feeds"])
			if feedRows == nil {
				if single, ok := camp["feeds"].(map[string]any); ok {
					feedRows = []map[string]any{single}
				}
			}
			for _, f := range feedRows {
				loc, ok := FirstString(f, "location", "location_compressed", "feed_url", "url")
				if !ok {
					continue
				}
				if !containsString(feeds[cid], loc) {
					feeds[cid] = append(feeds[cid], loc)
				}
			}
		}
		if len(rows) < pageSize {
			break
		}
	}

	p.feedsMap.Set("feeds", feeds)
	return feeds, nil
}
