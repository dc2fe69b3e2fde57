package network

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zaorak/affiliate-hub/internal/config"
	"github.com/zaorak/affiliate-hub/internal/fx"
)

var (
	addrevenueSubIDKeys     = []string{"clickRef", "clickref", "subId", "subid", "epi", "epi1", "epi2"}
	addrevenueAmountKeys    = []string{"commission", "publisherCommission", "reward", "amount", "value"}
	addrevenueConfirmed     = []string{"approved", "confirmed", "paid"}
	addrevenuePending       = []string{"pending", "awaiting"}
	addrevenueCurrencyKeys  = []string{"currency", "currencyCode", "commissionCurrency"}
	addrevenueCountryParams = []string{"country", "countryCode", "region", "regionCode"}
)

// Addrevenue talks to the Addrevenue v2 API. Responses wrap their rows in
// a results envelope.
type Addrevenue struct {
	cfg     config.AddrevenueConfig
	client  *Client
	fx      fx.Converter
	logger  zerolog.Logger
	catalog *Cache[[]Programme]
	feeds   *Cache[map[string][]string]
}

// NewAddrevenue constructs the Addrevenue adapter.
func NewAddrevenue(cfg config.NetworksConfig, fxc fx.Converter, logger zerolog.Logger) *Addrevenue {
	return &Addrevenue{
		cfg:     cfg.Addrevenue,
		client:  NewHTTPClient("addrevenue", cfg.RequestTimeout, cfg.RateLimit, logger),
		fx:      fxc,
		logger:  logger.With().Str("component", "addrevenue").Logger(),
		catalog: NewCache[[]Programme](cfg.CatalogTTL),
		feeds:   NewCache[map[string][]string](cfg.CatalogTTL),
	}
}

func (a *Addrevenue) Name() string { return "addrevenue" }

func (a *Addrevenue) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.cfg.Token)
	h.Set("Content-Type", "application/json")
	return h
}

func (a *Addrevenue) get(ctx context.Context, path string, params url.Values) ([]map[string]any, error) {
	u := strings.TrimRight(a.cfg.BaseURL, "/") + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var payload any
	if err := a.client.GetJSON(ctx, u, a.header(), &payload); err != nil {
		return nil, err
	}
	return RowsFromPayload(payload, "results"), nil
}

// Commissions aggregates the transactions of the window.
func (a *Addrevenue) Commissions(ctx context.Context, q Query) (CommissionSnapshot, error) {
	if a.cfg.Token == "" {
		return BlankSnapshot(a.Name(), q.Currency, "addrevenue token not configured"), nil
	}

	params := url.Values{}
	params.Set("fromDate", dateParam(q.Start))
	params.Set("toDate", dateParam(q.End))
	if a.cfg.ChannelID != "" {
		params.Set("channelId", a.cfg.ChannelID)
	}

	rows, err := a.get(ctx, "/transactions", params)
	if err != nil {
		a.logger.Warn().Err(err).Msg("transactions fetch failed")
		return BlankSnapshot(a.Name(), q.Currency, "addrevenue transactions: "+err.Error()), nil
	}

	filtered := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if MatchAnySubID(SubIDValues(row, addrevenueSubIDKeys...), q.SubIDs, q.Match) {
			filtered = append(filtered, row)
		}
	}

	confirmed, pending := decimal.Zero, decimal.Zero
	for _, row := range filtered {
		status, _ := FirstString(row, "status", "state")
		amount, _ := FirstAmount(row, addrevenueAmountKeys...)
		switch ClassifyStatus(status, addrevenueConfirmed, addrevenuePending) {
		case StatusConfirmed:
			confirmed = confirmed.Add(amount)
		case StatusPending:
			pending = pending.Add(amount)
		}
	}

	src := DetectCurrency(filtered, addrevenueCurrencyKeys, a.cfg.DefaultCurrency)
	return Summarize(ctx, a.fx, a.Name(), src, q.Currency, confirmed, pending, rows, filtered), nil
}

// Programmes lists advertiser relations. The relations listing is
// preferred; accounts without it fall back to the advertisers listing.
// Server-side country filtering is attempted first, then client-side.
func (a *Addrevenue) Programmes(ctx context.Context, country string) ([]Programme, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if cached, ok := a.catalog.Get(country); ok {
		return cached, nil
	}

	paths := []string{"/relations", "/advertisers"}

	var rows []map[string]any
	var lastErr error
	if country != "" {
		for _, path := range paths {
			params := url.Values{}
			params.Set(addrevenueCountryParams[0], country)
			var err error
			rows, err = a.get(ctx, path, params)
			if err != nil {
				lastErr = err
				continue
			}
			if len(rows) > 0 {
				break
			}
		}
	}
	if len(rows) == 0 {
		for _, path := range paths {
			var err error
			rows, err = a.get(ctx, path, nil)
			if err != nil {
				lastErr = err
				continue
			}
			if len(rows) > 0 {
				break
			}
		}
	}
	if len(rows) == 0 && lastErr != nil {
		return nil, fmt.Errorf("addrevenue programmes: %w", lastErr)
	}

	out := make([]Programme, 0, len(rows))
	for _, row := range rows {
		id, ok := FirstString(row, "advertiserId", "programId", "id", "advertiser_id", "programmeId")
		if !ok {
			continue
		}
		name, _ := FirstString(row, "advertiserName", "programName", "name", "title")
		if name == "" {
			name = "(unknown)"
		}
		status, _ := FirstString(row, "programmeStatus", "status", "state", "relationStatus", "relation")
		relationship, _ := FirstString(row, "relationship", "relationStatus", "relation", "status")
		rowCountry, _ := FirstString(row, "country", "countryCode", "region", "market")
		rowCountry = strings.ToUpper(rowCountry)

		if country != "" && rowCountry != "" && rowCountry != country {
			continue
		}

		out = append(out, Programme{
			Network:      a.Name(),
			AdvertiserID: id,
			Name:         name,
			Status:       strings.ToLower(status),
			Relationship: strings.ToLower(relationship),
			Country:      country,
		})
	}

	a.catalog.Set(country, out)
	return out, nil
}

// FeedsFor resolves the product feed URLs of one advertiser from the
// productfeeds listing, de-duplicated preserving first-seen order.
func (a *Addrevenue) FeedsFor(ctx context.Context, advertiserID string) ([]string, error) {
	byAdvertiser, err := a.productFeeds(ctx)
	if err != nil {
		return nil, err
	}
	return byAdvertiser[advertiserID], nil
}

func (a *Addrevenue) productFeeds(ctx context.Context) (map[string][]string, error) {
	if cached, ok := a.feeds.Get("all"); ok {
		return cached, nil
	}

	params := url.Values{}
	if a.cfg.ChannelID != "" {
		params.Set("channelId", a.cfg.ChannelID)
	}
	rows, err := a.get(ctx, "/productfeeds", params)
	if err != nil {
		return nil, fmt.Errorf("addrevenue productfeeds: %w", err)
	}

	byAdvertiser := make(map[string][]string)
	for _, row := range rows {
		id, ok := FirstString(row, "advertiserId", "advertiser_id")
		if !ok {
			continue
		}
		feed, ok := FirstString(row, "feedUrl", "feed_url", "url")
		if !ok {
			continue
		}
		if !containsString(byAdvertiser[id], feed) {
			byAdvertiser[id] = append(byAdvertiser[id], feed)
		}
	}

	a.feeds.Set("all", byAdvertiser)
	return byAdvertiser, nil
}

// TrackingLinks maps advertiser IDs to the first tracking link the
// campaigns listing reports for the configured channel.
func (a *Addrevenue) TrackingLinks(ctx context.Context) (map[string]string, error) {
	if a.cfg.ChannelID == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("channelId", a.cfg.ChannelID)
	rows, err := a.get(ctx, "/campaigns", params)
	if err != nil {
		return nil, fmt.Errorf("addrevenue campaigns: %w", err)
	}

	links := make(map[string]string)
	for _, row := range rows {
		id, ok := FirstString(row, "advertiserId", "advertiser_id")
		if !ok {
			continue
		}
		link, ok := FirstString(row, "trackingLink", "tracking_link", "trackingUrl")
		if !ok {
			continue
		}
		if _, dup := links[id]; !dup {
			links[id] = link
		}
	}
	return links, nil
}
