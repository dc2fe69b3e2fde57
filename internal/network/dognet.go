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
	dognetSubIDKeys  = []string{"data1", "data2", "data3", "data4", "data5"}
	dognetAmountKeys = []string{"commission", "amount", "payout"}
	dognetConfirmed  = []string{"approved", "paid"}
	dognetPending    = []string{"pending"}
)

// Dognet talks to the Dognet affiliate API, a Post-Affiliate-Pro style
// backend where the sub-ID travels in the data1..data5 slots.
type Dognet struct {
	cfg     config.DognetConfig
	client  *Client
	fx      fx.Converter
	logger  zerolog.Logger
	catalog *Cache[[]Programme]
}

// NewDognet constructs the Dognet adapter.
func NewDognet(cfg config.NetworksConfig, fxc fx.Converter, logger zerolog.Logger) *Dognet {
	return &Dognet{
		cfg:     cfg.Dognet,
		client:  NewHTTPClient("dognet", cfg.RequestTimeout, cfg.RateLimit, logger),
		fx:      fxc,
		logger:  logger.With().Str("component", "dognet").Logger(),
		catalog: NewCache[[]Programme](cfg.CatalogTTL),
	}
}

func (d *Dognet) Name() string { return "dognet" }

func (d *Dognet) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+d.cfg.Token)
	return h
}

// Commissions aggregates the transaction listing over the window.
func (d *Dognet) Commissions(ctx context.Context, q Query) (CommissionSnapshot, error) {
	if d.cfg.Token == "" {
		return BlankSnapshot(d.Name(), q.Currency, "dognet token not configured"), nil
	}

	params := url.Values{}
	params.Set("dateFrom", dateParam(q.Start))
	params.Set("dateTo", dateParam(q.End))

	var payload any
	u := strings.TrimRight(d.cfg.BaseURL, "/") + "/transactions?" + params.Encode()
	if err := d.client.GetJSON(ctx, u, d.header(), &payload); err != nil {
		d.logger.Warn().Err(err).Msg("transactions fetch failed")
		return BlankSnapshot(d.Name(), q.Currency, "dognet transactions: "+err.Error()), nil
	}

	rows := RowsFromPayload(payload, "transactions", "data")
	filtered := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if MatchAnySubID(SubIDValues(row, dognetSubIDKeys...), q.SubIDs, q.Match) {
			filtered = append(filtered, row)
		}
	}

	confirmed, pending := decimal.Zero, decimal.Zero
	for _, row := range filtered {
		status, _ := FirstString(row, "status", "state")
		amount, _ := FirstAmount(row, dognetAmountKeys...)
		switch ClassifyStatus(status, dognetConfirmed, dognetPending) {
		case StatusConfirmed:
			confirmed = confirmed.Add(amount)
		case StatusPending:
			pending = pending.Add(amount)
		}
	}

	src := DetectCurrency(filtered, []string{"currency", "currencyCode"}, d.cfg.DefaultCurrency)
	return Summarize(ctx, d.fx, d.Name(), src, q.Currency, confirmed, pending, rows, filtered), nil
}

// Programmes lists the account's campaigns. Rows carrying a country are
// filtered against the requested one; the rest are kept.
func (d *Dognet) Programmes(ctx context.Context, country string) ([]Programme, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if cached, ok := d.catalog.Get(country); ok {
		return cached, nil
	}

	var payload any
	u := strings.TrimRight(d.cfg.BaseURL, "/") + "/campaigns"
	if err := d.client.GetJSON(ctx, u, d.header(), &payload); err != nil {
		return nil, fmt.Errorf("dognet campaigns: %w", err)
	}

	rows := RowsFromPayload(payload, "campaigns", "data")
	out := make([]Programme, 0, len(rows))
	for _, row := range rows {
		id, ok := FirstString(row, "id", "campaignId", "campaign_id")
		if !ok {
			continue
		}
		name, _ := FirstString(row, "name", "title")
		if name == "" {
			name = "(unknown)"
		}
		status, _ := FirstString(row, "status", "state")
		relationship, _ := FirstString(row, "rstatus", "relationship")
		rowCountry, _ := FirstString(row, "country", "countryCode", "market")
		rowCountry = NormalizeCountry(rowCountry)
		if country != "" && rowCountry != "" && rowCountry != country {
			continue
		}
		currency, _ := FirstString(row, "currency", "currencyCode")

		out = append(out, Programme{
			Network:      d.Name(),
			AdvertiserID: id,
			Name:         name,
			Status:       strings.ToLower(status),
			Relationship: strings.ToLower(relationship),
			Country:      country,
			Currency:     strings.ToUpper(currency),
		})
	}

	d.catalog.Set(country, out)
	return out, nil
}
