package network

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zaorak/affiliate-hub/internal/config"
	"github.com/zaorak/affiliate-hub/internal/fx"
)

const twoPerformantMaxPages = 20

var (
	twoPerformantSubIDKeys  = []string{"statsTags", "stats_tags", "tag"}
	twoPerformantAmountKeys = []string{"amount", "commission_amount", "amountInWorkingCurrency"}
	twoPerformantConfirmed  = []string{"accepted", "approved", "paid"}
	twoPerformantPending    = []string{"pending"}
)

// TwoPerformant talks to the 2Performant affiliate API. The API uses a
// session-token flow: a sign-in request returns access-token, client and
// uid headers that authenticate every subsequent call. The session is
// kept for the process lifetime and refreshed on demand.
type TwoPerformant struct {
	cfg     config.TwoPerformantConfig
	client  *Client
	fx      fx.Converter
	logger  zerolog.Logger
	catalog *Cache[[]Programme]

	mu      sync.Mutex
	session http.Header
}

// NewTwoPerformant constructs the 2Performant adapter.
func NewTwoPerformant(cfg config.NetworksConfig, fxc fx.Converter, logger zerolog.Logger) *TwoPerformant {
	return &TwoPerformant{
		cfg:     cfg.TwoPerformant,
		client:  NewHTTPClient("2performant", cfg.RequestTimeout, cfg.RateLimit, logger),
		fx:      fxc,
		logger:  logger.With().Str("component", "2performant").Logger(),
		catalog: NewCache[[]Programme](cfg.CatalogTTL),
	}
}

func (tp *TwoPerformant) Name() string { return "2performant" }

func (tp *TwoPerformant) configured() bool {
	return tp.cfg.Email != "" && tp.cfg.Password != ""
}

// login performs the sign-in flow and captures the session headers.
func (tp *TwoPerformant) login(ctx context.Context) (http.Header, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tp.session != nil {
		return tp.session, nil
	}

	payload := map[string]any{"user": map[string]string{"email": tp.cfg.Email, "password": tp.cfg.Password}}
	var respHeader http.Header
	u := strings.TrimRight(tp.cfg.BaseURL, "/") + "/users/sign_in"
	if err := tp.client.PostJSON(ctx, u, nil, payload, nil, &respHeader); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	token := respHeader.Get("access-token")
	client := respHeader.Get("client")
	uid := respHeader.Get("uid")
	if token == "" || client == "" || uid == "" {
		return nil, fmt.Errorf("sign in response missing session headers")
	}

	h := http.Header{}
	h.Set("access-token", token)
	h.Set("client", client)
	h.Set("uid", uid)
	h.Set("token-type", "Bearer")
	tp.session = h
	return h, nil
}

func (tp *TwoPerformant) resetSession() {
	tp.mu.Lock()
	tp.session = nil
	tp.mu.Unlock()
}

func (tp *TwoPerformant) get(ctx context.Context, path string, params url.Values, out any) error {
	session, err := tp.login(ctx)
	if err != nil {
		return err
	}
	u := strings.TrimRight(tp.cfg.BaseURL, "/") + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	if err := tp.client.GetJSON(ctx, u, session, out); err != nil {
		// an expired session is retried once with a fresh login
		tp.resetSession()
		session, lerr := tp.login(ctx)
		if lerr != nil {
			return err
		}
		return tp.client.GetJSON(ctx, u, session, out)
	}
	return nil
}

// Commissions aggregates the commission listing over the window.
func (tp *TwoPerformant) Commissions(ctx context.Context, q Query) (CommissionSnapshot, error) {
	if !tp.configured() {
		return BlankSnapshot(tp.Name(), q.Currency, "2performant credentials not configured"), nil
	}

	var all []map[string]any
	perPage := 100
	for page := 1; page <= twoPerformantMaxPages; page++ {
		params := url.Values{}
		params.Set("filter[from]", dateParam(q.Start))
		params.Set("filter[to]", dateParam(q.End))
		params.Set("page", strconv.Itoa(page))
		params.Set("perpage", strconv.Itoa(perPage))

		var payload any
		if err := tp.get(ctx, "/affiliate/commissions", params, &payload); err != nil {
			tp.logger.Warn().Err(err).Msg("commissions fetch failed")
			return BlankSnapshot(tp.Name(), q.Currency, "2performant commissions: "+err.Error()), nil
		}
		rows := RowsFromPayload(payload, "commissions")
		all = append(all, rows...)
		if len(rows) < perPage {
			break
		}
	}

	filtered := make([]map[string]any, 0, len(all))
	for _, row := range all {
		if MatchAnySubID(SubIDValues(row, twoPerformantSubIDKeys...), q.SubIDs, q.Match) {
			filtered = append(filtered, row)
		}
	}

	confirmed, pending := decimal.Zero, decimal.Zero
	for _, row := range filtered {
		status, _ := FirstString(row, "status")
		amount, _ := FirstAmount(row, twoPerformantAmountKeys...)
		switch ClassifyStatus(status, twoPerformantConfirmed, twoPerformantPending) {
		case StatusConfirmed:
			confirmed = confirmed.Add(amount)
		case StatusPending:
			pending = pending.Add(amount)
		}
	}

	src := DetectCurrency(filtered, []string{"currency", "workingCurrency"}, tp.cfg.DefaultCurrency)
	return Summarize(ctx, tp.fx, tp.Name(), src, q.Currency, confirmed, pending, all, filtered), nil
}

// Programmes lists the affiliate programs of the account. The API has no
// country filter; the requested country is attached as-is.
func (tp *TwoPerformant) Programmes(ctx context.Context, country string) ([]Programme, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if cached, ok := tp.catalog.Get(country); ok {
		return cached, nil
	}

	var all []Programme
	perPage := 100
	for page := 1; page <= twoPerformantMaxPages; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("perpage", strconv.Itoa(perPage))

		var payload any
		if err := tp.get(ctx, "/affiliate/programs", params, &payload); err != nil {
			return nil, fmt.Errorf("2performant programs: %w", err)
		}
		rows := RowsFromPayload(payload, "programs")
		for _, row := range rows {
			id, ok := FirstString(row, "id", "unique_code")
			if !ok {
				continue
			}
			name, _ := FirstString(row, "name")
			if name == "" {
				name = "(unknown)"
			}
			status, _ := FirstString(row, "status")
			relationship, _ := FirstString(row, "affrequest_status", "relation")
			currency, _ := FirstString(row, "default_currency", "currency")

			all = append(all, Programme{
				Network:      tp.Name(),
				AdvertiserID: id,
				Name:         name,
				Status:       strings.ToLower(status),
				Relationship: strings.ToLower(relationship),
				Country:      country,
				Currency:     strings.ToUpper(currency),
			})
		}
		if len(rows) < perPage {
			break
		}
	}

	tp.catalog.Set(country, all)
	return all, nil
}
