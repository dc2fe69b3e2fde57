package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zaorak/affiliate-hub/internal/config"
)

// fakeFX returns a fixed rate for every non-identity pair.
type fakeFX struct{ rate decimal.Decimal }

func (f fakeFX) Rate(_ context.Context, from, to string) decimal.Decimal {
	if strings.EqualFold(from, to) {
		return decimal.NewFromInt(1)
	}
	return f.rate
}

func unitFX() fakeFX { return fakeFX{rate: decimal.NewFromInt(1)} }

func testNetworksConfig(baseURL string) config.NetworksConfig {
	return config.NetworksConfig{
		RequestTimeout: 2 * time.Second,
		RateLimit:      1000,
		CatalogTTL:     time.Hour,
		AWIN: config.AWINConfig{
			BaseURL:         baseURL,
			Token:           "tok",
			PublisherID:     "12345",
			FeedAPIKey:      "feedkey",
			FeedListURL:     baseURL + "/datafeed/list/apikey",
			FeedFormat:      "xml",
			FeedLanguage:    "en",
			DefaultCurrency: "EUR",
		},
		Addrevenue: config.AddrevenueConfig{
			BaseURL:         baseURL,
			Token:           "tok",
			ChannelID:       "ch-1",
			DefaultCurrency: "EUR",
		},
		Impact: config.ImpactConfig{
			BaseURL:         baseURL,
			AccountSID:      "sid",
			AuthToken:       "secret",
			DefaultCurrency: "EUR",
		},
		Partnerize: config.PartnerizeConfig{
			BaseURL:         baseURL,
			AppKey:          "app",
			APIKey:          "key",
			PublisherID:     "pub1",
			DefaultCurrency: "EUR",
		},
		TwoPerformant: config.TwoPerformantConfig{
			BaseURL:         baseURL,
			Email:           "a@b.c",
			Password:        "pw",
			DefaultCurrency: "RON",
		},
		Dognet: config.DognetConfig{
			BaseURL:         baseURL,
			Token:           "tok",
			DefaultCurrency: "EUR",
		},
	}
}

func windowQuery(days int) Query {
	end := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	return Query{
		Start:    end.AddDate(0, 0, -days),
		End:      end,
		Currency: "EUR",
	}
}

func TestAWINReportAggregate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/publishers/12345/reports/advertiser" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		if got := r.URL.Query().Get("region"); got != "SE,NO" {
			t.Errorf("region = %q, want SE,NO", got)
		}
		w.Write([]byte(`[
			{"advertiserId": 1, "currency": "SEK", "confirmedComm": 100, "pendingComm": 50, "totalComm": 150},
			{"advertiserId": 2, "currency": "SEK", "confirmedComm": 10, "pendingComm": 0, "totalComm": 10}
		]`))
	}))
	defer srv.Close()

	a := NewAWIN(testNetworksConfig(srv.URL), fakeFX{rate: decimal.RequireFromString("0.1")}, zerolog.Nop())
	q := windowQuery(5)
	q.Countries = []string{"SE", "NO"}

	snap, err := a.Commissions(context.Background(), q)
	if err != nil {
		t.Fatalf("Commissions: %v", err)
	}
	if snap.SourceCurrency != "SEK" {
		t.Errorf("source currency = %s, want SEK", snap.SourceCurrency)
	}
	if snap.Confirmed.String() != "11" {
		t.Errorf("confirmed = %s, want 11", snap.Confirmed)
	}
	if snap.Pending.String() != "5" {
		t.Errorf("pending = %s, want 5", snap.Pending)
	}
	if snap.Total.String() != "16" {
		t.Errorf("total = %s, want 16", snap.Total)
	}
	if snap.Meta.RawCount != 2 {
		t.Errorf("raw count = %d, want 2", snap.Meta.RawCount)
	}
}

func TestAWINTransactionsWithSubIDFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/publishers/12345/programmes":
			w.Write([]byte(`[{"advertiserId": 42, "advertiserName": "Shop", "status": "active", "relationship": "joined"}]`))
		case "/publishers/12345/transactions":
			if got := r.URL.Query().Get("advertiserIds"); got != "42" {
				t.Errorf("advertiserIds = %q, want 42", got)
			}
			if got := r.URL.Query().Get("dateType"); got != "transaction" {
				t.Errorf("dateType = %q", got)
			}
			w.Write([]byte(`[
				{"clickRef": "blog-1", "status": "approved", "commissionAmount": 20, "commission": 77, "currency": "EUR"},
				{"clickRef2": "blog-1", "status": "pending", "commissionAmount": 5, "currency": "EUR"},
				{"clickRef": "other", "status": "approved", "commissionAmount": 99, "currency": "EUR"},
				{"status": "approved", "commissionAmount": 7, "currency": "EUR"}
			]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := NewAWIN(testNetworksConfig(srv.URL), unitFX(), zerolog.Nop())
	q := windowQuery(5)
	q.Countries = []string{"SE"}
	q.SubIDs = []string{"blog-1"}
	q.Match = MatchExact

	snap, err := a.Commissions(context.Background(), q)
	if err != nil {
		t.Fatalf("Commissions: %v", err)
	}
	// commissionAmount outranks commission, 77 must not win
	if snap.Confirmed.String() != "20" {
		t.Errorf("confirmed = %s, want 20", snap.Confirmed)
	}
	if snap.Pending.String() != "5" {
		t.Errorf("pending = %s, want 5", snap.Pending)
	}
	if snap.Meta.RawCount != 4 || snap.Meta.FilteredCount != 2 {
		t.Errorf("counts = %d/%d, want 4/2", snap.Meta.RawCount, snap.Meta.FilteredCount)
	}
	if len(snap.RawRows) != 2 {
		t.Errorf("raw rows = %d, 过滤后的原始行应随快照返回", len(snap.RawRows))
	}
}

func TestAWINWindowTooLongIsConfigurationError(t *testing.T) {
	a := NewAWIN(testNetworksConfig("http://unused"), unitFX(), zerolog.Nop())
	q := windowQuery(40)
	q.SubIDs = []string{"blog-1"}

	_, err := a.Commissions(context.Background(), q)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestAWINTransportFailureYieldsBlankSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAWIN(testNetworksConfig(srv.URL), unitFX(), zerolog.Nop())
	snap, err := a.Commissions(context.Background(), windowQuery(5))
	if err != nil {
		t.Fatalf("transport failure must not error: %v", err)
	}
	if !snap.Total.IsZero() || !snap.Confirmed.IsZero() || !snap.Pending.IsZero() {
		t.Errorf("blank snapshot expected, got %+v", snap)
	}
	if snap.Meta.Reason == "" {
		t.Error("blank snapshot must carry a reason")
	}
}

func TestAWINProgrammesNormalization(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.URL.Query().Get("countryCode"); got != "SE" {
			t.Errorf("countryCode = %q", got)
		}
		w.Write([]byte(`{"programmes": [
			{"advertiserId": 42, "advertiserName": "Shop", "status": "Active", "relationship": "Joined", "currencyCode": "sek"},
			{"programId": 43, "programName": "Other", "status": "closed"}
		]}`))
	}))
	defer srv.Close()

	a := NewAWIN(testNetworksConfig(srv.URL), unitFX(), zerolog.Nop())
	progs, err := a.Programmes(context.Background(), "se")
	if err != nil {
		t.Fatalf("Programmes: %v", err)
	}
	if len(progs) != 2 {
		t.Fatalf("got %d programmes, want 2", len(progs))
	}
	if progs[0].AdvertiserID != "42" || progs[0].Status != "active" || progs[0].Relationship != "joined" {
		t.Errorf("programme[0] = %+v", progs[0])
	}
	if progs[0].Currency != "SEK" || progs[0].Country != "SE" {
		t.Errorf("programme[0] currency/country = %s/%s", progs[0].Currency, progs[0].Country)
	}
	if progs[1].AdvertiserID != "43" {
		t.Errorf("fallback id probe = %s, want 43", progs[1].AdvertiserID)
	}

	// catalog cache
	if _, err := a.Programmes(context.Background(), "SE"); err != nil {
		t.Fatalf("cached Programmes: %v", err)
	}
	if calls != 1 {
		t.Errorf("programme catalog should be cached, got %d calls", calls)
	}
}

func TestAWINFeedsFor(t *testing.T) {
	csvBody := "Advertiser ID;Feed ID;Primary Region;Membership Status;Data feed download URL\n" +
		"42;7;SE;active;https://productdata.example/datafeed/download/apikey/k/fid/7/format/csv/delimiter/%2C/compression/gzip\n" +
		"42;8;NO;active;\n" +
		"9;9;SE;active;https://productdata.example/other\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/datafeed/list/apikey") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(csvBody))
	}))
	defer srv.Close()

	a := NewAWIN(testNetworksConfig(srv.URL), unitFX(), zerolog.Nop())
	urls := a.FeedsFor(context.Background(), 42, "SE")
	if len(urls) != 2 {
		t.Fatalf("got %d urls, want 2: %v", len(urls), urls)
	}
	if !strings.Contains(urls[0], "/format/xml/") {
		t.Errorf("format segment not rewritten: %s", urls[0])
	}
	if strings.Contains(urls[0], "/delimiter/") {
		t.Errorf("xml url should drop delimiter params: %s", urls[0])
	}
	// second row has no URL, so it is built from the feed id
	if !strings.Contains(urls[1], "/fid/8/") {
		t.Errorf("fallback url should use feed id: %s", urls[1])
	}
}

func TestAWINTrackingLink(t *testing.T) {
	a := NewAWIN(testNetworksConfig("http://unused"), unitFX(), zerolog.Nop())
	link := a.TrackingLink(42, "blog-1", "https://shop.example/p/1")
	if !strings.HasPrefix(link, "https://www.awin1.com/cread.php?") {
		t.Fatalf("link = %s", link)
	}
	for _, want := range []string{"awinmid=42", "awinaffid=12345", "clickref=blog-1", "ued="} {
		if !strings.Contains(link, want) {
			t.Errorf("link missing %s: %s", want, link)
		}
	}
}
