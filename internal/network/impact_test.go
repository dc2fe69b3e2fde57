package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
)

func TestImpactActionsPaginationAndFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "sid" || pass != "secret" {
			t.Errorf("basic auth = %s/%s (%v)", user, pass, ok)
		}
		if r.URL.Path != "/sid/Actions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("Page"))
		switch page {
		case 1:
			json.NewEncoder(w).Encode(map[string]any{
				"Actions": []map[string]any{
					{"SubId1": "blog-1", "State": "APPROVED", "Payout": 40, "DeltaPayout": 400, "Currency": "USD"},
				},
				"@nextpageuri": "/sid/Actions?Page=2",
			})
		case 2:
			json.NewEncoder(w).Encode(map[string]any{
				"Actions": []map[string]any{
					{"SharedId": "blog-1", "State": "PENDING", "DeltaPayout": 10, "Currency": "USD"},
					{"SubId1": "other", "State": "APPROVED", "Payout": 99, "Currency": "USD"},
				},
			})
		default:
			t.Errorf("unexpected page %d", page)
		}
	}))
	defer srv.Close()

	im := NewImpact(testNetworksConfig(srv.URL), unitFX(), zerolog.Nop())
	q := windowQuery(5)
	q.SubIDs = []string{"blog-1"}
	q.Match = MatchExact

	snap, err := im.Commissions(context.Background(), q)
	if err != nil {
		t.Fatalf("Commissions: %v", err)
	}
	// Payout outranks DeltaPayout, 400 must not win
	if snap.Confirmed.String() != "40" || snap.Pending.String() != "10" {
		t.Errorf("buckets = %s/%s, want 40/10", snap.Confirmed, snap.Pending)
	}
	if snap.SourceCurrency != "USD" {
		t.Errorf("source currency = %s", snap.SourceCurrency)
	}
	if snap.Meta.RawCount != 3 || snap.Meta.FilteredCount != 2 {
		t.Errorf("counts = %d/%d, want 3/2", snap.Meta.RawCount, snap.Meta.FilteredCount)
	}
}

func TestImpactPageCeilingStops(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		// always advertises another page
		json.NewEncoder(w).Encode(map[string]any{
			"Actions":      []map[string]any{{"State": "APPROVED", "Payout": 1}},
			"@nextPageUri": "/sid/Actions?Page=next",
		})
	}))
	defer srv.Close()

	im := NewImpact(testNetworksConfig(srv.URL), unitFX(), zerolog.Nop())
	snap, err := im.Commissions(context.Background(), windowQuery(5))
	if err != nil {
		t.Fatalf("Commissions: %v", err)
	}
	if pages != impactMaxPages {
		t.Errorf("fetched %d pages, want ceiling %d", pages, impactMaxPages)
	}
	if snap.Confirmed.String() != strconv.Itoa(impactMaxPages) {
		t.Errorf("confirmed = %s, want %d", snap.Confirmed, impactMaxPages)
	}
}

func TestImpactMarketHeuristic(t *testing.T) {
	campaigns := []map[string]any{
		{"CampaignId": "1", "CampaignName": "Primary match", "ShippingRegions": []any{"Sweden"}, "PrimaryRegion": "SE"},
		{"CampaignId": "2", "CampaignName": "Primary mismatch", "ShippingRegions": []any{"Sweden"}, "PrimaryRegion": "Germany"},
		{"CampaignId": "3", "CampaignName": "Currency match", "ShippingRegions": []any{"SE"}, "Currency": "SEK"},
		{"CampaignId": "4", "CampaignName": "Currency mismatch", "ShippingRegions": []any{"SE"}, "Currency": "USD"},
		{"CampaignId": "5", "CampaignName": "No region data"},
		{"CampaignId": "6", "CampaignName": "No shipping", "ShippingRegions": []any{"Denmark"}},
		{"CampaignId": "7", "CampaignName": "Alias region", "ShippingRegions": []any{"United Kingdom"}, "PrimaryRegion": "GB"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sid/Campaigns" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"Campaigns": campaigns})
	}))
	defer srv.Close()

	im := NewImpact(testNetworksConfig(srv.URL), unitFX(), zerolog.Nop())
	progs, err := im.Programmes(context.Background(), "SE")
	if err != nil {
		t.Fatalf("Programmes: %v", err)
	}

	got := map[string]bool{}
	for _, p := range progs {
		got[p.AdvertiserID] = true
	}
	for _, want := range []string{"1", "3", "5"} {
		if !got[want] {
			t.Errorf("campaign %s should match SE, got %v", want, got)
		}
	}
	for _, reject := range []string{"2", "4", "6", "7"} {
		if got[reject] {
			t.Errorf("campaign %s should be filtered out", reject)
		}
	}

	// the requested country folds through the alias table as well
	ukProgs, err := im.Programmes(context.Background(), "UK")
	if err != nil {
		t.Fatalf("Programmes(UK): %v", err)
	}
	ukGot := map[string]bool{}
	for _, p := range ukProgs {
		ukGot[p.AdvertiserID] = true
	}
	if !ukGot["7"] {
		t.Errorf("campaign 7 should match requested UK, got %v", ukGot)
	}
	if ukGot["1"] || ukGot["3"] {
		t.Errorf("SE campaigns should not match UK: %v", ukGot)
	}
}

func TestImpactFeedsForPrefersItemsURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sid/Catalogs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Catalogs": []map[string]any{
				{"CampaignId": "1", "ItemsUri": "/Mediapartners/sid/Catalogs/9/Items", "Locations": []any{"https://files.example/f.txt.gz", "https://files.example/f.txt.gz"}},
			},
		})
	}))
	defer srv.Close()

	im := NewImpact(testNetworksConfig(srv.URL), unitFX(), zerolog.Nop())
	urls, err := im.FeedsFor(context.Background(), "1")
	if err != nil {
		t.Fatalf("FeedsFor: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("urls = %v, want 2 deduplicated entries", urls)
	}
	if urls[0] != "https://api.impact.com/Mediapartners/sid/Catalogs/9/Items" {
		t.Errorf("items URI should come first: %v", urls)
	}
}
