package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func twoPerformantServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	logins := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/sign_in":
			logins++
			var body map[string]map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode login body: %v", err)
			}
			if body["user"]["email"] != "a@b.c" {
				t.Errorf("login email = %q", body["user"]["email"])
			}
			w.Header().Set("access-token", "tok-1")
			w.Header().Set("client", "cli-1")
			w.Header().Set("uid", "a@b.c")
			w.Write([]byte(`{}`))
		case "/affiliate/commissions":
			if r.Header.Get("access-token") != "tok-1" || r.Header.Get("client") != "cli-1" {
				t.Errorf("session headers missing: %v", r.Header)
			}
			if got := r.URL.Query().Get("filter[from]"); got == "" {
				t.Error("filter[from] missing")
			}
			json.NewEncoder(w).Encode(map[string]any{
				"commissions": []map[string]any{
					{"statsTags": "blog-1", "status": "accepted", "amount": "25.00", "commission_amount": "300.00"},
					{"statsTags": "blog-1", "status": "pending", "amount": "5.00"},
					{"statsTags": "other", "status": "paid", "amount": "40.00"},
				},
			})
		case "/affiliate/programs":
			json.NewEncoder(w).Encode(map[string]any{
				"programs": []map[string]any{
					{"id": 11, "name": "RO Shop", "status": "active", "affrequest_status": "accepted", "default_currency": "RON"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	return srv, &logins
}

func TestTwoPerformantSessionAndCommissions(t *testing.T) {
	srv, logins := twoPerformantServer(t)
	defer srv.Close()

	tp := NewTwoPerformant(testNetworksConfig(srv.URL), unitFX(), zerolog.Nop())
	q := windowQuery(5)
	q.SubIDs = []string{"blog-1"}
	q.Match = MatchExact
	q.Currency = "RON"

	snap, err := tp.Commissions(context.Background(), q)
	if err != nil {
		t.Fatalf("Commissions: %v", err)
	}
	// amount outranks commission_amount, 300 must not win
	if snap.Confirmed.String() != "25" || snap.Pending.String() != "5" {
		t.Errorf("buckets = %s/%s, want 25/5", snap.Confirmed, snap.Pending)
	}
	// rows carry no currency field, so the network default applies
	if snap.SourceCurrency != "RON" {
		t.Errorf("source currency = %s, want RON default", snap.SourceCurrency)
	}

	// the session is reused across calls
	if _, err := tp.Programmes(context.Background(), "RO"); err != nil {
		t.Fatalf("Programmes: %v", err)
	}
	if *logins != 1 {
		t.Errorf("expected a single sign in, got %d", *logins)
	}
}

func TestTwoPerformantReloginAfterExpiry(t *testing.T) {
	logins := 0
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/sign_in":
			logins++
			w.Header().Set("access-token", "tok")
			w.Header().Set("client", "cli")
			w.Header().Set("uid", "a@b.c")
			w.Write([]byte(`{}`))
		case "/affiliate/commissions":
			calls++
			if calls == 1 {
				http.Error(w, "expired", http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"commissions": []map[string]any{{"status": "accepted", "amount": 7}},
			})
		}
	}))
	defer srv.Close()

	tp := NewTwoPerformant(testNetworksConfig(srv.URL), unitFX(), zerolog.Nop())
	q := windowQuery(5)
	q.Currency = "RON"
	snap, err := tp.Commissions(context.Background(), q)
	if err != nil {
		t.Fatalf("Commissions: %v", err)
	}
	if snap.Confirmed.String() != "7" {
		t.Errorf("confirmed = %s, want 7 after relogin", snap.Confirmed)
	}
	if logins != 2 {
		t.Errorf("expected relogin, got %d sign ins", logins)
	}
}

func TestTwoPerformantMissingSessionHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tp := NewTwoPerformant(testNetworksConfig(srv.URL), unitFX(), zerolog.Nop())
	snap, err := tp.Commissions(context.Background(), windowQuery(5))
	if err != nil {
		t.Fatalf("login failure must degrade to blank snapshot: %v", err)
	}
	if snap.Meta.Reason == "" || !snap.Total.IsZero() {
		t.Errorf("blank snapshot expected, got %+v", snap)
	}
}
