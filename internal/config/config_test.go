package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Display.Currency != "EUR" {
		t.Errorf("默认展示货币应为 EUR, got %s", cfg.Display.Currency)
	}
	if cfg.Alerts.Cooldown != 60*time.Minute {
		t.Errorf("default cooldown = %v, want 60m", cfg.Alerts.Cooldown)
	}
	if cfg.Networks.TwoPerformant.DefaultCurrency != "RON" {
		t.Errorf("2performant default currency = %s, want RON", cfg.Networks.TwoPerformant.DefaultCurrency)
	}
	if !cfg.Alerts.OnFeedFailure {
		t.Error("on_feed_failure should default to true")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
display:
  currency: SEK
  days_back: 7
  countries: [se, NO]
  sub_ids: [blog-1]
  sub_id_contains: true
alerts:
  cooldown: 30m
  on_closed: false
networks:
  awin:
    token: tok-123
    publisher_id: "99001"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Display.Currency != "SEK" {
		t.Errorf("currency = %s, want SEK", cfg.Display.Currency)
	}
	if cfg.Display.DaysBack != 7 {
		t.Errorf("days_back = %d, want 7", cfg.Display.DaysBack)
	}
	if got := cfg.Countries(); len(got) != 2 || got[0] != "SE" || got[1] != "NO" {
		t.Errorf("Countries() = %v, want [SE NO]", got)
	}
	if !cfg.Display.SubIDContains {
		t.Error("sub_id_contains should be true")
	}
	if cfg.Alerts.Cooldown != 30*time.Minute {
		t.Errorf("cooldown = %v, want 30m", cfg.Alerts.Cooldown)
	}
	if cfg.Alerts.OnClosed {
		t.Error("on_closed should be false")
	}
	if cfg.Networks.AWIN.Token != "tok-123" {
		t.Errorf("awin token = %s", cfg.Networks.AWIN.Token)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.Display.DaysBack = 0
	if err := cfg.Validate(); err == nil {
		t.Error("days_back=0 应当校验失败")
	}
	cfg.Display.DaysBack = 5

	cfg.Alerts.Cooldown = -time.Minute
	if err := cfg.Validate(); err == nil {
		t.Error("negative cooldown should fail validation")
	}
}
