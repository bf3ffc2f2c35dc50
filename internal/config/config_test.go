package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CRDB_DSN", "postgresql://root@localhost:26257/stays")
	t.Setenv("QUOTE_CACHE_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.QuoteCacheTTL != 5*time.Minute {
		t.Errorf("expected 5m quote ttl, got %s", cfg.QuoteCacheTTL)
	}
	if cfg.OverridePolicy != "cumulative" || cfg.DefaultCurrency != "DZD" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("CRDB_DSN", "")
	if _, err := Load(); err == nil {
		t.Error("expected missing CRDB_DSN to fail")
	}

	t.Setenv("CRDB_DSN", "postgresql://root@localhost:26257/stays")
	t.Setenv("COMPLETION_SWEEP_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected bad duration to fail")
	}

	t.Setenv("COMPLETION_SWEEP_INTERVAL", "-1m")
	if _, err := Load(); err == nil {
		t.Error("expected negative duration to fail")
	}

	t.Setenv("COMPLETION_SWEEP_INTERVAL", "")
	t.Setenv("OVERRIDE_POLICY", "average")
	if _, err := Load(); err == nil {
		t.Error("expected unknown override policy to fail")
	}
}
