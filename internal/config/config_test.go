package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("METRICS_TTL_SECONDS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.SQLitePath != "kkg_database.sqlite" {
		t.Fatalf("expected default sqlite path, got %q", cfg.SQLitePath)
	}
	if cfg.MetricsTTLSeconds != 60 {
		t.Fatalf("expected default metrics ttl 60, got %d", cfg.MetricsTTLSeconds)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadRejectsBadNumericValues(t *testing.T) {
	t.Setenv("METRICS_TTL_SECONDS", "banana")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-3")

	cfg := Load()
	if cfg.MetricsTTLSeconds != 60 {
		t.Fatalf("expected fallback metrics ttl, got %d", cfg.MetricsTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback token ttl, got %d", cfg.AccessTokenTTLMinutes)
	}
}
