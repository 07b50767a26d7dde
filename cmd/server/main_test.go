package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bhatsaqibU/kkg-erp-live/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryEmbeddedAndBootstrap(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{SQLitePath: filepath.Join(t.TempDir(), "erp.sqlite")}

	repo, backend, err := openRepository(ctx, cfg)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	defer repo.Close()

	if backend != "sqlite" {
		t.Fatalf("expected sqlite backend, got %q", backend)
	}

	if err := bootstrapAdmin(ctx, repo); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	user, err := repo.GetUser(ctx, "admin")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	if user.Role != "admin" || !user.Active {
		t.Fatalf("unexpected admin account %+v", user)
	}

	// Second run is a no-op against the existing account.
	if err := bootstrapAdmin(ctx, repo); err != nil {
		t.Fatalf("bootstrap admin again: %v", err)
	}
}
