package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bhatsaqibU/kkg-erp-live/internal/cache"
	"github.com/bhatsaqibU/kkg-erp-live/internal/config"
	"github.com/bhatsaqibU/kkg-erp-live/internal/dbx"
	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
	"github.com/bhatsaqibU/kkg-erp-live/internal/httpapi"
	"github.com/bhatsaqibU/kkg-erp-live/internal/invoice"
	"github.com/bhatsaqibU/kkg-erp-live/internal/service"
	"github.com/bhatsaqibU/kkg-erp-live/internal/store"
	"github.com/bhatsaqibU/kkg-erp-live/internal/store/sqlstore"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, backendName, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("storage unavailable: %v", err)
	}
	closers := []func() error{repo.Close}
	log.Printf("repository: %s", backendName)

	if err := bootstrapAdmin(ctx, repo); err != nil {
		log.Fatalf("bootstrap admin account: %v", err)
	}

	metrics := cache.MetricsCache(cache.NoopMetricsCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisMetricsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			metrics = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("metrics cache: redis")
		}
	} else {
		log.Println("metrics cache: noop")
	}

	svc := service.New(repo, metrics, time.Duration(cfg.MetricsTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	business := invoice.Business{
		Name:    cfg.BusinessName,
		Address: cfg.BusinessAddress,
		Phone:   cfg.BusinessPhone,
	}
	api := httpapi.New(svc, auth, business, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("ERP backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openRepository picks the backend: DATABASE_URL selects postgres and
// refuses to start if it is unreachable; otherwise the embedded
// database file is opened (and created) at SQLITE_PATH.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, string, error) {
	var db *dbx.DB
	var err error

	if cfg.DatabaseURL != "" {
		db, err = dbx.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("postgres unavailable (%w) and DATABASE_URL is set; refusing to fall back", err)
		}
	} else {
		db, err = dbx.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, "", fmt.Errorf("open embedded database %s: %w", cfg.SQLitePath, err)
		}
	}

	if err := sqlstore.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	return sqlstore.New(db), db.Dialect().String(), nil
}

// bootstrapAdmin creates the initial admin account when the user table
// is empty, so a fresh install can log in.
func bootstrapAdmin(ctx context.Context, repo store.Repository) error {
	users, err := repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		log.Println("WARNING: creating default admin account. Set SEED_ADMIN_PASSWORD to override.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return repo.CreateUser(ctx, domain.UserAccount{
		Username:  "admin",
		Password:  string(hash),
		Role:      "admin",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
