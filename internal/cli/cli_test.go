package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"samarpan/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestResolvePort(t *testing.T) {
	cfg := config.Config{}
	if got := resolvePort("", cfg); got != "8080" {
		t.Fatalf("expected fallback port, got %q", got)
	}
	cfg.Server.Port = "9000"
	if got := resolvePort("", cfg); got != "9000" {
		t.Fatalf("expected config port, got %q", got)
	}
	if got := resolvePort("7000", cfg); got != "7000" {
		t.Fatalf("expected flag port, got %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := config.Config{}
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	log := newLogger(cfg)
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", log.Formatter)
	}
	cfg.Log.Level = "chatty"
	if got := newLogger(cfg).GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected unknown level to fall back to info, got %s", got)
	}
}

func TestMigrateRejectsMemoryDriver(t *testing.T) {
	cfg := config.Config{}
	cfg.Storage.Driver = config.DriverMemory
	logger, _ := test.NewNullLogger()
	if err := runMigrationsWithConfig(context.Background(), cfg, logger); err == nil {
		t.Fatalf("expected memory driver to have no migrations")
	}
	if err := rollbackMigrations(context.Background(), cfg, logger); err == nil {
		t.Fatalf("expected rollback to require postgres")
	}
}

func serveHealth(t *testing.T, cfg config.Config, st stores, client *redis.Client) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	server, err := buildServer(cfg, st, client, logger)
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || rec.Code != http.StatusOK || body["status"] != "Running" {
		t.Fatalf("unexpected health %d %v (%v)", rec.Code, body, err)
	}
}

func TestBuildServerWithEachLocalDriver(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	cfg := config.Config{}
	cfg.Auth.JWTSecret = "secret"
	cfg.Storage.Driver = config.DriverMemory
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("memory stores: %v", err)
	}
	if st.persistent {
		t.Fatalf("memory stores are not persistent")
	}
	serveHealth(t, cfg, st, nil)

	cfg.Storage.Driver = config.DriverSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "samarpan.db")
	st, err = openStores(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("sqlite stores: %v", err)
	}
	defer st.close()
	serveHealth(t, cfg, st, nil)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cfg.Generator.APIKey = "key"
	cfg.Generator.RateLimit = 3
	cfg.OAuth.Google = config.OAuthProvider{ClientID: "id", ClientSecret: "secret"}
	serveHealth(t, cfg, st, client)
}

func TestBuildServerRequiresSecret(t *testing.T) {
	logger, _ := test.NewNullLogger()
	st, _ := openStores(context.Background(), config.Config{}, logger)
	if _, err := buildServer(config.Config{}, st, nil, logger); err == nil {
		t.Fatalf("expected an empty jwt secret to be rejected")
	}
}
