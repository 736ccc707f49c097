package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.File != "" {
		t.Fatalf("expected no config file, got %s", cfg.File)
	}
	if cfg.Storage.Backend != BackendMemory || cfg.Server.Addr != ":8080" || !cfg.CustomProperties.Strict {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  addr: ":9090"
  read_timeout: 5s
  allowed_origins: ["http://a.test", "http://b.test"]
database:
  host: db.internal
  port: 6543
storage:
  backend: Postgres
api:
  base_url: https://galv.example/api
custom_properties:
  strict: false
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RESOURCEKIT_LOG_LEVEL", "debug")
	t.Setenv("RESOURCEKIT_DATABASE_PASSWORD", "secret")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.File == "" {
		t.Fatalf("expected config file to be recorded")
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 6543 || cfg.Database.Password != "secret" {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Database.User != "postgres" {
		t.Fatalf("unset keys should keep their defaults, got user %q", cfg.Database.User)
	}
	if cfg.Storage.Backend != BackendPostgres {
		t.Fatalf("expected postgres backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Log.Level != "debug" || cfg.CustomProperties.Strict {
		t.Fatalf("unexpected log/custom property config %+v %+v", cfg.Log, cfg.CustomProperties)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("RESOURCEKIT_STORAGE_BACKEND", "s3")
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestLoadExportAndSessionSettings(t *testing.T) {
	t.Setenv("RESOURCEKIT_EXPORT_MAX_ROWS", "500")
	t.Setenv("RESOURCEKIT_SESSIONS_TTL", "2h")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Export.MaxRows != 500 || cfg.Export.PageSize != 1000 {
		t.Fatalf("unexpected export config %+v", cfg.Export)
	}
	if cfg.Sessions.TTL != 2*time.Hour {
		t.Fatalf("unexpected session ttl %s", cfg.Sessions.TTL)
	}

	t.Setenv("RESOURCEKIT_EXPORT_PAGE_SIZE", "0")
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for a zero page size")
	}
}
