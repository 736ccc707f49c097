package db

import (
	"strings"
	"testing"
)

func TestConfigURLs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "p@ss word"

	if dsn := cfg.DSN(); !strings.Contains(dsn, "dbname=resourcekit") || !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("unexpected dsn %q", dsn)
	}

	url := cfg.MigrationURL()
	if !strings.HasPrefix(url, "pgx5://postgres:") {
		t.Fatalf("expected pgx5 scheme, got %q", url)
	}
	if strings.Contains(url, "p@ss word") {
		t.Fatalf("password must be escaped in %q", url)
	}
	if !strings.HasSuffix(url, "localhost:5432/resourcekit?sslmode=disable") {
		t.Fatalf("unexpected migration url %q", url)
	}
}

func TestMigrationStepsArePaired(t *testing.T) {
	steps, err := MigrationSteps()
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	ups, downs := 0, 0
	for _, name := range steps {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups++
		case strings.HasSuffix(name, ".down.sql"):
			downs++
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired up/down migrations, got %d up and %d down", ups, downs)
	}
}
