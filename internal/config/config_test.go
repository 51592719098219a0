package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("driver = %q, want %q", cfg.Database.Driver, DriverPostgres)
	}
	if cfg.Matching.Dimension != 128 {
		t.Errorf("dimension = %d, want 128", cfg.Matching.Dimension)
	}
	if cfg.Matching.Threshold != 0.45 {
		t.Errorf("threshold = %v, want 0.45", cfg.Matching.Threshold)
	}
	if cfg.Matching.Version != "d128-t0.45" {
		t.Errorf("version = %q, want d128-t0.45", cfg.Matching.Version)
	}
	if cfg.Batch.WorkerCount != 2 {
		t.Errorf("worker count = %d, want 2", cfg.Batch.WorkerCount)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EF_DB_DRIVER", "sqlite")
	t.Setenv("EF_SQLITE_PATH", "/tmp/ef.db")
	t.Setenv("EF_MATCH_DIMENSION", "512")
	t.Setenv("EF_MATCH_THRESHOLD", "1.1")
	t.Setenv("EF_API_KEY", "secret")

	cfg, err := Load(writeConfig(t, "matching:\n  dimension: 128\n  threshold: 0.5\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.SQLitePath != "/tmp/ef.db" {
		t.Errorf("sqlite path = %q", cfg.Database.SQLitePath)
	}
	if cfg.Matching.Dimension != 512 {
		t.Errorf("dimension = %d, want 512", cfg.Matching.Dimension)
	}
	if cfg.Matching.Threshold != 1.1 {
		t.Errorf("threshold = %v, want 1.1", cfg.Matching.Threshold)
	}
	if cfg.Server.APIKey != "secret" {
		t.Errorf("api key = %q", cfg.Server.APIKey)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative threshold", "matching:\n  threshold: -0.1\n"},
		{"negative dimension", "matching:\n  dimension: -3\n"},
		{"unknown driver", "database:\n  driver: oracle\n"},
		{"nan threshold", "matching:\n  threshold: .nan\n"},
		{"infinite threshold", "matching:\n  threshold: .inf\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"nan threshold", "EF_MATCH_THRESHOLD", "NaN"},
		{"infinite threshold", "EF_MATCH_THRESHOLD", "+Inf"},
		{"unparsable threshold", "EF_MATCH_THRESHOLD", "0,45"},
		{"unparsable dimension", "EF_MATCH_DIMENSION", "128d"},
		{"unparsable port", "EF_SERVER_PORT", "http"},
		{"unparsable vision flag", "EF_VISION_ENABLED", "maybe"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(writeConfig(t, "matching:\n  threshold: 0.45\n")); err == nil {
				t.Errorf("%s=%q: expected error, got nil", tc.key, tc.value)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "ef", User: "u", Password: "p"}
	want := "postgres://u:p@db:5433/ef?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
