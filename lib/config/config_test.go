package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.Server.Timeout)
	}
	if cfg.Database.Path != "watchlist.db" {
		t.Errorf("db path = %q, want watchlist.db", cfg.Database.Path)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "test-key")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/watchlist")
	t.Setenv("APP_SECRET", "hunter2")
	t.Setenv("LISTS", `[{"id": "alice", "password": "pw"}]`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://localhost/watchlist" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if cfg.Auth.Secret != "hunter2" || cfg.Auth.Lists == "" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  port: 3000\ntmdb:\n  api_key: file-key\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d, want 3000 from file", cfg.Server.Port)
	}
	if cfg.TMDB.APIKey != "file-key" {
		t.Errorf("api_key = %q, want file-key", cfg.TMDB.APIKey)
	}

	// Environment still wins over the file.
	t.Setenv("PORT", "4000")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("port = %d, want env override 4000", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("Load() without TMDB_API_KEY succeeded, want error")
	}
}
