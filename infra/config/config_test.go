package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	// Load reads .env from the working directory.
	t.Chdir(t.TempDir())
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "RANTFEED_") {
			t.Setenv(name, "")
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.Store.Driver != "sqlite" || cfg.Store.RetryAttempts != 5 {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if !strings.HasSuffix(cfg.Store.SQLitePath, filepath.Join("rantfeed", "rantfeed.db")) {
		t.Fatalf("unexpected sqlite path: %q", cfg.Store.SQLitePath)
	}
	if cfg.Timeline.Limit != 50 || cfg.Timeline.PollInterval != 2*time.Second {
		t.Fatalf("unexpected timeline defaults: %#v", cfg.Timeline)
	}
	if err := cfg.RequireServe(); err == nil {
		t.Fatalf("serving without a jwt secret must be rejected")
	}
}

func TestLoad_ParsesEnv(t *testing.T) {
	isolate(t)
	t.Setenv("RANTFEED_STORE_DRIVER", "postgres")
	t.Setenv("RANTFEED_POSTGRES_DSN", "postgres://u:p@db:5432/feed")
	t.Setenv("RANTFEED_POSTGRES_MAX_CONNS", "25")
	t.Setenv("RANTFEED_RETRY_ATTEMPTS", "9")
	t.Setenv("RANTFEED_POLL_INTERVAL", "250ms")
	t.Setenv("RANTFEED_MEDIA_BASE_URL", "https://cdn.example/media/")
	t.Setenv("RANTFEED_API_URL", "https://feed.example/")
	t.Setenv("RANTFEED_JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Store.PostgresDSN != "postgres://u:p@db:5432/feed" || cfg.Store.PostgresMaxConns != 25 || cfg.Store.RetryAttempts != 9 {
		t.Fatalf("unexpected store config: %#v", cfg.Store)
	}
	if cfg.Timeline.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", cfg.Timeline.PollInterval)
	}
	if cfg.Media.BaseURL != "https://cdn.example/media" || cfg.Client.APIURL != "https://feed.example" {
		t.Fatalf("urls must be normalized: %q %q", cfg.Media.BaseURL, cfg.Client.APIURL)
	}
	if err := cfg.RequireServe(); err != nil {
		t.Fatalf("unexpected serve error: %v", err)
	}
}

func TestLoad_YAMLFileWithEnvOverride(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "rantfeed.yaml")
	yml := `
listen_addr: ":9090"
store:
  driver: memory
  retry_attempts: 3
timeline:
  limit: 20
  poll_interval: 5s
log:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	t.Setenv("RANTFEED_CONFIG", path)
	t.Setenv("RANTFEED_LISTEN_ADDR", ":7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Fatalf("env must override file, got %q", cfg.ListenAddr)
	}
	if cfg.Store.Driver != "memory" || cfg.Store.RetryAttempts != 3 || cfg.Timeline.Limit != 20 {
		t.Fatalf("file values not applied: %#v", cfg)
	}
	if cfg.Timeline.PollInterval != 5*time.Second || cfg.Log.Format != "console" || cfg.Log.Level != "debug" {
		t.Fatalf("file values not applied: %#v", cfg)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	if err := os.WriteFile(".env", []byte("RANTFEED_TIMELINE_LIMIT=42\n"), 0o600); err != nil {
		t.Fatalf("write .env failed: %v", err)
	}
	// godotenv never overrides a variable that is set, even to "".
	os.Unsetenv("RANTFEED_TIMELINE_LIMIT")
	t.Cleanup(func() { os.Unsetenv("RANTFEED_TIMELINE_LIMIT") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Timeline.Limit != 42 {
		t.Fatalf("expected limit from .env, got %d", cfg.Timeline.Limit)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown driver":      {"RANTFEED_STORE_DRIVER": "mongo"},
		"postgres needs dsn":  {"RANTFEED_STORE_DRIVER": "postgres"},
		"s3 needs bucket":     {"RANTFEED_MEDIA_BACKEND": "s3"},
		"bad attempts":        {"RANTFEED_RETRY_ATTEMPTS": "zero"},
		"limit above cap":     {"RANTFEED_TIMELINE_LIMIT": "500"},
		"bad poll interval":   {"RANTFEED_POLL_INTERVAL": "soon"},
		"bad log format":      {"RANTFEED_LOG_FORMAT": "xml"},
		"remote plain http":   {"RANTFEED_API_URL": "http://feed.example"},
		"relative client url": {"RANTFEED_API_URL": "feed.example"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}
