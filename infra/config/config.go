package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application-level configuration.
type Config struct {
	ListenAddr string         `yaml:"listen_addr"`
	Store      StoreConfig    `yaml:"store"`
	Auth       AuthConfig     `yaml:"auth"`
	Media      MediaConfig    `yaml:"media"`
	Timeline   TimelineConfig `yaml:"timeline"`
	Log        LogConfig      `yaml:"log"`
	Client     ClientConfig   `yaml:"client"`
}

type StoreConfig struct {
	Driver           string `yaml:"driver"` // memory, sqlite or postgres
	SQLitePath       string `yaml:"sqlite_path"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	PostgresMaxConns int32  `yaml:"postgres_max_conns"`
	RetryAttempts    int    `yaml:"retry_attempts"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type MediaConfig struct {
	Backend  string `yaml:"backend"` // local or s3
	Dir      string `yaml:"dir"`
	BaseURL  string `yaml:"base_url"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
}

type TimelineConfig struct {
	Limit        int           `yaml:"limit"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// ClientConfig is read by the client commands talking to a running server.
type ClientConfig struct {
	APIURL    string `yaml:"api_url"`
	TokenPath string `yaml:"token_path"` // file containing the bearer token
}

// Load reads configuration from, in increasing precedence: built-in
// defaults, the YAML file named by RANTFEED_CONFIG, and environment
// variables (a .env file in the working directory is loaded first).
//
//	RANTFEED_LISTEN_ADDR         — HTTP listen address (default ":8080")
//	RANTFEED_STORE_DRIVER        — memory, sqlite or postgres (default "sqlite")
//	RANTFEED_SQLITE_PATH         — SQLite file (default: ~/.local/share/rantfeed/rantfeed.db)
//	RANTFEED_POSTGRES_DSN        — Postgres connection string
//	RANTFEED_POSTGRES_MAX_CONNS  — Postgres pool size (default 10)
//	RANTFEED_RETRY_ATTEMPTS      — transaction attempts before a conflict surfaces (default 5)
//	RANTFEED_JWT_SECRET          — HS256 secret of the identity provider
//	RANTFEED_MEDIA_BACKEND       — local or s3 (default "local")
//	RANTFEED_MEDIA_DIR           — local image directory
//	RANTFEED_MEDIA_BASE_URL      — public URL prefix of local images
//	RANTFEED_S3_BUCKET           — S3 bucket for images
//	RANTFEED_S3_REGION           — S3 region
//	RANTFEED_TIMELINE_LIMIT      — default timeline size (default 50)
//	RANTFEED_POLL_INTERVAL       — subscription poll interval (default "2s")
//	RANTFEED_LOG_LEVEL           — debug, info, warn or error (default "info")
//	RANTFEED_LOG_FORMAT          — json or console (default "json")
//	RANTFEED_API_URL             — server URL for client commands (default "http://localhost:8080")
//	RANTFEED_TOKEN               — path to the client token file (default: ~/.config/rantfeed/token)
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := defaults()
	if err != nil {
		return Config{}, err
	}

	if path := os.Getenv("RANTFEED_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading RANTFEED_CONFIG: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("cannot determine home directory: %w", err)
	}
	dataDir := filepath.Join(home, ".local", "share", "rantfeed")

	return Config{
		ListenAddr: ":8080",
		Store: StoreConfig{
			Driver:           "sqlite",
			SQLitePath:       filepath.Join(dataDir, "rantfeed.db"),
			PostgresMaxConns: 10,
			RetryAttempts:    5,
		},
		Media: MediaConfig{
			Backend: "local",
			Dir:     filepath.Join(dataDir, "media"),
			BaseURL: "http://localhost:8080/media",
		},
		Timeline: TimelineConfig{
			Limit:        50,
			PollInterval: 2 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Client: ClientConfig{
			APIURL:    "http://localhost:8080",
			TokenPath: filepath.Join(home, ".config", "rantfeed", "token"),
		},
	}, nil
}

func applyEnv(cfg *Config) error {
	strVars := map[string]*string{
		"RANTFEED_LISTEN_ADDR":    &cfg.ListenAddr,
		"RANTFEED_STORE_DRIVER":   &cfg.Store.Driver,
		"RANTFEED_SQLITE_PATH":    &cfg.Store.SQLitePath,
		"RANTFEED_POSTGRES_DSN":   &cfg.Store.PostgresDSN,
		"RANTFEED_JWT_SECRET":     &cfg.Auth.JWTSecret,
		"RANTFEED_MEDIA_BACKEND":  &cfg.Media.Backend,
		"RANTFEED_MEDIA_DIR":      &cfg.Media.Dir,
		"RANTFEED_MEDIA_BASE_URL": &cfg.Media.BaseURL,
		"RANTFEED_S3_BUCKET":      &cfg.Media.S3Bucket,
		"RANTFEED_S3_REGION":      &cfg.Media.S3Region,
		"RANTFEED_LOG_LEVEL":      &cfg.Log.Level,
		"RANTFEED_LOG_FORMAT":     &cfg.Log.Format,
		"RANTFEED_API_URL":        &cfg.Client.APIURL,
		"RANTFEED_TOKEN":          &cfg.Client.TokenPath,
	}
	for name, dst := range strVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"RANTFEED_RETRY_ATTEMPTS": &cfg.Store.RetryAttempts,
		"RANTFEED_TIMELINE_LIMIT": &cfg.Timeline.Limit,
	}
	for name, dst := range intVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			*dst = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("RANTFEED_POSTGRES_MAX_CONNS")); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid RANTFEED_POSTGRES_MAX_CONNS: %w", err)
		}
		cfg.Store.PostgresMaxConns = int32(n)
	}
	if v := strings.TrimSpace(os.Getenv("RANTFEED_POLL_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RANTFEED_POLL_INTERVAL: %w", err)
		}
		cfg.Timeline.PollInterval = d
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid store.driver %q: want memory, sqlite or postgres", c.Store.Driver))
	}
	if c.Store.RetryAttempts < 1 {
		errs = append(errs, errors.New("store.retry_attempts must be at least 1"))
	}

	switch c.Media.Backend {
	case "local":
		if c.Media.Dir == "" {
			errs = append(errs, errors.New("media.dir is required for the local backend"))
		}
		c.Media.BaseURL = strings.TrimRight(c.Media.BaseURL, "/")
	case "s3":
		if c.Media.S3Bucket == "" || c.Media.S3Region == "" {
			errs = append(errs, errors.New("media.s3_bucket and media.s3_region are required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid media.backend %q: want local or s3", c.Media.Backend))
	}

	if c.Timeline.Limit < 1 || c.Timeline.Limit > 100 {
		errs = append(errs, errors.New("timeline.limit must be between 1 and 100"))
	}
	if c.Timeline.PollInterval <= 0 {
		errs = append(errs, errors.New("timeline.poll_interval must be positive"))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("invalid log.format %q: want json or console", c.Log.Format))
	}

	apiURL, err := normalizeAPIURL(c.Client.APIURL)
	if err != nil {
		errs = append(errs, err)
	}
	c.Client.APIURL = apiURL

	return errors.Join(errs...)
}

// normalizeAPIURL requires an absolute URL; plain http is only allowed
// for loopback hosts.
func normalizeAPIURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid client.api_url: must be an absolute URL")
	}
	switch parsed.Scheme {
	case "https":
	case "http":
		if !isLoopback(parsed.Hostname()) {
			return "", fmt.Errorf("invalid client.api_url: http is only allowed for localhost")
		}
	default:
		return "", fmt.Errorf("invalid client.api_url: unsupported scheme %q", parsed.Scheme)
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// RequireServe reports settings missing for running the server.
func (c Config) RequireServe() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (RANTFEED_JWT_SECRET) is required to serve")
	}
	return nil
}
