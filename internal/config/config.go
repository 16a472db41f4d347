// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/corvex/corvex/internal/logging"
	"github.com/corvex/corvex/internal/store"
	"github.com/corvex/corvex/internal/store/local"
	"github.com/corvex/corvex/internal/store/postgres"
	s3store "github.com/corvex/corvex/internal/store/s3"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Storage backend ("memory", "local", "s3" or "postgres", default: "local")
	StoreBackend      string
	LocalStorePath    string
	AllowedExtensions []string

	// S3 storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	// Database
	DatabaseURL  string
	MaxOpenConns int

	// Auth (optional, empty disables bearer tokens)
	JWTSecret string
	TokenTTL  time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:       envOr("METRICS_ADDR", ":9090"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFormat:         envOr("LOG_FORMAT", "json"),
		StoreBackend:      envOr("STORE_BACKEND", "local"),
		LocalStorePath:    envOr("LOCAL_STORE_PATH", defaultStorePath()),
		AllowedExtensions: envList("ALLOWED_EXTENSIONS", []string{"md", "tex"}),
		S3Endpoint:        envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:          envOr("S3_BUCKET", "corvex"),
		S3AccessKey:       envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:       envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:          envOr("S3_REGION", "us-east-1"),
		DatabaseURL:       envOr("DATABASE_URL", ""),
		MaxOpenConns:      envInt("DB_MAX_OPEN_CONNS", 10),
		JWTSecret:         envOr("JWT_SECRET", ""),
		TokenTTL:          envDuration("TOKEN_TTL", 24*time.Hour),
	}

	switch cfg.StoreBackend {
	case "memory", "local":
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the s3 backend")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat}
}

// Store returns the settings for the selected backend.
func (c *Config) Store() store.Config {
	return store.Config{
		Backend: c.StoreBackend,
		Local: local.Config{
			RootPath:   c.LocalStorePath,
			CreateDirs: true,
			Extensions: c.AllowedExtensions,
		},
		S3: s3store.Config{
			Endpoint:  c.S3Endpoint,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Region:    c.S3Region,
		},
		Postgres: postgres.Config{
			DatabaseURL:  c.DatabaseURL,
			MaxOpenConns: c.MaxOpenConns,
		},
	}
}

// ClientConfig holds defaults for the command-line client.
type ClientConfig struct {
	ServerURL string
	Token     string
	Timeout   time.Duration
	LogLevel  string
}

// LoadClient reads client defaults from the environment. Flags override them.
func LoadClient() ClientConfig {
	return ClientConfig{
		ServerURL: envOr("CORVEX_SERVER", "http://localhost:8080"),
		Token:     envOr("CORVEX_TOKEN", ""),
		Timeout:   envDuration("CORVEX_TIMEOUT", 30*time.Second),
		LogLevel:  envOr("CORVEX_LOG_LEVEL", "warn"),
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("corvex", "data")
	}
	return filepath.Join(home, "corvex", "data")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// envList splits a comma-separated value. A leading dot on each item is dropped.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimPrefix(strings.TrimSpace(item), ".")
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
