package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/idp"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/idp/google"
	"github.com/aussiebroadwan/gigboard/pkg/httpx"
	"github.com/joho/godotenv"
)

// Token store drivers.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

type Config struct {
	APIURL string // Marketplace backend base URL (default: http://localhost:8080)

	GoogleClientID     string // Optional: empty disables Google sign-in
	GoogleClientSecret string // Optional: only needed for confidential clients
	GoogleIssuer       string // OpenID issuer (default: https://accounts.google.com)
	GoogleCallbackAddr string // Loopback redirect listener (default: 127.0.0.1:8765)

	TokenStore           string // memory, file, sqlite (default: file)
	TokenStorePath       string // Optional: defaults to the user config dir
	TokenStorePassphrase string // Optional: seals the file store at rest

	PendingTTL      time.Duration // How long a registration-required credential is kept (default: 30m)
	HTTPTimeout     time.Duration // Backend request timeout (default: 10s)
	AuthRateLimit   httpx.RateLimitConfig
	IDPPollInterval time.Duration // (default: 100ms)
	IDPTimeout      time.Duration // (default: 10s)

	MetricsAddr string // Optional: serve /metrics on this address

	Env                 string // Environment (dev, staging, prod) (default: prod)
	LogLevel            string // Log level (debug, info, warn, error) (default: warn)
	LogFormat           string // Log format (json, text) (default: text)
	ShutdownGracePeriod time.Duration
}

// LoadConfig reads the environment, after merging in .env.local if present.
func LoadConfig() Config {
	_ = godotenv.Load(".env.local")

	cfg := Config{
		APIURL: getEnvOrDefault("GIGBOARD_API_URL", "http://localhost:8080"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleIssuer:       getEnvOrDefault("GOOGLE_ISSUER", google.DefaultIssuer),
		GoogleCallbackAddr: getEnvOrDefault("GOOGLE_CALLBACK_ADDR", google.DefaultCallbackAddr),

		TokenStore:           getEnvOrDefault("TOKEN_STORE", StoreFile),
		TokenStorePath:       os.Getenv("TOKEN_STORE_PATH"),
		TokenStorePassphrase: os.Getenv("TOKEN_STORE_PASSPHRASE"),

		PendingTTL:      getEnvDurationOrDefault("PENDING_TTL", 30*time.Minute),
		HTTPTimeout:     getEnvDurationOrDefault("HTTP_TIMEOUT", 10*time.Second),
		AuthRateLimit:   httpx.ParseRateLimitFromEnv("AUTH", httpx.AuthLimit),
		IDPPollInterval: getEnvDurationOrDefault("IDP_POLL_INTERVAL", idp.DefaultPollInterval),
		IDPTimeout:      getEnvDurationOrDefault("IDP_TIMEOUT", idp.DefaultTimeout),

		MetricsAddr: os.Getenv("METRICS_ADDR"),

		Env:                 getEnvOrDefault("ENV", "prod"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "text"),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 5*time.Second),
	}

	if cfg.TokenStorePath == "" {
		cfg.TokenStorePath = defaultStorePath(cfg.TokenStore)
	}

	return cfg
}

// Validate reports configuration New cannot work with.
func (cfg Config) Validate() error {
	switch cfg.TokenStore {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if cfg.TokenStorePath == "" {
			return fmt.Errorf("app: TOKEN_STORE_PATH is required for the %s store", cfg.TokenStore)
		}
	default:
		return fmt.Errorf("app: unknown TOKEN_STORE %q (want memory, file or sqlite)", cfg.TokenStore)
	}

	if cfg.APIURL == "" {
		return fmt.Errorf("app: GIGBOARD_API_URL is required")
	}
	return nil
}

func defaultStorePath(driver string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	dir = filepath.Join(dir, "gigboard")

	switch driver {
	case StoreSQLite:
		return filepath.Join(dir, "session.db")
	case StoreFile:
		return filepath.Join(dir, "session.json")
	default:
		return ""
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
