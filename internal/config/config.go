package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/antoniostano/kirana/internal/policy"
)

// Config contains all runtime settings for the ordering service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	LogLevel       string
	LogDevelopment bool

	CompletionMode       string
	GeminiAPIKey         string
	GeminiModel          string
	CompletionHTTPURL    string
	CompletionHTTPAPIKey string
	CompletionHTTPModel  string
	InterpretTimeout     time.Duration

	HistoryWindow int
	MaxPerItem    int

	CatalogPath string
	DatabaseURL string
	RedisAddr   string
	CartTTL     time.Duration
}

// LoadDotEnv reads KEY=VALUE files into the environment without overriding
// variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "kirana"),
		AllowAnyOrigin:           false,
		LogLevel:                 envOrDefault("APP_LOG_LEVEL", "info"),
		CompletionMode:           envOrDefault("COMPLETION_MODE", "auto"),
		GeminiAPIKey:             stringsTrimSpace("GEMINI_API_KEY"),
		GeminiModel:              envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		CompletionHTTPURL:        stringsTrimSpace("COMPLETION_HTTP_URL"),
		CompletionHTTPAPIKey:     stringsTrimSpace("COMPLETION_HTTP_API_KEY"),
		CompletionHTTPModel:      stringsTrimSpace("COMPLETION_HTTP_MODEL"),
		CatalogPath:              stringsTrimSpace("CATALOG_PATH"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		RedisAddr:                stringsTrimSpace("REDIS_ADDR"),
		HistoryWindow:            7,
		MaxPerItem:               policy.DefaultMaxPerItem,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		InterpretTimeout:         20 * time.Second,
		CartTTL:                  24 * time.Hour,
	}
	if cfg.GeminiAPIKey == "" {
		// Name used by the Google client libraries.
		cfg.GeminiAPIKey = stringsTrimSpace("GOOGLE_API_KEY")
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.InterpretTimeout, err = durationFromEnv("INTERPRET_TIMEOUT", cfg.InterpretTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CartTTL, err = durationFromEnv("CART_TTL", cfg.CartTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("CHAT_HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxPerItem, err = intFromEnv("ORDER_MAX_PER_ITEM", cfg.MaxPerItem)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LogDevelopment, err = boolFromEnv("APP_LOG_DEVELOPMENT", cfg.LogDevelopment)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.InterpretTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERPRET_TIMEOUT must be positive")
	}
	if cfg.CartTTL <= 0 {
		return Config{}, fmt.Errorf("CART_TTL must be positive")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("CHAT_HISTORY_WINDOW must be positive")
	}
	if cfg.MaxPerItem <= 0 {
		return Config{}, fmt.Errorf("ORDER_MAX_PER_ITEM must be positive")
	}
	switch strings.ToLower(cfg.CompletionMode) {
	case "auto", "gemini", "http", "rules", "mock":
	default:
		return Config{}, fmt.Errorf("COMPLETION_MODE must be one of auto, gemini, http, rules")
	}

	return cfg, nil
}

// Ordering returns the per-item rules configured for the store.
func (c Config) Ordering() policy.Ordering {
	return policy.Ordering{MaxPerItem: c.MaxPerItem}
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
