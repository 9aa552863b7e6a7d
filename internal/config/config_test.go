package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.CompletionMode != "auto" {
		t.Fatalf("CompletionMode = %q, want auto", cfg.CompletionMode)
	}
	if cfg.HistoryWindow != 7 || cfg.MaxPerItem != 5 {
		t.Fatalf("HistoryWindow/MaxPerItem = %d/%d, want 7/5", cfg.HistoryWindow, cfg.MaxPerItem)
	}
	if cfg.Ordering().Cap() != 5 {
		t.Fatalf("Ordering().Cap() = %d, want 5", cfg.Ordering().Cap())
	}
	if cfg.RedisAddr != "" || cfg.DatabaseURL != "" {
		t.Fatalf("stores should default to in-memory, got redis=%q db=%q", cfg.RedisAddr, cfg.DatabaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("INTERPRET_TIMEOUT", "3s")
	t.Setenv("ORDER_MAX_PER_ITEM", "8")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.InterpretTimeout != 3*time.Second || cfg.MaxPerItem != 8 || !cfg.AllowAnyOrigin {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.GeminiAPIKey != "g-key" {
		t.Fatalf("GeminiAPIKey = %q, want fallback from GOOGLE_API_KEY", cfg.GeminiAPIKey)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"APP_SESSION_INACTIVITY_TIMEOUT": "1s",
		"INTERPRET_TIMEOUT":              "soon",
		"CHAT_HISTORY_WINDOW":            "0",
		"ORDER_MAX_PER_ITEM":             "-1",
		"APP_LOG_DEVELOPMENT":            "maybe",
		"COMPLETION_MODE":                "oracle",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q expected error", key, value)
			}
		})
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("COMPLETION_MODE=rules\nAPP_BIND_ADDR=:7000\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("APP_BIND_ADDR", ":9000")
	// An empty but present variable counts as set, so clear this one entirely.
	if err := os.Unsetenv("COMPLETION_MODE"); err != nil {
		t.Fatalf("Unsetenv() error = %v", err)
	}

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CompletionMode != "rules" {
		t.Fatalf("CompletionMode = %q, want rules from file", cfg.CompletionMode)
	}
	if cfg.BindAddr != ":9000" {
		t.Fatalf("BindAddr = %q, want existing env value", cfg.BindAddr)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_LOG_LEVEL",
		"APP_LOG_DEVELOPMENT",
		"COMPLETION_MODE",
		"GEMINI_API_KEY",
		"GOOGLE_API_KEY",
		"GEMINI_MODEL",
		"COMPLETION_HTTP_URL",
		"COMPLETION_HTTP_API_KEY",
		"COMPLETION_HTTP_MODEL",
		"INTERPRET_TIMEOUT",
		"CHAT_HISTORY_WINDOW",
		"ORDER_MAX_PER_ITEM",
		"CATALOG_PATH",
		"DATABASE_URL",
		"REDIS_ADDR",
		"CART_TTL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
