package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, name := range []string{"SERVICE_NAME", "HTTP_PORT", "REDIS_DB", "BUS_SUBSCRIBER_BUFFER", "VOTE_CONFLICT_RETRIES", "RECONCILE_INTERVAL", "RECONCILE_ON_START", "RECONCILE_IN_API", "SCORE_KEY_PREFIX"} {
		t.Setenv(name, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "livepoll" || cfg.HTTPPort != "8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BusSubscriberBuffer != 64 || cfg.VoteConflictRetries != 3 {
		t.Fatalf("unexpected numeric defaults: %+v", cfg)
	}
	if cfg.ReconcileInterval != time.Minute || !cfg.ReconcileOnStart || !cfg.ReconcileInAPI {
		t.Fatalf("unexpected reconcile defaults: %+v", cfg)
	}
	if cfg.ScoreKeyPrefix != "poll:" {
		t.Fatalf("unexpected score key prefix %q", cfg.ScoreKeyPrefix)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SESSION_COOKIE_SECURE", "yes")
	t.Setenv("RECONCILE_INTERVAL", "15s")
	t.Setenv("RECONCILE_ON_START", "off")
	t.Setenv("RECONCILE_IN_API", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPPort != "9090" || cfg.RedisAddr != "localhost:6379" || cfg.RedisDB != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.SessionCookieSecure || cfg.ReconcileOnStart || cfg.ReconcileInAPI {
		t.Fatalf("unexpected flags: %+v", cfg)
	}
	if cfg.ReconcileInterval != 15*time.Second {
		t.Fatalf("unexpected interval: %v", cfg.ReconcileInterval)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BUS_SUBSCRIBER_BUFFER", "lots")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadAppliesDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	content := "SCORE_KEY_PREFIX=dotenv:\nHTTP_PORT=7000\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("HTTP_PORT", "9191")
	t.Setenv("SCORE_KEY_PREFIX", "")
	os.Unsetenv("SCORE_KEY_PREFIX")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPPort != "9191" {
		t.Fatalf("expected environment to win, got %q", cfg.HTTPPort)
	}
	if cfg.ScoreKeyPrefix != "dotenv:" {
		t.Fatalf("expected .env value, got %q", cfg.ScoreKeyPrefix)
	}
	os.Unsetenv("SCORE_KEY_PREFIX")
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FLAG_UNDER_TEST", "maybe")
	if !envBool("FLAG_UNDER_TEST", true) {
		t.Fatalf("expected fallback for unknown value")
	}
	t.Setenv("FLAG_UNDER_TEST", "0")
	if envBool("FLAG_UNDER_TEST", true) {
		t.Fatalf("expected false")
	}
}
