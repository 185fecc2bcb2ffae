package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	LogLevel    string
	PostgresDSN string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ScoreKeyPrefix string

	SessionHashKey      string
	SessionBlockKey     string
	SessionCookieSecure bool
	CORSAllowedOrigin   string

	BusSubscriberBuffer int
	VoteConflictRetries int
	ReconcileInterval   time.Duration
	ReconcileOnStart    bool
	ReconcileInAPI      bool
}

// Load reads the process environment. A .env file in the working directory is
// applied first when present; variables already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	busBuffer, err := envInt("BUS_SUBSCRIBER_BUFFER", 64)
	if err != nil {
		return Config{}, err
	}
	retries, err := envInt("VOTE_CONFLICT_RETRIES", 3)
	if err != nil {
		return Config{}, err
	}
	interval, err := envDuration("RECONCILE_INTERVAL", time.Minute)
	if err != nil {
		return Config{}, err
	}

	return Config{
		ServiceName: envString("SERVICE_NAME", "livepoll"),
		HTTPPort:    envString("HTTP_PORT", "8080"),
		LogLevel:    envString("LOG_LEVEL", "info"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		RedisAddr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        redisDB,
		ScoreKeyPrefix: envString("SCORE_KEY_PREFIX", "poll:"),

		SessionHashKey:      os.Getenv("SESSION_HASH_KEY"),
		SessionBlockKey:     os.Getenv("SESSION_BLOCK_KEY"),
		SessionCookieSecure: envBool("SESSION_COOKIE_SECURE", false),
		CORSAllowedOrigin:   envString("CORS_ALLOWED_ORIGIN", "*"),

		BusSubscriberBuffer: busBuffer,
		VoteConflictRetries: retries,
		ReconcileInterval:   interval,
		ReconcileOnStart:    envBool("RECONCILE_ON_START", true),
		ReconcileInAPI:      envBool("RECONCILE_IN_API", true),
	}, nil
}

func envString(name string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envInt(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return value, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return value, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
