// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// minSecretLen is the shortest JWT_SECRET accepted.
const minSecretLen = 16

// Config is read once at startup and treated as immutable.
type Config struct {
	// Server
	Port      int
	BaseURL   string
	StaticDir string

	// Storage
	DBPath string

	// Auth
	JWTSecret     string
	SessionTTL    time.Duration
	AuthRateLimit int // requests per minute per client IP
	CookieSecure  bool

	// Workspaces
	WorkspaceIdleTTL time.Duration

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel  slog.Level
	LogFormat string // "text" or "json"
}

// Load reads the environment. Missing or malformed required values are
// reported together in a single error.
func Load() (*Config, error) {
	cfg := &Config{}
	var problems []string

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	switch {
	case cfg.JWTSecret == "":
		problems = append(problems, "JWT_SECRET is not set")
	case len(cfg.JWTSecret) < minSecretLen:
		problems = append(problems, fmt.Sprintf("JWT_SECRET must be at least %d characters", minSecretLen))
	}

	cfg.Port = getEnvInt("PORT", 8080)
	if cfg.Port <= 0 || cfg.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT %d is out of range", cfg.Port))
	}

	level, err := parseLevel(getEnvString("LOG_LEVEL", "info"))
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.LogLevel = level

	cfg.LogFormat = strings.ToLower(getEnvString("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("LOG_FORMAT %q must be text or json", cfg.LogFormat))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("config: invalid environment: %s", strings.Join(problems, "; "))
	}

	cfg.DBPath = getEnvString("DB_PATH", "data/wedchart.db")
	cfg.BaseURL = strings.TrimRight(getEnvString("BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")
	cfg.StaticDir = getEnvString("STATIC_DIR", "web/dist")
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 24*time.Hour)
	cfg.AuthRateLimit = getEnvInt("AUTH_RATE_LIMIT", 20)
	cfg.WorkspaceIdleTTL = getEnvDuration("WORKSPACE_IDLE_TTL", 2*time.Hour)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not a valid level", s)
	}
	return l, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
