package config

import (
	"os"
	"strings"
	"time"
)

// ListenPort reads API_PORT, then Cloud Run's PORT. Default 8080.
func ListenPort() string {
	for _, key := range []string{"API_PORT", "PORT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return "8080"
}

func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}

// AllowedOrigins is CORS_ALLOWED_ORIGINS split on commas.
func AllowedOrigins() []string {
	return splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
}

// RateLimit reads RATE_LIMIT_ENABLED, RATE_LIMIT_MAX_REQUESTS (default 600) and
// RATE_LIMIT_WINDOW_SECONDS (default 60).
func RateLimit() (enabled bool, limit int64, window time.Duration) {
	limit = int64(intFromEnv("RATE_LIMIT_MAX_REQUESTS", 600))
	if limit <= 0 {
		limit = 600
	}
	seconds := intFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)
	if seconds <= 0 {
		seconds = 60
	}
	return envBool("RATE_LIMIT_ENABLED"), limit, time.Duration(seconds) * time.Second
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SkipMigrations is SKIP_MIGRATIONS=true: schema changes run as a separate ledgerctl job.
func SkipMigrations() bool {
	return envBool("SKIP_MIGRATIONS")
}
