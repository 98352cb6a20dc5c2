package travelapi

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr      = ":9090"
	defaultAllowedOrigin   = "http://localhost:3000"
	defaultLedgerTimeout   = 15 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultAttemptLimit    = 20
	maxAttemptLimit        = 200
	listingDateLayout      = "2006-01-02"
)

// Config aggregates runtime settings for the travel API.
type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	LedgerTimeout   time.Duration
	ShutdownTimeout time.Duration
	AttemptLimit    int
}

// Validate applies defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = defaultLedgerTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.AttemptLimit <= 0 {
		cfg.AttemptLimit = defaultAttemptLimit
	}
	if cfg.AttemptLimit > maxAttemptLimit {
		return fmt.Errorf("attempt limit must be <= %d", maxAttemptLimit)
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen addr is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
