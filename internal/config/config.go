// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all runtime configuration for the scrape service.
type Config struct {
	Port        string
	GRPCPort    string
	DatabaseURL string
	RedisURL    string

	SourceBaseURL     string
	SourceCookie      string  // passed through as the Cookie header, never parsed
	RequestsPerSecond float64 // shared across every running job
	FetchTimeout      time.Duration
	FetchMaxAttempts  int
	FetchBackoff      time.Duration

	MaxScrapeLimit    int
	MaxConcurrentJobs int // 0 = unbounded

	CandidateProfilePath string

	ScrapeSchedule   string // cron spec, e.g. "@every 6h"
	ScheduledScrapes []ScheduledScrape
	EventTTL         time.Duration
}

// ScheduledScrape is one entry of SCHEDULED_SCRAPES.
type ScheduledScrape struct {
	Collection string
	Limit      int
	OwnerID    string
	Details    bool
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] .env not loaded (%v) — using process environment", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg := &Config{
		Port:                 envOr("SCRAPER_PORT", "8083"),
		GRPCPort:             envOr("SCRAPER_GRPC_PORT", "9093"),
		DatabaseURL:          dbURL,
		RedisURL:             redisURL,
		SourceBaseURL:        strings.TrimRight(envOr("SOURCE_BASE_URL", "https://www.linkedin.com"), "/"),
		SourceCookie:         os.Getenv("SOURCE_COOKIE"),
		CandidateProfilePath: os.Getenv("CANDIDATE_PROFILE_PATH"),
		ScrapeSchedule:       envOr("SCRAPE_SCHEDULE", "@every 6h"),
	}

	var err error
	if cfg.RequestsPerSecond, err = envFloat("SOURCE_REQUESTS_PER_SECOND", 1.0); err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("SOURCE_REQUESTS_PER_SECOND must be positive, got %v", cfg.RequestsPerSecond)
	}

	timeoutSecs, err := envInt("FETCH_TIMEOUT_SECONDS", 15, 1)
	if err != nil {
		return nil, err
	}
	cfg.FetchTimeout = time.Duration(timeoutSecs) * time.Second

	if cfg.FetchMaxAttempts, err = envInt("FETCH_MAX_ATTEMPTS", 3, 1); err != nil {
		return nil, err
	}

	backoffMS, err := envInt("FETCH_BACKOFF_MS", 500, 0)
	if err != nil {
		return nil, err
	}
	cfg.FetchBackoff = time.Duration(backoffMS) * time.Millisecond

	if cfg.MaxScrapeLimit, err = envInt("MAX_SCRAPE_LIMIT", 100, 1); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentJobs, err = envInt("MAX_CONCURRENT_JOBS", 4, 0); err != nil {
		return nil, err
	}

	ttlHours, err := envInt("EVENT_TTL_HOURS", 24, 1)
	if err != nil {
		return nil, err
	}
	cfg.EventTTL = time.Duration(ttlHours) * time.Hour

	if cfg.ScheduledScrapes, err = ParseScheduledScrapes(os.Getenv("SCHEDULED_SCRAPES")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseScheduledScrapes parses "collection:limit:owner[:details];..." entries.
func ParseScheduledScrapes(raw string) ([]ScheduledScrape, error) {
	var out []ScheduledScrape
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("SCHEDULED_SCRAPES entry %q must be collection:limit:owner[:details]", entry)
		}
		limit, err := strconv.Atoi(parts[1])
		if err != nil || limit < 1 {
			return nil, fmt.Errorf("SCHEDULED_SCRAPES entry %q: limit must be a positive integer", entry)
		}
		s := ScheduledScrape{
			Collection: strings.TrimSpace(parts[0]),
			Limit:      limit,
			OwnerID:    strings.TrimSpace(parts[2]),
		}
		if len(parts) == 4 {
			s.Details, err = strconv.ParseBool(parts[3])
			if err != nil {
				return nil, fmt.Errorf("SCHEDULED_SCRAPES entry %q: details must be a boolean", entry)
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def, min int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < min {
		return 0, fmt.Errorf("%s must be an integer >= %d, got %q", key, min, s)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, s)
	}
	return v, nil
}
