package config

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

type Config struct {
	DatabaseDriver string
	DatabaseURL    string
	RedisAddr      string

	UpstreamBaseURL     string
	UpstreamClientToken string
	UpstreamLanguage    string
	UpstreamTimeout     time.Duration
	UpstreamRatePerSec  float64
	UpstreamPageSize    int
	SiteBaseURL         string

	ArchiveEnabled     bool
	ArchiveBaseURL     string
	ArchiveTimeout     time.Duration
	ArchiveSearchLimit int
	ReviewsCutoff      time.Time
	CommentsCutoff     time.Time

	FlareSolverrURL       string
	FlareSolverrTimeout   time.Duration
	FlareSolverrProxyURL  string
	FlareSolverrProxyUser string
	FlareSolverrProxyPass string

	ScrapeLockTTL      time.Duration
	ScrapeLockBackend  string
	SessionTokenMargin time.Duration
	EpisodeConcurrency int
	RescrapeSchedule   string

	MetricsAddr string
	LogFile     string
}

func Load() *Config {
	return &Config{
		DatabaseDriver: env("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    env("DATABASE_URL", "postgres://episodevault:episodevault@db:5432/episodevault?sslmode=disable"),
		RedisAddr:      env("REDIS_ADDR", "redis:6379"),

		UpstreamBaseURL:     strings.TrimSuffix(env("UPSTREAM_BASE_URL", "https://www.crunchyroll.com"), "/"),
		UpstreamClientToken: env("UPSTREAM_CLIENT_TOKEN", ""),
		UpstreamLanguage:    env("UPSTREAM_LANGUAGE", "en-US"),
		UpstreamTimeout:     envDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		UpstreamRatePerSec:  envFloat("UPSTREAM_RATE_PER_SEC", 2),
		UpstreamPageSize:    envInt("UPSTREAM_PAGE_SIZE", 50),
		SiteBaseURL:         strings.TrimSuffix(env("SITE_BASE_URL", "https://www.crunchyroll.com"), "/"),

		ArchiveEnabled:     envBool("ARCHIVE_ENABLED", true),
		ArchiveBaseURL:     strings.TrimSuffix(env("ARCHIVE_BASE_URL", "https://web.archive.org"), "/"),
		ArchiveTimeout:     envDuration("ARCHIVE_TIMEOUT", 3*time.Minute),
		ArchiveSearchLimit: envInt("ARCHIVE_SEARCH_LIMIT", 5),
		ReviewsCutoff:      envDate("REVIEWS_CUTOFF", time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)),
		CommentsCutoff:     envDate("COMMENTS_CUTOFF", time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)),

		FlareSolverrURL:       env("FLARESOLVERR_URL", ""),
		FlareSolverrTimeout:   envDuration("FLARESOLVERR_TIMEOUT", 60*time.Second),
		FlareSolverrProxyURL:  env("FLARESOLVERR_PROXY_URL", ""),
		FlareSolverrProxyUser: env("FLARESOLVERR_PROXY_USER", ""),
		FlareSolverrProxyPass: env("FLARESOLVERR_PROXY_PASS", ""),

		ScrapeLockTTL:      envDuration("SCRAPE_LOCK_TTL", 5*time.Minute),
		ScrapeLockBackend:  env("SCRAPE_LOCK_BACKEND", "memory"),
		SessionTokenMargin: envDuration("SESSION_TOKEN_MARGIN", 0),
		EpisodeConcurrency: envInt("EPISODE_CONCURRENCY", 4),
		RescrapeSchedule:   env("RESCRAPE_SCHEDULE", "0 3 * * *"),

		MetricsAddr: env("METRICS_ADDR", ":9090"),
		LogFile:     env("LOG_FILE", ""),
	}
}

// OverridableKeys are the system_settings keys MergeFromDB understands.
var OverridableKeys = []string{
	"upstream_language", "upstream_rate_per_sec", "upstream_page_size", "episode_concurrency",
	"archive_enabled", "reviews_cutoff", "comments_cutoff", "flaresolverr_url",
	"rescrape_schedule", "scrape_lock_ttl", "session_token_margin",
}

func IsOverridable(key string) bool {
	for _, k := range OverridableKeys {
		if k == key {
			return true
		}
	}
	return false
}

// MergeFromDB applies runtime overrides stored in system_settings.
func (c *Config) MergeFromDB(ctx context.Context, db *sql.DB) {
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM system_settings")
	if err != nil {
		log.Printf("config: skipping DB merge: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "upstream_language":
			c.UpstreamLanguage = value
		case "upstream_rate_per_sec":
			if v, err := cast.ToFloat64E(value); err == nil {
				c.UpstreamRatePerSec = v
			}
		case "upstream_page_size":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				c.UpstreamPageSize = v
			}
		case "episode_concurrency":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				c.EpisodeConcurrency = v
			}
		case "archive_enabled":
			if v, err := cast.ToBoolE(value); err == nil {
				c.ArchiveEnabled = v
			}
		case "reviews_cutoff":
			if v, ok := parseDate(value); ok {
				c.ReviewsCutoff = v
			}
		case "comments_cutoff":
			if v, ok := parseDate(value); ok {
				c.CommentsCutoff = v
			}
		case "flaresolverr_url":
			c.FlareSolverrURL = value
		case "rescrape_schedule":
			c.RescrapeSchedule = value
		case "scrape_lock_ttl":
			if v, err := time.ParseDuration(value); err == nil && v > 0 {
				c.ScrapeLockTTL = v
			}
		case "session_token_margin":
			if v, err := time.ParseDuration(value); err == nil && v >= 0 {
				c.SessionTokenMargin = v
			}
		}
	}
}

func (c *Config) FlareSolverrEnabled() bool {
	return c.FlareSolverrURL != ""
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := cast.ToFloat64E(v); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := cast.ToBoolE(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envDate(key string, fallback time.Time) time.Time {
	if v := os.Getenv(key); v != "" {
		if t, ok := parseDate(v); ok {
			return t
		}
	}
	return fallback
}

// parseDate accepts 2006-01-02, RFC 3339 or an archive timestamp.
func parseDate(v string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "20060102150405", "20060102"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
