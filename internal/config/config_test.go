package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/EpisodeVault/internal/db"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 5*time.Minute, cfg.ScrapeLockTTL)
	assert.Equal(t, time.Duration(0), cfg.SessionTokenMargin)
	assert.Equal(t, "memory", cfg.ScrapeLockBackend)
	assert.False(t, cfg.FlareSolverrEnabled())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "http://upstream.local/")
	t.Setenv("UPSTREAM_RATE_PER_SEC", "0.5")
	t.Setenv("ARCHIVE_ENABLED", "false")
	t.Setenv("SCRAPE_LOCK_TTL", "90s")
	t.Setenv("REVIEWS_CUTOFF", "20240101120000")
	t.Setenv("EPISODE_CONCURRENCY", "not-a-number")

	cfg := Load()
	assert.Equal(t, "http://upstream.local", cfg.UpstreamBaseURL)
	assert.Equal(t, 0.5, cfg.UpstreamRatePerSec)
	assert.False(t, cfg.ArchiveEnabled)
	assert.Equal(t, 90*time.Second, cfg.ScrapeLockTTL)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), cfg.ReviewsCutoff)
	assert.Equal(t, 4, cfg.EpisodeConcurrency, "invalid values fall back")
}

func TestMergeFromDB(t *testing.T) {
	ctx := context.Background()
	d, err := db.Connect(db.DriverSQLite, filepath.Join(t.TempDir(), "cfg.db"))
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Migrate(ctx))

	for k, v := range map[string]string{
		"episode_concurrency":  "8",
		"comments_cutoff":      "2023-12-31",
		"flaresolverr_url":     "http://flaresolverr:8191",
		"session_token_margin": "30s",
		"upstream_page_size":   "-1",
	} {
		_, err := d.Exec(`INSERT INTO system_settings (key, value) VALUES ($1, $2)`, k, v)
		require.NoError(t, err)
	}

	cfg := Load()
	cfg.MergeFromDB(ctx, d.DB)
	assert.Equal(t, 8, cfg.EpisodeConcurrency)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), cfg.CommentsCutoff)
	assert.True(t, cfg.FlareSolverrEnabled())
	assert.Equal(t, 30*time.Second, cfg.SessionTokenMargin)
	assert.Equal(t, 50, cfg.UpstreamPageSize, "non-positive page size ignored")
}
