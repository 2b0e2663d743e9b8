package settings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/EpisodeVault/internal/db"
	"github.com/JustinTDCT/EpisodeVault/internal/repository"
)

func TestHandler_UpdateAndDelete(t *testing.T) {
	d, err := db.Connect(db.DriverSQLite, filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Migrate(context.Background()))
	repo := repository.NewSettingsRepository(d.DB)

	srv := httptest.NewServer(NewHandler(repo).Router())
	defer srv.Close()

	put := func(body string) int {
		req, _ := http.NewRequest(http.MethodPut, srv.URL+"/", strings.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, put(`{"episode_concurrency":"8","reviews_cutoff":"2024-01-01"}`))
	v, err := repo.Get(context.Background(), "episode_concurrency")
	require.NoError(t, err)
	assert.Equal(t, "8", v)

	assert.Equal(t, http.StatusBadRequest, put(`{"jwt_secret":"x"}`))
	assert.Equal(t, http.StatusBadRequest, put(`not json`))

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/episode_concurrency", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	v, err = repo.Get(context.Background(), "episode_concurrency")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}
