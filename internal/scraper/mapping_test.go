package scraper

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JustinTDCT/EpisodeVault/internal/metadata"
	"github.com/JustinTDCT/EpisodeVault/internal/models"
)

func TestEpisodeNumber(t *testing.T) {
	cases := []struct {
		name string
		dto  metadata.EpisodeDTO
		want string
	}{
		{"label wins", metadata.EpisodeDTO{Episode: "6.5", EpisodeNumber: 6}, "6.5"},
		{"special label", metadata.EpisodeDTO{Episode: "SP", EpisodeNumber: nil}, "SP"},
		{"numeric", metadata.EpisodeDTO{EpisodeNumber: float64(12)}, "12"},
		{"blank label falls through", metadata.EpisodeDTO{Episode: "  ", EpisodeNumber: 3}, "3"},
		{"null", metadata.EpisodeDTO{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EpisodeNumber(tc.dto))
		})
	}
}

func TestPickImage(t *testing.T) {
	set := metadata.ImageSet{
		{{Source: "a", Width: 1}, {Source: "b", Width: 2}},
		{{Source: "c", Width: 3}},
	}
	assert.Equal(t, models.Image{URI: "b", Width: 2}, PickImage(set))
	assert.True(t, PickImage(nil).IsZero())
	assert.True(t, PickImage(metadata.ImageSet{{}}).IsZero())
}

func TestSiteURLs(t *testing.T) {
	assert.Equal(t, "https://www.crunchyroll.com/series/G1/show", SeriesURL("https://www.crunchyroll.com/", "en-US", "G1", "show"))
	assert.Equal(t, "https://www.crunchyroll.com/pt-br/watch/E1/ep", EpisodeURL("https://www.crunchyroll.com", "pt-BR", "E1", "ep"))
	assert.Equal(t, "https://www.crunchyroll.com/series/G1/show", SeriesURL("https://www.crunchyroll.com", "xx-XX", "G1", "show"))
}

func TestResultRecord(t *testing.T) {
	r := newResult(models.ScrapeKindTitle, "G1", "en-US")
	r.Status = models.ScrapePartial
	r.Failures = []Failure{{Item: "season S1", Err: errors.New("boom")}}
	r.Finished = r.Started.Add(time.Second)

	run := r.record(nil)
	assert.Equal(t, 1, run.TitlesUpdated)
	assert.Equal(t, "season S1: boom", *run.ErrorMessage)
	assert.Equal(t, r.Finished, *run.FinishedAt)

	r.Status = models.ScrapeFailed
	run = r.record(errors.New("login"))
	assert.Equal(t, 0, run.TitlesUpdated)
	assert.Equal(t, "login\nseason S1: boom", *run.ErrorMessage)
}
