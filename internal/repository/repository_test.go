package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/EpisodeVault/internal/db"
	"github.com/JustinTDCT/EpisodeVault/internal/models"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Connect(db.DriverSQLite, filepath.Join(t.TempDir(), "episodevault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate(context.Background()))
	return d
}

func sampleGraph() *models.Title {
	return &models.Title{
		ExternalID: "GRMG8ZQZR",
		Language:   "en-US",
		Slug:       "one-piece",
		Title:      "One Piece",
		Synopsis:   "Pirates.",
		Studio:     "Toei",
		PosterTall: models.Image{URI: "https://img/tall.jpg", Width: 480, Height: 720},
		Seasons: []*models.Season{
			{
				ExternalID: "S2", Language: "en-US", Title: "Season 2", SequenceNumber: 2, DisplayNumber: "2",
				Episodes: []*models.Episode{
					{ExternalID: "E2-1", Language: "en-US", Title: "Ep 1", EpisodeNumber: "1", SequenceNumber: 1},
				},
			},
			{
				ExternalID: "S1", Language: "en-US", Title: "Season 1", SequenceNumber: 1, DisplayNumber: "1",
				Episodes: []*models.Episode{
					{ExternalID: "E1-2", Language: "en-US", Title: "Ep 2", EpisodeNumber: "2", SequenceNumber: 2},
					{ExternalID: "E1-1", Language: "en-US", Title: "Ep 1", EpisodeNumber: "1", SequenceNumber: 1,
						Thumbnail: models.Image{URI: "https://img/e1.jpg", Width: 1920, Height: 1080}},
				},
			},
		},
	}
}

func TestSaveGraph_DoubleSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	repo := NewTVRepository(d.DB)

	stats, err := repo.SaveGraph(ctx, sampleGraph())
	require.NoError(t, err)
	assert.True(t, stats.TitleCreated)
	assert.Equal(t, 2, stats.SeasonsCreated)
	assert.Equal(t, 3, stats.EpisodesCreated)

	first, err := repo.GetTitleGraph(ctx, "GRMG8ZQZR", "en-US")
	require.NoError(t, err)
	require.NotNil(t, first)

	stats, err = repo.SaveGraph(ctx, sampleGraph())
	require.NoError(t, err)
	assert.False(t, stats.TitleCreated)
	assert.Equal(t, 0, stats.SeasonsCreated)
	assert.Equal(t, 2, stats.SeasonsUpdated)
	assert.Equal(t, 0, stats.EpisodesCreated)
	assert.Equal(t, 3, stats.EpisodesUpdated)

	second, err := repo.GetTitleGraph(ctx, "GRMG8ZQZR", "en-US")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.Len(t, second.Seasons, 2)
	for i := range first.Seasons {
		assert.Equal(t, first.Seasons[i].ID, second.Seasons[i].ID)
		require.Len(t, second.Seasons[i].Episodes, len(first.Seasons[i].Episodes))
		for j := range first.Seasons[i].Episodes {
			assert.Equal(t, first.Seasons[i].Episodes[j].ID, second.Seasons[i].Episodes[j].ID)
		}
	}

	var n int
	require.NoError(t, d.QueryRow(`SELECT COUNT(*) FROM episodes`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestGetTitleGraph_OrderedBySequence(t *testing.T) {
	ctx := context.Background()
	repo := NewTVRepository(openTestDB(t).DB)
	_, err := repo.SaveGraph(ctx, sampleGraph())
	require.NoError(t, err)

	g, err := repo.GetTitleGraph(ctx, "GRMG8ZQZR", "en-US")
	require.NoError(t, err)
	require.Len(t, g.Seasons, 2)
	assert.Equal(t, "S1", g.Seasons[0].ExternalID)
	assert.Equal(t, "S2", g.Seasons[1].ExternalID)
	assert.Equal(t, "E1-1", g.Seasons[0].Episodes[0].ExternalID)
	assert.Equal(t, "E1-2", g.Seasons[0].Episodes[1].ExternalID)
	assert.Equal(t, models.Image{URI: "https://img/e1.jpg", Width: 1920, Height: 1080}, g.Seasons[0].Episodes[0].Thumbnail)
	assert.True(t, g.Seasons[0].Episodes[1].Thumbnail.IsZero())
	assert.Equal(t, 480, g.PosterTall.Width)
	assert.Nil(t, g.Rating)
}

func TestSaveGraph_SeasonUpsertKeepsChildren(t *testing.T) {
	ctx := context.Background()
	repo := NewTVRepository(openTestDB(t).DB)
	_, err := repo.SaveGraph(ctx, sampleGraph())
	require.NoError(t, err)
	before, err := repo.FindSeason(ctx, nil, "S1", "en-US")
	require.NoError(t, err)

	// season fetched again without its episodes (e.g. the episode call failed)
	rescrape := sampleGraph()
	rescrape.Seasons = []*models.Season{{ExternalID: "S1", Language: "en-US", Title: "Season One", SequenceNumber: 1}}
	_, err = repo.SaveGraph(ctx, rescrape)
	require.NoError(t, err)

	after, err := repo.FindSeason(ctx, nil, "S1", "en-US")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, "Season One", after.Title)

	eps, err := repo.ListEpisodes(ctx, after.ID)
	require.NoError(t, err)
	assert.Len(t, eps, 2)

	// and a later scrape appends a new child
	rescrape.Seasons[0].Episodes = []*models.Episode{{ExternalID: "E1-3", Language: "en-US", SequenceNumber: 3}}
	stats, err := repo.SaveGraph(ctx, rescrape)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EpisodesCreated)
	eps, err = repo.ListEpisodes(ctx, after.ID)
	require.NoError(t, err)
	assert.Len(t, eps, 3)
}

func TestSaveGraph_LanguagesAreSeparateRows(t *testing.T) {
	ctx := context.Background()
	repo := NewTVRepository(openTestDB(t).DB)
	_, err := repo.SaveGraph(ctx, &models.Title{ExternalID: "G1", Language: "en-US", Title: "Show"})
	require.NoError(t, err)
	stats, err := repo.SaveGraph(ctx, &models.Title{ExternalID: "G1", Language: "de-DE", Title: "Serie"})
	require.NoError(t, err)
	assert.True(t, stats.TitleCreated)

	titles, err := repo.ListTitles(ctx)
	require.NoError(t, err)
	assert.Len(t, titles, 2)
}

func TestSaveGraph_SetsLastUpdatedAt(t *testing.T) {
	ctx := context.Background()
	repo := NewTVRepository(openTestDB(t).DB)
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return t0 }
	_, err := repo.SaveGraph(ctx, sampleGraph())
	require.NoError(t, err)

	t1 := t0.Add(24 * time.Hour)
	repo.now = func() time.Time { return t1 }
	_, err = repo.SaveGraph(ctx, sampleGraph())
	require.NoError(t, err)

	got, err := repo.FindTitle(ctx, nil, "GRMG8ZQZR", "en-US")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(t0), "created_at = %s", got.CreatedAt)
	assert.True(t, got.LastUpdatedAt.Equal(t1), "last_updated_at = %s", got.LastUpdatedAt)
}

func TestFindTitle_MissingIsNil(t *testing.T) {
	repo := NewTVRepository(openTestDB(t).DB)
	got, err := repo.FindTitle(context.Background(), nil, "nope", "en-US")
	assert.NoError(t, err)
	assert.Nil(t, got)

	g, err := repo.GetTitleGraph(context.Background(), "nope", "en-US")
	assert.NoError(t, err)
	assert.Nil(t, g)
}

func TestReplaceReviewsAndComments(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	tv := NewTVRepository(d.DB)
	_, err := tv.SaveGraph(ctx, sampleGraph())
	require.NoError(t, err)
	title, _ := tv.FindTitle(ctx, nil, "GRMG8ZQZR", "en-US")
	ep, _ := tv.FindEpisode(ctx, nil, "E1-1", "en-US")

	reviews := NewReviewRepository(d.DB)
	require.NoError(t, reviews.ReplaceReviews(ctx, title.ID, "en-US", []*models.Review{
		{AuthorUsername: "a", Rating: 5, Helpful: 1},
		{AuthorUsername: "b", Rating: 3, Helpful: 9},
	}))
	require.NoError(t, reviews.ReplaceReviews(ctx, title.ID, "en-US", []*models.Review{
		{AuthorUsername: "c", Rating: 4, Headline: "ok"},
	}))
	got, err := reviews.ListReviews(ctx, title.ID, "en-US")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].AuthorUsername)

	require.NoError(t, reviews.ReplaceComments(ctx, ep.ID, "en-US", []*models.Comment{
		{AuthorUsername: "x", Message: "first", Likes: 1},
		{AuthorUsername: "y", Message: "spoiler", Likes: 7, IsSpoiler: true},
	}))
	comments, err := reviews.ListComments(ctx, ep.ID, "en-US")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "x", comments[0].AuthorUsername)
	assert.Equal(t, "y", comments[1].AuthorUsername)
	assert.True(t, comments[1].IsSpoiler)

	empty, err := reviews.ListComments(ctx, ep.ID, "fr-FR")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestJobRepository_LastFor(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(openTestDB(t).DB)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	msg := "season S2: upstream: 503"
	for i, status := range []models.ScrapeStatus{models.ScrapeComplete, models.ScrapePartial} {
		fin := start.Add(time.Duration(i)*time.Hour + time.Minute)
		run := &models.ScrapeRun{
			Kind: models.ScrapeKindTitle, ExternalID: "G1", Language: "en-US", Status: status,
			StartedAt: start.Add(time.Duration(i) * time.Hour), FinishedAt: &fin,
		}
		if status == models.ScrapePartial {
			run.ErrorMessage = &msg
		}
		require.NoError(t, jobs.Create(ctx, run))
	}

	last, err := jobs.LastFor(ctx, models.ScrapeKindTitle, "G1", "en-US")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, models.ScrapePartial, last.Status)
	require.NotNil(t, last.ErrorMessage)
	assert.Equal(t, msg, *last.ErrorMessage)

	none, err := jobs.LastFor(ctx, models.ScrapeKindReviews, "G1", "en-US")
	require.NoError(t, err)
	assert.Nil(t, none)

	recent, err := jobs.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsRepository(openTestDB(t).DB)

	v, err := s.Get(ctx, "EPISODE_CONCURRENCY")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.Set(ctx, "EPISODE_CONCURRENCY", "4"))
	require.NoError(t, s.Set(ctx, "EPISODE_CONCURRENCY", "8"))
	v, err = s.Get(ctx, "EPISODE_CONCURRENCY")
	require.NoError(t, err)
	assert.Equal(t, "8", v)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"EPISODE_CONCURRENCY": "8"}, all)

	require.NoError(t, s.Delete(ctx, "EPISODE_CONCURRENCY"))
	all, _ = s.GetAll(ctx)
	assert.Empty(t, all)
}

func TestSaveGraph_EmptyImageStoredAsPlaceholder(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	_, err := NewTVRepository(d.DB).SaveGraph(ctx, sampleGraph())
	require.NoError(t, err)

	var raw sql.NullString
	require.NoError(t, d.QueryRowContext(ctx, `SELECT thumbnail FROM episodes WHERE external_id = $1`, "E1-2").Scan(&raw))
	require.True(t, raw.Valid)
	assert.JSONEq(t, `{"uri":"","width":0,"height":0}`, raw.String)
}

func TestReplaceReviews_KeepsPageOrder(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	tv := NewTVRepository(d.DB)
	_, err := tv.SaveGraph(ctx, sampleGraph())
	require.NoError(t, err)
	title, _ := tv.FindTitle(ctx, nil, "GRMG8ZQZR", "en-US")
	ep, _ := tv.FindEpisode(ctx, nil, "E1-1", "en-US")
	repo := NewReviewRepository(d.DB)

	names := []string{"f", "a", "e", "b", "d", "c", "h", "g"}
	var reviews []*models.Review
	var comments []*models.Comment
	for _, n := range names {
		reviews = append(reviews, &models.Review{AuthorUsername: n, Helpful: len(n)})
		comments = append(comments, &models.Comment{AuthorUsername: n, Likes: 3})
	}
	require.NoError(t, repo.ReplaceReviews(ctx, title.ID, "en-US", reviews))
	require.NoError(t, repo.ReplaceComments(ctx, ep.ID, "en-US", comments))

	gotReviews, err := repo.ListReviews(ctx, title.ID, "en-US")
	require.NoError(t, err)
	gotComments, err := repo.ListComments(ctx, ep.ID, "en-US")
	require.NoError(t, err)
	require.Len(t, gotReviews, len(names))
	require.Len(t, gotComments, len(names))
	for i, n := range names {
		assert.Equal(t, n, gotReviews[i].AuthorUsername)
		assert.Equal(t, i, gotReviews[i].Position)
		assert.Equal(t, n, gotComments[i].AuthorUsername)
	}
}
