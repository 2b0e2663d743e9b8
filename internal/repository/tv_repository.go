package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JustinTDCT/EpisodeVault/internal/models"
	"github.com/google/uuid"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type TVRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTVRepository(db *sql.DB) *TVRepository {
	return &TVRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// SaveStats counts rows written by SaveGraph.
type SaveStats struct {
	TitleCreated    bool
	SeasonsCreated  int
	SeasonsUpdated  int
	EpisodesCreated int
	EpisodesUpdated int
}

// SaveGraph upserts title, its seasons and their episodes in one
// transaction. Rows are matched by (external_id, language); matched rows keep
// their id and created_at. Nothing is ever deleted, so a season passed
// without episodes keeps the episodes it already has.
func (r *TVRepository) SaveGraph(ctx context.Context, title *models.Title) (*SaveStats, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stats := &SaveStats{}
	now := r.now()

	created, err := r.upsertTitle(ctx, tx, title, now)
	if err != nil {
		return nil, fmt.Errorf("upsert title %s: %w", title.ExternalID, err)
	}
	stats.TitleCreated = created

	for _, season := range title.Seasons {
		season.TitleID = title.ID
		created, err := r.upsertSeason(ctx, tx, season, now)
		if err != nil {
			return nil, fmt.Errorf("upsert season %s: %w", season.ExternalID, err)
		}
		if created {
			stats.SeasonsCreated++
		} else {
			stats.SeasonsUpdated++
		}

		for _, ep := range season.Episodes {
			ep.SeasonID = season.ID
			created, err := r.upsertEpisode(ctx, tx, ep, now)
			if err != nil {
				return nil, fmt.Errorf("upsert episode %s: %w", ep.ExternalID, err)
			}
			if created {
				stats.EpisodesCreated++
			} else {
				stats.EpisodesUpdated++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *TVRepository) upsertTitle(ctx context.Context, q DBTX, t *models.Title, now time.Time) (bool, error) {
	existing, err := r.FindTitle(ctx, q, t.ExternalID, t.Language)
	if err != nil {
		return false, err
	}
	t.LastUpdatedAt = now
	if existing != nil {
		t.ID, t.CreatedAt = existing.ID, existing.CreatedAt
		return false, r.UpdateTitle(ctx, q, t)
	}
	t.ID, t.CreatedAt = uuid.New(), now
	return true, r.InsertTitle(ctx, q, t)
}

func (r *TVRepository) upsertSeason(ctx context.Context, q DBTX, s *models.Season, now time.Time) (bool, error) {
	existing, err := r.FindSeason(ctx, q, s.ExternalID, s.Language)
	if err != nil {
		return false, err
	}
	s.LastUpdatedAt = now
	if existing != nil {
		s.ID, s.CreatedAt = existing.ID, existing.CreatedAt
		return false, r.UpdateSeason(ctx, q, s)
	}
	s.ID, s.CreatedAt = uuid.New(), now
	return true, r.InsertSeason(ctx, q, s)
}

func (r *TVRepository) upsertEpisode(ctx context.Context, q DBTX, e *models.Episode, now time.Time) (bool, error) {
	existing, err := r.FindEpisode(ctx, q, e.ExternalID, e.Language)
	if err != nil {
		return false, err
	}
	e.LastUpdatedAt = now
	if existing != nil {
		e.ID, e.CreatedAt = existing.ID, existing.CreatedAt
		return false, r.UpdateEpisode(ctx, q, e)
	}
	e.ID, e.CreatedAt = uuid.New(), now
	return true, r.InsertEpisode(ctx, q, e)
}

// ──────────────────── Titles ────────────────────

const titleColumns = `id, external_id, language, slug, title, synopsis, studio, rating,
	poster_tall, poster_wide, created_at, last_updated_at`

func scanTitle(row interface{ Scan(...interface{}) error }, t *models.Title) error {
	return row.Scan(&t.ID, &t.ExternalID, &t.Language, &t.Slug, &t.Title, &t.Synopsis,
		&t.Studio, &t.Rating, &t.PosterTall, &t.PosterWide, &t.CreatedAt, &t.LastUpdatedAt)
}

func (r *TVRepository) InsertTitle(ctx context.Context, q DBTX, t *models.Title) error {
	query := `
		INSERT INTO titles (` + titleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := q.ExecContext(ctx, query, t.ID, t.ExternalID, t.Language, t.Slug, t.Title,
		t.Synopsis, t.Studio, t.Rating, t.PosterTall, t.PosterWide, t.CreatedAt, t.LastUpdatedAt)
	return err
}

func (r *TVRepository) UpdateTitle(ctx context.Context, q DBTX, t *models.Title) error {
	query := `UPDATE titles SET slug = $1, title = $2, synopsis = $3, studio = $4, rating = $5,
		poster_tall = $6, poster_wide = $7, last_updated_at = $8 WHERE id = $9`
	_, err := q.ExecContext(ctx, query, t.Slug, t.Title, t.Synopsis, t.Studio, t.Rating,
		t.PosterTall, t.PosterWide, t.LastUpdatedAt, t.ID)
	return err
}

// FindTitle returns nil, nil when no row matches.
func (r *TVRepository) FindTitle(ctx context.Context, q DBTX, externalID, language string) (*models.Title, error) {
	if q == nil {
		q = r.db
	}
	t := &models.Title{}
	query := `SELECT ` + titleColumns + ` FROM titles WHERE external_id = $1 AND language = $2`
	err := scanTitle(q.QueryRowContext(ctx, query, externalID, language), t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TVRepository) ListTitles(ctx context.Context) ([]*models.Title, error) {
	query := `SELECT ` + titleColumns + ` FROM titles ORDER BY title, language`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	titles := []*models.Title{}
	for rows.Next() {
		t := &models.Title{}
		if err := scanTitle(rows, t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// GetTitleGraph loads a title with its seasons and episodes, both ordered by
// sequence number. Returns nil, nil when the title is unknown.
func (r *TVRepository) GetTitleGraph(ctx context.Context, externalID, language string) (*models.Title, error) {
	t, err := r.FindTitle(ctx, r.db, externalID, language)
	if err != nil || t == nil {
		return nil, err
	}
	seasons, err := r.ListSeasons(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range seasons {
		if s.Episodes, err = r.ListEpisodes(ctx, s.ID); err != nil {
			return nil, err
		}
	}
	t.Seasons = seasons
	return t, nil
}

// ──────────────────── Seasons ────────────────────

const seasonColumns = `id, title_id, external_id, language, title, slug, sequence_number,
	display_number, identifier, created_at, last_updated_at`

func scanSeason(row interface{ Scan(...interface{}) error }, s *models.Season) error {
	return row.Scan(&s.ID, &s.TitleID, &s.ExternalID, &s.Language, &s.Title, &s.Slug,
		&s.SequenceNumber, &s.DisplayNumber, &s.Identifier, &s.CreatedAt, &s.LastUpdatedAt)
}

func (r *TVRepository) InsertSeason(ctx context.Context, q DBTX, s *models.Season) error {
	query := `
		INSERT INTO seasons (` + seasonColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := q.ExecContext(ctx, query, s.ID, s.TitleID, s.ExternalID, s.Language, s.Title,
		s.Slug, s.SequenceNumber, s.DisplayNumber, s.Identifier, s.CreatedAt, s.LastUpdatedAt)
	return err
}

func (r *TVRepository) UpdateSeason(ctx context.Context, q DBTX, s *models.Season) error {
	query := `UPDATE seasons SET title_id = $1, title = $2, slug = $3, sequence_number = $4,
		display_number = $5, identifier = $6, last_updated_at = $7 WHERE id = $8`
	_, err := q.ExecContext(ctx, query, s.TitleID, s.Title, s.Slug, s.SequenceNumber,
		s.DisplayNumber, s.Identifier, s.LastUpdatedAt, s.ID)
	return err
}

func (r *TVRepository) FindSeason(ctx context.Context, q DBTX, externalID, language string) (*models.Season, error) {
	if q == nil {
		q = r.db
	}
	s := &models.Season{}
	query := `SELECT ` + seasonColumns + ` FROM seasons WHERE external_id = $1 AND language = $2`
	err := scanSeason(q.QueryRowContext(ctx, query, externalID, language), s)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *TVRepository) ListSeasons(ctx context.Context, titleID uuid.UUID) ([]*models.Season, error) {
	query := `SELECT ` + seasonColumns + ` FROM seasons WHERE title_id = $1
		ORDER BY sequence_number, external_id`
	rows, err := r.db.QueryContext(ctx, query, titleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seasons := []*models.Season{}
	for rows.Next() {
		s := &models.Season{}
		if err := scanSeason(rows, s); err != nil {
			return nil, err
		}
		seasons = append(seasons, s)
	}
	return seasons, rows.Err()
}

// ──────────────────── Episodes ────────────────────

const episodeColumns = `id, season_id, external_id, language, title, slug, synopsis,
	episode_number, sequence_number, thumbnail, created_at, last_updated_at`

func scanEpisode(row interface{ Scan(...interface{}) error }, e *models.Episode) error {
	return row.Scan(&e.ID, &e.SeasonID, &e.ExternalID, &e.Language, &e.Title, &e.Slug,
		&e.Synopsis, &e.EpisodeNumber, &e.SequenceNumber, &e.Thumbnail, &e.CreatedAt, &e.LastUpdatedAt)
}

func (r *TVRepository) InsertEpisode(ctx context.Context, q DBTX, e *models.Episode) error {
	query := `
		INSERT INTO episodes (` + episodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := q.ExecContext(ctx, query, e.ID, e.SeasonID, e.ExternalID, e.Language, e.Title,
		e.Slug, e.Synopsis, e.EpisodeNumber, e.SequenceNumber, e.Thumbnail, e.CreatedAt, e.LastUpdatedAt)
	return err
}

func (r *TVRepository) UpdateEpisode(ctx context.Context, q DBTX, e *models.Episode) error {
	query := `UPDATE episodes SET season_id = $1, title = $2, slug = $3, synopsis = $4,
		episode_number = $5, sequence_number = $6, thumbnail = $7, last_updated_at = $8 WHERE id = $9`
	_, err := q.ExecContext(ctx, query, e.SeasonID, e.Title, e.Slug, e.Synopsis,
		e.EpisodeNumber, e.SequenceNumber, e.Thumbnail, e.LastUpdatedAt, e.ID)
	return err
}

func (r *TVRepository) FindEpisode(ctx context.Context, q DBTX, externalID, language string) (*models.Episode, error) {
	if q == nil {
		q = r.db
	}
	e := &models.Episode{}
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE external_id = $1 AND language = $2`
	err := scanEpisode(q.QueryRowContext(ctx, query, externalID, language), e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *TVRepository) ListEpisodes(ctx context.Context, seasonID uuid.UUID) ([]*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE season_id = $1
		ORDER BY sequence_number, external_id`
	rows, err := r.db.QueryContext(ctx, query, seasonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	episodes := []*models.Episode{}
	for rows.Next() {
		e := &models.Episode{}
		if err := scanEpisode(rows, e); err != nil {
			return nil, err
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}
