package repository

import (
	"context"
	"database/sql"

	"github.com/JustinTDCT/EpisodeVault/internal/models"
	"github.com/google/uuid"
)

// JobRepository records one row per scrape run.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const scrapeRunColumns = `id, kind, external_id, language, status, titles_created, titles_updated,
	seasons_created, seasons_updated, episodes_created, episodes_updated, items_stored,
	error_message, started_at, finished_at`

func scanScrapeRun(row interface{ Scan(...interface{}) error }, run *models.ScrapeRun) error {
	return row.Scan(&run.ID, &run.Kind, &run.ExternalID, &run.Language, &run.Status,
		&run.TitlesCreated, &run.TitlesUpdated, &run.SeasonsCreated, &run.SeasonsUpdated,
		&run.EpisodesCreated, &run.EpisodesUpdated, &run.ItemsStored, &run.ErrorMessage,
		&run.StartedAt, &run.FinishedAt)
}

func (r *JobRepository) Create(ctx context.Context, run *models.ScrapeRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	query := `INSERT INTO scrape_runs (` + scrapeRunColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.db.ExecContext(ctx, query, run.ID, run.Kind, run.ExternalID, run.Language, run.Status,
		run.TitlesCreated, run.TitlesUpdated, run.SeasonsCreated, run.SeasonsUpdated,
		run.EpisodesCreated, run.EpisodesUpdated, run.ItemsStored, run.ErrorMessage,
		run.StartedAt, run.FinishedAt)
	return err
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ScrapeRun, error) {
	run := &models.ScrapeRun{}
	query := `SELECT ` + scrapeRunColumns + ` FROM scrape_runs WHERE id = $1`
	err := scanScrapeRun(r.db.QueryRowContext(ctx, query, id), run)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// LastFor returns the most recent run for a target, nil when there is none.
func (r *JobRepository) LastFor(ctx context.Context, kind models.ScrapeKind, externalID, language string) (*models.ScrapeRun, error) {
	run := &models.ScrapeRun{}
	query := `SELECT ` + scrapeRunColumns + ` FROM scrape_runs
		WHERE kind = $1 AND external_id = $2 AND language = $3
		ORDER BY started_at DESC LIMIT 1`
	err := scanScrapeRun(r.db.QueryRowContext(ctx, query, kind, externalID, language), run)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	query := `SELECT ` + scrapeRunColumns + ` FROM scrape_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	runs := []*models.ScrapeRun{}
	for rows.Next() {
		run := &models.ScrapeRun{}
		if err := scanScrapeRun(rows, run); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
