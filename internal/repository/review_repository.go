package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/JustinTDCT/EpisodeVault/internal/models"
	"github.com/google/uuid"
)

// ReviewRepository stores archived reviews and episode comments. Both are
// replaced wholesale on every successful scrape of their parent and listed
// in the order they appeared on the page.
type ReviewRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// ──────────────────── Reviews ────────────────────

func (r *ReviewRepository) ReplaceReviews(ctx context.Context, titleID uuid.UUID, language string, reviews []*models.Review) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE title_id = $1 AND language = $2`, titleID, language); err != nil {
		return err
	}
	now := r.now()
	query := `
		INSERT INTO reviews (id, title_id, language, author_username, author_avatar_uri, rating,
		                     headline, body, authored_at, helpful, unhelpful, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	for i, rv := range reviews {
		rv.ID, rv.TitleID, rv.Language, rv.Position, rv.CreatedAt = uuid.New(), titleID, language, i, now
		if _, err := tx.ExecContext(ctx, query, rv.ID, rv.TitleID, rv.Language, rv.AuthorUsername,
			rv.AuthorAvatarURI, rv.Rating, rv.Headline, rv.Body, rv.AuthoredAt, rv.Helpful,
			rv.Unhelpful, rv.Position, rv.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ReviewRepository) ListReviews(ctx context.Context, titleID uuid.UUID, language string) ([]*models.Review, error) {
	query := `
		SELECT id, title_id, language, author_username, author_avatar_uri, rating,
		       headline, body, authored_at, helpful, unhelpful, position, created_at
		FROM reviews WHERE title_id = $1 AND language = $2 ORDER BY position, id`
	rows, err := r.db.QueryContext(ctx, query, titleID, language)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := []*models.Review{}
	for rows.Next() {
		rv := &models.Review{}
		if err := rows.Scan(&rv.ID, &rv.TitleID, &rv.Language, &rv.AuthorUsername, &rv.AuthorAvatarURI,
			&rv.Rating, &rv.Headline, &rv.Body, &rv.AuthoredAt, &rv.Helpful, &rv.Unhelpful,
			&rv.Position, &rv.CreatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}

// ──────────────────── Comments ────────────────────

func (r *ReviewRepository) ReplaceComments(ctx context.Context, episodeID uuid.UUID, language string, comments []*models.Comment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE episode_id = $1 AND language = $2`, episodeID, language); err != nil {
		return err
	}
	now := r.now()
	query := `
		INSERT INTO comments (id, episode_id, language, author_username, author_avatar_uri,
		                      message, likes, posted_at, is_spoiler, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	for i, c := range comments {
		c.ID, c.EpisodeID, c.Language, c.Position, c.CreatedAt = uuid.New(), episodeID, language, i, now
		if _, err := tx.ExecContext(ctx, query, c.ID, c.EpisodeID, c.Language, c.AuthorUsername,
			c.AuthorAvatarURI, c.Message, c.Likes, c.PostedAt, c.IsSpoiler, c.Position, c.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ReviewRepository) ListComments(ctx context.Context, episodeID uuid.UUID, language string) ([]*models.Comment, error) {
	query := `
		SELECT id, episode_id, language, author_username, author_avatar_uri,
		       message, likes, posted_at, is_spoiler, position, created_at
		FROM comments WHERE episode_id = $1 AND language = $2 ORDER BY position, id`
	rows, err := r.db.QueryContext(ctx, query, episodeID, language)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []*models.Comment{}
	for rows.Next() {
		c := &models.Comment{}
		if err := rows.Scan(&c.ID, &c.EpisodeID, &c.Language, &c.AuthorUsername, &c.AuthorAvatarURI,
			&c.Message, &c.Likes, &c.PostedAt, &c.IsSpoiler, &c.Position, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
