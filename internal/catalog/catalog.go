// Package catalog is the read side over scraped titles.
package catalog

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/JustinTDCT/EpisodeVault/internal/models"
	"github.com/JustinTDCT/EpisodeVault/internal/repository"
)

// ImageRef is one stored image with the entity it belongs to.
type ImageRef struct {
	Kind       string       `json:"kind"` // poster_tall, poster_wide, thumbnail
	ExternalID string       `json:"external_id"`
	Image      models.Image `json:"image"`
}

type Service struct {
	tv     *repository.TVRepository
	social *repository.ReviewRepository
	runs   *repository.JobRepository
}

func New(db *sql.DB) *Service {
	return &Service{
		tv:     repository.NewTVRepository(db),
		social: repository.NewReviewRepository(db),
		runs:   repository.NewJobRepository(db),
	}
}

// Title returns the full graph, or nil when the title was never scraped.
func (s *Service) Title(ctx context.Context, externalID, language string) (*models.Title, error) {
	return s.tv.GetTitleGraph(ctx, externalID, language)
}

func (s *Service) Titles(ctx context.Context) ([]*models.Title, error) {
	return s.tv.ListTitles(ctx)
}

// Images lists the non-empty posters of a title followed by its episode
// thumbnails in display order.
func (s *Service) Images(ctx context.Context, externalID, language string) ([]ImageRef, error) {
	t, err := s.tv.GetTitleGraph(ctx, externalID, language)
	if err != nil {
		return nil, err
	}
	images := []ImageRef{}
	if t == nil {
		return images, nil
	}
	add := func(kind, id string, img models.Image) {
		if !img.IsZero() {
			images = append(images, ImageRef{Kind: kind, ExternalID: id, Image: img})
		}
	}
	add("poster_tall", t.ExternalID, t.PosterTall)
	add("poster_wide", t.ExternalID, t.PosterWide)
	for _, season := range t.Seasons {
		for _, ep := range season.Episodes {
			add("thumbnail", ep.ExternalID, ep.Thumbnail)
		}
	}
	return images, nil
}

func (s *Service) Reviews(ctx context.Context, externalID, language string) ([]*models.Review, error) {
	t, err := s.tv.FindTitle(ctx, nil, externalID, language)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return []*models.Review{}, nil
	}
	return s.social.ListReviews(ctx, t.ID, language)
}

func (s *Service) Comments(ctx context.Context, episodeID, language string) ([]*models.Comment, error) {
	ep, err := s.tv.FindEpisode(ctx, nil, episodeID, language)
	if err != nil {
		return nil, err
	}
	if ep == nil {
		return []*models.Comment{}, nil
	}
	return s.social.ListComments(ctx, ep.ID, language)
}

func (s *Service) RecentRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.runs.ListRecent(ctx, limit)
}

// Run returns one recorded scrape run, nil when the id is unknown.
func (s *Service) Run(ctx context.Context, id uuid.UUID) (*models.ScrapeRun, error) {
	return s.runs.GetByID(ctx, id)
}
