package jobs

import (
	"context"

	"github.com/JustinTDCT/EpisodeVault/internal/scraper"
)

// ──────── Payloads ────────

type ScrapePayload struct {
	ExternalID string `json:"external_id"`
	Language   string `json:"language,omitempty"`
}

// Scraper is what the task handlers drive; *scraper.Assembler implements it.
type Scraper interface {
	ScrapeTitle(ctx context.Context, externalID, language string) (*scraper.Result, error)
	ScrapeReviews(ctx context.Context, externalID, language string) (*scraper.Result, error)
	ScrapeComments(ctx context.Context, episodeID, language string) (*scraper.Result, error)
}

// ──────── Register all handlers ────────

func RegisterHandlers(q *Queue, s Scraper) {
	q.RegisterHandler(TaskScrapeTitle, NewScrapeHandler(TaskScrapeTitle, s.ScrapeTitle))
	q.RegisterHandler(TaskScrapeReviews, NewScrapeHandler(TaskScrapeReviews, s.ScrapeReviews))
	q.RegisterHandler(TaskScrapeComments, NewScrapeHandler(TaskScrapeComments, s.ScrapeComments))
}
