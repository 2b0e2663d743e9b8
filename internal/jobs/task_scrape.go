package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/JustinTDCT/EpisodeVault/internal/apperr"
	"github.com/JustinTDCT/EpisodeVault/internal/scraper"
)

// ──────── Scrape Handler ────────

type scrapeFunc func(ctx context.Context, externalID, language string) (*scraper.Result, error)

type ScrapeHandler struct {
	taskType string
	run      scrapeFunc
}

func NewScrapeHandler(taskType string, run scrapeFunc) *ScrapeHandler {
	return &ScrapeHandler{taskType: taskType, run: run}
}

// ProcessTask runs one scrape. Errors asynq should not retry (unknown ids,
// rejected credentials, unparsable payloads) are wrapped in SkipRetry;
// the resilience layer has already retried transient ones.
func (h *ScrapeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ScrapePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", h.taskType, err, asynq.SkipRetry)
	}
	if payload.ExternalID == "" {
		return fmt.Errorf("%s: empty external_id: %w", h.taskType, asynq.SkipRetry)
	}

	res, err := h.run(ctx, payload.ExternalID, payload.Language)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindAuth, apperr.KindInvalidResponse:
			return fmt.Errorf("%s %s: %v: %w", h.taskType, payload.ExternalID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("%s %s: %w", h.taskType, payload.ExternalID, err)
	}
	log.Printf("Queue: %s %s done: %s", h.taskType, payload.ExternalID, res.Summary())
	return nil
}
