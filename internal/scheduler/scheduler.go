package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/JustinTDCT/EpisodeVault/internal/models"
)

// Enqueuer queues scrape tasks; *jobs.Queue implements it.
type Enqueuer interface {
	EnqueueScrape(kind models.ScrapeKind, externalID, language string, scheduled bool) (string, error)
}

type TitleLister interface {
	ListTitles(ctx context.Context) ([]*models.Title, error)
}

// Scheduler enqueues a rescrape of every stored title on a cron schedule.
type Scheduler struct {
	titles      TitleLister
	queue       Enqueuer
	spec        string
	withReviews bool
	cron        *cron.Cron
}

// New creates a rescrape scheduler. withReviews also queues a review scrape
// per title.
func New(titles TitleLister, queue Enqueuer, spec string, withReviews bool) *Scheduler {
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		titles:      titles,
		queue:       queue,
		spec:        spec,
		withReviews: withReviews,
		cron:        cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
	}
}

// Start registers the job and begins the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RescrapeAll(context.Background()); err != nil {
			log.Printf("[scheduler] rescrape failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	log.Printf("[scheduler] rescrape scheduled (%s)", s.spec)
	return nil
}

// Stop waits for a running rescrape to finish enqueueing.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[scheduler] scheduler stopped")
}

// RescrapeAll enqueues one title scrape per stored (title, language) and
// returns how many were queued. Individual enqueue failures are logged.
func (s *Scheduler) RescrapeAll(ctx context.Context) (int, error) {
	titles, err := s.titles.ListTitles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list titles: %w", err)
	}

	queued := 0
	for _, t := range titles {
		if _, err := s.queue.EnqueueScrape(models.ScrapeKindTitle, t.ExternalID, t.Language, true); err != nil {
			log.Printf("[scheduler] error enqueueing %s (%s): %v", t.ExternalID, t.Language, err)
			continue
		}
		queued++
		if s.withReviews {
			if _, err := s.queue.EnqueueScrape(models.ScrapeKindReviews, t.ExternalID, t.Language, true); err != nil {
				log.Printf("[scheduler] error enqueueing reviews of %s: %v", t.ExternalID, err)
			}
		}
	}
	log.Printf("[scheduler] queued %d/%d title rescrapes", queued, len(titles))
	return queued, nil
}
