package scraper

import (
	"fmt"
	"strings"
	"time"

	"github.com/JustinTDCT/EpisodeVault/internal/models"
	"github.com/JustinTDCT/EpisodeVault/internal/repository"
)

// Failure is one child fetch that did not make it into the graph.
type Failure struct {
	Item string // e.g. "season GYVNXMVP6"
	Err  error
}

func (f Failure) String() string { return fmt.Sprintf("%s: %v", f.Item, f.Err) }

// Result summarizes one assembler run.
type Result struct {
	Kind       models.ScrapeKind
	ExternalID string
	Language   string
	Status     models.ScrapeStatus

	TitleCreated    bool
	SeasonsCreated  int
	SeasonsUpdated  int
	EpisodesCreated int
	EpisodesUpdated int
	ItemsStored     int // reviews or comments

	Failures []Failure
	Started  time.Time
	Finished time.Time
}

func newResult(kind models.ScrapeKind, externalID, language string) *Result {
	return &Result{Kind: kind, ExternalID: externalID, Language: language, Started: time.Now().UTC()}
}

func (r *Result) applyStats(s *repository.SaveStats) {
	r.TitleCreated = s.TitleCreated
	r.SeasonsCreated = s.SeasonsCreated
	r.SeasonsUpdated = s.SeasonsUpdated
	r.EpisodesCreated = s.EpisodesCreated
	r.EpisodesUpdated = s.EpisodesUpdated
}

func (r *Result) Summary() string {
	switch r.Kind {
	case models.ScrapeKindTitle:
		return fmt.Sprintf("%s seasons +%d/~%d episodes +%d/~%d failures %d",
			r.Status, r.SeasonsCreated, r.SeasonsUpdated, r.EpisodesCreated, r.EpisodesUpdated, len(r.Failures))
	default:
		return fmt.Sprintf("%s stored %d", r.Status, r.ItemsStored)
	}
}

// record converts the result into its audit row. cause is the error that
// ended a failed run.
func (r *Result) record(cause error) *models.ScrapeRun {
	run := &models.ScrapeRun{
		Kind:            r.Kind,
		ExternalID:      r.ExternalID,
		Language:        r.Language,
		Status:          r.Status,
		SeasonsCreated:  r.SeasonsCreated,
		SeasonsUpdated:  r.SeasonsUpdated,
		EpisodesCreated: r.EpisodesCreated,
		EpisodesUpdated: r.EpisodesUpdated,
		ItemsStored:     r.ItemsStored,
		StartedAt:       r.Started,
	}
	if r.Kind == models.ScrapeKindTitle && r.Status != models.ScrapeSkipped && r.Status != models.ScrapeFailed {
		if r.TitleCreated {
			run.TitlesCreated = 1
		} else {
			run.TitlesUpdated = 1
		}
	}
	fin := r.Finished
	run.FinishedAt = &fin

	var msgs []string
	if cause != nil {
		msgs = append(msgs, cause.Error())
	}
	for _, f := range r.Failures {
		msgs = append(msgs, f.String())
	}
	if len(msgs) > 0 {
		msg := strings.Join(msgs, "\n")
		run.ErrorMessage = &msg
	}
	return run
}
