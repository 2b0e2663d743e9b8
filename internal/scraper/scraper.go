// Package scraper assembles the series → season → episode graph from the
// upstream API and archived pages, and persists it.
package scraper

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/JustinTDCT/EpisodeVault/internal/apperr"
	"github.com/JustinTDCT/EpisodeVault/internal/archive"
	"github.com/JustinTDCT/EpisodeVault/internal/config"
	"github.com/JustinTDCT/EpisodeVault/internal/lock"
	"github.com/JustinTDCT/EpisodeVault/internal/metadata"
	"github.com/JustinTDCT/EpisodeVault/internal/metrics"
	"github.com/JustinTDCT/EpisodeVault/internal/models"
	"github.com/JustinTDCT/EpisodeVault/internal/repository"
)

// Upstream is the slice of the catalog API the assembler needs.
type Upstream interface {
	Authenticate(ctx context.Context) error
	Search(ctx context.Context, query, language string, limit int) ([]metadata.SeriesDTO, error)
	Series(ctx context.Context, id, language string) (*metadata.SeriesDTO, error)
	Rating(ctx context.Context, id string) (float64, error)
	Seasons(ctx context.Context, seriesID, language string) ([]metadata.SeasonDTO, error)
	Episodes(ctx context.Context, seasonID, language string) ([]metadata.EpisodeDTO, error)
}

// Snapshots resolves archived copies of public pages.
type Snapshots interface {
	FindClosestSnapshot(ctx context.Context, canonicalURL string, cutoff time.Time) (archive.SnapshotRef, error)
	FetchSnapshot(ctx context.Context, ref archive.SnapshotRef) (string, error)
	ImageURL(ref archive.SnapshotRef, src string) string
}

type Options struct {
	DefaultLanguage    string
	SiteBaseURL        string
	EpisodeConcurrency int
	ReviewsCutoff      time.Time
	CommentsCutoff     time.Time
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DefaultLanguage:    cfg.UpstreamLanguage,
		SiteBaseURL:        cfg.SiteBaseURL,
		EpisodeConcurrency: cfg.EpisodeConcurrency,
		ReviewsCutoff:      cfg.ReviewsCutoff,
		CommentsCutoff:     cfg.CommentsCutoff,
	}
}

type Assembler struct {
	upstream  Upstream
	snapshots Snapshots
	locker    lock.Locker
	tv        *repository.TVRepository
	reviews   *repository.ReviewRepository
	runs      *repository.JobRepository
	opts      Options
}

// New builds an assembler. snapshots may be nil, which turns review and
// comment scrapes into skips.
func New(upstream Upstream, snapshots Snapshots, locker lock.Locker, db *sql.DB, opts Options) *Assembler {
	if opts.EpisodeConcurrency <= 0 {
		opts.EpisodeConcurrency = 4
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en-US"
	}
	return &Assembler{
		upstream:  upstream,
		snapshots: snapshots,
		locker:    locker,
		tv:        repository.NewTVRepository(db),
		reviews:   repository.NewReviewRepository(db),
		runs:      repository.NewJobRepository(db),
		opts:      opts,
	}
}

// ScrapeTitle fetches a series with all seasons and episodes and upserts
// the graph. A held lock yields a Skipped result. Seasons whose episode list
// could not be fetched are saved without episodes and reported as failures.
func (a *Assembler) ScrapeTitle(ctx context.Context, externalID, language string) (*Result, error) {
	language = a.language(language)
	res := newResult(models.ScrapeKindTitle, externalID, language)

	if proceed, err := a.begin(ctx, lockKey("", externalID, language), res); !proceed {
		return a.end(ctx, res, err)
	}

	if err := a.upstream.Authenticate(ctx); err != nil {
		return a.fail(ctx, res, err)
	}
	series, err := a.upstream.Series(ctx, externalID, language)
	if err != nil {
		return a.fail(ctx, res, err)
	}
	title := MapTitle(series, language)
	title.ExternalID = externalID

	if avg, err := a.upstream.Rating(ctx, externalID); err != nil {
		log.Printf("[scraper] rating for %s unavailable: %v", externalID, err)
		if existing, _ := a.tv.FindTitle(ctx, nil, externalID, language); existing != nil {
			title.Rating = existing.Rating
		}
	} else {
		title.Rating = &avg
	}

	seasonDTOs, err := a.upstream.Seasons(ctx, externalID, language)
	if err != nil {
		return a.fail(ctx, res, err)
	}

	type seasonFetch struct {
		episodes []metadata.EpisodeDTO
		err      error
	}
	fetched := make([]seasonFetch, len(seasonDTOs))
	workerPool := pool.New().WithMaxGoroutines(a.opts.EpisodeConcurrency)
	for i, s := range seasonDTOs {
		if s.ID == "" {
			continue
		}
		workerPool.Go(func() {
			eps, err := a.upstream.Episodes(ctx, s.ID, language)
			fetched[i] = seasonFetch{episodes: eps, err: err}
		})
	}
	workerPool.Wait()
	if err := ctx.Err(); err != nil {
		return a.fail(ctx, res, err)
	}

	for i, s := range seasonDTOs {
		if s.ID == "" {
			log.Printf("[scraper] %s: skipping season without id at position %d", externalID, i)
			continue
		}
		season := MapSeason(s, language)
		if f := fetched[i]; f.err != nil {
			log.Printf("[scraper] %s: episodes of season %s failed: %v", externalID, s.ID, f.err)
			res.Failures = append(res.Failures, Failure{Item: "season " + s.ID, Err: f.err})
		} else {
			for _, e := range f.episodes {
				if e.ID == "" {
					continue
				}
				season.Episodes = append(season.Episodes, MapEpisode(e, language))
			}
		}
		title.Seasons = append(title.Seasons, season)
	}

	stats, err := a.tv.SaveGraph(ctx, title)
	if err != nil {
		return a.fail(ctx, res, apperr.E(apperr.KindInternal, "save graph "+externalID, err))
	}
	res.applyStats(stats)
	res.Status = models.ScrapeComplete
	if len(res.Failures) > 0 {
		res.Status = models.ScrapePartial
	}
	return a.end(ctx, res, nil)
}

// ScrapeReviews replaces a title's reviews with those of its newest archived
// page before the reviews cutoff.
func (a *Assembler) ScrapeReviews(ctx context.Context, externalID, language string) (*Result, error) {
	language = a.language(language)
	res := newResult(models.ScrapeKindReviews, externalID, language)
	if a.snapshots == nil {
		res.Status = models.ScrapeSkipped
		log.Printf("[scraper] reviews for %s skipped: archive disabled", externalID)
		return a.end(ctx, res, nil)
	}
	if proceed, err := a.begin(ctx, lockKey("reviews", externalID, language), res); !proceed {
		return a.end(ctx, res, err)
	}

	title, err := a.tv.FindTitle(ctx, nil, externalID, language)
	if err != nil {
		return a.fail(ctx, res, apperr.E(apperr.KindInternal, "find title "+externalID, err))
	}
	if title == nil {
		return a.fail(ctx, res, apperr.Errorf(apperr.KindNotFound, "reviews "+externalID, "title not scraped yet"))
	}

	page := SeriesURL(a.opts.SiteBaseURL, language, externalID, title.Slug)
	ref, html, err := a.snapshot(ctx, page, a.opts.ReviewsCutoff)
	if err != nil {
		return a.fail(ctx, res, err)
	}
	reviews, err := archive.ParseReviews(html)
	if err != nil {
		return a.fail(ctx, res, apperr.E(apperr.KindInvalidResponse, "parse reviews "+externalID, err))
	}
	if len(reviews) == 0 {
		log.Printf("[scraper] snapshot %s of %s has no reviews; keeping stored ones", ref.Timestamp, page)
		res.Status = models.ScrapeComplete
		return a.end(ctx, res, nil)
	}
	for _, rv := range reviews {
		rv.AuthorAvatarURI = a.snapshots.ImageURL(ref, rv.AuthorAvatarURI)
	}
	if err := a.reviews.ReplaceReviews(ctx, title.ID, language, reviews); err != nil {
		return a.fail(ctx, res, apperr.E(apperr.KindInternal, "save reviews "+externalID, err))
	}
	res.ItemsStored = len(reviews)
	res.Status = models.ScrapeComplete
	return a.end(ctx, res, nil)
}

// ScrapeComments replaces an episode's comments with those of its newest
// archived watch page before the comments cutoff.
func (a *Assembler) ScrapeComments(ctx context.Context, episodeID, language string) (*Result, error) {
	language = a.language(language)
	res := newResult(models.ScrapeKindComments, episodeID, language)
	if a.snapshots == nil {
		res.Status = models.ScrapeSkipped
		log.Printf("[scraper] comments for %s skipped: archive disabled", episodeID)
		return a.end(ctx, res, nil)
	}
	if proceed, err := a.begin(ctx, lockKey("comments", episodeID, language), res); !proceed {
		return a.end(ctx, res, err)
	}

	ep, err := a.tv.FindEpisode(ctx, nil, episodeID, language)
	if err != nil {
		return a.fail(ctx, res, apperr.E(apperr.KindInternal, "find episode "+episodeID, err))
	}
	if ep == nil {
		return a.fail(ctx, res, apperr.Errorf(apperr.KindNotFound, "comments "+episodeID, "episode not scraped yet"))
	}

	page := EpisodeURL(a.opts.SiteBaseURL, language, episodeID, ep.Slug)
	ref, html, err := a.snapshot(ctx, page, a.opts.CommentsCutoff)
	if err != nil {
		return a.fail(ctx, res, err)
	}
	comments, err := archive.ParseComments(html)
	if err != nil {
		return a.fail(ctx, res, apperr.E(apperr.KindInvalidResponse, "parse comments "+episodeID, err))
	}
	if len(comments) == 0 {
		log.Printf("[scraper] snapshot %s of %s has no comments; keeping stored ones", ref.Timestamp, page)
		res.Status = models.ScrapeComplete
		return a.end(ctx, res, nil)
	}
	for _, c := range comments {
		c.AuthorAvatarURI = a.snapshots.ImageURL(ref, c.AuthorAvatarURI)
	}
	if err := a.reviews.ReplaceComments(ctx, ep.ID, language, comments); err != nil {
		return a.fail(ctx, res, apperr.E(apperr.KindInternal, "save comments "+episodeID, err))
	}
	res.ItemsStored = len(comments)
	res.Status = models.ScrapeComplete
	return a.end(ctx, res, nil)
}

// Search returns upstream series matching query.
func (a *Assembler) Search(ctx context.Context, query, language string) ([]*models.MetadataMatch, error) {
	hits, err := a.upstream.Search(ctx, query, a.language(language), 10)
	if err != nil {
		return nil, err
	}
	matches := make([]*models.MetadataMatch, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, MapSearchHit(h))
	}
	return matches, nil
}

func (a *Assembler) snapshot(ctx context.Context, page string, cutoff time.Time) (archive.SnapshotRef, string, error) {
	ref, err := a.snapshots.FindClosestSnapshot(ctx, page, cutoff)
	if err != nil {
		return ref, "", err
	}
	html, err := a.snapshots.FetchSnapshot(ctx, ref)
	return ref, html, err
}

func (a *Assembler) language(l string) string {
	if l == "" {
		return a.opts.DefaultLanguage
	}
	return l
}

// lockKey scopes a scrape lock to one entity in one language. Reviews and
// comments carry a prefix so they never contend with the title scrape.
func lockKey(prefix, id, language string) string {
	key := id + ":" + language
	if prefix != "" {
		key = prefix + ":" + key
	}
	return key
}

// begin takes the scrape lock. proceed is false when the run should stop
// here, either skipped (err nil) or failed.
func (a *Assembler) begin(ctx context.Context, key string, res *Result) (proceed bool, err error) {
	held, err := a.locker.TryAcquire(ctx, key)
	if err != nil {
		res.Status = models.ScrapeFailed
		return false, apperr.E(apperr.KindInternal, "acquire lock "+key, err)
	}
	if !held {
		res.Status = models.ScrapeSkipped
		log.Printf("[scraper] %s %s (%s) already in progress, skipping", res.Kind, res.ExternalID, res.Language)
		return false, nil
	}
	return true, nil
}

func (a *Assembler) fail(ctx context.Context, res *Result, err error) (*Result, error) {
	res.Status = models.ScrapeFailed
	return a.end(ctx, res, err)
}

// end records the run. A failed run returns nil and its error.
func (a *Assembler) end(ctx context.Context, res *Result, cause error) (*Result, error) {
	res.Finished = time.Now().UTC()
	metrics.Scrapes.WithLabelValues(string(res.Kind), string(res.Status)).Inc()
	if res.Status != models.ScrapeSkipped {
		metrics.ScrapeDuration.WithLabelValues(string(res.Kind)).Observe(res.Finished.Sub(res.Started).Seconds())
	}

	if err := a.runs.Create(context.WithoutCancel(ctx), res.record(cause)); err != nil {
		log.Printf("[scraper] recording %s run for %s failed: %v", res.Kind, res.ExternalID, err)
	}
	if cause != nil {
		log.Printf("[scraper] %s %s (%s) failed: %v", res.Kind, res.ExternalID, res.Language, cause)
		return nil, cause
	}
	log.Printf("[scraper] %s %s (%s): %s", res.Kind, res.ExternalID, res.Language, res.Summary())
	return res, nil
}
