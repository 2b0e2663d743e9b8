package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/JustinTDCT/EpisodeVault/internal/archive"
	"github.com/JustinTDCT/EpisodeVault/internal/catalog"
	"github.com/JustinTDCT/EpisodeVault/internal/config"
	"github.com/JustinTDCT/EpisodeVault/internal/db"
	"github.com/JustinTDCT/EpisodeVault/internal/flaresolverr"
	"github.com/JustinTDCT/EpisodeVault/internal/httputil"
	"github.com/JustinTDCT/EpisodeVault/internal/jobs"
	"github.com/JustinTDCT/EpisodeVault/internal/lock"
	"github.com/JustinTDCT/EpisodeVault/internal/logging"
	"github.com/JustinTDCT/EpisodeVault/internal/metadata"
	"github.com/JustinTDCT/EpisodeVault/internal/metrics"
	"github.com/JustinTDCT/EpisodeVault/internal/models"
	"github.com/JustinTDCT/EpisodeVault/internal/repository"
	"github.com/JustinTDCT/EpisodeVault/internal/resilience"
	"github.com/JustinTDCT/EpisodeVault/internal/scheduler"
	"github.com/JustinTDCT/EpisodeVault/internal/scraper"
	"github.com/JustinTDCT/EpisodeVault/internal/settings"
	"github.com/JustinTDCT/EpisodeVault/internal/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: episodevault <command> [flags]

Commands:
  worker                 run the job worker, rescrape scheduler and ops server
  scrape <id> [lang]     scrape one title (-kind reviews|comments for archived pages)
  search <query>         search the upstream catalog
  migrate                apply database migrations and exit
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	closer := logging.Setup(logging.Options{File: cfg.LogFile})
	defer closer.Close()

	ver := version.Load()
	log.Printf("EpisodeVault %s starting %s", ver.Version, os.Args[1])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "migrate":
		var database *db.DB
		if database, err = openDB(ctx, cfg); err == nil {
			database.Close()
		}
	case "scrape":
		err = runScrape(ctx, cfg, os.Args[2:])
	case "search":
		err = runSearch(ctx, cfg, os.Args[2:])
	case "worker":
		err = runWorker(ctx, cfg, ver)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Printf("%s failed: %v", os.Args[1], err)
		closer.Close()
		os.Exit(1)
	}
}

// openDB connects, migrates and lets system_settings override the env.
func openDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	database, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	cfg.MergeFromDB(ctx, database.DB)
	return database, nil
}

func newLocker(cfg *config.Config) (lock.Locker, func()) {
	opts := lock.Options{TTL: cfg.ScrapeLockTTL, ExtendOnContention: true}
	if cfg.ScrapeLockBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Printf("scrape lock: redis at %s (ttl %s)", cfg.RedisAddr, opts.TTL)
		return lock.NewRedisLocker(rdb, opts), func() { rdb.Close() }
	}
	log.Printf("scrape lock: in-process (ttl %s)", opts.TTL)
	return lock.NewMemoryLocker(opts), func() {}
}

func newUpstream(cfg *config.Config) *metadata.Client {
	client := httputil.NewClient(httputil.ClientOptions{
		Timeout:    cfg.UpstreamTimeout,
		RatePerSec: cfg.UpstreamRatePerSec,
		Policy:     resilience.Default,
	})
	return metadata.NewClient(cfg, client)
}

// newSnapshots returns nil when the archive is disabled.
func newSnapshots(cfg *config.Config) scraper.Snapshots {
	if !cfg.ArchiveEnabled {
		log.Println("archive: disabled, review and comment scrapes will be skipped")
		return nil
	}
	var via http.RoundTripper
	if cfg.FlareSolverrEnabled() {
		via = flaresolverr.New(cfg.FlareSolverrURL, cfg.FlareSolverrTimeout, &flaresolverr.Proxy{
			URL:      cfg.FlareSolverrProxyURL,
			Username: cfg.FlareSolverrProxyUser,
			Password: cfg.FlareSolverrProxyPass,
		})
		log.Printf("archive: fetching through FlareSolverr at %s", cfg.FlareSolverrURL)
	}
	client := httputil.NewClient(httputil.ClientOptions{
		Timeout:    cfg.ArchiveTimeout,
		RatePerSec: 1,
		Policy:     resilience.Archive,
		Via:        via,
	})
	return archive.NewResolver(cfg.ArchiveBaseURL, cfg.ArchiveSearchLimit, client)
}

func newAssembler(cfg *config.Config, database *db.DB) (*scraper.Assembler, func()) {
	locker, closeLocker := newLocker(cfg)
	asm := scraper.New(newUpstream(cfg), newSnapshots(cfg), locker, database.DB, scraper.OptionsFromConfig(cfg))
	return asm, closeLocker
}

func runScrape(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	kind := fs.String("kind", string(models.ScrapeKindTitle), "title, reviews or comments")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: episodevault scrape [-kind k] <id> [lang]")
	}
	id, lang := fs.Arg(0), fs.Arg(1)

	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	asm, closeLocker := newAssembler(cfg, database)
	defer closeLocker()

	var res *scraper.Result
	switch models.ScrapeKind(*kind) {
	case models.ScrapeKindTitle:
		res, err = asm.ScrapeTitle(ctx, id, lang)
	case models.ScrapeKindReviews:
		res, err = asm.ScrapeReviews(ctx, id, lang)
	case models.ScrapeKindComments:
		res, err = asm.ScrapeComments(ctx, id, lang)
	default:
		return fmt.Errorf("unknown kind %q", *kind)
	}
	if err != nil {
		return err
	}
	fmt.Println(res.Summary())
	for _, f := range res.Failures {
		fmt.Println("  " + f.String())
	}
	return nil
}

func runSearch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	lang := fs.String("lang", "", "catalog language (default UPSTREAM_LANGUAGE)")
	limit := fs.Int("limit", 10, "max results")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: episodevault search [-lang l] <query>")
	}
	language := *lang
	if language == "" {
		language = cfg.UpstreamLanguage
	}

	hits, err := newUpstream(cfg).Search(ctx, fs.Arg(0), language, *limit)
	if err != nil {
		return err
	}
	for _, h := range hits {
		m := scraper.MapSearchHit(h)
		fmt.Printf("%s\t%s\t%s\n", m.ExternalID, m.Title, m.Slug)
	}
	return nil
}

func runWorker(ctx context.Context, cfg *config.Config, ver version.Info) error {
	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	asm, closeLocker := newAssembler(cfg, database)
	defer closeLocker()

	queue := jobs.NewQueue(cfg.RedisAddr, 2)
	jobs.RegisterHandlers(queue, asm)
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("start job queue: %w", err)
	}
	defer queue.Stop()

	sched := scheduler.New(repository.NewTVRepository(database.DB), queue, cfg.RescrapeSchedule, cfg.ArchiveEnabled)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.PingContext(r.Context()); err != nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, ver)
	})
	r.Handle("/metrics", metrics.Handler())
	r.Mount("/api", catalog.NewHandler(catalog.New(database.DB), queue, cfg.UpstreamLanguage).Router())
	r.Mount("/settings", settings.NewHandler(repository.NewSettingsRepository(database.DB)).Router())

	httpServer := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.MetricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("ops server: %w", err)
	}

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
