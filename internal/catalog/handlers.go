package catalog

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JustinTDCT/EpisodeVault/internal/httputil"
	"github.com/JustinTDCT/EpisodeVault/internal/models"
)

// Enqueuer queues scrapes; nil disables the POST routes.
type Enqueuer interface {
	EnqueueScrape(kind models.ScrapeKind, externalID, language string, scheduled bool) (string, error)
}

type Handler struct {
	svc      *Service
	queue    Enqueuer
	language string
}

func NewHandler(svc *Service, queue Enqueuer, defaultLanguage string) *Handler {
	return &Handler{svc: svc, queue: queue, language: defaultLanguage}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/titles", h.listTitles)
	r.Get("/titles/{id}", h.getTitle)
	r.Get("/titles/{id}/images", h.listImages)
	r.Get("/titles/{id}/reviews", h.listReviews)
	r.Get("/episodes/{id}/comments", h.listComments)
	r.Get("/runs", h.listRuns)
	r.Get("/runs/{id}", h.getRun)
	r.Post("/titles/{id}/scrape", h.enqueue(models.ScrapeKindTitle))
	r.Post("/titles/{id}/reviews/scrape", h.enqueue(models.ScrapeKindReviews))
	r.Post("/episodes/{id}/comments/scrape", h.enqueue(models.ScrapeKindComments))
	return r
}

func (h *Handler) lang(r *http.Request) string {
	if l := r.URL.Query().Get("lang"); l != "" {
		return l
	}
	return h.language
}

func (h *Handler) listTitles(w http.ResponseWriter, r *http.Request) {
	titles, err := h.svc.Titles(r.Context())
	if err != nil {
		log.Printf("[catalog] list titles: %v", err)
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list titles")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, titles)
}

func (h *Handler) getTitle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.svc.Title(r.Context(), id, h.lang(r))
	if err != nil {
		log.Printf("[catalog] get title %s: %v", id, err)
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load title")
		return
	}
	if t == nil {
		httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "title not scraped")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) listImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.svc.Images(r.Context(), chi.URLParam(r, "id"), h.lang(r))
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list images")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, images)
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.svc.Reviews(r.Context(), chi.URLParam(r, "id"), h.lang(r))
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list reviews")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reviews)
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.svc.Comments(r.Context(), chi.URLParam(r, "id"), h.lang(r))
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list comments")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, comments)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.RecentRuns(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to list runs")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, runs)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_ID", "run id must be a UUID")
		return
	}
	run, err := h.svc.Run(r.Context(), id)
	if err != nil {
		log.Printf("[catalog] get run %s: %v", id, err)
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load run")
		return
	}
	if run == nil {
		httputil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "run not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

func (h *Handler) enqueue(kind models.ScrapeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.queue == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "NO_QUEUE", "job queue not configured")
			return
		}
		id := chi.URLParam(r, "id")
		taskID, err := h.queue.EnqueueScrape(kind, id, h.lang(r), false)
		if err != nil {
			log.Printf("[catalog] enqueue %s %s: %v", kind, id, err)
			httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to enqueue scrape")
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
	}
}
