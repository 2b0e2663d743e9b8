// Package settings exposes the system_settings overrides over HTTP. Changes
// apply on the next process start, when config.MergeFromDB reads them.
package settings

import (
	"log"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/JustinTDCT/EpisodeVault/internal/config"
	"github.com/JustinTDCT/EpisodeVault/internal/httputil"
	"github.com/JustinTDCT/EpisodeVault/internal/repository"
)

type Handler struct {
	repo *repository.SettingsRepository
}

func NewHandler(repo *repository.SettingsRepository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Put("/", h.update)
	r.Delete("/{key}", h.delete)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.GetAll(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load settings")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, all)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	keys := make([]string, 0, len(req))
	for key := range req {
		if !config.IsOverridable(key) {
			httputil.WriteError(w, http.StatusBadRequest, "UNKNOWN_SETTING", "unknown setting "+key)
			return
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := h.repo.Set(r.Context(), key, req[key]); err != nil {
			log.Printf("[settings] set %s: %v", key, err)
			httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to save setting")
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"updated": keys, "restart_required": true})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete setting")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
