package handlers

import (
	"context"
	"io"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/liamwears/reeldeck/internal/apperror"
	"github.com/liamwears/reeldeck/internal/models"
	"github.com/liamwears/reeldeck/internal/services"
)

// UserStateHandler exposes the local profile, favorites, ratings and
// search history. Screens are resynced after every write to favorites or
// ratings so their overlays match the store.
type UserStateHandler struct {
	userState *services.UserStateService
	screens   []*services.ListingController
	validate  *validator.Validate
	logger    *log.Logger
}

// NewUserStateHandler creates a new user state handler
func NewUserStateHandler(userState *services.UserStateService, screens []*services.ListingController, validate *validator.Validate, logger *log.Logger) *UserStateHandler {
	return &UserStateHandler{
		userState: userState,
		screens:   screens,
		validate:  validate,
		logger:    logger,
	}
}

// syncScreens is best effort; a screen that cannot sync keeps its overlay
// until its next load.
func (h *UserStateHandler) syncScreens(ctx context.Context) {
	for _, c := range h.screens {
		_ = c.SyncOverlay(ctx)
	}
}

// GetProfile handles GET /api/profile, creating the default profile on first use
func (h *UserStateHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.userState.EnsureProfile(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, profile)
}

// UpdateProfile handles PATCH /api/profile
func (h *UserStateHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var input models.ProfileUpdate
	if err := decodeJSON(w, r, h.validate, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	profile, err := h.userState.UpdateProfile(r.Context(), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, profile)
}

// GetFavorites handles GET /api/favorites
func (h *UserStateHandler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.userState.GetFavorites(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"favorites": favorites})
}

// AddFavorite handles PUT /api/favorites/{id}
func (h *UserStateHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	movieID, err := movieIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.userState.AddFavorite(r.Context(), movieID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.syncScreens(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFavorite handles DELETE /api/favorites/{id}
func (h *UserStateHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	movieID, err := movieIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.userState.RemoveFavorite(r.Context(), movieID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.syncScreens(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ClearFavorites handles DELETE /api/favorites
func (h *UserStateHandler) ClearFavorites(w http.ResponseWriter, r *http.Request) {
	if err := h.userState.ClearFavorites(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.syncScreens(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// GetRatings handles GET /api/ratings
func (h *UserStateHandler) GetRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := h.userState.GetRatings(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"ratings": ratings})
}

// SetRating handles PUT /api/ratings/{id}
func (h *UserStateHandler) SetRating(w http.ResponseWriter, r *http.Request) {
	movieID, err := movieIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var input models.RatingInput
	if err := decodeJSON(w, r, h.validate, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.userState.SetRating(r.Context(), movieID, input.Rating); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.syncScreens(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory handles GET /api/history
func (h *UserStateHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.userState.GetSearchHistory(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"searchHistory": history})
}

// RecordSearch handles POST /api/history
func (h *UserStateHandler) RecordSearch(w http.ResponseWriter, r *http.Request) {
	var input models.SearchInput
	if err := decodeJSON(w, r, h.validate, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.userState.RecordSearch(r.Context(), input.Query); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearHistory handles DELETE /api/history
func (h *UserStateHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.userState.ClearSearchHistory(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handles GET /api/export
func (h *UserStateHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.userState.ExportAll(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="reeldeck-export.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Import handles POST /api/import
func (h *UserStateHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("body", "import payload is too large or unreadable"))
		return
	}
	if err := h.userState.ImportAll(r.Context(), data); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.syncScreens(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ClearAll handles DELETE /api/data
func (h *UserStateHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.userState.ClearAll(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.syncScreens(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Storage handles GET /api/storage
func (h *UserStateHandler) Storage(w http.ResponseWriter, r *http.Request) {
	stats, err := h.userState.StorageStats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}

// Routes registers the user state routes on mux, wrapping each with wrap
func (h *UserStateHandler) Routes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /api/profile", h.GetProfile},
		{"PATCH /api/profile", h.UpdateProfile},
		{"GET /api/favorites", h.GetFavorites},
		{"DELETE /api/favorites", h.ClearFavorites},
		{"PUT /api/favorites/{id}", h.AddFavorite},
		{"DELETE /api/favorites/{id}", h.RemoveFavorite},
		{"GET /api/ratings", h.GetRatings},
		{"PUT /api/ratings/{id}", h.SetRating},
		{"GET /api/history", h.GetHistory},
		{"POST /api/history", h.RecordSearch},
		{"DELETE /api/history", h.ClearHistory},
		{"GET /api/export", h.Export},
		{"POST /api/import", h.Import},
		{"DELETE /api/data", h.ClearAll},
		{"GET /api/storage", h.Storage},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, wrap(rt.handler))
	}
}
