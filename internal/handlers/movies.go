package handlers

import (
	"log"
	"net/http"

	"github.com/liamwears/reeldeck/internal/services"
)

// MovieHandler serves movie details with the user's overlay
type MovieHandler struct {
	catalog   services.Catalog
	userState *services.UserStateService
	logger    *log.Logger
}

// NewMovieHandler creates a new movie handler
func NewMovieHandler(catalog services.Catalog, userState *services.UserStateService, logger *log.Logger) *MovieHandler {
	return &MovieHandler{
		catalog:   catalog,
		userState: userState,
		logger:    logger,
	}
}

// Get handles GET /api/movies/{id}
func (h *MovieHandler) Get(w http.ResponseWriter, r *http.Request) {
	movieID, err := movieIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	movie, err := h.catalog.GetMovieDetail(r.Context(), movieID)
	if err != nil {
		h.logger.Printf("Error fetching movie detail %d: %v", movieID, err)
		writeError(w, h.logger, err)
		return
	}

	// the overlay is best effort, the store returns empty values on failure
	favorites, _ := h.userState.GetFavorites(r.Context())
	ratings, _ := h.userState.GetRatings(r.Context())

	isFavorite := make(map[int]bool, len(favorites))
	for _, id := range favorites {
		isFavorite[id] = true
	}

	writeJSON(w, h.logger, http.StatusOK, services.ApplyDetailOverlay(h.catalog, *movie, isFavorite, ratings))
}

// Routes registers the movie routes on mux, wrapping each with wrap
func (h *MovieHandler) Routes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET /api/movies/{id}", wrap(http.HandlerFunc(h.Get)))
}
