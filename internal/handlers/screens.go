package handlers

import (
	"context"
	"errors"
	"log"
	"maps"
	"net/http"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/liamwears/reeldeck/internal/apperror"
	"github.com/liamwears/reeldeck/internal/models"
	"github.com/liamwears/reeldeck/internal/services"
)

// ScreenHandler routes UI events to the listing controller of each screen.
// Catalog failures are reported through the alert in the returned state, so
// load operations answer 200 with the state whenever the request was valid.
type ScreenHandler struct {
	controllers map[string]*services.ListingController
	validate    *validator.Validate
	logger      *log.Logger
}

// NewScreenHandler creates a handler for the given controllers, keyed by
// their screen name.
func NewScreenHandler(controllers []*services.ListingController, validate *validator.Validate, logger *log.Logger) *ScreenHandler {
	byScreen := make(map[string]*services.ListingController, len(controllers))
	for _, c := range controllers {
		byScreen[c.Screen()] = c
	}
	return &ScreenHandler{
		controllers: byScreen,
		validate:    validate,
		logger:      logger,
	}
}

func (h *ScreenHandler) controller(w http.ResponseWriter, r *http.Request) (*services.ListingController, bool) {
	screen := r.PathValue("screen")
	c, ok := h.controllers[screen]
	if !ok {
		writeError(w, h.logger, apperror.NotFound("screen", screen))
		return nil, false
	}
	return c, true
}

// respond writes the screen state unless err is one the caller must fix
func (h *ScreenHandler) respond(w http.ResponseWriter, c *services.ListingController, err error) {
	if err != nil && !errors.Is(err, apperror.ErrRemote) {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, c.State())
}

// syncOthers refreshes the overlays of every screen but c after c changed
// the store.
func (h *ScreenHandler) syncOthers(ctx context.Context, c *services.ListingController) {
	for _, other := range h.controllers {
		if other != c {
			_ = other.SyncOverlay(ctx)
		}
	}
}

// State handles GET /api/screens/{screen}
func (h *ScreenHandler) State(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, c.State())
}

// Load handles POST /api/screens/{screen}/load
func (h *ScreenHandler) Load(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	h.respond(w, c, c.LoadInitial(r.Context()))
}

// More handles POST /api/screens/{screen}/more
func (h *ScreenHandler) More(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	h.respond(w, c, c.LoadMore(r.Context()))
}

// Refresh handles POST /api/screens/{screen}/refresh
func (h *ScreenHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	h.respond(w, c, c.Refresh(r.Context()))
}

// Category handles POST /api/screens/{screen}/category
func (h *ScreenHandler) Category(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var input models.CategoryInput
	if err := decodeJSON(w, r, h.validate, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, c, c.ChangeCategory(r.Context(), input.Category))
}

// Search handles POST /api/screens/{screen}/search
func (h *ScreenHandler) Search(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var input models.SearchInput
	if err := decodeJSON(w, r, h.validate, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respond(w, c, c.Search(r.Context(), input.Query))
}

// ToggleFavorite handles POST /api/screens/{screen}/favorites/{id}
func (h *ScreenHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	movieID, err := movieIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := c.ToggleFavorite(r.Context(), movieID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.syncOthers(r.Context(), c)
	writeJSON(w, h.logger, http.StatusOK, c.State())
}

// Rate handles PUT /api/screens/{screen}/ratings/{id}
func (h *ScreenHandler) Rate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
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
	if err := c.Rate(r.Context(), movieID, input.Rating); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.syncOthers(r.Context(), c)
	writeJSON(w, h.logger, http.StatusOK, c.State())
}

// DismissAlert handles DELETE /api/screens/{screen}/alert
func (h *ScreenHandler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	c.DismissAlert()
	writeJSON(w, h.logger, http.StatusOK, c.State())
}

// Routes registers the screen routes on mux, wrapping each with wrap
func (h *ScreenHandler) Routes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /api/screens/{screen}", h.State},
		{"POST /api/screens/{screen}/load", h.Load},
		{"POST /api/screens/{screen}/more", h.More},
		{"POST /api/screens/{screen}/refresh", h.Refresh},
		{"POST /api/screens/{screen}/category", h.Category},
		{"POST /api/screens/{screen}/search", h.Search},
		{"POST /api/screens/{screen}/favorites/{id}", h.ToggleFavorite},
		{"PUT /api/screens/{screen}/ratings/{id}", h.Rate},
		{"DELETE /api/screens/{screen}/alert", h.DismissAlert},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, wrap(rt.handler))
	}
}

// Screens lists the registered screen names
func (h *ScreenHandler) Screens() []string {
	return slices.Sorted(maps.Keys(h.controllers))
}
