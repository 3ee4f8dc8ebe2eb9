package services

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/liamwears/reeldeck/internal/apperror"
	"github.com/liamwears/reeldeck/internal/models"
)

// Mode is the data source of a listing
type Mode string

const (
	ModeCategory  Mode = "category"
	ModeSearch    Mode = "search"
	ModeFavorites Mode = "favorites"
)

const (
	loadFailedMessage      = "No se pudieron cargar las películas. Por favor intenta de nuevo."
	favoritesFailedMessage = "No se pudieron cargar tus películas favoritas. Por favor intenta de nuevo."

	defaultFavoritesConcurrency = 8
)

// Alert is a dismissible user-facing error
type Alert struct {
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

// ListingState is a snapshot of a listing screen with overlays applied
type ListingState struct {
	Screen           string               `json:"screen"`
	Mode             Mode                 `json:"mode"`
	Category         models.Category      `json:"category,omitempty"`
	Query            string               `json:"query,omitempty"`
	CurrentPage      int                  `json:"current_page"`
	TotalPages       int                  `json:"total_pages"`
	Movies           []models.ListedMovie `json:"movies"`
	IsLoadingInitial bool                 `json:"is_loading_initial"`
	IsLoadingMore    bool                 `json:"is_loading_more"`
	IsRefreshing     bool                 `json:"is_refreshing"`
	Alert            *Alert               `json:"alert,omitempty"`
}

// ListingConfig configures one listing screen
type ListingConfig struct {
	Screen               string
	Category             models.Category
	Favorites            bool
	FavoritesConcurrency int
}

// ListingController drives the movie list of one screen: category or
// search listings paged from the catalog, or the favorites listing built from
// individual detail fetches. Every replacing load takes a new sequence number
// and a result whose sequence is no longer current is dropped.
type ListingController struct {
	screen        string
	favoritesOnly bool
	concurrency   int
	catalog       Catalog
	userState     *UserStateService
	logger        *log.Logger

	// toggleMu serializes ToggleFavorite so membership is read and flipped
	// as one step.
	toggleMu sync.Mutex

	mu             sync.Mutex
	seq            uint64
	mode           Mode
	category       models.Category
	query          string
	shown          listingSource
	currentPage    int
	totalPages     int
	movies         []models.MovieSummary
	favorites      map[int]bool
	ratings        map[int]int
	loadingInitial bool
	loadingMore    bool
	refreshing     bool
	alert          *Alert
}

// NewListingController creates a controller for one screen
func NewListingController(cfg ListingConfig, catalog Catalog, userState *UserStateService, logger *log.Logger) *ListingController {
	category := cfg.Category
	if !category.IsValid() {
		category = models.CategoryPopular
	}
	concurrency := cfg.FavoritesConcurrency
	if concurrency < 1 {
		concurrency = defaultFavoritesConcurrency
	}
	mode := ModeCategory
	if cfg.Favorites {
		mode = ModeFavorites
	}

	return &ListingController{
		screen:        cfg.Screen,
		favoritesOnly: cfg.Favorites,
		concurrency:   concurrency,
		catalog:       catalog,
		userState:     userState,
		logger:        logger,
		mode:          mode,
		category:      category,
		shown:         listingSource{mode: mode, category: category},
		movies:        []models.MovieSummary{},
		favorites:     map[int]bool{},
		ratings:       map[int]int{},
	}
}

// Screen returns the name of the screen this controller drives
func (c *ListingController) Screen() string {
	return c.screen
}

// listingSource identifies the listing the published movies came from
type listingSource struct {
	mode     Mode
	category models.Category
	query    string
}

// listingRequest captures what a load fetches at the time it is issued
type listingRequest struct {
	seq      uint64
	mode     Mode
	category models.Category
	query    string
	page     int
}

// beginReplaceLocked starts a replacing load. Flags of any load it
// supersedes are cleared here since superseded loads never publish.
func (c *ListingController) beginReplaceLocked(refresh bool) listingRequest {
	c.seq++
	c.loadingInitial = !refresh
	c.refreshing = refresh
	return listingRequest{
		seq:      c.seq,
		mode:     c.mode,
		category: c.category,
		query:    c.query,
		page:     1,
	}
}

// LoadInitial loads page 1 of the current listing and replaces the movies
func (c *ListingController) LoadInitial(ctx context.Context) error {
	if c.favoritesOnly {
		return c.loadFavorites(ctx, false)
	}
	c.mu.Lock()
	req := c.beginReplaceLocked(false)
	c.mu.Unlock()

	return c.runReplace(ctx, req)
}

// LoadInitialCategory selects category, leaves any search and loads page 1
func (c *ListingController) LoadInitialCategory(ctx context.Context, category models.Category) error {
	if err := c.checkCategory(category); err != nil {
		return err
	}
	c.mu.Lock()
	c.mode = ModeCategory
	c.query = ""
	c.category = category
	req := c.beginReplaceLocked(false)
	c.mu.Unlock()

	return c.runReplace(ctx, req)
}

// ChangeCategory switches to category. It is ignored when category is
// already selected or a search is active.
func (c *ListingController) ChangeCategory(ctx context.Context, category models.Category) error {
	if err := c.checkCategory(category); err != nil {
		return err
	}
	c.mu.Lock()
	if category == c.category || c.mode == ModeSearch {
		c.mu.Unlock()
		return nil
	}
	c.category = category
	req := c.beginReplaceLocked(false)
	c.mu.Unlock()

	return c.runReplace(ctx, req)
}

func (c *ListingController) checkCategory(category models.Category) error {
	if c.favoritesOnly {
		return apperror.ValidationFailed("category", "the favorites listing has no categories")
	}
	if !category.IsValid() {
		return apperror.ValidationFailed("category", fmt.Sprintf("unknown category %q", category))
	}
	return nil
}

// Search replaces the list with page 1 of the results for query. A blank
// query leaves search mode and reloads the selected category.
func (c *ListingController) Search(ctx context.Context, query string) error {
	if c.favoritesOnly {
		return apperror.ValidationFailed("query", "the favorites listing cannot be searched")
	}
	query = strings.TrimSpace(query)

	c.mu.Lock()
	if query == "" {
		c.mode = ModeCategory
		c.query = ""
	} else {
		c.mode = ModeSearch
		c.query = query
	}
	req := c.beginReplaceLocked(false)
	c.mu.Unlock()

	if query != "" {
		// best effort, the store logs failures
		_ = c.userState.RecordSearch(ctx, query)
	}
	return c.runReplace(ctx, req)
}

// Refresh reloads page 1 of the current listing together with the overlays
func (c *ListingController) Refresh(ctx context.Context) error {
	if c.favoritesOnly {
		return c.loadFavorites(ctx, true)
	}
	c.mu.Lock()
	req := c.beginReplaceLocked(true)
	c.mu.Unlock()

	return c.runReplace(ctx, req)
}

// LoadFavorites rebuilds the favorites listing
func (c *ListingController) LoadFavorites(ctx context.Context) error {
	if !c.favoritesOnly {
		return apperror.ValidationFailed("screen", fmt.Sprintf("screen %s is not a favorites listing", c.screen))
	}
	return c.loadFavorites(ctx, false)
}

// runReplace fetches the requested page and the overlays concurrently and
// publishes both at once.
func (c *ListingController) runReplace(ctx context.Context, req listingRequest) error {
	var (
		page       *models.MoviePage
		favorites  map[int]bool
		ratings    map[int]int
		overlayErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		page, err = c.fetchPage(gctx, req)
		return err
	})
	g.Go(func() error {
		favorites, ratings, overlayErr = c.loadOverlay(gctx)
		return nil
	})
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if req.seq != c.seq {
		c.logger.Printf("Discarding superseded load for screen %s", c.screen)
		return nil
	}
	c.loadingInitial = false
	c.refreshing = false

	if overlayErr != nil {
		c.logger.Printf("Error loading user data: %v", overlayErr)
	} else {
		c.favorites = favorites
		c.ratings = ratings
	}

	if err != nil {
		c.logger.Printf("Error fetching movies for screen %s: %v", c.screen, err)
		// the movies and page cursor still belong to the shown listing
		c.mode = c.shown.mode
		c.category = c.shown.category
		c.query = c.shown.query
		c.alert = &Alert{Message: loadFailedMessage, Retry: true}
		return err
	}

	c.shown = listingSource{mode: req.mode, category: req.category, query: req.query}
	c.movies = orEmptyMovies(page.Results)
	c.currentPage = 1
	c.totalPages = page.TotalPages
	c.alert = nil
	return nil
}

// LoadMore appends the next page. It does nothing on the last page, while
// any load is in flight, or outside category mode.
func (c *ListingController) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.mode != ModeCategory || c.loadingMore || c.loadingInitial || c.refreshing || c.currentPage >= c.totalPages {
		c.mu.Unlock()
		return nil
	}
	c.loadingMore = true
	req := listingRequest{
		seq:      c.seq,
		mode:     c.mode,
		category: c.category,
		page:     c.currentPage + 1,
	}
	c.mu.Unlock()

	page, err := c.fetchPage(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadingMore = false

	if req.seq != c.seq {
		c.logger.Printf("Discarding superseded page %d for screen %s", req.page, c.screen)
		return nil
	}
	if err != nil {
		c.logger.Printf("Error fetching page %d for screen %s: %v", req.page, c.screen, err)
		c.alert = &Alert{Message: loadFailedMessage, Retry: true}
		return err
	}

	c.movies = append(c.movies, page.Results...)
	c.currentPage = req.page
	c.totalPages = page.TotalPages
	return nil
}

func (c *ListingController) fetchPage(ctx context.Context, req listingRequest) (*models.MoviePage, error) {
	if req.mode == ModeSearch {
		return c.catalog.Search(ctx, req.query, req.page)
	}

	switch req.category {
	case models.CategoryPopular:
		return c.catalog.Popular(ctx, req.page)
	case models.CategoryTopRated:
		return c.catalog.TopRated(ctx, req.page)
	case models.CategoryNowPlaying:
		return c.catalog.NowPlaying(ctx, req.page)
	case models.CategoryTrendingDay:
		return c.catalog.Trending(ctx, "day", req.page)
	case models.CategoryTrendingWeek:
		return c.catalog.Trending(ctx, "week", req.page)
	default:
		return nil, apperror.ValidationFailed("category", fmt.Sprintf("unknown category %q", req.category))
	}
}

func (c *ListingController) loadOverlay(ctx context.Context) (map[int]bool, map[int]int, error) {
	ids, err := c.userState.GetFavorites(ctx)
	if err != nil {
		return nil, nil, err
	}
	ratings, err := c.userState.GetRatings(ctx)
	if err != nil {
		return nil, nil, err
	}
	return favoriteSet(ids), ratings, nil
}

// loadFavorites reads the favorite ids and fetches every detail in parallel.
// Failed fetches are logged and dropped; only a total failure alerts.
func (c *ListingController) loadFavorites(ctx context.Context, refresh bool) error {
	c.mu.Lock()
	req := c.beginReplaceLocked(refresh)
	c.mu.Unlock()

	ids, err := c.userState.GetFavorites(ctx)
	if err != nil {
		return c.publishFavoritesFailure(req, err)
	}
	ratings, err := c.userState.GetRatings(ctx)
	if err != nil {
		c.logger.Printf("Error loading movie ratings: %v", err)
		ratings = nil
	}

	details := make([]*models.MovieSummary, len(ids))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			detail, err := c.catalog.GetMovieDetail(ctx, id)
			if err != nil {
				c.logger.Printf("Error loading movie %d: %v", id, err)
				return nil
			}
			details[i] = &detail.MovieSummary
			return nil
		})
	}
	_ = g.Wait()

	movies := make([]models.MovieSummary, 0, len(ids))
	for _, d := range details {
		if d != nil {
			movies = append(movies, *d)
		}
	}
	if len(ids) > 0 && len(movies) == 0 {
		return c.publishFavoritesFailure(req, apperror.Remote(0, fmt.Errorf("all %d favorite movies failed to load", len(ids))))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if req.seq != c.seq {
		c.logger.Printf("Discarding superseded favorites load for screen %s", c.screen)
		return nil
	}
	c.loadingInitial = false
	c.refreshing = false
	c.movies = movies
	c.favorites = favoriteSet(ids)
	if ratings != nil {
		c.ratings = ratings
	}
	c.currentPage = 1
	c.totalPages = 1
	c.alert = nil
	return nil
}

func (c *ListingController) publishFavoritesFailure(req listingRequest, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.seq != c.seq {
		return nil
	}
	c.loadingInitial = false
	c.refreshing = false
	c.logger.Printf("Error loading favorites: %v", err)
	c.alert = &Alert{Message: favoritesFailedMessage, Retry: true}
	return err
}

// ToggleFavorite adds or removes movieID depending on its current overlay
// and returns the new membership. On failure the overlay is left unchanged.
func (c *ListingController) ToggleFavorite(ctx context.Context, movieID int) (bool, error) {
	c.toggleMu.Lock()
	defer c.toggleMu.Unlock()

	c.mu.Lock()
	isFavorite := c.favorites[movieID]
	c.mu.Unlock()

	var err error
	if isFavorite {
		err = c.userState.RemoveFavorite(ctx, movieID)
	} else {
		err = c.userState.AddFavorite(ctx, movieID)
	}
	if err != nil {
		c.logger.Printf("Error toggling favorite %d: %v", movieID, err)
		return isFavorite, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if isFavorite {
		delete(c.favorites, movieID)
		if c.favoritesOnly {
			c.movies = slices.DeleteFunc(c.movies, func(m models.MovieSummary) bool { return m.ID == movieID })
		}
	} else {
		c.favorites[movieID] = true
	}
	return !isFavorite, nil
}

// Rate stores a rating for movieID and updates the overlay. Zero removes it.
func (c *ListingController) Rate(ctx context.Context, movieID, rating int) error {
	if err := c.userState.SetRating(ctx, movieID, rating); err != nil {
		c.logger.Printf("Error rating movie %d: %v", movieID, err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if rating == 0 {
		delete(c.ratings, movieID)
	} else {
		c.ratings[movieID] = rating
	}
	return nil
}

// SyncOverlay rereads favorites and ratings after they changed outside this
// controller. The favorites listing also drops movies no longer favorited.
func (c *ListingController) SyncOverlay(ctx context.Context) error {
	favorites, ratings, err := c.loadOverlay(ctx)
	if err != nil {
		c.logger.Printf("Error syncing user data for screen %s: %v", c.screen, err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.favorites = favorites
	c.ratings = ratings
	if c.favoritesOnly {
		c.movies = slices.DeleteFunc(c.movies, func(m models.MovieSummary) bool { return !favorites[m.ID] })
	}
	return nil
}

// DismissAlert clears the current alert
func (c *ListingController) DismissAlert() {
	c.mu.Lock()
	c.alert = nil
	c.mu.Unlock()
}

// State returns a snapshot of the screen with overlays applied
func (c *ListingController) State() ListingState {
	c.mu.Lock()
	defer c.mu.Unlock()

	movies := make([]models.ListedMovie, len(c.movies))
	for i, m := range c.movies {
		listed := ApplyOverlay(m, c.favorites, c.ratings)
		if c.favoritesOnly {
			listed.IsFavorite = true
		}
		listed.PosterURL = c.catalog.PosterURL(m.PosterPath)
		listed.BackdropURL = c.catalog.BackdropURL(m.BackdropPath)
		movies[i] = listed
	}

	state := ListingState{
		Screen:           c.screen,
		Mode:             c.mode,
		Query:            c.query,
		CurrentPage:      c.currentPage,
		TotalPages:       c.totalPages,
		Movies:           movies,
		IsLoadingInitial: c.loadingInitial,
		IsLoadingMore:    c.loadingMore,
		IsRefreshing:     c.refreshing,
	}
	if !c.favoritesOnly {
		state.Category = c.category
	}
	if c.alert != nil {
		alert := *c.alert
		state.Alert = &alert
	}
	return state
}

func orEmptyMovies(movies []models.MovieSummary) []models.MovieSummary {
	if movies == nil {
		return []models.MovieSummary{}
	}
	return movies
}
