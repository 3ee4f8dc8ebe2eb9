package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/liamwears/reeldeck/internal/apperror"
	"github.com/liamwears/reeldeck/internal/models"
)

// Image size tokens used by the TMDB image host
const (
	PosterSize   = "w500"
	BackdropSize = "w780"
)

// Catalog is the remote movie catalog as seen by the listing controller
type Catalog interface {
	Popular(ctx context.Context, page int) (*models.MoviePage, error)
	TopRated(ctx context.Context, page int) (*models.MoviePage, error)
	NowPlaying(ctx context.Context, page int) (*models.MoviePage, error)
	Trending(ctx context.Context, window string, page int) (*models.MoviePage, error)
	Search(ctx context.Context, query string, page int) (*models.MoviePage, error)
	GetMovieDetail(ctx context.Context, movieID int) (*models.MovieDetail, error)
	PosterURL(path *string) string
	BackdropURL(path *string) string
}

// TMDBService handles interactions with The Movie Database API
type TMDBService struct {
	client       *http.Client
	baseURL      string
	imageBaseURL string
	language     string
}

var _ Catalog = (*TMDBService)(nil)

// TMDBConfig holds TMDB service configuration
type TMDBConfig struct {
	Token        string
	BaseURL      string
	ImageBaseURL string
	Language     string
	Timeout      time.Duration
}

// NewTMDBService creates a new TMDB service. The read access token is sent
// as a bearer credential on every request by the oauth2 transport.
func NewTMDBService(cfg TMDBConfig) *TMDBService {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   "Bearer",
	})

	imageBaseURL := cfg.ImageBaseURL
	if !strings.HasSuffix(imageBaseURL, "/") {
		imageBaseURL += "/"
	}

	return &TMDBService{
		client: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: src,
				Base:   http.DefaultTransport,
			},
		},
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		imageBaseURL: imageBaseURL,
		language:     cfg.Language,
	}
}

// doRequest performs a GET against the TMDB API and decodes the JSON body
func (s *TMDBService) doRequest(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	q := req.URL.Query()
	if s.language != "" {
		q.Set("language", s.language)
	}
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	req.URL.RawQuery = q.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		return apperror.Remote(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperror.Remote(resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Remote(0, fmt.Errorf("failed to decode %s response: %w", endpoint, err))
	}
	return nil
}

// listPage fetches one page of a movie listing endpoint
func (s *TMDBService) listPage(ctx context.Context, endpoint string, page int, params url.Values) (*models.MoviePage, error) {
	if page < 1 {
		page = 1
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("page", strconv.Itoa(page))

	var response models.MoviePage
	if err := s.doRequest(ctx, endpoint, params, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Popular gets the popular movies listing
func (s *TMDBService) Popular(ctx context.Context, page int) (*models.MoviePage, error) {
	return s.listPage(ctx, "/movie/popular", page, nil)
}

// TopRated gets the top rated movies listing
func (s *TMDBService) TopRated(ctx context.Context, page int) (*models.MoviePage, error) {
	return s.listPage(ctx, "/movie/top_rated", page, nil)
}

// NowPlaying gets the movies currently in theaters
func (s *TMDBService) NowPlaying(ctx context.Context, page int) (*models.MoviePage, error) {
	return s.listPage(ctx, "/movie/now_playing", page, nil)
}

// Trending gets trending movies for a "day" or "week" window
func (s *TMDBService) Trending(ctx context.Context, window string, page int) (*models.MoviePage, error) {
	if window != "day" && window != "week" {
		return nil, apperror.ValidationFailed("window", fmt.Sprintf("unknown trending window %q", window))
	}
	return s.listPage(ctx, "/trending/movie/"+window, page, nil)
}

// Search searches movies by free text
func (s *TMDBService) Search(ctx context.Context, query string, page int) (*models.MoviePage, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	return s.listPage(ctx, "/search/movie", page, params)
}

// GetMovieDetail retrieves a movie by ID
func (s *TMDBService) GetMovieDetail(ctx context.Context, movieID int) (*models.MovieDetail, error) {
	var movie models.MovieDetail
	if err := s.doRequest(ctx, fmt.Sprintf("/movie/%d", movieID), nil, &movie); err != nil {
		return nil, err
	}

	if len(movie.GenreIDs) == 0 && len(movie.Genres) > 0 {
		movie.GenreIDs = make([]int, len(movie.Genres))
		for i, g := range movie.Genres {
			movie.GenreIDs[i] = g.ID
		}
	}
	return &movie, nil
}

// ImageURL returns the full URL for an image path at the given size. An
// absent path yields "" so renderers can show a placeholder.
func (s *TMDBService) ImageURL(path *string, size string) string {
	if path == nil || *path == "" {
		return ""
	}
	return s.imageBaseURL + size + *path
}

// PosterURL returns the poster URL for a movie
func (s *TMDBService) PosterURL(path *string) string {
	return s.ImageURL(path, PosterSize)
}

// BackdropURL returns the backdrop URL for a movie
func (s *TMDBService) BackdropURL(path *string) string {
	return s.ImageURL(path, BackdropSize)
}
