package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/liamwears/reeldeck/internal/apperror"
	"github.com/liamwears/reeldeck/internal/database"
	"github.com/liamwears/reeldeck/internal/models"
)

// Keys of the four persisted records
const (
	KeyProfile   = "user_profile"
	KeyFavorites = "favorite_movies"
	KeyRatings   = "movie_ratings"
	KeyHistory   = "search_history"
)

// MaxSearchHistory caps the number of remembered queries
const MaxSearchHistory = 20

var allKeys = []string{KeyProfile, KeyFavorites, KeyRatings, KeyHistory}

// UserStateService owns the local user state: profile, favorites, ratings
// and search history. Each collection is one JSON blob in the KV store and
// every mutation is a single atomic read-modify-write of its blob. Favorite
// and rating mutations then cascade into the profile mirror with a second,
// separate update.
type UserStateService struct {
	kv       database.KVStore
	validate *validator.Validate
	logger   *log.Logger
	now      func() time.Time
}

// NewUserStateService creates a new UserStateService
func NewUserStateService(kv database.KVStore, validate *validator.Validate, logger *log.Logger) *UserStateService {
	return &UserStateService{
		kv:       kv,
		validate: validate,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// readJSON decodes the blob stored under key into out. found is false when
// the key is absent.
func (s *UserStateService) readJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, database.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperror.Storage("reading "+key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, apperror.Storage("decoding "+key, err)
	}
	return true, nil
}

// updateCollection atomically applies fn to the collection stored under key.
// An undecodable blob is treated as empty and overwritten. fn may return
// database.ErrNoChange to skip the write; the current value is then returned.
func updateCollection[T any](ctx context.Context, s *UserStateService, key string, fn func(current T) (T, error)) (T, error) {
	var result T
	err := s.kv.Update(ctx, key, func(raw []byte, found bool) ([]byte, error) {
		var current T
		if found {
			if err := json.Unmarshal(raw, &current); err != nil {
				s.logger.Printf("Discarding undecodable %s: %v", key, err)
				var zero T
				current = zero
			}
		}

		next, err := fn(current)
		if errors.Is(err, database.ErrNoChange) {
			result = current
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		result = next
		return json.Marshal(next)
	})
	if err != nil {
		var zero T
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return zero, err
		}
		return zero, apperror.Storage("updating "+key, err)
	}
	return result, nil
}

// === PROFILE ===

// GetProfile returns the stored profile or nil when none exists. An
// undecodable profile is treated as absent. The mirror fields are filled from
// the canonical collections whenever those can be read.
func (s *UserStateService) GetProfile(ctx context.Context) (*models.Profile, error) {
	raw, err := s.kv.Get(ctx, KeyProfile)
	if errors.Is(err, database.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Printf("Error getting user profile: %v", err)
		return nil, apperror.Storage("reading "+KeyProfile, err)
	}

	var profile models.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		s.logger.Printf("Ignoring undecodable user profile: %v", err)
		return nil, nil
	}

	s.deriveMirror(ctx, &profile)
	return &profile, nil
}

// deriveMirror overwrites the profile mirror with the canonical collections.
// Read failures keep the stored mirror.
func (s *UserStateService) deriveMirror(ctx context.Context, p *models.Profile) {
	if favorites, err := s.GetFavorites(ctx); err == nil {
		p.FavoriteMovies = favorites
	}
	if ratings, err := s.GetRatings(ctx); err == nil {
		p.MovieRatings = ratings
	}
	normalizeProfile(p)
}

func normalizeProfile(p *models.Profile) {
	if p.FavoriteMovies == nil {
		p.FavoriteMovies = []int{}
	}
	if p.MovieRatings == nil {
		p.MovieRatings = map[int]int{}
	}
}

func (s *UserStateService) defaultProfile() models.Profile {
	now := s.now()
	return models.Profile{
		ID:             "user_" + uuid.NewString(),
		Name:           models.DefaultProfileName,
		FavoriteMovies: []int{},
		MovieRatings:   map[int]int{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// EnsureProfile returns the existing profile or atomically creates the
// default one. Calling it repeatedly never creates a second profile.
func (s *UserStateService) EnsureProfile(ctx context.Context) (*models.Profile, error) {
	var profile models.Profile
	err := s.kv.Update(ctx, KeyProfile, func(raw []byte, found bool) ([]byte, error) {
		if found {
			if err := json.Unmarshal(raw, &profile); err == nil {
				return nil, database.ErrNoChange
			}
		}
		profile = s.defaultProfile()
		return json.Marshal(profile)
	})
	if err != nil {
		s.logger.Printf("Error ensuring user profile: %v", err)
		return nil, apperror.Storage("creating "+KeyProfile, err)
	}

	s.deriveMirror(ctx, &profile)
	return &profile, nil
}

// SaveProfile stores p with UpdatedAt set to now. Last write wins.
func (s *UserStateService) SaveProfile(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	updated := *p
	updated.UpdatedAt = s.now()
	normalizeProfile(&updated)

	data, err := json.Marshal(updated)
	if err != nil {
		return nil, apperror.Storage("encoding "+KeyProfile, err)
	}
	if err := s.kv.Set(ctx, KeyProfile, data); err != nil {
		s.logger.Printf("Error saving user profile: %v", err)
		return nil, apperror.Storage("writing "+KeyProfile, err)
	}
	return &updated, nil
}

// UpdateProfile applies user edits (name, email, image) to the profile,
// creating the default profile first if needed.
func (s *UserStateService) UpdateProfile(ctx context.Context, input models.ProfileUpdate) (*models.Profile, error) {
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if trimmed == "" {
			return nil, apperror.ValidationFailed("name", "name cannot be blank")
		}
		input.Name = &trimmed
	}
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}

	if _, err := s.EnsureProfile(ctx); err != nil {
		return nil, err
	}

	var profile models.Profile
	err := s.kv.Update(ctx, KeyProfile, func(raw []byte, found bool) ([]byte, error) {
		profile = s.defaultProfile()
		if found {
			if err := json.Unmarshal(raw, &profile); err != nil {
				profile = s.defaultProfile()
			}
		}

		if input.Name != nil {
			profile.Name = *input.Name
		}
		if input.Email != nil {
			profile.Email = *input.Email
		}
		if input.ClearImage {
			profile.ProfileImage = ""
		} else if input.ProfileImage != nil {
			profile.ProfileImage = *input.ProfileImage
		}
		profile.UpdatedAt = s.now()
		normalizeProfile(&profile)
		return json.Marshal(profile)
	})
	if err != nil {
		s.logger.Printf("Error updating user profile: %v", err)
		return nil, apperror.Storage("updating "+KeyProfile, err)
	}

	s.deriveMirror(ctx, &profile)
	return &profile, nil
}

// cascade rewrites the profile mirror after a canonical mutation. A missing
// profile is left missing. Failures are logged and not returned: the
// canonical collection is already updated.
func (s *UserStateService) cascade(ctx context.Context, apply func(p *models.Profile)) {
	err := s.kv.Update(ctx, KeyProfile, func(raw []byte, found bool) ([]byte, error) {
		if !found {
			return nil, database.ErrNoChange
		}
		var profile models.Profile
		if err := json.Unmarshal(raw, &profile); err != nil {
			return nil, database.ErrNoChange
		}
		apply(&profile)
		profile.UpdatedAt = s.now()
		normalizeProfile(&profile)
		return json.Marshal(profile)
	})
	if err != nil {
		s.logger.Printf("Error updating profile mirror: %v", err)
	}
}

// === FAVORITES ===

// GetFavorites returns the favorite movie ids in insertion order
func (s *UserStateService) GetFavorites(ctx context.Context) ([]int, error) {
	var favorites []int
	if _, err := s.readJSON(ctx, KeyFavorites, &favorites); err != nil {
		s.logger.Printf("Error getting favorites: %v", err)
		return []int{}, err
	}
	if favorites == nil {
		favorites = []int{}
	}
	return favorites, nil
}

// IsFavorite reports whether movieID is a favorite
func (s *UserStateService) IsFavorite(ctx context.Context, movieID int) (bool, error) {
	favorites, err := s.GetFavorites(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(favorites, movieID), nil
}

// AddFavorite adds movieID to the favorites. Adding a present id is a no-op.
func (s *UserStateService) AddFavorite(ctx context.Context, movieID int) error {
	if err := validateMovieID(movieID); err != nil {
		return err
	}

	favorites, err := updateCollection(ctx, s, KeyFavorites, func(current []int) ([]int, error) {
		if slices.Contains(current, movieID) {
			return current, database.ErrNoChange
		}
		return append(current, movieID), nil
	})
	if err != nil {
		s.logger.Printf("Error adding movie %d to favorites: %v", movieID, err)
		return err
	}

	s.cascade(ctx, func(p *models.Profile) { p.FavoriteMovies = orEmpty(favorites) })
	return nil
}

// RemoveFavorite removes movieID from the favorites. Removing an absent id
// is a no-op.
func (s *UserStateService) RemoveFavorite(ctx context.Context, movieID int) error {
	favorites, err := updateCollection(ctx, s, KeyFavorites, func(current []int) ([]int, error) {
		if !slices.Contains(current, movieID) {
			return current, database.ErrNoChange
		}
		return slices.DeleteFunc(slices.Clone(current), func(id int) bool { return id == movieID }), nil
	})
	if err != nil {
		s.logger.Printf("Error removing movie %d from favorites: %v", movieID, err)
		return err
	}

	s.cascade(ctx, func(p *models.Profile) { p.FavoriteMovies = orEmpty(favorites) })
	return nil
}

// ClearFavorites empties the favorites collection
func (s *UserStateService) ClearFavorites(ctx context.Context) error {
	if _, err := updateCollection(ctx, s, KeyFavorites, func([]int) ([]int, error) {
		return []int{}, nil
	}); err != nil {
		s.logger.Printf("Error clearing favorites: %v", err)
		return err
	}

	s.cascade(ctx, func(p *models.Profile) { p.FavoriteMovies = []int{} })
	return nil
}

// === RATINGS ===

// GetRatings returns the movie id to rating map
func (s *UserStateService) GetRatings(ctx context.Context) (map[int]int, error) {
	var ratings map[int]int
	if _, err := s.readJSON(ctx, KeyRatings, &ratings); err != nil {
		s.logger.Printf("Error getting movie ratings: %v", err)
		return map[int]int{}, err
	}
	if ratings == nil {
		ratings = map[int]int{}
	}
	return ratings, nil
}

// GetRating returns the rating of movieID, 0 when unrated
func (s *UserStateService) GetRating(ctx context.Context, movieID int) (int, error) {
	ratings, err := s.GetRatings(ctx)
	if err != nil {
		return 0, err
	}
	return ratings[movieID], nil
}

// SetRating stores a 1..5 rating for movieID; 0 removes the rating
func (s *UserStateService) SetRating(ctx context.Context, movieID, rating int) error {
	if err := validateMovieID(movieID); err != nil {
		return err
	}
	if err := s.validateStruct(models.RatingInput{Rating: rating}); err != nil {
		return err
	}

	ratings, err := updateCollection(ctx, s, KeyRatings, func(current map[int]int) (map[int]int, error) {
		next := make(map[int]int, len(current)+1)
		for id, r := range current {
			next[id] = r
		}
		if rating == 0 {
			if _, ok := next[movieID]; !ok {
				return current, database.ErrNoChange
			}
			delete(next, movieID)
		} else {
			next[movieID] = rating
		}
		return next, nil
	})
	if err != nil {
		s.logger.Printf("Error setting rating for movie %d: %v", movieID, err)
		return err
	}

	if ratings == nil {
		ratings = map[int]int{}
	}
	s.cascade(ctx, func(p *models.Profile) { p.MovieRatings = ratings })
	return nil
}

// === SEARCH HISTORY ===

// GetSearchHistory returns past queries, most recent first
func (s *UserStateService) GetSearchHistory(ctx context.Context) ([]string, error) {
	var history []string
	if _, err := s.readJSON(ctx, KeyHistory, &history); err != nil {
		s.logger.Printf("Error getting search history: %v", err)
		return []string{}, err
	}
	if history == nil {
		history = []string{}
	}
	return history, nil
}

// RecordSearch puts query at the front of the history, dropping any
// case-insensitive duplicate and keeping at most MaxSearchHistory entries.
// Blank queries are ignored.
func (s *UserStateService) RecordSearch(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	_, err := updateCollection(ctx, s, KeyHistory, func(current []string) ([]string, error) {
		next := make([]string, 0, len(current)+1)
		next = append(next, query)
		for _, q := range current {
			if !strings.EqualFold(q, query) {
				next = append(next, q)
			}
		}
		if len(next) > MaxSearchHistory {
			next = next[:MaxSearchHistory]
		}
		return next, nil
	})
	if err != nil {
		s.logger.Printf("Error adding to search history: %v", err)
	}
	return err
}

// ClearSearchHistory forgets every recorded query
func (s *UserStateService) ClearSearchHistory(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyHistory); err != nil {
		s.logger.Printf("Error clearing search history: %v", err)
		return apperror.Storage("deleting "+KeyHistory, err)
	}
	return nil
}

// === GENERAL ===

// ClearAll deletes all four records. The next EnsureProfile creates a fresh
// default profile.
func (s *UserStateService) ClearAll(ctx context.Context) error {
	if err := s.kv.Delete(ctx, allKeys...); err != nil {
		s.logger.Printf("Error clearing all data: %v", err)
		return apperror.Storage("deleting user state", err)
	}
	s.logger.Println("All user data cleared")
	return nil
}

// StorageStats reports the number of stored records and their total size
func (s *UserStateService) StorageStats(ctx context.Context) (*models.StorageStats, error) {
	stats := &models.StorageStats{}
	for _, key := range allKeys {
		raw, err := s.kv.Get(ctx, key)
		if errors.Is(err, database.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return &models.StorageStats{}, apperror.Storage("reading "+key, err)
		}
		stats.Keys++
		stats.TotalBytes += int64(len(raw))
	}
	return stats, nil
}

// ExportAll serializes the whole user state into one JSON document
func (s *UserStateService) ExportAll(ctx context.Context) ([]byte, error) {
	profile, err := s.GetProfile(ctx)
	if err != nil {
		return nil, err
	}
	favorites, err := s.GetFavorites(ctx)
	if err != nil {
		return nil, err
	}
	ratings, err := s.GetRatings(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.GetSearchHistory(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(models.Snapshot{
		Profile:       profile,
		Favorites:     favorites,
		Ratings:       ratings,
		SearchHistory: history,
		ExportedAt:    s.now(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return data, nil
}

// ImportAll restores whichever of profile, favorites, ratings and search
// history are present in data. The document is fully decoded and checked
// before anything is written. The profile mirror is taken as given.
func (s *UserStateService) ImportAll(ctx context.Context, data []byte) error {
	var doc models.ImportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperror.ValidationFailed("snapshot", fmt.Sprintf("malformed import payload: %v", err))
	}

	var (
		profile   *models.Profile
		favorites []int
		ratings   map[int]int
		history   []string
	)
	if present(doc.Profile) {
		profile = &models.Profile{}
		if err := json.Unmarshal(doc.Profile, profile); err != nil {
			return apperror.ValidationFailed("profile", fmt.Sprintf("invalid profile: %v", err))
		}
	}
	if present(doc.Favorites) {
		if err := json.Unmarshal(doc.Favorites, &favorites); err != nil {
			return apperror.ValidationFailed("favorites", fmt.Sprintf("invalid favorites: %v", err))
		}
		for _, id := range favorites {
			if err := validateMovieID(id); err != nil {
				return err
			}
		}
		favorites = dedupe(favorites)
	}
	if present(doc.Ratings) {
		if err := json.Unmarshal(doc.Ratings, &ratings); err != nil {
			return apperror.ValidationFailed("ratings", fmt.Sprintf("invalid ratings: %v", err))
		}
		for id, r := range ratings {
			if err := validateMovieID(id); err != nil {
				return err
			}
			if r < 1 || r > 5 {
				return apperror.ValidationFailed("ratings", fmt.Sprintf("rating %d for movie %d is out of range", r, id))
			}
		}
	}
	if present(doc.SearchHistory) {
		if err := json.Unmarshal(doc.SearchHistory, &history); err != nil {
			return apperror.ValidationFailed("searchHistory", fmt.Sprintf("invalid search history: %v", err))
		}
		if len(history) > MaxSearchHistory {
			history = history[:MaxSearchHistory]
		}
	}

	if profile != nil {
		if _, err := s.SaveProfile(ctx, profile); err != nil {
			return err
		}
	}
	if favorites != nil {
		if err := s.setJSON(ctx, KeyFavorites, favorites); err != nil {
			return err
		}
	}
	if ratings != nil {
		if err := s.setJSON(ctx, KeyRatings, ratings); err != nil {
			return err
		}
	}
	if history != nil {
		if err := s.setJSON(ctx, KeyHistory, history); err != nil {
			return err
		}
	}

	s.logger.Println("User data imported")
	return nil
}

func (s *UserStateService) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperror.Storage("encoding "+key, err)
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		s.logger.Printf("Error writing %s: %v", key, err)
		return apperror.Storage("writing "+key, err)
	}
	return nil
}

func (s *UserStateService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperror.ValidationFailed(fe.Field(),
			fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag()))
	}
	return apperror.ValidationFailed("", err.Error())
}

func validateMovieID(movieID int) error {
	if movieID <= 0 {
		return apperror.ValidationFailed("movieId", fmt.Sprintf("invalid movie id %d", movieID))
	}
	return nil
}

// present reports whether a raw field was given with a non-null value
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func orEmpty(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
