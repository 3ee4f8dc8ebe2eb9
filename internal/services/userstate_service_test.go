package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamwears/reeldeck/internal/apperror"
	"github.com/liamwears/reeldeck/internal/database"
	"github.com/liamwears/reeldeck/internal/models"
)

func newTestUserState(t *testing.T) (*UserStateService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := &database.RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { client.Client.Close() })

	kv := database.NewRedisKV(client, "test:")
	return NewUserStateService(kv, validator.New(validator.WithRequiredStructEnabled()), log.New(io.Discard, "", 0)), mr
}

// brokenKV fails every operation
type brokenKV struct{}

var errDisk = errors.New("disk on fire")

func (brokenKV) Get(context.Context, string) ([]byte, error) { return nil, errDisk }
func (brokenKV) Set(context.Context, string, []byte) error { return errDisk }
func (brokenKV) Update(context.Context, string, database.UpdateFunc) error { return errDisk }
func (brokenKV) Delete(context.Context, ...string) error { return errDisk }
func (brokenKV) Health(context.Context) error { return errDisk }
func (brokenKV) Close() error { return nil }

func TestEnsureProfileCreatesDefaultOnce(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()

	profile, err := svc.GetProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)

	first, err := svc.EnsureProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultProfileName, first.Name)
	assert.Contains(t, first.ID, "user_")
	assert.Empty(t, first.FavoriteMovies)
	assert.Empty(t, first.MovieRatings)
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)

	second, err := svc.EnsureProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestEnsureProfileConcurrent(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()

	ids := make([]string, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := svc.EnsureProfile(ctx)
			if assert.NoError(t, err) {
				ids[i] = p.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestUndecodableProfileIsAbsent(t *testing.T) {
	svc, mr := newTestUserState(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("test:"+KeyProfile, "{not json"))

	profile, err := svc.GetProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)

	created, err := svc.EnsureProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultProfileName, created.Name)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()

	created, err := svc.EnsureProfile(ctx)
	require.NoError(t, err)

	name := "  Ana  "
	email := "ana@example.com"
	image := "file:///photos/ana.jpg"
	updated, err := svc.UpdateProfile(ctx, models.ProfileUpdate{Name: &name, Email: &email, ProfileImage: &image})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Ana", updated.Name)
	assert.Equal(t, email, updated.Email)
	assert.Equal(t, image, updated.ProfileImage)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	cleared, err := svc.UpdateProfile(ctx, models.ProfileUpdate{ClearImage: true})
	require.NoError(t, err)
	assert.Empty(t, cleared.ProfileImage)
	assert.Equal(t, "Ana", cleared.Name)
}

func TestUpdateProfileValidation(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()

	blank := "   "
	_, err := svc.UpdateProfile(ctx, models.ProfileUpdate{Name: &blank})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	bad := "not-an-email"
	_, err = svc.UpdateProfile(ctx, models.ProfileUpdate{Email: &bad})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Email", appErr.Field)
}

func TestFavoritesIdempotentAndMirrored(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()
	_, err := svc.EnsureProfile(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.AddFavorite(ctx, 603))
	require.NoError(t, svc.AddFavorite(ctx, 27205))
	require.NoError(t, svc.AddFavorite(ctx, 603))

	favorites, err := svc.GetFavorites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{603, 27205}, favorites)

	ok, err := svc.IsFavorite(ctx, 603)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.RemoveFavorite(ctx, 603))
	require.NoError(t, svc.RemoveFavorite(ctx, 603))

	favorites, err = svc.GetFavorites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{27205}, favorites)

	// the stored mirror follows the canonical collection
	raw, err := svc.kv.Get(ctx, KeyProfile)
	require.NoError(t, err)
	var stored models.Profile
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, []int{27205}, stored.FavoriteMovies)

	require.NoError(t, svc.ClearFavorites(ctx))
	profile, err := svc.GetProfile(ctx)
	require.NoError(t, err)
	assert.Empty(t, profile.FavoriteMovies)
}

func TestAddFavoriteWithoutProfile(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()

	require.NoError(t, svc.AddFavorite(ctx, 11))

	profile, err := svc.GetProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile, "favorite mutations never create the profile")

	created, err := svc.EnsureProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{11}, created.FavoriteMovies)
}

func TestAddFavoriteConcurrent(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for id := 1; id <= 10; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			err := svc.AddFavorite(ctx, id)
			if err != nil {
				assert.ErrorIs(t, err, database.ErrContention)
			}
		}(id)
	}
	wg.Wait()

	favorites, err := svc.GetFavorites(ctx)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, id := range favorites {
		assert.False(t, seen[id], "duplicate favorite %d", id)
		seen[id] = true
	}
}

func TestInvalidMovieID(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.AddFavorite(ctx, 0), apperror.ErrValidation)
	assert.ErrorIs(t, svc.SetRating(ctx, -4, 3), apperror.ErrValidation)
}

func TestRatings(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()
	_, err := svc.EnsureProfile(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.SetRating(ctx, 603, 5))
	require.NoError(t, svc.SetRating(ctx, 550, 3))
	require.NoError(t, svc.SetRating(ctx, 603, 4))

	rating, err := svc.GetRating(ctx, 603)
	require.NoError(t, err)
	assert.Equal(t, 4, rating)

	require.NoError(t, svc.SetRating(ctx, 550, 0))
	ratings, err := svc.GetRatings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{603: 4}, ratings)

	// removing an unrated movie is fine
	require.NoError(t, svc.SetRating(ctx, 999, 0))

	rating, err = svc.GetRating(ctx, 550)
	require.NoError(t, err)
	assert.Zero(t, rating)

	profile, err := svc.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{603: 4}, profile.MovieRatings)
}

func TestSetRatingOutOfRange(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()

	for _, r := range []int{-1, 6, 10} {
		err := svc.SetRating(ctx, 603, r)
		assert.ErrorIs(t, err, apperror.ErrValidation, "rating %d", r)
	}

	ratings, err := svc.GetRatings(ctx)
	require.NoError(t, err)
	assert.Empty(t, ratings)
}

func TestSearchHistory(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordSearch(ctx, "Matrix"))
	require.NoError(t, svc.RecordSearch(ctx, "Alien"))
	require.NoError(t, svc.RecordSearch(ctx, "  matrix "))
	require.NoError(t, svc.RecordSearch(ctx, "   "))

	history, err := svc.GetSearchHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"matrix", "Alien"}, history)

	require.NoError(t, svc.ClearSearchHistory(ctx))
	history, err = svc.GetSearchHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSearchHistoryCapped(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()

	for i := 0; i < MaxSearchHistory+5; i++ {
		require.NoError(t, svc.RecordSearch(ctx, fmt.Sprintf("query %d", i)))
	}

	history, err := svc.GetSearchHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, MaxSearchHistory)
	assert.Equal(t, fmt.Sprintf("query %d", MaxSearchHistory+4), history[0])
	assert.Equal(t, "query 5", history[MaxSearchHistory-1])
}

func TestCorruptCollectionsDegrade(t *testing.T) {
	svc, mr := newTestUserState(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("test:"+KeyFavorites, "oops"))

	favorites, err := svc.GetFavorites(ctx)
	assert.ErrorIs(t, err, apperror.ErrStorage)
	assert.Empty(t, favorites)

	// a mutation replaces the undecodable blob
	require.NoError(t, svc.AddFavorite(ctx, 7))
	favorites, err = svc.GetFavorites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, favorites)
}

func TestStorageFailures(t *testing.T) {
	svc := NewUserStateService(brokenKV{}, validator.New(), log.New(io.Discard, "", 0))
	ctx := context.Background()

	_, err := svc.GetProfile(ctx)
	assert.ErrorIs(t, err, apperror.ErrStorage)
	assert.ErrorIs(t, err, errDisk)

	favorites, err := svc.GetFavorites(ctx)
	assert.ErrorIs(t, err, apperror.ErrStorage)
	assert.Equal(t, []int{}, favorites)

	assert.ErrorIs(t, svc.AddFavorite(ctx, 1), apperror.ErrStorage)
	assert.ErrorIs(t, svc.SetRating(ctx, 1, 2), apperror.ErrStorage)
	assert.ErrorIs(t, svc.RecordSearch(ctx, "x"), apperror.ErrStorage)
	assert.ErrorIs(t, svc.ClearAll(ctx), apperror.ErrStorage)

	_, err = svc.ExportAll(ctx)
	assert.ErrorIs(t, err, apperror.ErrStorage)
}

func TestClearAll(t *testing.T) {
	svc, mr := newTestUserState(t)
	ctx := context.Background()

	first, err := svc.EnsureProfile(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.AddFavorite(ctx, 1))
	require.NoError(t, svc.SetRating(ctx, 1, 5))
	require.NoError(t, svc.RecordSearch(ctx, "dune"))

	require.NoError(t, svc.ClearAll(ctx))
	assert.Empty(t, mr.Keys())

	stats, err := svc.StorageStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Keys)

	fresh, err := svc.EnsureProfile(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fresh.ID)
	assert.Empty(t, fresh.FavoriteMovies)
}

func TestExportImportRoundTrip(t *testing.T) {
	src, _ := newTestUserState(t)
	ctx := context.Background()

	name := "Ana"
	_, err := src.UpdateProfile(ctx, models.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	require.NoError(t, src.AddFavorite(ctx, 603))
	require.NoError(t, src.AddFavorite(ctx, 155))
	require.NoError(t, src.SetRating(ctx, 603, 5))
	require.NoError(t, src.RecordSearch(ctx, "matrix"))

	data, err := src.ExportAll(ctx)
	require.NoError(t, err)

	var snapshot models.Snapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Equal(t, []int{603, 155}, snapshot.Favorites)
	assert.Equal(t, map[int]int{603: 5}, snapshot.Ratings)
	assert.Equal(t, []string{"matrix"}, snapshot.SearchHistory)
	require.NotNil(t, snapshot.Profile)
	assert.Equal(t, "Ana", snapshot.Profile.Name)
	assert.False(t, snapshot.ExportedAt.IsZero())

	dst, _ := newTestUserState(t)
	require.NoError(t, dst.ImportAll(ctx, data))

	profile, err := dst.GetProfile(ctx)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, snapshot.Profile.ID, profile.ID)
	assert.Equal(t, "Ana", profile.Name)
	assert.Equal(t, []int{603, 155}, profile.FavoriteMovies)

	ratings, err := dst.GetRatings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{603: 5}, ratings)

	history, err := dst.GetSearchHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"matrix"}, history)
}

func TestImportPartialDocument(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()
	require.NoError(t, svc.AddFavorite(ctx, 1))
	require.NoError(t, svc.RecordSearch(ctx, "kept"))

	require.NoError(t, svc.ImportAll(ctx, []byte(`{"favorites":[],"ratings":{"9":2},"searchHistory":null}`)))

	favorites, err := svc.GetFavorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, favorites)

	ratings, err := svc.GetRatings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{9: 2}, ratings)

	history, err := svc.GetSearchHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, history)

	profile, err := svc.GetProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestImportRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{{{`},
		{"wrong favorites type", `{"favorites":"603"}`},
		{"rating out of range", `{"ratings":{"603":9}}`},
		{"non-positive favorite ids", `{"favorites":[0,-3]}`},
		{"non-positive rated id", `{"ratings":{"-1":3}}`},
		{"bad profile", `{"profile":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mr := newTestUserState(t)
			err := svc.ImportAll(context.Background(), []byte(tt.doc))
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Empty(t, mr.Keys(), "nothing is written on a rejected import")
		})
	}
}

func TestStorageStats(t *testing.T) {
	svc, _ := newTestUserState(t)
	ctx := context.Background()

	require.NoError(t, svc.AddFavorite(ctx, 1))
	require.NoError(t, svc.RecordSearch(ctx, "x"))

	stats, err := svc.StorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Keys)
	assert.Equal(t, int64(len("[1]")+len(`["x"]`)), stats.TotalBytes)
}
