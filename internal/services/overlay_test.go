package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/liamwears/reeldeck/internal/models"
)

func TestApplyOverlay(t *testing.T) {
	movie := models.MovieSummary{ID: 603, Title: "The Matrix", VoteAverage: 8.2}
	favorites := map[int]bool{603: true}
	ratings := map[int]int{603: 5, 550: 3}

	listed := ApplyOverlay(movie, favorites, ratings)
	assert.True(t, listed.IsFavorite)
	assert.Equal(t, 5, listed.UserRating)
	assert.Equal(t, movie, listed.MovieSummary)

	other := ApplyOverlay(models.MovieSummary{ID: 1}, favorites, ratings)
	assert.False(t, other.IsFavorite)
	assert.Zero(t, other.UserRating)

	// nil overlays are valid
	bare := ApplyOverlay(movie, nil, nil)
	assert.False(t, bare.IsFavorite)
	assert.Zero(t, bare.UserRating)
}

func TestApplyDetailOverlay(t *testing.T) {
	poster := "/m.jpg"
	detail := models.MovieDetail{MovieSummary: models.MovieSummary{ID: 603, PosterPath: &poster}, Runtime: 136}

	listed := ApplyDetailOverlay(&fakeCatalog{}, detail, map[int]bool{603: true}, map[int]int{})
	assert.True(t, listed.IsFavorite)
	assert.Equal(t, "poster:/m.jpg", listed.PosterURL)
	assert.Equal(t, "", listed.BackdropURL)
	assert.Equal(t, 136, listed.Runtime)
}
