package services

import "github.com/liamwears/reeldeck/internal/models"

// ApplyOverlay decorates a catalog movie with the user's favorite and rating
// state. It never modifies movie.
func ApplyOverlay(movie models.MovieSummary, favorites map[int]bool, ratings map[int]int) models.ListedMovie {
	return models.ListedMovie{
		MovieSummary: movie,
		IsFavorite:   favorites[movie.ID],
		UserRating:   ratings[movie.ID],
	}
}

// ApplyDetailOverlay is ApplyOverlay for a full movie detail
func ApplyDetailOverlay(catalog Catalog, movie models.MovieDetail, favorites map[int]bool, ratings map[int]int) models.ListedMovieDetail {
	return models.ListedMovieDetail{
		MovieDetail: movie,
		PosterURL:   catalog.PosterURL(movie.PosterPath),
		BackdropURL: catalog.BackdropURL(movie.BackdropPath),
		IsFavorite:  favorites[movie.ID],
		UserRating:  ratings[movie.ID],
	}
}

// favoriteSet turns an ordered id list into a membership set
func favoriteSet(ids []int) map[int]bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
