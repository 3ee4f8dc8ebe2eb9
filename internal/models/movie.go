package models

// Category selects one of the catalog listings
type Category string

const (
	CategoryPopular      Category = "popular"
	CategoryTopRated     Category = "top_rated"
	CategoryNowPlaying   Category = "now_playing"
	CategoryTrendingDay  Category = "trending_day"
	CategoryTrendingWeek Category = "trending_week"
)

// String returns the string representation of Category
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is known
func (c Category) IsValid() bool {
	switch c {
	case CategoryPopular, CategoryTopRated, CategoryNowPlaying, CategoryTrendingDay, CategoryTrendingWeek:
		return true
	}
	return false
}

// MovieSummary is a movie as returned by the catalog list endpoints
type MovieSummary struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	Overview         string  `json:"overview"`
	PosterPath       *string `json:"poster_path"`
	BackdropPath     *string `json:"backdrop_path"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	OriginalLanguage string  `json:"original_language"`
	GenreIDs         []int   `json:"genre_ids"`
	Adult            bool    `json:"adult"`
	Video            bool    `json:"video"`
}

// Genre is a catalog genre
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ProductionCompany is a studio credited on a movie
type ProductionCompany struct {
	ID            int     `json:"id"`
	LogoPath      *string `json:"logo_path"`
	Name          string  `json:"name"`
	OriginCountry string  `json:"origin_country"`
}

// SpokenLanguage is a language spoken in a movie
type SpokenLanguage struct {
	EnglishName string `json:"english_name"`
	ISO639      string `json:"iso_639_1"`
	Name        string `json:"name"`
}

// ProductionCountry is a country a movie was produced in
type ProductionCountry struct {
	ISO3166 string `json:"iso_3166_1"`
	Name    string `json:"name"`
}

// MovieDetail is the full record of a single movie. The detail endpoint
// returns genres instead of genre ids, so GenreIDs is filled from Genres.
type MovieDetail struct {
	MovieSummary
	Runtime             int                 `json:"runtime"`
	Budget              int64               `json:"budget"`
	Revenue             int64               `json:"revenue"`
	Status              string              `json:"status"`
	Tagline             string              `json:"tagline"`
	Genres              []Genre             `json:"genres"`
	ProductionCompanies []ProductionCompany `json:"production_companies"`
	SpokenLanguages     []SpokenLanguage    `json:"spoken_languages"`
	ProductionCountries []ProductionCountry `json:"production_countries"`
}

// MoviePage is one page of a catalog listing
type MoviePage struct {
	Page         int            `json:"page"`
	Results      []MovieSummary `json:"results"`
	TotalPages   int            `json:"total_pages"`
	TotalResults int            `json:"total_results"`
}

// ListedMovie is a catalog movie decorated with the user's overlay. The
// overlay fields are derived at read time and never stored with the movie.
type ListedMovie struct {
	MovieSummary
	PosterURL   string `json:"poster_url"`
	BackdropURL string `json:"backdrop_url"`
	IsFavorite  bool   `json:"is_favorite"`
	UserRating  int    `json:"user_rating"`
}

// ListedMovieDetail is a MovieDetail decorated with the user's overlay
type ListedMovieDetail struct {
	MovieDetail
	PosterURL   string `json:"poster_url"`
	BackdropURL string `json:"backdrop_url"`
	IsFavorite  bool   `json:"is_favorite"`
	UserRating  int    `json:"user_rating"`
}
