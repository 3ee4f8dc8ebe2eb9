package models

import (
	"encoding/json"
	"time"
)

// DefaultProfileName is the name given to a freshly created profile
const DefaultProfileName = "Usuario"

// Profile is the single local user profile. FavoriteMovies and MovieRatings
// mirror the canonical favorites and ratings collections.
type Profile struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Email          string      `json:"email,omitempty"`
	ProfileImage   string      `json:"profileImage,omitempty"`
	FavoriteMovies []int       `json:"favoriteMovies"`
	MovieRatings   map[int]int `json:"movieRatings"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// ProfileUpdate carries the user-editable profile fields. Nil leaves a field
// unchanged; ClearImage removes the profile image.
type ProfileUpdate struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1,max=50"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	ProfileImage *string `json:"profileImage,omitempty" validate:"omitempty,uri"`
	ClearImage   bool    `json:"clearImage,omitempty"`
}

// RatingInput is the body of a rating request. Zero removes the rating.
type RatingInput struct {
	Rating int `json:"rating" validate:"gte=0,lte=5"`
}

// SearchInput is the body of a search request
type SearchInput struct {
	Query string `json:"query" validate:"max=200"`
}

// CategoryInput is the body of a category change request
type CategoryInput struct {
	Category Category `json:"category" validate:"required"`
}

// Snapshot is the export document
type Snapshot struct {
	Profile       *Profile    `json:"profile"`
	Favorites     []int       `json:"favorites"`
	Ratings       map[int]int `json:"ratings"`
	SearchHistory []string    `json:"searchHistory"`
	ExportedAt    time.Time   `json:"exportedAt"`
}

// ImportDocument is the decoding target for an import. Every field is
// optional; raw JSON keeps "absent" distinct from "empty" or null.
type ImportDocument struct {
	Profile       json.RawMessage `json:"profile"`
	Favorites     json.RawMessage `json:"favorites"`
	Ratings       json.RawMessage `json:"ratings"`
	SearchHistory json.RawMessage `json:"searchHistory"`
}

// StorageStats reports how much local state is stored
type StorageStats struct {
	Keys       int   `json:"keys"`
	TotalBytes int64 `json:"totalBytes"`
}
