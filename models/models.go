package models

import (
	"time"
)

// Movie is a single watchlist entry. Every row belongs to exactly one list
// (ListID comes from the resolved access identity, never from the client),
// and a TMDB id can appear at most once per list.
type Movie struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ListID    string    `gorm:"index:idx_movies_list_tmdb,unique;not null" json:"-"`
	TMDBID    int       `gorm:"column:tmdb_id;index:idx_movies_list_tmdb,unique;not null" json:"tmdb_id"`
	Title     string    `gorm:"not null" json:"title"`
	PosterURL *string   `json:"poster_url"`
	Watched   bool      `gorm:"not null;default:false" json:"watched"`
	Rating    *float64  `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
