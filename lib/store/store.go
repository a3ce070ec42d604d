package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/icco/watchlist/models"
	"gorm.io/gorm"
)

// Sentinel errors for persistence operations
var (
	// ErrAlreadyExists indicates the TMDB id is already present in the list
	ErrAlreadyExists = errors.New("movie already exists")

	// ErrNotFound indicates the movie row does not exist in the list
	ErrNotFound = errors.New("movie not found")
)

// Store is the persistence gateway. Every operation is scoped by the list
// identity resolved by the access gate; callers must never pass a
// client-supplied list id.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func New(gdb *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: gdb, logger: logger}
}

// List returns every movie in the given list, unwatched first, newest first.
func (s *Store) List(ctx context.Context, listID string) ([]models.Movie, error) {
	var movies []models.Movie
	err := s.db.WithContext(ctx).
		Where("list_id = ?", listID).
		Order("watched asc").
		Order("created_at desc").
		Find(&movies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}
	return movies, nil
}

// Create inserts a new movie into the list. A duplicate TMDB id surfaces as
// ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, listID string, movie *models.Movie) error {
	movie.ID = 0
	movie.ListID = listID

	if err := s.db.WithContext(ctx).Create(movie).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create movie: %w", err)
	}
	return nil
}

// Update describes a partial movie mutation. Rating uses an explicit set
// flag so a null rating (clear) is distinguishable from an absent field.
type Update struct {
	Watched   *bool
	Rating    *float64
	RatingSet bool
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Watched == nil && !u.RatingSet
}

// Update applies a partial mutation to one movie in the list and returns the
// stored row. Missing rows surface as ErrNotFound. Any change refreshes
// updated_at.
func (s *Store) Update(ctx context.Context, listID string, id uint, upd Update) (*models.Movie, error) {
	changes := map[string]interface{}{}
	if upd.Watched != nil {
		changes["watched"] = *upd.Watched
	}
	if upd.RatingSet {
		changes["rating"] = upd.Rating
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("no changes to apply")
	}

	tx := s.db.WithContext(ctx).
		Model(&models.Movie{}).
		Where("id = ? AND list_id = ?", id, listID).
		Updates(changes)
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to update movie: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var movie models.Movie
	if err := s.db.WithContext(ctx).Where("id = ? AND list_id = ?", id, listID).First(&movie).Error; err != nil {
		return nil, fmt.Errorf("failed to reload movie: %w", err)
	}
	return &movie, nil
}

// Delete removes one movie from the list. Missing rows surface as
// ErrNotFound.
func (s *Store) Delete(ctx context.Context, listID string, id uint) error {
	tx := s.db.WithContext(ctx).
		Where("id = ? AND list_id = ?", id, listID).
		Delete(&models.Movie{})
	if tx.Error != nil {
		return fmt.Errorf("failed to delete movie: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation detects a unique index conflict across the supported
// drivers. gorm's TranslateError covers most cases; the string checks catch
// drivers that report raw engine errors.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
