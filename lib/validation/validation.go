package validation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
)

// ratingEpsilon absorbs float noise when checking half-step alignment.
const ratingEpsilon = 1e-9

// IsValidHalfStepRating checks if a rating is a multiple of 0.5 within the
// [0.5, 5.0] range. Returns false for NaN and infinities.
func IsValidHalfStepRating(rating float64) bool {
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return false
	}
	scaled := rating * 2
	if math.Abs(scaled-math.Round(scaled)) > ratingEpsilon {
		return false
	}
	return rating >= 0.5 && rating <= 5.0
}

// NormalizeHalfStep rounds a rating to the nearest half step and clamps it
// into the [0.5, 5.0] range.
func NormalizeHalfStep(rating float64) float64 {
	normalized := math.Round(rating*2) / 2
	if normalized < 0.5 {
		return 0.5
	}
	if normalized > 5.0 {
		return 5.0
	}
	return normalized
}

// ValidateTMDBID checks if a TMDB id is usable as a lookup key.
// Returns an error if the id is not a positive integer.
func ValidateTMDBID(id int) error {
	if id <= 0 {
		return fmt.Errorf("tmdb_id must be a positive integer")
	}
	return nil
}

// ValidateMovieID checks if a watchlist row id is a positive integer.
func ValidateMovieID(id int) error {
	if id <= 0 {
		return fmt.Errorf("id must be a positive integer")
	}
	return nil
}

// ValidatePage validates a search page number. Returns an error if the
// page is out of range for the metadata provider.
func ValidatePage(page int) error {
	if page < 1 || page > 500 {
		return fmt.Errorf("page must be between 1 and 500")
	}
	return nil
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}

// WriteError writes an error response to the HTTP response writer.
// It takes a response writer, error message, and HTTP status code.
func WriteError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	}); err != nil {
		slog.Error("Failed to encode error response", slog.Any("error", err))
	}
}
