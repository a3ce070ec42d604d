package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/icco/watchlist/lib/apierr"
	"github.com/icco/watchlist/lib/gate"
	"github.com/icco/watchlist/lib/store"
	"github.com/icco/watchlist/lib/tmdb"
	"github.com/icco/watchlist/lib/validation"
	"github.com/icco/watchlist/models"
)

type listInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type moviesResponse struct {
	Movies []models.Movie `json:"movies"`
	List   listInfo       `json:"list"`
}

type movieResponse struct {
	Movie *models.Movie `json:"movie"`
}

// writeFailure maps domain errors onto the API error contract. Unexpected
// errors are logged and surfaced as a generic 500.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		err = apierr.Conflict("Movie already exists.")
	case errors.Is(err, store.ErrNotFound):
		err = apierr.NotFound("Movie not found.")
	}

	status := apierr.StatusOf(err)
	if apierr.KindOf(err) == "" && status == http.StatusInternalServerError {
		slog.Error("Request failed", slog.Any("error", err))
		err = errors.New("Request failed.")
	}
	validation.WriteError(w, err, status)
}

// HandleListMovies returns every movie in the authenticated list along with
// the resolved list identity.
func HandleListMovies(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, ok := gate.FromContext(r.Context())
		if !ok {
			writeFailure(w, apierr.Configuration("no list identity on request"))
			return
		}

		movies, err := s.List(r.Context(), list.ID)
		if err != nil {
			writeFailure(w, err)
			return
		}
		if movies == nil {
			movies = []models.Movie{}
		}

		validation.WriteJSON(w, http.StatusOK, moviesResponse{
			Movies: movies,
			List:   listInfo{ID: list.ID, Name: list.Name},
		})
	}
}

type addRequest struct {
	TMDBID int `json:"tmdb_id"`
}

// HandleAddMovie looks the movie up at the metadata provider, normalizes
// title and poster, and inserts it unwatched and unrated.
func HandleAddMovie(s *store.Store, tc *tmdb.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, ok := gate.FromContext(r.Context())
		if !ok {
			writeFailure(w, apierr.Configuration("no list identity on request"))
			return
		}

		var body addRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || validation.ValidateTMDBID(body.TMDBID) != nil {
			writeFailure(w, apierr.Validationf("tmdb_id must be a positive integer."))
			return
		}

		raw, err := tc.Movie(r.Context(), body.TMDBID)
		if err != nil {
			writeFailure(w, err)
			return
		}

		var core tmdb.MovieCore
		if err := json.Unmarshal(raw, &core); err != nil {
			slog.Error("Failed to decode TMDB movie", slog.Any("error", err), slog.Int("tmdb_id", body.TMDBID))
			writeFailure(w, err)
			return
		}

		movie := models.Movie{
			TMDBID:  body.TMDBID,
			Title:   tmdb.EnglishTitle(core),
			Watched: false,
			Rating:  nil,
		}
		if posterURL := tc.PosterURL(core.PosterPath); posterURL != "" {
			movie.PosterURL = &posterURL
		}

		if err := s.Create(r.Context(), list.ID, &movie); err != nil {
			writeFailure(w, err)
			return
		}

		validation.WriteJSON(w, http.StatusCreated, movieResponse{Movie: &movie})
	}
}

// updateRequest keeps watched and rating as raw JSON so an explicit null
// rating (clear) is distinguishable from an absent field.
type updateRequest struct {
	ID      int             `json:"id"`
	Watched json.RawMessage `json:"watched"`
	Rating  json.RawMessage `json:"rating"`
}

// HandleUpdateMovie applies a watched toggle and/or a rating change.
func HandleUpdateMovie(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, ok := gate.FromContext(r.Context())
		if !ok {
			writeFailure(w, apierr.Configuration("no list identity on request"))
			return
		}

		var body updateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeFailure(w, apierr.Validationf("invalid JSON body."))
			return
		}
		if err := validation.ValidateMovieID(body.ID); err != nil {
			writeFailure(w, apierr.Validationf("id must be a positive integer."))
			return
		}

		var upd store.Update
		if len(body.Watched) > 0 {
			var watched bool
			if err := json.Unmarshal(body.Watched, &watched); err != nil {
				writeFailure(w, apierr.Validationf("watched must be a boolean."))
				return
			}
			upd.Watched = &watched
		}
		if len(body.Rating) > 0 {
			upd.RatingSet = true
			if string(body.Rating) != "null" {
				var rating float64
				if err := json.Unmarshal(body.Rating, &rating); err != nil || !validation.IsValidHalfStepRating(rating) {
					writeFailure(w, apierr.Validationf("rating must be in 0.5 increments from 0.5 to 5.0."))
					return
				}
				upd.Rating = &rating
			}
		}
		if upd.Empty() {
			writeFailure(w, apierr.Validationf("Provide watched and/or rating to update."))
			return
		}

		movie, err := s.Update(r.Context(), list.ID, uint(body.ID), upd)
		if err != nil {
			writeFailure(w, err)
			return
		}

		validation.WriteJSON(w, http.StatusOK, movieResponse{Movie: movie})
	}
}

type removeRequest struct {
	ID int `json:"id"`
}

// HandleRemoveMovie deletes one movie from the authenticated list.
func HandleRemoveMovie(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, ok := gate.FromContext(r.Context())
		if !ok {
			writeFailure(w, apierr.Configuration("no list identity on request"))
			return
		}

		var body removeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || validation.ValidateMovieID(body.ID) != nil {
			writeFailure(w, apierr.Validationf("id must be a positive integer."))
			return
		}

		if err := s.Delete(r.Context(), list.ID, uint(body.ID)); err != nil {
			writeFailure(w, err)
			return
		}

		validation.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// HandleSearch proxies movie title search to the metadata provider.
func HandleSearch(tc *tmdb.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeFailure(w, apierr.Validationf("Missing required query parameter: q"))
			return
		}

		page := 1
		if raw := r.URL.Query().Get("page"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || validation.ValidatePage(parsed) != nil {
				writeFailure(w, apierr.Validationf("page must be between 1 and 500."))
				return
			}
			page = parsed
		}

		result, err := tc.Search(r.Context(), query, page)
		if err != nil {
			writeFailure(w, err)
			return
		}
		if result.Results == nil {
			result.Results = []tmdb.SearchMovie{}
		}

		validation.WriteJSON(w, http.StatusOK, result)
	}
}

// metadataFunc fetches one raw metadata payload by TMDB id.
type metadataFunc func(r *http.Request, id int) (json.RawMessage, error)

// handleMetadata is the shared passthrough for the per-movie metadata
// endpoints: the upstream payload is returned unmodified.
func handleMetadata(fetch metadataFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.URL.Query().Get("id"))
		if raw == "" {
			writeFailure(w, apierr.Validationf("Missing required query parameter: id"))
			return
		}
		id, err := strconv.Atoi(raw)
		if err != nil || validation.ValidateTMDBID(id) != nil {
			writeFailure(w, apierr.Validationf("id must be a positive integer."))
			return
		}

		payload, err := fetch(r, id)
		if err != nil {
			writeFailure(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(payload); err != nil {
			slog.Error("Failed to write metadata response", slog.Any("error", err))
		}
	}
}

// HandleMovieMetadata passes through the raw TMDB movie detail.
func HandleMovieMetadata(tc *tmdb.Client) http.HandlerFunc {
	return handleMetadata(func(r *http.Request, id int) (json.RawMessage, error) {
		return tc.Movie(r.Context(), id)
	})
}

// HandleCredits passes through the raw TMDB credits payload.
func HandleCredits(tc *tmdb.Client) http.HandlerFunc {
	return handleMetadata(func(r *http.Request, id int) (json.RawMessage, error) {
		return tc.Credits(r.Context(), id)
	})
}

// HandleVideos passes through the raw TMDB videos payload.
func HandleVideos(tc *tmdb.Client) http.HandlerFunc {
	return handleMetadata(func(r *http.Request, id int) (json.RawMessage, error) {
		return tc.Videos(r.Context(), id)
	})
}

// HandleMethodNotAllowed matches the original API contract for unknown
// methods on known routes.
func HandleMethodNotAllowed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, apierr.New(apierr.KindValidation, http.StatusMethodNotAllowed, "Method not allowed."))
	}
}
