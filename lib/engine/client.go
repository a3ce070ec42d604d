package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/icco/watchlist/lib/apierr"
	"github.com/icco/watchlist/lib/gate"
	"github.com/icco/watchlist/lib/tmdb"
	"github.com/icco/watchlist/models"
)

// defaultRequestTimeout bounds every API call. Without it a hung request
// would pin a movie's pending guard forever.
const defaultRequestTimeout = 15 * time.Second

// ListInfo is the list identity echoed by the server.
type ListInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MoviesResponse is the full list payload.
type MoviesResponse struct {
	Movies []models.Movie `json:"movies"`
	List   *ListInfo      `json:"list"`
}

// Client is the HTTP client for the watchlist API. One Client is created
// per unlocked session and carries that session's secret.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, secret string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Movies fetches the full movie list.
func (c *Client) Movies(ctx context.Context) (*MoviesResponse, error) {
	var resp MoviesResponse
	if err := c.do(ctx, http.MethodGet, "/api/movies", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddMovie inserts a movie by TMDB id and returns the stored record.
func (c *Client) AddMovie(ctx context.Context, tmdbID int) (*models.Movie, error) {
	return c.movieCall(ctx, http.MethodPost, map[string]any{"tmdb_id": tmdbID})
}

// SetWatched updates the watched flag and returns the stored record.
func (c *Client) SetWatched(ctx context.Context, id uint, watched bool) (*models.Movie, error) {
	return c.movieCall(ctx, http.MethodPatch, map[string]any{"id": id, "watched": watched})
}

// SetRating updates the rating and returns the stored record. A nil rating
// clears it.
func (c *Client) SetRating(ctx context.Context, id uint, rating *float64) (*models.Movie, error) {
	return c.movieCall(ctx, http.MethodPatch, map[string]any{"id": id, "rating": rating})
}

// RemoveMovie deletes a movie from the list.
func (c *Client) RemoveMovie(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, "/api/movies", nil, map[string]any{"id": id}, nil)
}

// SearchMovies queries the title search proxy.
func (c *Client) SearchMovies(ctx context.Context, query string, page int) (*tmdb.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("page", strconv.Itoa(page))

	var result tmdb.SearchResult
	if err := c.do(ctx, http.MethodGet, "/api/tmdb-search", params, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MovieDetail fetches the raw metadata payload for one movie.
func (c *Client) MovieDetail(ctx context.Context, tmdbID int) (json.RawMessage, error) {
	return c.metadataCall(ctx, "/api/tmdb-movie", tmdbID)
}

// Credits fetches the raw credits payload for one movie.
func (c *Client) Credits(ctx context.Context, tmdbID int) (json.RawMessage, error) {
	return c.metadataCall(ctx, "/api/tmdb-credits", tmdbID)
}

// Videos fetches the raw trailer listing for one movie.
func (c *Client) Videos(ctx context.Context, tmdbID int) (json.RawMessage, error) {
	return c.metadataCall(ctx, "/api/tmdb-videos", tmdbID)
}

func (c *Client) movieCall(ctx context.Context, method string, body map[string]any) (*models.Movie, error) {
	var resp struct {
		Movie *models.Movie `json:"movie"`
	}
	if err := c.do(ctx, method, "/api/movies", nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.Movie == nil {
		return nil, fmt.Errorf("server returned no movie")
	}
	return resp.Movie, nil
}

func (c *Client) metadataCall(ctx context.Context, path string, tmdbID int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("id", strconv.Itoa(tmdbID))

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, params, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// do performs one API request. Error payloads are decoded back into apierr
// values so the engine can tell unauthorized, conflict and validation
// failures apart.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(gate.SecretHeader, c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && c.logger != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &payload)
		return apierr.FromStatus(resp.StatusCode, payload.Error)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
