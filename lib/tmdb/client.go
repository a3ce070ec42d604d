package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"log/slog"

	"github.com/icco/watchlist/lib/apierr"
	"golang.org/x/time/rate"
)

// posterBase is the image CDN prefix for w500 posters.
const posterBase = "https://image.tmdb.org/t/p/w500"

// Client talks to the TMDB v3 API. All calls go through a shared rate
// limiter since TMDB throttles aggressive clients.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// SearchResult is the filtered projection of a TMDB movie search page.
type SearchResult struct {
	Page         int           `json:"page"`
	TotalPages   int           `json:"total_pages"`
	TotalResults int           `json:"total_results"`
	Results      []SearchMovie `json:"results"`
}

// SearchMovie is one search hit, trimmed to the fields the client renders.
type SearchMovie struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	OriginalTitle string `json:"original_title"`
	ReleaseDate   string `json:"release_date"`
	PosterPath    string `json:"poster_path"`
}

// MovieCore is the subset of a TMDB movie detail needed to build a
// watchlist row.
type MovieCore struct {
	Title            string `json:"title"`
	OriginalTitle    string `json:"original_title"`
	OriginalLanguage string `json:"original_language"`
	PosterPath       string `json:"poster_path"`
}

func NewClient(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    "https://api.themoviedb.org/3",
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(40), 10),
		logger:     logger,
	}
}

// SetBaseURL points the client at a different API host. Used in tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// Search queries the movie search endpoint. Adult titles are excluded and
// results are localized to en-US, matching what the watchlist stores.
func (c *Client) Search(ctx context.Context, query string, page int) (*SearchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	params.Set("page", strconv.Itoa(page))

	raw, err := c.get(ctx, "/search/movie", params)
	if err != nil {
		return nil, err
	}

	var result SearchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &result, nil
}

// Movie fetches the raw movie detail payload. The payload is passed through
// to callers unmodified.
func (c *Client) Movie(ctx context.Context, id int) (json.RawMessage, error) {
	return c.get(ctx, "/movie/"+url.PathEscape(strconv.Itoa(id)), nil)
}

// Credits fetches the raw credits payload for a movie.
func (c *Client) Credits(ctx context.Context, id int) (json.RawMessage, error) {
	return c.get(ctx, "/movie/"+url.PathEscape(strconv.Itoa(id))+"/credits", nil)
}

// Videos fetches the raw videos (trailer listing) payload for a movie.
func (c *Client) Videos(ctx context.Context, id int) (json.RawMessage, error) {
	return c.get(ctx, "/movie/"+url.PathEscape(strconv.Itoa(id))+"/videos", nil)
}

// get performs one rate-limited API request and returns the raw body.
// Upstream failures keep the provider's status and status_message.
func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	params.Set("language", "en-US")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			StatusMessage string `json:"status_message"`
		}
		message := "TMDB request failed"
		if err := json.Unmarshal(body, &payload); err == nil && payload.StatusMessage != "" {
			message = payload.StatusMessage
		}
		return nil, apierr.Upstream(resp.StatusCode, message)
	}

	return json.RawMessage(body), nil
}

// PosterURL builds a full poster image URL, or "" when there is no poster.
func (c *Client) PosterURL(posterPath string) string {
	if posterPath == "" {
		return ""
	}
	return posterBase + posterPath
}

// EnglishTitle picks the best English display title for a movie. English
// originals keep their original title; everything else falls back to the
// localized title.
func EnglishTitle(m MovieCore) string {
	if m.OriginalLanguage == "en" && m.OriginalTitle != "" {
		return m.OriginalTitle
	}
	if m.Title != "" {
		return m.Title
	}
	if m.OriginalTitle != "" {
		return m.OriginalTitle
	}
	return "Untitled"
}
