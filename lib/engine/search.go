package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/icco/watchlist/lib/apierr"
	"github.com/icco/watchlist/lib/tmdb"
)

// SearchView is the published search state. Results and Error are mutually
// exclusive; Loading marks an in-flight query.
type SearchView struct {
	Query   string
	Results []tmdb.SearchMovie
	Loading bool
	Error   string
}

// Search starts a title search for query. Each call supersedes the previous
// one: the prior request is cancelled and its reply, should it arrive
// anyway, is discarded. Queries shorter than the configured minimum reset
// the view without touching the network.
func (e *Engine) Search(query string) error {
	query = strings.TrimSpace(query)

	e.mu.Lock()
	if e.state != StateUnlocked {
		e.mu.Unlock()
		return ErrLocked
	}
	if e.searchStop != nil {
		e.searchStop()
		e.searchStop = nil
	}
	e.searchGen++
	gen := e.searchGen

	if len([]rune(query)) < e.cfg.MinQueryLength {
		e.searchView = SearchView{Query: query}
		e.mu.Unlock()
		e.publishSearch()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.searchStop = cancel
	e.searchView = SearchView{Query: query, Loading: true}
	client := e.client
	e.mu.Unlock()
	e.publishSearch()

	go e.runSearch(ctx, client, query, gen)
	return nil
}

func (e *Engine) runSearch(ctx context.Context, client *Client, query string, gen uint64) {
	result, err := client.SearchMovies(ctx, query, 1)

	if err != nil && apierr.IsUnauthorized(err) {
		e.forceLock()
		return
	}

	e.mu.Lock()
	if gen != e.searchGen {
		// A newer query owns the view now.
		e.mu.Unlock()
		return
	}
	switch {
	case errors.Is(err, context.Canceled):
		e.mu.Unlock()
		return
	case err != nil:
		e.searchView = SearchView{Query: query, Error: "Search failed."}
	default:
		e.searchView = SearchView{Query: query, Results: result.Results}
	}
	e.mu.Unlock()
	e.publishSearch()
}
