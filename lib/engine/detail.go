package engine

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Bundle is the combined metadata for one movie: the raw detail, credits
// and trailer payloads as the provider returned them.
type Bundle struct {
	Movie   json.RawMessage
	Credits json.RawMessage
	Videos  json.RawMessage
}

// bundleCache memoizes complete bundles per session. Concurrent requests
// for the same movie share one fetch; a failed fetch stores nothing, so the
// next request retries instead of serving a poisoned entry.
type bundleCache struct {
	mu    sync.Mutex
	group singleflight.Group
	done  map[int]*Bundle
}

func newBundleCache() *bundleCache {
	return &bundleCache{done: make(map[int]*Bundle)}
}

func (bc *bundleCache) get(ctx context.Context, tmdbID int, c *Client) (*Bundle, error) {
	bc.mu.Lock()
	if bundle, ok := bc.done[tmdbID]; ok {
		bc.mu.Unlock()
		return bundle, nil
	}
	bc.mu.Unlock()

	v, err, _ := bc.group.Do(strconv.Itoa(tmdbID), func() (any, error) {
		bundle, err := fetchBundle(ctx, tmdbID, c)
		if err != nil {
			return nil, err
		}
		bc.mu.Lock()
		bc.done[tmdbID] = bundle
		bc.mu.Unlock()
		return bundle, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Bundle), nil
}

// fetchBundle loads the three payloads concurrently. All must succeed for
// the bundle to count as complete.
func fetchBundle(ctx context.Context, tmdbID int, c *Client) (*Bundle, error) {
	var bundle Bundle
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := c.MovieDetail(ctx, tmdbID)
		if err != nil {
			return err
		}
		bundle.Movie = raw
		return nil
	})
	g.Go(func() error {
		raw, err := c.Credits(ctx, tmdbID)
		if err != nil {
			return err
		}
		bundle.Credits = raw
		return nil
	})
	g.Go(func() error {
		raw, err := c.Videos(ctx, tmdbID)
		if err != nil {
			return err
		}
		bundle.Videos = raw
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &bundle, nil
}
