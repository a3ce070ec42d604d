package engine

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/icco/watchlist/lib/apierr"
	"github.com/icco/watchlist/lib/validation"
	"github.com/icco/watchlist/models"
)

// State is the session lifecycle state.
type State int

const (
	StateLocked State = iota
	StateUnlocking
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateUnlocking:
		return "unlocking"
	case StateUnlocked:
		return "unlocked"
	default:
		return "locked"
	}
}

// Notice is a user-visible message.
type Notice struct {
	Message string
	IsError bool
}

// Listener receives engine events. The engine owns all state and never
// renders; UI layers subscribe and redraw from the published snapshots.
type Listener interface {
	MoviesChanged(movies []models.Movie)
	SessionChanged(state State, list *ListInfo)
	SearchChanged(view SearchView)
	NoticePosted(notice Notice)
}

// Config configures an Engine.
type Config struct {
	BaseURL string

	// PollInterval is the background refresh cadence. Defaults to 20s.
	PollInterval time.Duration

	// RequestTimeout bounds every network call. Defaults to 15s.
	RequestTimeout time.Duration

	// MinQueryLength gates search network calls. Defaults to 2.
	MinQueryLength int
}

// Engine keeps a local mirror of one list's movies consistent with the
// server while giving immediate feedback for mutations. One Engine is one
// session context; there are no process-wide singletons.
//
// All state lives behind a single mutex. Network calls are issued outside
// the lock, so mutations on different movies may be in flight concurrently;
// per-movie ordering is enforced only by the pending guard.
type Engine struct {
	cfg      Config
	listener Listener
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	client     *Client
	list       *ListInfo
	movies     []models.Movie
	refreshing bool
	pending    map[uint]struct{}
	details    *bundleCache
	searchGen  uint64
	searchStop context.CancelFunc
	searchView SearchView
	pollStop   context.CancelFunc
}

// New creates a locked Engine. listener may be nil.
func New(cfg Config, listener Listener, logger *slog.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = 2
	}
	return &Engine{
		cfg:      cfg,
		listener: listener,
		logger:   logger,
		state:    StateLocked,
		pending:  make(map[uint]struct{}),
		details:  newBundleCache(),
	}
}

// State returns the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// List returns the unlocked list identity, or nil while locked.
func (e *Engine) List() *ListInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.list
}

// Movies returns a copy of the local movie cache.
func (e *Engine) Movies() []models.Movie {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Movie(nil), e.movies...)
}

// Sections splits the cache into the two rendered collections: unwatched
// movies newest-added first, then watched movies most recently updated
// first.
func (e *Engine) Sections() (watchlist, watched []models.Movie) {
	for _, m := range e.Movies() {
		if m.Watched {
			watched = append(watched, m)
		} else {
			watchlist = append(watchlist, m)
		}
	}
	sort.SliceStable(watchlist, func(i, j int) bool {
		return watchlist[i].CreatedAt.After(watchlist[j].CreatedAt)
	})
	sort.SliceStable(watched, func(i, j int) bool {
		return watched[i].UpdatedAt.After(watched[j].UpdatedAt)
	})
	return watchlist, watched
}

// Unlock authenticates with the given password by fetching the full list.
// On success the cache is repopulated and background refresh starts. An
// unauthorized outcome here is a credential error for the caller to
// surface; it does not go through session teardown.
func (e *Engine) Unlock(ctx context.Context, secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrMissingSecret
	}

	e.mu.Lock()
	switch e.state {
	case StateUnlocking:
		e.mu.Unlock()
		return ErrUnlockInProgress
	case StateUnlocked:
		e.mu.Unlock()
		return nil
	}
	e.state = StateUnlocking
	client := NewClient(e.cfg.BaseURL, secret, e.cfg.RequestTimeout, e.logger)
	e.mu.Unlock()
	e.publishSession()

	resp, err := client.Movies(ctx)
	if err != nil {
		e.mu.Lock()
		if e.state == StateUnlocking {
			e.state = StateLocked
		}
		e.mu.Unlock()
		e.publishSession()
		return err
	}

	e.mu.Lock()
	if e.state != StateUnlocking {
		// Lock() was called while the unlock fetch was in flight. The
		// session stays down; the late response must not resurrect it.
		e.mu.Unlock()
		return ErrLocked
	}
	e.state = StateUnlocked
	e.client = client
	e.list = resp.List
	e.movies = resp.Movies
	e.details = newBundleCache()
	pollCtx, cancel := context.WithCancel(context.Background())
	e.pollStop = cancel
	e.mu.Unlock()

	go e.pollLoop(pollCtx)

	e.publishSession()
	e.publishMovies()
	return nil
}

// Lock ends the session: background refresh stops, the credential and all
// cached state are dropped.
func (e *Engine) Lock() {
	e.mu.Lock()
	if e.state == StateLocked {
		e.mu.Unlock()
		return
	}
	e.teardownLocked()
	e.mu.Unlock()
	e.publishSession()
}

// pollLoop silently re-fetches the list until the session ends.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Refresh(ctx, true); err != nil && e.logger != nil {
				e.logger.Debug("Background refresh failed", slog.Any("error", err))
			}
		}
	}
}

// Refresh re-fetches the full list. Quiet refreshes are skipped while
// another load is in flight and never surface errors to the user. The
// server response is authoritative, except that rows with a pending
// mutation keep their local value until the mutation settles.
func (e *Engine) Refresh(ctx context.Context, quiet bool) error {
	e.mu.Lock()
	if e.state != StateUnlocked {
		e.mu.Unlock()
		return ErrLocked
	}
	if e.refreshing {
		e.mu.Unlock()
		return nil
	}
	e.refreshing = true
	client := e.client
	e.mu.Unlock()

	resp, err := client.Movies(ctx)

	e.mu.Lock()
	e.refreshing = false
	if err != nil {
		e.mu.Unlock()
		if apierr.IsUnauthorized(err) {
			e.forceLock()
		} else if !quiet {
			e.publishNotice(Notice{Message: "Could not load movies.", IsError: true})
		}
		return err
	}
	if e.state != StateUnlocked {
		e.mu.Unlock()
		return nil
	}
	e.movies = mergeRefresh(resp.Movies, e.movies, e.pending)
	if resp.List != nil {
		e.list = resp.List
	}
	e.mu.Unlock()
	e.publishMovies()
	return nil
}

// mergeRefresh applies the server snapshot, keeping the local copy of any
// row whose optimistic mutation has not settled yet. This avoids a visible
// flicker back to the pre-mutation value when a refresh races a mutation.
func mergeRefresh(server, local []models.Movie, pending map[uint]struct{}) []models.Movie {
	if len(pending) == 0 {
		return server
	}
	byID := make(map[uint]models.Movie, len(local))
	for _, m := range local {
		byID[m.ID] = m
	}
	for i := range server {
		if _, ok := pending[server[i].ID]; !ok {
			continue
		}
		if localCopy, ok := byID[server[i].ID]; ok {
			server[i] = localCopy
		}
	}
	return server
}

// ToggleWatched flips the watched flag optimistically and confirms with the
// server. A second toggle while the first is pending is rejected.
func (e *Engine) ToggleWatched(ctx context.Context, id uint) error {
	var target bool
	return e.runMutation(ctx, id, fieldMutation{
		apply: func(m *models.Movie) {
			target = !m.Watched
			m.Watched = target
		},
		call: func(ctx context.Context, c *Client) (*models.Movie, error) {
			return c.SetWatched(ctx, id, target)
		},
		failMessage: "Could not update watched state.",
	})
}

// SetRating sets or clears (nil) the rating optimistically and confirms
// with the server. Non-nil values are normalized to the nearest half step.
func (e *Engine) SetRating(ctx context.Context, id uint, rating *float64) error {
	var normalized *float64
	if rating != nil {
		v := validation.NormalizeHalfStep(*rating)
		normalized = &v
	}
	return e.runMutation(ctx, id, fieldMutation{
		apply: func(m *models.Movie) {
			m.Rating = normalized
		},
		call: func(ctx context.Context, c *Client) (*models.Movie, error) {
			return c.SetRating(ctx, id, normalized)
		},
		failMessage: "Could not save rating.",
	})
}

// fieldMutation is one optimistic field change: a local apply step and the
// server call that confirms it.
type fieldMutation struct {
	apply       func(m *models.Movie)
	call        func(ctx context.Context, c *Client) (*models.Movie, error)
	failMessage string
}

// runMutation is the optimistic mutation protocol: guard, snapshot, apply
// locally, call the server, then commit the server's record or roll back to
// the snapshot. The pending guard is released on every exit path.
func (e *Engine) runMutation(ctx context.Context, id uint, mut fieldMutation) error {
	e.mu.Lock()
	if e.state != StateUnlocked {
		e.mu.Unlock()
		return ErrLocked
	}
	if _, ok := e.pending[id]; ok {
		e.mu.Unlock()
		return ErrMutationPending
	}
	idx := indexOf(e.movies, id)
	if idx < 0 {
		e.mu.Unlock()
		return ErrUnknownMovie
	}
	snapshot := e.movies[idx]
	e.pending[id] = struct{}{}
	mut.apply(&e.movies[idx])
	e.movies[idx].UpdatedAt = time.Now()
	client := e.client
	e.mu.Unlock()
	e.publishMovies()

	movie, err := mut.call(ctx, client)

	e.mu.Lock()
	delete(e.pending, id)
	if err != nil {
		if apierr.IsUnauthorized(err) {
			// Teardown owns the single user-visible notice; no rollback
			// toast on top of it.
			e.mu.Unlock()
			e.forceLock()
			return err
		}
		if i := indexOf(e.movies, id); i >= 0 {
			e.movies[i] = snapshot
		}
		e.mu.Unlock()
		e.publishMovies()
		e.publishNotice(Notice{Message: noticeMessage(err, mut.failMessage), IsError: true})
		return err
	}
	e.upsertLocked(*movie, false)
	e.mu.Unlock()
	e.publishMovies()
	return nil
}

// AddMovie adds a movie by TMDB id. Movies already present locally are
// rejected without a network call; a server-side uniqueness conflict (race
// with another client) gets its own message.
func (e *Engine) AddMovie(ctx context.Context, tmdbID int) error {
	if err := validation.ValidateTMDBID(tmdbID); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state != StateUnlocked {
		e.mu.Unlock()
		return ErrLocked
	}
	for _, m := range e.movies {
		if m.TMDBID == tmdbID {
			e.mu.Unlock()
			e.publishNotice(Notice{Message: "Movie is already in your list."})
			return ErrDuplicate
		}
	}
	client := e.client
	e.mu.Unlock()

	movie, err := client.AddMovie(ctx, tmdbID)
	if err != nil {
		switch {
		case apierr.IsUnauthorized(err):
			e.forceLock()
		case apierr.IsConflict(err):
			e.publishNotice(Notice{Message: "Movie already exists in your watchlist."})
		default:
			e.publishNotice(Notice{Message: noticeMessage(err, "Could not add movie."), IsError: true})
		}
		return err
	}

	e.mu.Lock()
	e.upsertLocked(*movie, true)
	e.mu.Unlock()
	e.publishMovies()
	e.publishNotice(Notice{Message: "Movie added."})
	return nil
}

// Remove deletes a watched movie, optimistically dropping it from the
// cache and restoring it if the server rejects the delete.
func (e *Engine) Remove(ctx context.Context, id uint) error {
	e.mu.Lock()
	if e.state != StateUnlocked {
		e.mu.Unlock()
		return ErrLocked
	}
	if _, ok := e.pending[id]; ok {
		e.mu.Unlock()
		return ErrMutationPending
	}
	idx := indexOf(e.movies, id)
	if idx < 0 {
		e.mu.Unlock()
		return ErrUnknownMovie
	}
	if !e.movies[idx].Watched {
		e.mu.Unlock()
		return ErrNotWatched
	}
	snapshot := e.movies[idx]
	e.pending[id] = struct{}{}
	e.movies = append(e.movies[:idx], e.movies[idx+1:]...)
	client := e.client
	e.mu.Unlock()
	e.publishMovies()

	err := client.RemoveMovie(ctx, id)

	e.mu.Lock()
	delete(e.pending, id)
	if err != nil && !apierr.IsUnauthorized(err) && apierr.KindOf(err) != apierr.KindNotFound {
		e.movies = append(e.movies, snapshot)
		e.mu.Unlock()
		e.publishMovies()
		e.publishNotice(Notice{Message: noticeMessage(err, "Could not remove movie."), IsError: true})
		return err
	}
	e.mu.Unlock()

	if err != nil && apierr.IsUnauthorized(err) {
		e.forceLock()
		return err
	}
	// A 404 means the row is already gone server-side; the local removal
	// stands.
	e.publishMovies()
	return nil
}

// Detail returns the combined metadata bundle for a movie, memoized per
// session.
func (e *Engine) Detail(ctx context.Context, tmdbID int) (*Bundle, error) {
	e.mu.Lock()
	if e.state != StateUnlocked {
		e.mu.Unlock()
		return nil, ErrLocked
	}
	client := e.client
	cache := e.details
	e.mu.Unlock()

	bundle, err := cache.get(ctx, tmdbID, client)
	if err != nil {
		if apierr.IsUnauthorized(err) {
			e.forceLock()
		}
		return nil, err
	}
	return bundle, nil
}

// forceLock tears the session down after an unauthorized outcome: the
// credential is dropped, polling stops, and exactly one consolidated notice
// is posted. Safe to call from any goroutine; a second call is a no-op so
// concurrent 401s cannot stack notices.
func (e *Engine) forceLock() {
	e.mu.Lock()
	if e.state == StateLocked {
		e.mu.Unlock()
		return
	}
	e.teardownLocked()
	e.mu.Unlock()
	e.publishSession()
	e.publishNotice(Notice{Message: "Unauthorized. Please enter the password again.", IsError: true})
}

// teardownLocked clears all session state. Caller holds e.mu.
func (e *Engine) teardownLocked() {
	if e.pollStop != nil {
		e.pollStop()
		e.pollStop = nil
	}
	if e.searchStop != nil {
		e.searchStop()
		e.searchStop = nil
	}
	e.searchGen++
	e.state = StateLocked
	e.client = nil
	e.list = nil
	e.movies = nil
	e.refreshing = false
	e.pending = make(map[uint]struct{})
	e.details = newBundleCache()
	e.searchView = SearchView{}
}

// upsertLocked replaces a movie by id, or inserts it (prepended when
// prepend is set). Caller holds e.mu.
func (e *Engine) upsertLocked(movie models.Movie, prepend bool) {
	if idx := indexOf(e.movies, movie.ID); idx >= 0 {
		e.movies[idx] = movie
		return
	}
	if prepend {
		e.movies = append([]models.Movie{movie}, e.movies...)
		return
	}
	e.movies = append(e.movies, movie)
}

func indexOf(movies []models.Movie, id uint) int {
	for i := range movies {
		if movies[i].ID == id {
			return i
		}
	}
	return -1
}

// noticeMessage prefers the server's client-visible message over the
// generic fallback.
func noticeMessage(err error, fallback string) string {
	if apierr.KindOf(err) != "" && err.Error() != "" {
		return err.Error()
	}
	return fallback
}

func (e *Engine) publishMovies() {
	if e.listener == nil {
		return
	}
	e.listener.MoviesChanged(e.Movies())
}

func (e *Engine) publishSession() {
	if e.listener == nil {
		return
	}
	e.mu.Lock()
	state := e.state
	list := e.list
	e.mu.Unlock()
	e.listener.SessionChanged(state, list)
}

func (e *Engine) publishSearch() {
	if e.listener == nil {
		return
	}
	e.mu.Lock()
	view := e.searchView
	e.mu.Unlock()
	e.listener.SearchChanged(view)
}

func (e *Engine) publishNotice(notice Notice) {
	if e.listener == nil {
		return
	}
	e.listener.NoticePosted(notice)
}
