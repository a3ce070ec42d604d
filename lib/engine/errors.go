package engine

import "errors"

// Sentinel errors for sync engine operations
var (
	// ErrLocked indicates the session is not unlocked
	ErrLocked = errors.New("watchlist is locked")

	// ErrUnlockInProgress indicates an unlock attempt is already running
	ErrUnlockInProgress = errors.New("unlock already in progress")

	// ErrMissingSecret indicates an empty password was submitted
	ErrMissingSecret = errors.New("missing password")

	// ErrMutationPending indicates another change for the same movie is
	// still waiting for the server
	ErrMutationPending = errors.New("a change for this movie is already pending")

	// ErrUnknownMovie indicates the movie is not in the local cache
	ErrUnknownMovie = errors.New("movie is not in the list")

	// ErrDuplicate indicates the movie is already in the local cache
	ErrDuplicate = errors.New("movie is already in the list")

	// ErrNotWatched indicates a removal of a movie that has not been
	// watched yet
	ErrNotWatched = errors.New("only watched movies can be removed")
)
