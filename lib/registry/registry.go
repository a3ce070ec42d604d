package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// List identifies a named, password-scoped partition of watchlist data.
type List struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

var (
	// ErrNotConfigured indicates that neither a list table nor a fallback
	// secret has been configured.
	ErrNotConfigured = errors.New("no list passwords are configured")

	// ErrInvalidConfig marks a malformed registry source. Callers must keep
	// this distinct from a failed lookup so operators can tell
	// misconfiguration apart from a bad credential.
	ErrInvalidConfig = errors.New("invalid lists configuration")
)

// Source returns the current raw registry configuration.
type Source func() ([]byte, error)

// FileSource reads the registry configuration from a file on every load.
func FileSource(path string) Source {
	return func() ([]byte, error) {
		return os.ReadFile(path)
	}
}

// StaticSource serves a fixed configuration value, e.g. from an env var.
func StaticSource(raw string) Source {
	return func() ([]byte, error) {
		return []byte(raw), nil
	}
}

// Registry resolves a submitted secret to a list identity. It supports a
// multi-list password table (JSON array of {id, password, name}) and a legacy
// single-secret mode that resolves to a synthetic "main" list. The table mode
// takes precedence when both are configured.
type Registry struct {
	source   Source
	fallback string
	logger   *slog.Logger

	mu     sync.Mutex
	raw    []byte
	lists  []List
	loaded bool
}

// New creates a Registry. source may be nil (single-secret mode) and
// fallback may be empty (table mode); at least one should be set for the
// registry to be usable.
func New(source Source, fallback string, logger *slog.Logger) *Registry {
	return &Registry{
		source:   source,
		fallback: fallback,
		logger:   logger,
	}
}

// Configured reports whether any credential source is set at all.
func (r *Registry) Configured() bool {
	return r.source != nil || r.fallback != ""
}

// Resolve matches the provided secret against the configured passwords.
// It returns the matching list, or nil when no list matches. Errors are
// configuration failures, never auth failures.
func (r *Registry) Resolve(secret string) (*List, error) {
	if !r.Configured() {
		return nil, ErrNotConfigured
	}
	if secret == "" {
		return nil, nil
	}

	if r.source != nil {
		lists, err := r.load()
		if err != nil {
			return nil, err
		}
		for i := range lists {
			if lists[i].Password == secret {
				match := lists[i]
				return &match, nil
			}
		}
		return nil, nil
	}

	if secret == r.fallback {
		return &List{ID: "main", Name: "Main"}, nil
	}
	return nil, nil
}

// load returns the parsed list table, reusing the cached table when the raw
// source content has not changed since the previous load.
func (r *Registry) load() ([]List, error) {
	raw, err := r.source()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read source: %w", ErrInvalidConfig, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded && bytes.Equal(raw, r.raw) {
		return r.lists, nil
	}

	lists, err := parseLists(raw)
	if err != nil {
		return nil, err
	}

	r.raw = raw
	r.lists = lists
	r.loaded = true
	if r.logger != nil {
		r.logger.Info("Loaded list registry", slog.Int("lists", len(lists)))
	}
	return lists, nil
}

// parseLists parses and validates the JSON list table. Every entry needs a
// non-empty id and password, names default to the id, and passwords must be
// unique across the table.
func parseLists(raw []byte) ([]List, error) {
	var lists []List
	if err := json.Unmarshal(raw, &lists); err != nil {
		return nil, fmt.Errorf("%w: not a valid JSON array: %w", ErrInvalidConfig, err)
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("%w: no list entries", ErrInvalidConfig)
	}

	seen := make(map[string]string, len(lists))
	for i := range lists {
		lists[i].ID = strings.TrimSpace(lists[i].ID)
		lists[i].Name = strings.TrimSpace(lists[i].Name)
		if lists[i].ID == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty id", ErrInvalidConfig, i)
		}
		if lists[i].Password == "" {
			return nil, fmt.Errorf("%w: list %q has an empty password", ErrInvalidConfig, lists[i].ID)
		}
		if lists[i].Name == "" {
			lists[i].Name = lists[i].ID
		}
		if other, ok := seen[lists[i].Password]; ok {
			return nil, fmt.Errorf("%w: lists %q and %q share a password", ErrInvalidConfig, other, lists[i].ID)
		}
		seen[lists[i].Password] = lists[i].ID
	}
	return lists, nil
}
