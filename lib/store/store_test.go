package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/icco/watchlist/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Movie{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return New(gdb, slog.New(slog.DiscardHandler))
}

func mustCreate(t *testing.T, s *Store, listID string, tmdbID int, title string) *models.Movie {
	t.Helper()
	movie := &models.Movie{TMDBID: tmdbID, Title: title}
	if err := s.Create(context.Background(), listID, movie); err != nil {
		t.Fatalf("Create(%q, %d) error = %v", listID, tmdbID, err)
	}
	return movie
}

func TestCreateAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	mustCreate(t, s, "alice", 27205, "Inception")
	mustCreate(t, s, "alice", 157336, "Interstellar")

	movies, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(movies) != 2 {
		t.Fatalf("List() returned %d movies, want 2", len(movies))
	}
	for _, m := range movies {
		if m.Watched || m.Rating != nil {
			t.Errorf("new movie %q not unwatched and unrated: %+v", m.Title, m)
		}
	}
}

func TestListScopedByList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	mustCreate(t, s, "alice", 27205, "Inception")
	mustCreate(t, s, "bob", 157336, "Interstellar")

	movies, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(movies) != 1 || movies[0].Title != "Inception" {
		t.Errorf("List(alice) = %+v, want only Inception", movies)
	}

	movies, err = s.List(ctx, "nobody")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(movies) != 0 {
		t.Errorf("List(nobody) returned %d movies, want 0", len(movies))
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	mustCreate(t, s, "alice", 27205, "Inception")

	err := s.Create(ctx, "alice", &models.Movie{TMDBID: 27205, Title: "Inception"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate Create() error = %v, want ErrAlreadyExists", err)
	}

	// Same TMDB id in another list is fine.
	if err := s.Create(ctx, "bob", &models.Movie{TMDBID: 27205, Title: "Inception"}); err != nil {
		t.Errorf("Create in other list error = %v", err)
	}
}

func TestUpdateWatchedAndRating(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	movie := mustCreate(t, s, "alice", 27205, "Inception")

	watched := true
	got, err := s.Update(ctx, "alice", movie.ID, Update{Watched: &watched})
	if err != nil {
		t.Fatalf("Update(watched) error = %v", err)
	}
	if !got.Watched {
		t.Error("watched not persisted")
	}

	rating := 4.5
	got, err = s.Update(ctx, "alice", movie.ID, Update{Rating: &rating, RatingSet: true})
	if err != nil {
		t.Fatalf("Update(rating) error = %v", err)
	}
	if got.Rating == nil || *got.Rating != 4.5 {
		t.Errorf("rating = %v, want 4.5", got.Rating)
	}
	if !got.Watched {
		t.Error("rating update clobbered watched")
	}

	// Explicit clear.
	got, err = s.Update(ctx, "alice", movie.ID, Update{RatingSet: true})
	if err != nil {
		t.Fatalf("Update(clear rating) error = %v", err)
	}
	if got.Rating != nil {
		t.Errorf("rating = %v after clear, want nil", got.Rating)
	}
}

func TestUpdateMissingAndCrossList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	movie := mustCreate(t, s, "alice", 27205, "Inception")
	watched := true

	if _, err := s.Update(ctx, "alice", 9999, Update{Watched: &watched}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Update(ctx, "bob", movie.ID, Update{Watched: &watched}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(other list) error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	movie := mustCreate(t, s, "alice", 27205, "Inception")

	if err := s.Delete(ctx, "bob", movie.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(other list) error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "alice", movie.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "alice", movie.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	movies, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(movies) != 0 {
		t.Errorf("List() returned %d movies after delete, want 0", len(movies))
	}
}

func TestUpdateEmpty(t *testing.T) {
	if !(Update{}).Empty() {
		t.Error("zero Update not Empty")
	}
	watched := false
	if (Update{Watched: &watched}).Empty() {
		t.Error("watched Update reported Empty")
	}
	if (Update{RatingSet: true}).Empty() {
		t.Error("rating-clear Update reported Empty")
	}
}
