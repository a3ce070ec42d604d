package registry

import (
	"errors"
	"log/slog"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestResolveNotConfigured(t *testing.T) {
	r := New(nil, "", discard())

	if r.Configured() {
		t.Fatal("Configured() = true for empty registry")
	}
	if _, err := r.Resolve("anything"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Resolve() error = %v, want ErrNotConfigured", err)
	}
}

func TestResolveFallback(t *testing.T) {
	r := New(nil, "hunter2", discard())

	list, err := r.Resolve("hunter2")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if list == nil || list.ID != "main" || list.Name != "Main" {
		t.Errorf("Resolve() = %+v, want synthetic main list", list)
	}

	list, err = r.Resolve("wrong")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if list != nil {
		t.Errorf("Resolve(wrong) = %+v, want nil", list)
	}
}

func TestResolveEmptySecret(t *testing.T) {
	r := New(nil, "hunter2", discard())

	list, err := r.Resolve("")
	if err != nil || list != nil {
		t.Errorf("Resolve(\"\") = %+v, %v, want nil, nil", list, err)
	}
}

func TestResolveTable(t *testing.T) {
	raw := `[
		{"id": "alice", "name": "Alice's Movies", "password": "pw-a"},
		{"id": "bob", "password": "pw-b"}
	]`
	r := New(StaticSource(raw), "", discard())

	tests := []struct {
		name     string
		secret   string
		wantID   string
		wantName string
	}{
		{"named list", "pw-a", "alice", "Alice's Movies"},
		{"name defaults to id", "pw-b", "bob", "bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := r.Resolve(tt.secret)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if list == nil || list.ID != tt.wantID || list.Name != tt.wantName {
				t.Errorf("Resolve() = %+v, want id %q name %q", list, tt.wantID, tt.wantName)
			}
		})
	}

	list, err := r.Resolve("pw-c")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if list != nil {
		t.Errorf("Resolve(unknown) = %+v, want nil", list)
	}
}

func TestTablePrecedenceOverFallback(t *testing.T) {
	raw := `[{"id": "alice", "password": "pw-a"}]`
	r := New(StaticSource(raw), "legacy-secret", discard())

	list, err := r.Resolve("legacy-secret")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if list != nil {
		t.Errorf("Resolve(legacy) = %+v, want nil when a table is configured", list)
	}
}

func TestResolveInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "not json at all"},
		{"empty array", "[]"},
		{"empty id", `[{"id": "  ", "password": "pw"}]`},
		{"empty password", `[{"id": "alice", "password": ""}]`},
		{"duplicate password", `[{"id": "a", "password": "pw"}, {"id": "b", "password": "pw"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(StaticSource(tt.raw), "", discard())
			if _, err := r.Resolve("pw"); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Resolve() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadCachesUnchangedSource(t *testing.T) {
	calls := 0
	source := func() ([]byte, error) {
		calls++
		return []byte(`[{"id": "alice", "password": "pw-a"}]`), nil
	}
	r := New(source, "", discard())

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve("pw-a"); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if calls != 3 {
		t.Errorf("source read %d times, want 3 (read every resolve)", calls)
	}

	// Parsed table is reused while raw content is unchanged, so the cached
	// slice must still be correct after repeated loads.
	list, err := r.Resolve("pw-a")
	if err != nil || list == nil || list.ID != "alice" {
		t.Errorf("Resolve() = %+v, %v after cached loads", list, err)
	}
}
