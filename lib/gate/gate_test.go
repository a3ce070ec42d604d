package gate

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/icco/watchlist/lib/registry"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// identityEcho records the list identity Require attached to the request.
func identityEcho(t *testing.T, got **registry.List) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list, ok := FromContext(r.Context())
		if !ok {
			t.Error("no list identity on request context")
		}
		*got = list
		w.WriteHeader(http.StatusOK)
	})
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return payload.Error
}

func TestRequireAttachesIdentity(t *testing.T) {
	reg := registry.New(registry.StaticSource(`[{"id": "alice", "name": "Alice", "password": "pw-a"}]`), "", discard())

	var got *registry.List
	handler := Require(reg, discard())(identityEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/api/movies", nil)
	req.Header.Set(SecretHeader, "pw-a")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got == nil || got.ID != "alice" || got.Name != "Alice" {
		t.Errorf("attached identity = %+v, want alice", got)
	}
}

func TestRequireRejectsBadCredentials(t *testing.T) {
	reg := registry.New(nil, "hunter2", discard())

	tests := []struct {
		name   string
		secret string
	}{
		{"missing header", ""},
		{"wrong secret", "nope"},
		{"whitespace only", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Require(reg, discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler reached with bad credentials")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/movies", nil)
			if tt.secret != "" {
				req.Header.Set(SecretHeader, tt.secret)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if body := errorBody(t, rec); body != "Unauthorized" {
				t.Errorf("error = %q, want Unauthorized", body)
			}
		})
	}
}

func TestRequireUnconfiguredIsServerError(t *testing.T) {
	reg := registry.New(nil, "", discard())
	handler := Require(reg, discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with unconfigured registry")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/movies", nil)
	req.Header.Set(SecretHeader, "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if body := errorBody(t, rec); body == "Unauthorized" {
		t.Error("misconfiguration reported as Unauthorized")
	}
}

func TestRequireMalformedRegistryKeepsMessage(t *testing.T) {
	reg := registry.New(registry.StaticSource("not json"), "", discard())
	handler := Require(reg, discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with malformed registry")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/movies", nil)
	req.Header.Set(SecretHeader, "pw")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if body := errorBody(t, rec); !strings.Contains(body, "invalid lists configuration") {
		t.Errorf("error = %q, want the registry's configuration message", body)
	}
}
