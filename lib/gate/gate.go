package gate

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/icco/watchlist/lib/apierr"
	"github.com/icco/watchlist/lib/registry"
	"github.com/icco/watchlist/lib/validation"
)

// SecretHeader is the request header carrying the shared list password.
const SecretHeader = "X-App-Secret"

type contextKey struct{}

// NewContext returns a context carrying the resolved list identity.
func NewContext(ctx context.Context, list *registry.List) context.Context {
	return context.WithValue(ctx, contextKey{}, list)
}

// FromContext returns the list identity attached by Require.
func FromContext(ctx context.Context) (*registry.List, bool) {
	list, ok := ctx.Value(contextKey{}).(*registry.List)
	return list, ok
}

// Require authenticates every request against the registry and attaches the
// resolved list identity to the request context. A missing or mismatched
// credential yields 401; a server with no secret configured at all, or a
// malformed registry, yields 500 so operators can tell misconfiguration
// apart from a bad credential.
func Require(reg *registry.Registry, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !reg.Configured() {
				logger.Error("Rejecting request, no list passwords configured")
				err := apierr.Configuration("server is not configured")
				validation.WriteError(w, err, err.Status)
				return
			}

			secret := strings.TrimSpace(r.Header.Get(SecretHeader))
			if secret == "" {
				err := apierr.Unauthorized("Unauthorized")
				validation.WriteError(w, err, err.Status)
				return
			}

			list, err := reg.Resolve(secret)
			if err != nil {
				// Configuration failures carry the registry's message so the
				// operator-facing signal is not masked as unauthorized.
				logger.Error("List registry is unusable", slog.Any("error", err))
				apiErr := apierr.Configuration(err.Error())
				validation.WriteError(w, apiErr, apiErr.Status)
				return
			}
			if list == nil {
				err := apierr.Unauthorized("Unauthorized")
				validation.WriteError(w, err, err.Status)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), list)))
		})
	}
}
