package auth

import (
	"net/http"
	"strings"

	"github.com/ionlife/ionlife/internal/platform/httpx"
	"github.com/ionlife/ionlife/internal/shared"
)

// Middleware guards routes with bearer-token authentication and role checks.
type Middleware struct {
	service *Service
}

// NewMiddleware constructs the auth middleware.
func NewMiddleware(service *Service) Middleware {
	return Middleware{service: service}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// actor in the request context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		actor, err := m.service.ParseToken(token)
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireRole allows only actors holding one of the given roles. It assumes
// RequireAuth already ran.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if actor.ID == 0 {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
