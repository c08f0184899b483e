package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/stockbook/stockbook/internal/platform/httpx"
	"github.com/stockbook/stockbook/internal/shared"
)

// Middleware wires Basic authentication and role checks for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Authenticate resolves Basic credentials into the request actor.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		user, err := m.Service.Authenticate(r.Context(), username, password)
		if err != nil {
			if m.Logger != nil {
				if errors.Is(err, shared.ErrInvalidCredentials) {
					m.Logger.Info("authentication rejected", slog.String("username", username), slog.String("path", r.URL.Path))
				} else {
					m.Logger.Error("authentication failed", slog.String("username", username), slog.Any("error", err))
				}
			}
			httpx.RespondError(w, err)
			return
		}
		ctx := shared.ContextWithActor(r.Context(), user.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole ensures the current actor holds at least the given role.
func (m Middleware) RequireRole(minimum string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if !Allows(actor.Role, minimum) {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
