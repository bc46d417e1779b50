package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/missions-backend/api/responses"
	pkgAuth "github.com/angelmondragon/missions-backend/pkg/auth"
	"github.com/angelmondragon/missions-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
)

const (
	sessionHeader     = "X-Session-Id"
	sessionQueryParam = "session_id"
	maxSessionIDLen   = 128
)

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			ctx, err := authenticate(r.Context(), cfg, logg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth accepts either a bearer token or an anonymous session id.
// A presented but invalid token is still rejected; requests with neither are
// passed through and left to the handler to refuse.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearerToken(r); token != "" {
				ctx, err := authenticate(r.Context(), cfg, logg, token)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			sessionID := sessionFromRequest(r)
			if sessionID == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(sessionID) > maxSessionIDLen {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id too long"))
				return
			}

			ctx := WithSessionID(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithField(ctx, "session_fp", logger.Fingerprint(sessionID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(ctx context.Context, cfg config.JWTConfig, logg *logger.Logger, token string) (context.Context, error) {
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return ctx, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}

	ctx = WithUserID(ctx, claims.UserID.String())
	ctx = WithRole(ctx, string(claims.Role))
	if logg != nil {
		ctx = logg.WithField(logg.WithUserID(ctx, claims.UserID.String()), "actor_role", string(claims.Role))
	}
	return ctx, nil
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

func sessionFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(sessionHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(sessionQueryParam))
}
