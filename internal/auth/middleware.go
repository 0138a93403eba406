package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// Middleware rejects requests without a valid bearer token. A nil service
// disables the check so a loopback-only server can run without a password.
func Middleware(authService *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authService == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				reject(w, r, apperrors.Unauthorized("missing authorization header"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				reject(w, r, apperrors.Unauthorized("invalid authorization header format"))
				return
			}

			claims, err := authenticate(authService, parts[1])
			if err != nil {
				reject(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(authService *Service, token string) (*Claims, error) {
	claims, err := authService.ValidateAccessToken(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.InvalidToken("invalid access token")
	}
	return claims, nil
}

func reject(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), err)
}

// QueryTokenMiddleware authenticates with ?token=, for browser WebSocket
// clients which cannot set headers.
func QueryTokenMiddleware(authService *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authService == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if token == "" {
				reject(w, r, apperrors.Unauthorized("missing token parameter"))
				return
			}

			claims, err := authenticate(authService, token)
			if err != nil {
				reject(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}
