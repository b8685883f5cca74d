package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/openlearn/engage/internal/auth"
	"github.com/openlearn/engage/internal/middleware"
)

// claimsKey is the context key for validated JWT claims.
type claimsKey struct{}

// GetClaims retrieves validated claims from the request context.
// Returns nil when the request was not authenticated.
func GetClaims(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(claimsKey{}).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// BearerAuth is a middleware that validates the Authorization header and
// stores the claims and username on the request context. Only access tokens
// are accepted; refresh tokens are rejected.
func BearerAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
				WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing Authorization header")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
				WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authorization header must be a Bearer token")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
				WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid or expired token")
				return
			}

			if claims.Type != auth.TokenTypeAccess {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
				WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Token is not an access token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			ctx = middleware.SetUsername(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
