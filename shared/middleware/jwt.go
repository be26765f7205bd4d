package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shrimpsense/shrimpsense-api/shared/auth"
	"github.com/shrimpsense/shrimpsense-api/shared/httputil"
)

type contextKey struct{}

var userClaimsKey = contextKey{}

// SessionTokenParser verifies a session token.
type SessionTokenParser interface {
	ParseSessionToken(token string) (*auth.SessionClaims, error)
}

// NewJWTMiddleware rejects requests without a valid bearer session token and
// stores the token's claims in the request context.
func NewJWTMiddleware(parser SessionTokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractAndValidateJWT(r, parser)
			if err != nil {
				httputil.WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), userClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the session claims stored by the JWT middleware.
func ClaimsFromContext(ctx context.Context) (*auth.SessionClaims, bool) {
	claims, ok := ctx.Value(userClaimsKey).(*auth.SessionClaims)
	return claims, ok
}

func extractAndValidateJWT(r *http.Request, parser SessionTokenParser) (*auth.SessionClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errors.New("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return nil, errors.New("invalid authorization header format")
	}

	return parser.ParseSessionToken(parts[1])
}
