package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/phrazzld/filepipe/internal/api/shared"
	"github.com/phrazzld/filepipe/internal/platform/logger"
	"github.com/phrazzld/filepipe/internal/redact"
)

// AuthMiddleware checks HS256 bearer tokens signed with a shared secret.
type AuthMiddleware struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthMiddleware creates an AuthMiddleware for secret.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Authenticate validates the bearer token in the Authorization header and
// adds its subject to the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := m.parser.ParseWithClaims(parts[1], claims, func(*jwt.Token) (interface{}, error) {
			return m.secret, nil
		})
		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			default:
				logger.FromContext(r.Context()).Debug("rejected bearer token", "error", redact.Error(err))
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(shared.WithSubject(r.Context(), claims.Subject)))
	})
}
