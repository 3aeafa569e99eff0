package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/filepipe/internal/api/shared"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	valid := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
		Subject:   "uploader-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	expired := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
		Subject:   "uploader-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), jwt.RegisteredClaims{
		Subject:   "uploader-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	noExpiry := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{Subject: "uploader-1"})
	wrongAlg := signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.RegisteredClaims{
		Subject:   "uploader-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	tests := []struct {
		name            string
		authHeader      string
		expectedStatus  int
		expectedSubject string
		expectedBody    string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, "uploader-1", ""},
		{"missing header", "", http.StatusUnauthorized, "", "Authorization header required"},
		{"invalid format", "Token " + valid, http.StatusUnauthorized, "", "Invalid authorization format"},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized, "", "Token expired"},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized, "", "Invalid token"},
		{"missing expiry", "Bearer " + noExpiry, http.StatusUnauthorized, "", "Invalid token"},
		{"wrong algorithm", "Bearer " + wrongAlg, http.StatusUnauthorized, "", "Invalid token"},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized, "", "Invalid token"},
	}

	m := NewAuthMiddleware(testSecret)

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var gotSubject string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotSubject, _ = shared.GetSubject(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/files/local/file", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			w := httptest.NewRecorder()

			m.Authenticate(next).ServeHTTP(w, req)

			assert.Equal(t, tc.expectedStatus, w.Code)
			assert.Equal(t, tc.expectedSubject, gotSubject)
			if tc.expectedBody != "" {
				assert.Contains(t, w.Body.String(), tc.expectedBody)
			}
		})
	}
}
