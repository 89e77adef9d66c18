package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key"

func signToken(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func TestHS256Validator(t *testing.T) {
	validator := NewHS256Validator(testSigningKey)

	t.Run("accepts valid token", func(t *testing.T) {
		token := signToken(t, testSigningKey, jwt.MapClaims{
			"sub": "svc-checkout",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		sub, err := validator.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "svc-checkout", sub)
	})

	t.Run("rejects wrong key", func(t *testing.T) {
		token := signToken(t, "other-key", jwt.MapClaims{"sub": "x"})
		_, err := validator.Validate(token)
		assert.Error(t, err)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		token := signToken(t, testSigningKey, jwt.MapClaims{
			"sub": "x",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := validator.Validate(token)
		assert.Error(t, err)
	})
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := NewHS256Validator(testSigningKey)

	var gotSubject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = GetSubject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	protected := RequireAuth(validator, logger)(next)

	t.Run("missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/identify", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token reaches handler", func(t *testing.T) {
		token := signToken(t, testSigningKey, jwt.MapClaims{
			"sub": "svc-checkout",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		req := httptest.NewRequest(http.MethodPost, "/identify", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "svc-checkout", gotSubject)
	})
}
