package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpseudonym/idbroker/internal/config"
)

func devConfig() *config.Config {
	return &config.Config{OIDC: config.OIDCConfig{InsecureDev: true}}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func echoSubjectHandler(t *testing.T, captured *string) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := SubjectFromContext(r.Context())
		if ok {
			*captured = subject
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewVerifier_DevMode(t *testing.T) {
	verifier, err := NewVerifier(devConfig())
	require.NoError(t, err)

	t.Run("valid token passes subject through", func(t *testing.T) {
		var subject string
		handler := verifier(echoSubjectHandler(t, &subject))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/identity", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "subject-a"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "subject-a", subject)
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		var subject string
		handler := verifier(echoSubjectHandler(t, &subject))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identity", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, subject)
	})

	t.Run("non-bearer header is rejected", func(t *testing.T) {
		handler := verifier(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/identity", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token without sub is rejected", func(t *testing.T) {
		handler := verifier(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/identity", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"aud": "idbroker"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		handler := verifier(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/identity", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("health is skipped", func(t *testing.T) {
		called := false
		handler := verifier(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.True(t, called)
	})
}

func TestNewVerifier_NoMode(t *testing.T) {
	_, err := NewVerifier(&config.Config{})
	assert.Error(t, err)
}

func TestSubjectContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := SubjectFromContext(req.Context())
	assert.False(t, ok)

	ctx := SetSubjectContext(req.Context(), "subject-a")
	subject, ok := SubjectFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "subject-a", subject)
}
