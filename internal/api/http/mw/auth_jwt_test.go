package mw

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-intent-settlement/internal/security"
)

func generateTestKeys(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return priv
}

func createTestToken(t *testing.T, priv *rsa.PrivateKey, sub, aud, iss string, expiry time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		Audience:  jwt.ClaimStrings{aud},
		Issuer:    iss,
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(priv)
	require.NoError(t, err)
	return s
}

func TestJWTMiddleware_PassesSubject(t *testing.T) {
	priv := generateTestKeys(t)
	m := NewJWTMiddleware(&security.RS256Verifier{PubKey: &priv.PublicKey, Aud: "operators", Iss: "settlement"})

	var subject string
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/fees/settle", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, priv, "ops-1", "operators", "settlement", time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops-1", subject)
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	priv := generateTestKeys(t)
	other := generateTestKeys(t)
	m := NewJWTMiddleware(&security.RS256Verifier{PubKey: &priv.PublicKey, Aud: "operators", Iss: "settlement"})

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"no_bearer_prefix", "token"},
		{"malformed", "Bearer not.a.jwt"},
		{"expired", "Bearer " + createTestToken(t, priv, "ops-1", "operators", "settlement", -time.Hour)},
		{"wrong_audience", "Bearer " + createTestToken(t, priv, "ops-1", "users", "settlement", time.Hour)},
		{"wrong_issuer", "Bearer " + createTestToken(t, priv, "ops-1", "operators", "other", time.Hour)},
		{"wrong_key", "Bearer " + createTestToken(t, other, "ops-1", "operators", "settlement", time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := m.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

			req := httptest.NewRequest(http.MethodPost, "/v1/fees/settle", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"name":"unauthorized"`)
		})
	}
}

func TestJWTMiddleware_DisabledPassesThrough(t *testing.T) {
	called := false
	h := NewJWTMiddleware(nil).Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
