package mw

import (
	"context"
	"net/http"

	"solana-intent-settlement/internal/httputil"
	"solana-intent-settlement/internal/security"
)

// Key for the token subject in ctx
type claimsCtxKey struct{}

// JWTMiddleware guards operator routes with RS256 bearer tokens.
type JWTMiddleware struct {
	verifier *security.RS256Verifier // nil when security.jwt.enabled=false
}

func NewJWTMiddleware(v *security.RS256Verifier) *JWTMiddleware {
	return &JWTMiddleware{verifier: v}
}

func (m *JWTMiddleware) Handler(next http.Handler) http.Handler {
	if m == nil || m.verifier == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.verifier.VerifyBearer(r.Header.Get("Authorization"))
		if err != nil {
			_ = httputil.Error(w, r, http.StatusUnauthorized, httputil.APIError{
				Name:    "unauthorized",
				Message: err.Error(),
			})
			return
		}

		ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SubjectFromContext returns the authenticated token subject, or "".
func SubjectFromContext(ctx context.Context) string {
	if v := ctx.Value(claimsCtxKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
