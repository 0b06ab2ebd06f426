package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/bridalos/bridalos/libs/clock"
)

type ctxKey int

const ctxKeyClaims ctxKey = iota

// Verifier checks staff bearer tokens: RS256 via JWKS when configured and the
// token names a key id, HS256 with the shared secret otherwise.
type Verifier struct {
	Secret string
	JWKS   *JWKSClient
	Clock  clock.Clock
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	now := clock.Real{}.Now()
	if v.Clock != nil {
		now = v.Clock.Now()
	}
	if v.JWKS != nil {
		header, err := ParseHeader(token)
		if err != nil {
			return nil, err
		}
		if header.Alg == "RS256" && header.Kid != "" {
			pub, err := v.JWKS.Get(ctx, header.Kid)
			if err != nil {
				return nil, ErrInvalidToken
			}
			return VerifyRS256(token, pub, now)
		}
	}
	return ParseAndVerifyHS256(token, v.Secret, now)
}

// RequireStaff rejects requests without a valid bearer token and stores the
// verified claims on the request context.
func RequireStaff(next http.Handler, v *Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := v.Verify(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), *claims)))
	})
}

func ContextWithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, c)
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(Claims)
	return c, ok
}
