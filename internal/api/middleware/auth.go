package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/tixdesk/server/internal/api/problem"
	"github.com/tixdesk/server/internal/auth"
	"github.com/tixdesk/server/internal/domain/users"
)

// TokenValidator verifies a bearer token's signature, issuer and expiry.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// IdentityResolver loads the current identity behind a token subject.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, subject string) (auth.Identity, error)
}

// RequireToken rejects requests without a valid bearer token. It does not
// consult the store; the claims are made available via auth.ClaimsFromContext.
func RequireToken(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := verifyBearer(w, r, tokens)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
		})
	}
}

// BearerAuth is the auth gate for protected routes. It verifies the bearer
// token, then resolves the subject against the store so the identity placed
// in the context carries the account's current role, not the one in the
// token. Deleted accounts are rejected as unauthenticated.
func BearerAuth(tokens TokenValidator, resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := verifyBearer(w, r, tokens)
			if !ok {
				return
			}

			identity, err := resolver.ResolveIdentity(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, users.ErrUserNotFound) {
					problem.Write(w, r, problem.KindUnauthenticated, "account no longer exists", err)
					return
				}
				problem.Internal(w, r, "authenticate", err)
				return
			}

			ctx := auth.ContextWithClaims(r.Context(), claims)
			ctx = auth.ContextWithIdentity(ctx, identity)
			logger := zerolog.Ctx(ctx).With().Str("user_id", identity.UserID).Logger()
			ctx = logger.WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func verifyBearer(w http.ResponseWriter, r *http.Request, tokens TokenValidator) (*auth.Claims, bool) {
	token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="tixdesk"`)
		problem.Write(w, r, problem.KindUnauthenticated, "missing bearer token", err)
		return nil, false
	}

	claims, err := tokens.Validate(token)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="tixdesk", error="invalid_token"`)
		problem.Write(w, r, problem.KindUnauthenticated, "invalid or expired token", err)
		return nil, false
	}
	return claims, true
}
