// Package authn implements JWT bearer-token authentication middleware for
// the HTTP API (A6).
//
// Grounded on core/pkg/auth/middleware.go's NewMiddleware (Bearer-header
// parsing, fail-closed-without-validator, claims-to-Principal, context
// injection) and core/pkg/auth/context.go's WithPrincipal/GetPrincipal
// context-key convention. Unlike the teacher, PolicyGuard is single-tenant
// at the core (bundles and policy state are never partitioned by tenant);
// TenantID survives here only as an audit-attribution field on Principal,
// never as an authorization or data-partitioning boundary.
package authn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sovereignctl/policyguard/internal/api"
)

// Principal identifies the caller an enforcement or validate request is
// attributed to, for audit purposes only.
type Principal struct {
	Subject  string
	TenantID string
	Roles    []string
}

// Claims are the JWT claims this middleware expects.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}

type contextKey string

const principalKey contextKey = "policyguard_principal"

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext retrieves the Principal a middleware attached to ctx.
func FromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return Principal{}, errors.New("authn: no principal in context")
	}
	return p, nil
}

// Validator parses and validates a bearer token string into Claims.
type Validator struct {
	keyFunc jwt.Keyfunc
}

// NewHMACValidator builds a Validator that verifies HS256-signed tokens
// against a single shared secret, for single-process deployments that
// don't run a separate key-issuing service.
func NewHMACValidator(secret []byte) *Validator {
	if len(secret) == 0 {
		return nil
	}
	return &Validator{
		keyFunc: func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		},
	}
}

// NewRSAValidator builds a Validator that verifies RS256-signed tokens
// against a public key, for deployments fronted by an external identity
// provider.
func NewRSAValidator(keyFunc jwt.Keyfunc) *Validator {
	if keyFunc == nil {
		return nil
	}
	return &Validator{keyFunc: keyFunc}
}

// Validate parses and validates a raw token string.
func (v *Validator) Validate(tokenStr string) (*Claims, error) {
	if v == nil {
		return nil, fmt.Errorf("authn: validator uninitialized")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("authn: token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("authn: invalid token")
	}
	return claims, nil
}

// publicPaths never require authentication.
var publicPaths = map[string]bool{
	"/health":    true,
	"/readiness": true,
}

// Middleware authenticates every request except publicPaths against a
// bearer JWT, attaching a Principal to the request context on success. If
// validator is nil, every non-public request is rejected (fail closed) —
// matching the teacher's own stance that unauthenticated-by-omission is
// never the safe default for a governance API.
func Middleware(validator *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteUnauthorized(w, r, "Missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				api.WriteUnauthorized(w, r, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			if validator == nil {
				api.WriteUnauthorized(w, r, "Authentication not configured")
				return
			}

			claims, err := validator.Validate(parts[1])
			if err != nil {
				api.WriteUnauthorized(w, r, "Invalid or expired token")
				return
			}
			if claims.Subject == "" {
				api.WriteUnauthorized(w, r, "Token subject is required")
				return
			}

			principal := Principal{Subject: claims.Subject, TenantID: claims.TenantID, Roles: claims.Roles}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}
