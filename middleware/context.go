package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/jwt-gate/token"
)

// Context key type to avoid collisions
type contextKey string

// ClaimsKey is the context key for verified token claims
const ClaimsKey contextKey = "claims"

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetClaimsFromContext retrieves verified claims from context
func GetClaimsFromContext(ctx context.Context) token.Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(token.Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds verified claims to the context
func WithClaims(ctx context.Context, claims token.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}
