package http

import (
	"context"
	"net/http"

	"payflow/internal/core/domain"
)

// contextKey is a typed key for request context values.
type contextKey string

const (
	// claimsContextKey holds the raw JWT or OIDC claims, consumed by the OPA middleware.
	claimsContextKey   contextKey = "claims"
	callerContextKey   contextKey = "caller"
	merchantContextKey contextKey = "merchant"
)

func WithCaller(ctx context.Context, c domain.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, c)
}

func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	c, ok := ctx.Value(callerContextKey).(domain.Caller)
	return c, ok
}

func withMerchant(ctx context.Context, m *domain.Merchant) context.Context {
	return context.WithValue(ctx, merchantContextKey, m)
}

func MerchantFromContext(ctx context.Context) (*domain.Merchant, bool) {
	m, ok := ctx.Value(merchantContextKey).(*domain.Merchant)
	return m, ok
}

// ClaimsFromRequest exposes the authenticated token claims to authorization middleware.
func ClaimsFromRequest(r *http.Request) (map[string]any, bool) {
	claims, ok := r.Context().Value(claimsContextKey).(map[string]any)
	return claims, ok
}

func withIdentity(ctx context.Context, claims map[string]any, c domain.Caller) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	return WithCaller(ctx, c)
}
