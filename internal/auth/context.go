package auth

import (
	"context"
	"strings"
)

type accountIDKey struct{}
type tokenKey struct{}

// ContextWithAccountID binds the authenticated account identifier to the
// request context.
func ContextWithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey{}, strings.TrimSpace(accountID))
}

// AccountIDFromContext extracts the authenticated account identifier.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(accountIDKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tokenKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
