// Package http provides the HTTP boundary for API keys: the authentication
// middleware, ability checks and the token management handlers.
package http

import (
	"context"

	"github.com/allisson/apikeys/internal/apikey/domain"
)

// tokenKey is a context key type for storing the authenticated token.
type tokenKey struct{}

// WithToken stores the authenticated token in the context.
// This is called by GuardMiddleware after the pipeline accepted the request.
func WithToken(ctx context.Context, token *domain.Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// GetToken retrieves the authenticated token from the context.
// Returns (token, true) if a token is present, or (nil, false) if no token was set.
func GetToken(ctx context.Context) (*domain.Token, bool) {
	token, ok := ctx.Value(tokenKey{}).(*domain.Token)
	return token, ok
}
