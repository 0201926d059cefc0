// Package auth adapts the platform bearer-token library to this service.
package auth

import (
	"context"

	platformauth "example.com/training/pkg/platform/auth"
)

// Claims aliases the platform claims type.
type Claims = platformauth.Claims

// Config aliases the platform verification config.
type Config = platformauth.Config

// WithClaims stores claims on ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return platformauth.WithClaims(ctx, claims)
}

// FromContext retrieves claims from ctx.
func FromContext(ctx context.Context) (*Claims, bool) {
	return platformauth.FromContext(ctx)
}
