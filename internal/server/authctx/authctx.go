// Package authctx carries the verified caller identity through a request context.
package authctx

import (
	"context"

	"github.com/Ivan-Madera/autorizador/internal/token"
)

type ctxKey string

const identityKey ctxKey = "auth.identity"

// WithIdentity stores the authenticated (user, session) pair in context.
func WithIdentity(ctx context.Context, id token.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromCtx fetches the authenticated identity from context.
func IdentityFromCtx(ctx context.Context) (token.Identity, bool) {
	v := ctx.Value(identityKey)
	if v == nil {
		return token.Identity{}, false
	}
	id, ok := v.(token.Identity)
	return id, ok
}
