package middleware

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the authenticated caller attached by Auth.
type Identity struct {
	PrincipalID uuid.UUID
	Email       string
	AccessID    string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// WithPrincipalID attaches an identity carrying only the principal id.
func WithPrincipalID(ctx context.Context, principalID uuid.UUID) context.Context {
	return WithIdentity(ctx, Identity{PrincipalID: principalID})
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func PrincipalIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := IdentityFromContext(ctx)
	return id.PrincipalID
}
