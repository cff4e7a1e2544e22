package auth

import "context"

type contextKey struct{}

// WithOwner stores the authenticated owner id on the context.
func WithOwner(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, contextKey{}, ownerID)
}

// OwnerID returns the authenticated owner id, or 0 if the request was not
// authenticated.
func OwnerID(ctx context.Context) int64 {
	id, ok := ctx.Value(contextKey{}).(int64)
	if !ok {
		return 0
	}
	return id
}
