package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type identityKey struct{}

// Identity carries the authenticated principal for a request. Exactly one of
// UserID or DeviceID is set for authenticated calls; both are zero for
// anonymous device uploads.
type Identity struct {
	UserID           uuid.UUID
	DeviceID         uuid.UUID
	DeviceExternalID string
}

func (id *Identity) IsUser() bool {
	return id != nil && id.UserID != uuid.Nil
}

func (id *Identity) IsDevice() bool {
	return id != nil && id.DeviceID != uuid.Nil
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func GetIdentity(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if id, ok := val.(*Identity); ok {
		return id
	}
	return nil
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
