package identity

import (
	"context"

	"github.com/klokku/treasury/internal/apperr"
	log "github.com/sirupsen/logrus"
)

type contextKey string

const IdentityKey contextKey = "identity"

// ErrNoIdentity is a permission failure: nobody is acting.
var ErrNoIdentity = &apperr.Error{Kind: apperr.KindPermission, Message: "identity not found"}

// Current retrieves the request identity from the context. Returns ErrNoIdentity if not present.
func Current(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	if !ok {
		log.Trace("identity not found in context")
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

func CurrentId(ctx context.Context) (int, error) {
	id, err := Current(ctx)
	if err != nil {
		return 0, err
	}
	return id.UserId, nil
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}
