package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor ID in context. The actor
// is established by the external authentication layer; this package only
// carries it to the authorization and audit code.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the actor ID from context. The second return is
// false when no actor has been established.
func ActorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorContextKey{}).(int64)
	return id, ok
}
