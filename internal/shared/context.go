package shared

import "context"

// Actor identifies the authenticated user behind a request. Core services
// take the actor id as an explicit parameter; this context carrier exists
// only to move the principal from middleware to handlers.
type Actor struct {
	ID       int64
	Username string
	Role     string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor means
// unauthenticated.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
