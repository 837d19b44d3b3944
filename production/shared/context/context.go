package context

import (
	"context"
	"net/http"
	"strings"
)

// ActorHeader carries the operator, lab or warehouse user id. It is trusted as sent.
const ActorHeader = "X-Actor-ID"

// AnonymousActor is recorded when a request carries no actor.
const AnonymousActor = "anonymous"

type actorKey struct{}

func NewContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func GetActorFromContext(ctx context.Context) (string, bool) {
	a, ok := ctx.Value(actorKey{}).(string)
	return a, ok && a != ""
}

// Actor returns the request actor or AnonymousActor.
func Actor(ctx context.Context) string {
	if a, ok := GetActorFromContext(ctx); ok {
		return a
	}
	return AnonymousActor
}

// ActorMiddleware copies ActorHeader into the request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			r = r.WithContext(NewContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
