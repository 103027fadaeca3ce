package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/vaidashi/trust-trace-api/internal/models"
	apperrors "github.com/vaidashi/trust-trace-api/pkg/errors"
)

// Headers carrying the caller identity set by the upstream gateway
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorName = "X-Actor-Name"
	HeaderActorRole = "X-Actor-Role"
)

// ActorDirectory resolves the caller of a request
type ActorDirectory interface {
	Resolve(r *http.Request) (models.Actor, error)
}

// HeaderDirectory trusts identity headers injected by an authenticating proxy
type HeaderDirectory struct{}

// Resolve reads the actor from the identity headers
func (HeaderDirectory) Resolve(r *http.Request) (models.Actor, error) {
	actor := models.Actor{
		ID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
		Name: strings.TrimSpace(r.Header.Get(HeaderActorName)),
		Role: models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))),
	}

	if actor.ID == "" {
		return models.Actor{}, apperrors.NewUnauthenticatedError("Missing caller identity")
	}
	if !actor.Role.Valid() {
		return models.Actor{}, apperrors.NewUnauthenticatedError("Unknown caller role")
	}
	if actor.Name == "" {
		actor.Name = actor.ID
	}

	return actor, nil
}

type actorKey struct{}

func withActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// actorFrom returns the actor stored by the authentication middleware
func actorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(models.Actor)
	return actor, ok
}

// authenticate rejects requests without a resolvable caller
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.actors.Resolve(r)
		if err != nil {
			s.respondWithAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}
