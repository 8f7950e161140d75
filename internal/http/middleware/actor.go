package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/http/respond"
	"github.com/redprotege/api/internal/repo"
)

const contextKeyActor contextKey = "actor"

// ActorLoader lee el usuario autenticado y su subrogancia vigente.
type ActorLoader interface {
	Actor(ctx context.Context, id uuid.UUID) (acceso.Actor, error)
}

// CargarActor resuelve el actor en cada solicitud; nunca se reutiliza entre solicitudes.
func CargarActor(loader ActorLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := SubjectUUID(r.Context())
			if err != nil {
				respond.WriteError(w, http.StatusUnauthorized, "AUTH", "identificación inválida", nil)
				return
			}
			actor, err := loader.Actor(r.Context(), id)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				respond.WriteError(w, http.StatusUnauthorized, "AUTH", "usuario no encontrado", nil)
				return
			case errors.Is(err, acceso.ErrForbidden):
				respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", "cuenta desactivada", nil)
				return
			case err != nil:
				log.Error().Err(err).Msg("cargar actor")
				respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error interno", nil)
				return
			}
			anotarRegistro(r.Context(), func(reg *registro) {
				reg.rol = actor.Rol().String()
				reg.subrogando = actor.Subrogando()
			})
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func WithActor(ctx context.Context, a acceso.Actor) context.Context {
	return context.WithValue(ctx, contextKeyActor, a)
}

// GetActor retorna el actor cargado por CargarActor.
func GetActor(ctx context.Context) (acceso.Actor, bool) {
	a, ok := ctx.Value(contextKeyActor).(acceso.Actor)
	return a, ok
}
