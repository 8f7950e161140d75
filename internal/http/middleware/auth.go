package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/redprotege/api/internal/auth"
	"github.com/redprotege/api/internal/http/respond"
)

type contextKey string

const (
	ContextKeySubject  contextKey = "subject"
	ContextKeyAudience contextKey = "audience"
	ContextKeyRoles    contextKey = "roles"
)

// Auth valida el JWT de acceso e inyecta los claims en el contexto.
func Auth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respond.WriteError(w, http.StatusUnauthorized, "AUTH", "token ausente", nil)
				return
			}

			claims, err := jwtManager.ParseAndValidate(parts[1])
			if err != nil {
				respond.WriteError(w, http.StatusUnauthorized, "AUTH", "token inválido", nil)
				return
			}

			if len(claims.Audience) == 0 {
				respond.WriteError(w, http.StatusUnauthorized, "AUTH", "audience inválida", nil)
				return
			}

			anotarRegistro(r.Context(), func(reg *registro) { reg.usuario = claims.Subject })
			ctx := WithClaims(r.Context(), claims.Subject, claims.Audience[0], claims.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithClaims arma el contexto autenticado; también lo usan las pruebas de handlers.
func WithClaims(ctx context.Context, subject, audience string, roles []string) context.Context {
	ctx = context.WithValue(ctx, ContextKeySubject, subject)
	ctx = context.WithValue(ctx, ContextKeyAudience, audience)
	return context.WithValue(ctx, ContextKeyRoles, roles)
}

// GetSubject recupera el subject del contexto.
func GetSubject(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeySubject).(string)
	return val
}

// SubjectUUID interpreta el subject como id de usuario.
func SubjectUUID(ctx context.Context) (uuid.UUID, error) {
	return uuid.Parse(GetSubject(ctx))
}

// GetAudience recupera la audience del contexto.
func GetAudience(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeyAudience).(string)
	return val
}

// GetRoles recupera los roles del contexto.
func GetRoles(ctx context.Context) []string {
	val, _ := ctx.Value(ContextKeyRoles).([]string)
	return val
}
