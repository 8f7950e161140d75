package middleware

import (
	"net/http"

	"github.com/redprotege/api/internal/http/respond"
	"github.com/redprotege/api/internal/repo"
)

// RequireRoles filtra por el rol del token. Es una barrera gruesa: los
// servicios vuelven a leer el usuario antes de cada decisión.
func RequireRoles(roles ...repo.Rol) func(http.Handler) http.Handler {
	permitidos := make(map[repo.Rol]struct{}, len(roles))
	for _, rol := range roles {
		permitidos[rol] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, nombre := range GetRoles(r.Context()) {
				if _, ok := permitidos[repo.ParseRol(nombre)]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", "acceso restringido", nil)
		})
	}
}
