package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/http/respond"
)

// Recover responde 500 con el sobre estándar ante un panic.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Str("path", r.URL.Path).Msg("panic recuperado")
				respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error interno", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
