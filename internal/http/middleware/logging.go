package middleware

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const contextKeyRegistro contextKey = "registro"

// registro acumula lo que los middleware internos saben del solicitante.
// Logging lo crea; Auth y CargarActor lo completan.
type registro struct {
	usuario    string
	rol        string
	subrogando bool
}

func anotarRegistro(ctx context.Context, fn func(*registro)) {
	if reg, ok := ctx.Value(contextKeyRegistro).(*registro); ok {
		fn(reg)
	}
}

// Logging emite una línea "http_request" por solicitud.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inicio := time.Now()
		reg := &registro{}
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), contextKeyRegistro, reg)))

		nivel := zerolog.InfoLevel
		switch {
		case ww.Status() >= 500:
			nivel = zerolog.ErrorLevel
		case ww.Status() >= 400:
			nivel = zerolog.WarnLevel
		}

		ev := log.WithLevel(nivel).
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(inicio)).
			Str("ip", ipCliente(r))
		if reg.usuario != "" {
			ev = ev.Str("usuario", reg.usuario)
		}
		if reg.rol != "" {
			ev = ev.Str("rol", reg.rol).Bool("subrogando", reg.subrogando)
		}
		ev.Msg("http_request")
	})
}
