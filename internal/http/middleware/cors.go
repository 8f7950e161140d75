package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	corsCabeceras = "Authorization, Content-Type, X-Requested-With"
	corsMetodos   = "GET,POST,PUT,PATCH,DELETE,OPTIONS"
)

type origenes struct {
	exactos  map[string]bool
	dominios []string // "*.redprotege.cl" se guarda como "redprotege.cl"
}

func nuevosOrigenes(lista []string) origenes {
	o := origenes{exactos: make(map[string]bool, len(lista))}
	for _, entrada := range lista {
		entrada = strings.TrimSpace(entrada)
		switch {
		case entrada == "":
		case strings.HasPrefix(entrada, "*."):
			o.dominios = append(o.dominios, strings.ToLower(entrada[2:]))
		default:
			o.exactos[entrada] = true
		}
	}
	return o
}

// permitido acepta subdominios del comodín pero no el dominio raíz.
func (o origenes) permitido(origen string) bool {
	if origen == "" {
		return false
	}
	if o.exactos[origen] {
		return true
	}
	u, err := url.Parse(origen)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range o.dominios {
		if strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// CORS aplica ALLOW_ORIGINS con credenciales; los preflight terminan aquí.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	permitidos := nuevosOrigenes(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origen := r.Header.Get("Origin"); permitidos.permitido(origen) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origen)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Headers", corsCabeceras)
				h.Set("Access-Control-Allow-Methods", corsMetodos)
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
