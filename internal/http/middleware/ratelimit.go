package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/redprotege/api/internal/http/respond"
)

const inactividadLimitador = 10 * time.Minute

// RateLimiter reparte un token bucket por clave (IP o usuario).
type RateLimiter struct {
	limite rate.Limit
	rafaga int

	mu       sync.Mutex
	buckets  map[string]*bucket
	ultimaGC time.Time
}

type bucket struct {
	lim   *rate.Limiter
	visto time.Time
}

func NewRateLimiter(porSegundo float64, rafaga int) *RateLimiter {
	return &RateLimiter{
		limite:  rate.Limit(porSegundo),
		rafaga:  rafaga,
		buckets: make(map[string]*bucket),
	}
}

// Permitir consume un token de la clave.
func (r *RateLimiter) Permitir(clave string) bool {
	ahora := time.Now()

	r.mu.Lock()
	b, ok := r.buckets[clave]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(r.limite, r.rafaga)}
		r.buckets[clave] = b
	}
	b.visto = ahora
	if ahora.Sub(r.ultimaGC) > inactividadLimitador {
		r.ultimaGC = ahora
		for k, v := range r.buckets {
			if ahora.Sub(v.visto) > inactividadLimitador {
				delete(r.buckets, k)
			}
		}
	}
	r.mu.Unlock()

	return b.lim.AllowN(ahora, 1)
}

func (r *RateLimiter) middleware(clave func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if k := clave(req); k != "" && !r.Permitir(k) {
				w.Header().Set("Retry-After", "1")
				respond.WriteError(w, http.StatusTooManyRequests, "RATE_LIMIT", "demasiadas solicitudes, intente más tarde", nil)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// IPRateLimit limita por dirección de origen.
func IPRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return limiter.middleware(ipCliente)
}

// UserRateLimit limita por subject del token; sin token no aplica.
func UserRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return limiter.middleware(func(r *http.Request) string {
		return GetSubject(r.Context())
	})
}

func ipCliente(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		primero, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(primero); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
