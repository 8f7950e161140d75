package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/auth"
	"github.com/redprotege/api/internal/repo"
)

func ok(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAuthInyectaClaims(t *testing.T) {
	mgr := auth.NewJWTManager("0123456789abcdef0123456789abcdef", time.Minute)
	id := uuid.New()
	token, _, err := mgr.GenerateAccessToken(id.String(), "redprotege", []string{"Referente"})
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	var got uuid.UUID
	h := Auth(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SubjectUUID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"sin token", "", http.StatusUnauthorized},
		{"token basura", "Bearer xxx", http.StatusUnauthorized},
		{"valido", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
		})
	}
	if got != id {
		t.Fatalf("expected subject %s, got %s", id, got)
	}
}

func TestRequireRoles(t *testing.T) {
	h := RequireRoles(repo.RolAdmin)(http.HandlerFunc(ok))

	for _, tc := range []struct {
		roles  []string
		status int
	}{
		{[]string{"Admin"}, http.StatusOK},
		{[]string{"Referente"}, http.StatusForbidden},
		{nil, http.StatusForbidden},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithClaims(req.Context(), uuid.NewString(), "redprotege", tc.roles))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("roles %v: expected %d got %d", tc.roles, tc.status, rec.Code)
		}
	}
}

func TestIPRateLimit(t *testing.T) {
	h := IPRateLimit(NewRateLimiter(0.001, 2))(http.HandlerFunc(ok))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/publico/casos", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestCORSComodin(t *testing.T) {
	h := CORS([]string{"*.redprotege.cl", "http://localhost:5173"})(http.HandlerFunc(ok))

	for origin, permitido := range map[string]bool{
		"https://app.redprotege.cl": true,
		"https://redprotege.cl":     false,
		"http://localhost:5173":     true,
		"https://evil.example":      false,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin") == origin; got != permitido {
			t.Fatalf("origin %s: allowed=%v want %v", origin, got, permitido)
		}
	}
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}

type stubLoader struct{ rol repo.Rol }

func (s stubLoader) Actor(ctx context.Context, id uuid.UUID) (acceso.Actor, error) {
	return acceso.Actor{Usuario: repo.Usuario{ID: id, Rol: s.rol, Activo: true}}, nil
}

func TestLoggingIncluyeActor(t *testing.T) {
	var buf bytes.Buffer
	anterior := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = anterior }()

	mgr := auth.NewJWTManager("0123456789abcdef0123456789abcdef", time.Minute)
	id := uuid.New()
	token, _, err := mgr.GenerateAccessToken(id.String(), "redprotege", []string{"REFERENTE"})
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	h := chimw.RequestID(Logging(Auth(mgr)(CargarActor(stubLoader{rol: repo.RolReferente})(http.HandlerFunc(ok)))))
	req := httptest.NewRequest(http.MethodGet, "/casos", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var linea map[string]any
	if err := json.Unmarshal(buf.Bytes(), &linea); err != nil {
		t.Fatalf("log line: %v (%q)", err, buf.String())
	}
	if linea["usuario"] != id.String() || linea["rol"] != "Referente" || linea["subrogando"] != false {
		t.Fatalf("missing actor fields: %v", linea)
	}
	if rid, _ := linea["request_id"].(string); rid == "" || linea["status"] != float64(http.StatusOK) {
		t.Fatalf("unexpected request fields: %v", linea)
	}

	buf.Reset()
	Logging(Auth(mgr)(http.HandlerFunc(ok))).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/me", nil))
	var anonima map[string]any
	if err := json.Unmarshal(buf.Bytes(), &anonima); err != nil {
		t.Fatalf("log line: %v", err)
	}
	if anonima["level"] != "warn" || anonima["usuario"] != nil || anonima["rol"] != nil {
		t.Fatalf("unauthenticated request must log at warn without user: %v", anonima)
	}
}
