package catalogos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/redprotege/api/internal/repo"
)

type stubLoader struct {
	cat   Catalogo
	calls int
}

func (s *stubLoader) Cargar(ctx context.Context) (Catalogo, error) {
	s.calls++
	return s.cat, nil
}

type stubCache struct {
	store map[string]string
}

func (s *stubCache) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	val, ok := s.store[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func (s *stubCache) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if s.store == nil {
		s.store = make(map[string]string)
	}
	switch v := value.(type) {
	case []byte:
		s.store[key] = string(v)
	case string:
		s.store[key] = v
	}
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (s *stubCache) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(s.store, k)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func catalogoDePrueba() Catalogo {
	return Catalogo{
		Ciclos:        []repo.CicloVital{{ID: 1, Nombre: "Infantil"}, {ID: 2, Nombre: "Adulto"}},
		Recintos:      []repo.EntradaCatalogo{{ID: 10, Nombre: "CESFAM Norte"}, {ID: 11, Nombre: "Otro"}},
		Vulneraciones: []repo.EntradaCatalogo{{ID: 20, Nombre: "Maltrato físico"}, {ID: 21, Nombre: "Otro"}},
		Instituciones: []repo.EntradaCatalogo{{ID: 30, Nombre: "Carabineros"}, {ID: 31, Nombre: "Otra institución"}},
	}
}

func TestCatalogoUsaCache(t *testing.T) {
	loader := &stubLoader{cat: catalogoDePrueba()}
	svc := NewService(loader, &stubCache{}, time.Minute)

	for i := 0; i < 3; i++ {
		cat, err := svc.Catalogo(context.Background())
		if err != nil {
			t.Fatalf("catalogo: %v", err)
		}
		if len(cat.Ciclos) != 2 {
			t.Fatalf("unexpected ciclos %+v", cat.Ciclos)
		}
	}
	if loader.calls != 1 {
		t.Fatalf("expected a single load, got %d", loader.calls)
	}

	if err := svc.Invalidar(context.Background()); err != nil {
		t.Fatalf("invalidar: %v", err)
	}
	if _, err := svc.Catalogo(context.Background()); err != nil {
		t.Fatalf("catalogo: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidation, got %d", loader.calls)
	}
}

func TestCatalogoBusquedas(t *testing.T) {
	cat := catalogoDePrueba()
	if r, ok := cat.Recinto(11); !ok || !r.EsOtro() {
		t.Fatalf("expected other recinto")
	}
	if _, ok := cat.Institucion(99); ok {
		t.Fatalf("unexpected institution")
	}
	if cat.NombreCiclo(2) != "Adulto" || cat.NombreCiclo(7) != "-" {
		t.Fatalf("unexpected ciclo names")
	}
}

func TestCatalogoHandler(t *testing.T) {
	h := NewHandler(NewService(&stubLoader{cat: catalogoDePrueba()}, nil, time.Minute))
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalogos", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
