package catalogos

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/http/respond"
	"github.com/redprotege/api/internal/repo"
)

const (
	dbTimeout = 3 * time.Second
	cacheKey  = "catalogos:v1"
)

// Catalogo reúne los datos de referencia inmutables.
type Catalogo struct {
	Ciclos        []repo.CicloVital      `json:"ciclos"`
	Recintos      []repo.EntradaCatalogo `json:"recintos"`
	Vulneraciones []repo.EntradaCatalogo `json:"vulneraciones"`
	Instituciones []repo.EntradaCatalogo `json:"instituciones"`
}

func (c Catalogo) Ciclo(id int64) (repo.CicloVital, bool) {
	for _, ciclo := range c.Ciclos {
		if ciclo.ID == id {
			return ciclo, true
		}
	}
	return repo.CicloVital{}, false
}

func (c Catalogo) Recinto(id int64) (repo.EntradaCatalogo, bool) {
	return buscar(c.Recintos, id)
}

func (c Catalogo) Vulneracion(id int64) (repo.EntradaCatalogo, bool) {
	return buscar(c.Vulneraciones, id)
}

func (c Catalogo) Institucion(id int64) (repo.EntradaCatalogo, bool) {
	return buscar(c.Instituciones, id)
}

// NombreCiclo retorna el nombre o "-" si no existe.
func (c Catalogo) NombreCiclo(id int64) string {
	if ciclo, ok := c.Ciclo(id); ok {
		return ciclo.Nombre
	}
	return "-"
}

func buscar(entradas []repo.EntradaCatalogo, id int64) (repo.EntradaCatalogo, bool) {
	for _, e := range entradas {
		if e.ID == id {
			return e, true
		}
	}
	return repo.EntradaCatalogo{}, false
}

// Repository lee los catálogos desde Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Cargar(ctx context.Context) (Catalogo, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var cat Catalogo

	rows, err := r.pool.Query(ctx, `SELECT id, nombre, COALESCE(rango_descripcion, '') FROM catalogo_ciclos ORDER BY id`)
	if err != nil {
		return cat, err
	}
	for rows.Next() {
		var c repo.CicloVital
		if err := rows.Scan(&c.ID, &c.Nombre, &c.RangoDescripcion); err != nil {
			rows.Close()
			return cat, err
		}
		cat.Ciclos = append(cat.Ciclos, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return cat, err
	}

	for tabla, destino := range map[string]*[]repo.EntradaCatalogo{
		"catalogo_recintos":      &cat.Recintos,
		"catalogo_vulneraciones": &cat.Vulneraciones,
		"catalogo_instituciones": &cat.Instituciones,
	} {
		if *destino, err = r.entradas(ctx, tabla); err != nil {
			return cat, err
		}
	}
	return cat, nil
}

func (r *Repository) entradas(ctx context.Context, tabla string) ([]repo.EntradaCatalogo, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, nombre FROM `+tabla+` WHERE activo ORDER BY nombre`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repo.EntradaCatalogo
	for rows.Next() {
		var e repo.EntradaCatalogo
		if err := rows.Scan(&e.ID, &e.Nombre); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertarCiclo agrega un ciclo vital si no existe (usado por el CLI).
func (r *Repository) InsertarCiclo(ctx context.Context, nombre, rango string) (repo.CicloVital, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c := repo.CicloVital{Nombre: nombre, RangoDescripcion: rango}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO catalogo_ciclos (nombre, rango_descripcion)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (nombre) DO UPDATE SET rango_descripcion = EXCLUDED.rango_descripcion
		RETURNING id
	`, nombre, rango).Scan(&c.ID)
	return c, err
}

type loader interface {
	Cargar(ctx context.Context) (Catalogo, error)
}

type cacheCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Service entrega los catálogos con cache en Redis.
type Service struct {
	repo  loader
	cache cacheCommander
	ttl   time.Duration
}

func NewService(repo loader, cache cacheCommander, ttl time.Duration) *Service {
	return &Service{repo: repo, cache: cache, ttl: ttl}
}

func (s *Service) Catalogo(ctx context.Context) (Catalogo, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var cat Catalogo
			if json.Unmarshal(data, &cat) == nil {
				return cat, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("catalogos: cache no disponible")
		}
	}

	cat, err := s.repo.Cargar(ctx)
	if err != nil {
		return Catalogo{}, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(cat); err == nil {
			_ = s.cache.Set(ctx, cacheKey, payload, s.ttl).Err()
		}
	}
	return cat, nil
}

// Invalidar descarta el cache tras cambios de datos de referencia.
func (s *Service) Invalidar(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, cacheKey).Err()
}

// Handler expone los catálogos para los formularios.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/catalogos", h.handleCatalogo)
}

func (h *Handler) handleCatalogo(w http.ResponseWriter, r *http.Request) {
	cat, err := h.service.Catalogo(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("catalogos handler error")
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error interno", nil)
		return
	}
	respond.WriteJSON(w, http.StatusOK, cat)
}
