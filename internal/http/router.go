package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/redprotege/api/internal/actas"
	"github.com/redprotege/api/internal/auditoria"
	"github.com/redprotege/api/internal/casos"
	"github.com/redprotege/api/internal/catalogos"
	"github.com/redprotege/api/internal/config"
	"github.com/redprotege/api/internal/db"
	httpmiddleware "github.com/redprotege/api/internal/http/middleware"
	"github.com/redprotege/api/internal/http/respond"
	"github.com/redprotege/api/internal/notificacion"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/service"
	"github.com/redprotege/api/internal/storage"
	"github.com/redprotege/api/internal/subrogancia"
	"github.com/redprotege/api/internal/usuarios"
)

type Handler struct {
	cfg           *config.Config
	pool          *pgxpool.Pool
	redis         *redis.Client
	authService   *service.AuthService
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
	intakeLimiter *httpmiddleware.RateLimiter
	devCookies    bool
}

// modulos agrupa los handlers de dominio montados por el router.
type modulos struct {
	actores     httpmiddleware.ActorLoader
	catalogos   *catalogos.Handler
	casos       *casos.Handler
	usuarios    *usuarios.Handler
	subrogancia *subrogancia.Handler
}

// NewRouter arma las dependencias y retorna el router configurado.
func NewRouter(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client, authService *service.AuthService) (http.Handler, error) {
	uploader, err := storage.NewUploader(cfg.Storage.Provider, storage.S3Config{
		Endpoint:     cfg.Storage.S3Endpoint,
		Region:       cfg.Storage.S3Region,
		Bucket:       cfg.Storage.S3Bucket,
		AccessKey:    cfg.Storage.S3AccessKey,
		SecretKey:    cfg.Storage.S3SecretKey,
		PublicDomain: cfg.Storage.S3PublicURL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	tx := db.NewTxManager(pool)
	notif := notificacion.NewSMTP(cfg.SMTP)
	plantillas := notificacion.NewPlantillas(cfg.PublicBaseURL)

	auditoriaRepo := auditoria.NewRepository(pool)
	usuariosRepo := usuarios.NewRepository(pool)
	catalogoService := catalogos.NewService(catalogos.NewRepository(pool), redisClient, cfg.CatalogCacheTTL)

	usuariosService := usuarios.NewService(usuariosRepo, auditoriaRepo, tx, notif, plantillas)
	casosService := casos.NewService(casos.Deps{
		Casos:      casos.NewRepository(pool),
		Auditoria:  auditoriaRepo,
		Eventos:    auditoriaRepo,
		Usuarios:   usuariosRepo,
		Catalogos:  catalogoService,
		Actas:      actas.NewPDF(cfg.ActasDir, uploader),
		Tx:         tx,
		Notif:      notif,
		Plantillas: plantillas,
	})
	subroganciaService := subrogancia.NewService(usuariosRepo, auditoriaRepo, catalogoService, tx, notif, plantillas)

	h := newHandler(cfg, authService)
	h.pool = pool
	h.redis = redisClient

	return h.rutas(modulos{
		actores:     usuariosService,
		catalogos:   catalogos.NewHandler(catalogoService),
		casos:       casos.NewHandler(casosService),
		usuarios:    usuarios.NewHandler(usuariosService),
		subrogancia: subrogancia.NewHandler(subroganciaService),
	}), nil
}

func newHandler(cfg *config.Config, authService *service.AuthService) *Handler {
	devCookies := false
	for _, origin := range cfg.AllowOrigins {
		if strings.Contains(origin, "localhost") {
			devCookies = true
			break
		}
	}
	return &Handler{
		cfg:           cfg,
		authService:   authService,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
		intakeLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitIntake.RequestsPerSecond, cfg.RateLimitIntake.Burst),
		devCookies:    devCookies,
	}
}

func (h *Handler) rutas(m modulos) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(h.cfg.AllowOrigins))

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Get("/health", h.Health)
		public.Get("/ready", h.Ready)
		m.catalogos.RegisterRoutes(public)

		public.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Login)
			auth.Post("/refresh", h.Refresh)
			auth.Post("/logout", h.Logout)
		})
	})

	// El formulario público tiene su propio límite, más estricto.
	r.Group(func(intake chi.Router) {
		intake.Use(httpmiddleware.IPRateLimit(h.intakeLimiter))
		m.casos.RegisterPublicRoutes(intake)
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(h.authService.JWT()))
		private.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		private.Get("/me", h.Me)
		private.Post("/auth/clave", h.CambiarClave)

		private.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.RequireRoles(repo.RolAdmin))
			admin.Use(httpmiddleware.CargarActor(m.actores))
			m.usuarios.RegisterAdminRoutes(admin)
		})

		private.Group(func(app chi.Router) {
			app.Use(httpmiddleware.CargarActor(m.actores))
			m.casos.RegisterRoutes(app)
			m.usuarios.RegisterRoutes(app)
			m.subrogancia.RegisterRoutes(app)
		})
	})

	return r
}

// Health responde estado simple.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexiones con Postgres y Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := h.pool.Ping(ctx)
	redisErr := h.redis.Ping(ctx).Err()

	if dbErr != nil || redisErr != nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dependencias no disponibles", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	respond.WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
