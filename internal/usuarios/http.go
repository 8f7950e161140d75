package usuarios

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/auditoria"
	httpmiddleware "github.com/redprotege/api/internal/http/middleware"
	"github.com/redprotege/api/internal/http/respond"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/util"
)

// Handler expone la administración de usuarios.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterAdminRoutes monta las rutas de /admin; el llamador exige rol Admin.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Get("/usuarios", h.handleListar)
		r.Post("/usuarios", h.handleCrear)
		r.Get("/usuarios/{id}", h.handleObtener)
		r.Put("/usuarios/{id}", h.handleActualizar)
		r.Post("/usuarios/{id}/activo", h.handleActivo)
		r.Post("/usuarios/{id}/clave", h.handleRestablecerClave)
		r.Get("/logs", h.handleEventos)
		r.Get("/panel", h.handlePanel)
	})
}

// RegisterRoutes monta las consultas disponibles para quienes asignan casos.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/usuarios/funcionarios", h.handleFuncionarios)
}

func (h *Handler) handleListar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pagina, _ := strconv.Atoi(q.Get("pagina"))
	usuarios, total, err := h.service.Listar(r.Context(), Filtro{
		Texto:  q.Get("q"),
		Rol:    repo.ParseRol(q.Get("rol")),
		Pagina: pagina,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if usuarios == nil {
		usuarios = []repo.Usuario{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"usuarios": usuarios, "total": total})
}

func (h *Handler) handleObtener(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}
	u, err := h.service.Obtener(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) handleCrear(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "sesión requerida", nil)
		return
	}
	var d DatosUsuario
	if err := respond.DecodeJSON(r, &d); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	res, err := h.service.Crear(r.Context(), actor.Usuario, d)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleActualizar(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "sesión requerida", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}
	var d DatosUsuario
	if err := respond.DecodeJSON(r, &d); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	u, err := h.service.Actualizar(r.Context(), actor.Usuario, id, d)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) handleActivo(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "sesión requerida", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}
	var body struct {
		Activo bool `json:"activo"`
	}
	if err := respond.DecodeJSON(r, &body); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := h.service.CambiarActivo(r.Context(), actor.Usuario, id, body.Activo); err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]bool{"activo": body.Activo})
}

func (h *Handler) handleRestablecerClave(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "sesión requerida", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}
	res, err := h.service.RestablecerClave(r.Context(), actor.Usuario, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleEventos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := auditoria.FiltroEventos{Accion: q.Get("accion")}
	f.Pagina, _ = strconv.Atoi(q.Get("pagina"))
	if v := q.Get("usuario_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "usuario_id inválido", nil)
			return
		}
		f.UsuarioID = &id
	}
	for param, destino := range map[string]**time.Time{"desde": &f.Desde, "hasta": &f.Hasta} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		d, err := time.ParseInLocation("2006-01-02", v, util.Now().Location())
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "VALIDATION", param+" debe tener formato AAAA-MM-DD", nil)
			return
		}
		if param == "hasta" {
			d = d.AddDate(0, 0, 1)
		}
		*destino = &d
	}

	eventos, total, err := h.service.Eventos(r.Context(), f)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if eventos == nil {
		eventos = []repo.Evento{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"eventos": eventos, "total": total})
}

func (h *Handler) handlePanel(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Panel(r.Context())
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleFuncionarios(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "sesión requerida", nil)
		return
	}
	var ciclo *int64
	if v := r.URL.Query().Get("ciclo"); v != "" {
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "ciclo inválido", nil)
			return
		}
		ciclo = &c
	}
	lista, err := h.service.Funcionarios(r.Context(), actor, ciclo)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if lista == nil {
		lista = []repo.Usuario{}
	}
	respond.WriteJSON(w, http.StatusOK, lista)
}

func handleDomainError(w http.ResponseWriter, err error) {
	var verr *util.ValidationError
	switch {
	case errors.As(err, &verr):
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "datos inválidos", verr.Mensajes)
	case errors.Is(err, acceso.ErrForbidden):
		respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", "sin acceso", nil)
	case errors.Is(err, repo.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "usuario no encontrado", nil)
	case errors.Is(err, repo.ErrConflicto):
		respond.WriteError(w, http.StatusConflict, "CONFLICT", "registro duplicado", nil)
	default:
		log.Error().Err(err).Msg("usuarios handler error")
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error interno", nil)
	}
}
