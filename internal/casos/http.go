package casos

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/acceso"
	httpmiddleware "github.com/redprotege/api/internal/http/middleware"
	"github.com/redprotege/api/internal/http/respond"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/util"
)

const tipoXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler expone la bandeja y las transiciones de casos.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes monta las rutas autenticadas; requiere el actor en el contexto.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/casos", func(r chi.Router) {
		r.Get("/", h.handleBandeja)
		r.Get("/export", h.handleExportar)
		r.Get("/estadisticas", h.handleEstadisticas)
		r.Get("/{id}", h.handleVer)
		r.Post("/{id}/asignar", h.handleAsignar)
		r.Post("/{id}/gestion", h.handleGestionar)
		r.Post("/{id}/cerrar", h.handleCerrar)
		r.Get("/{id}/acta", h.handleActa)
	})
	r.Post("/solicitudes", h.handleIngresar)
}

// RegisterPublicRoutes monta el formulario de ingreso sin sesión.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/publico/casos", h.handleIngresarPublico)
}

func consultaDesde(r *http.Request) (Consulta, error) {
	q := r.URL.Query()
	c := Consulta{Texto: q.Get("q")}
	if v := q.Get("estado"); v != "" {
		e, ok := repo.ParseEstado(v)
		if !ok {
			return c, util.NewValidationError("estado no válido: " + v)
		}
		c.Estado = &e
	}
	c.Pagina, _ = strconv.Atoi(q.Get("pagina"))
	return c, nil
}

func casoID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return uuid.Nil, false
	}
	return id, true
}

func actor(w http.ResponseWriter, r *http.Request) (acceso.Actor, bool) {
	a, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "sesión requerida", nil)
	}
	return a, ok
}

func (h *Handler) handleBandeja(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	q, err := consultaDesde(r)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	pagina, err := h.service.Bandeja(r.Context(), a, q)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, pagina)
}

func (h *Handler) handleExportar(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	q, err := consultaDesde(r)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := h.service.Exportar(r.Context(), a, q, &buf); err != nil {
		handleDomainError(w, err)
		return
	}
	nombre := fmt.Sprintf("casos_%s.xlsx", util.Now().Format("20060102_1504"))
	w.Header().Set("Content-Type", tipoXLSX)
	w.Header().Set("Content-Disposition", `attachment; filename="`+nombre+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleEstadisticas(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	est, err := h.service.Estadisticas(r.Context(), a)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, est)
}

func (h *Handler) handleVer(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := casoID(w, r)
	if !ok {
		return
	}
	d, err := h.service.Ver(r.Context(), a, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, d)
}

type asignarRequest struct {
	FuncionarioID string `json:"funcionario_id"`
}

func (h *Handler) handleAsignar(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := casoID(w, r)
	if !ok {
		return
	}
	var req asignarRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	funcionario, err := uuid.Parse(req.FuncionarioID)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "funcionario_id inválido", nil)
		return
	}
	res, err := h.service.Asignar(r.Context(), a, id, funcionario)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGestionar(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := casoID(w, r)
	if !ok {
		return
	}
	var d DatosGestion
	if err := respond.DecodeJSON(r, &d); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	res, err := h.service.Gestionar(r.Context(), a, id, d)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCerrar(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := casoID(w, r)
	if !ok {
		return
	}
	res, err := h.service.Cerrar(r.Context(), a, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleActa(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := casoID(w, r)
	if !ok {
		return
	}
	ruta, err := h.service.Acta(r.Context(), a, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(ruta)+`"`)
	http.ServeFile(w, r, ruta)
}

func (h *Handler) handleIngresar(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var d DatosIngreso
	if err := respond.DecodeJSON(r, &d); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	res, err := h.service.Ingresar(r.Context(), a, d)
	if errors.Is(err, ErrHoneypot) {
		respond.WriteJSON(w, http.StatusAccepted, nil)
		return
	}
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, res)
}

type ingresoPublicoResponse struct {
	ID    uuid.UUID `json:"id"`
	Folio string    `json:"folio"`
}

func (h *Handler) handleIngresarPublico(w http.ResponseWriter, r *http.Request) {
	var d DatosIngreso
	if err := respond.DecodeJSON(r, &d); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	c, err := h.service.IngresarPublico(r.Context(), d)
	if errors.Is(err, ErrHoneypot) {
		// misma respuesta que un envío aceptado
		respond.WriteJSON(w, http.StatusAccepted, nil)
		return
	}
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, ingresoPublicoResponse{ID: c.ID, Folio: c.Ingreso.Folio})
}

func handleDomainError(w http.ResponseWriter, err error) {
	var verr *util.ValidationError
	switch {
	case errors.As(err, &verr):
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "datos inválidos", verr.Mensajes)
	case errors.Is(err, acceso.ErrForbidden):
		respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", "sin permiso para esta acción", nil)
	case errors.Is(err, ErrSinActa):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "el caso no tiene acta", nil)
	case errors.Is(err, repo.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "caso no encontrado", nil)
	default:
		log.Error().Err(err).Msg("casos handler error")
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error interno", nil)
	}
}
