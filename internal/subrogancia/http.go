package subrogancia

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/acceso"
	httpmiddleware "github.com/redprotege/api/internal/http/middleware"
	"github.com/redprotege/api/internal/http/respond"
	"github.com/redprotege/api/internal/repo"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/subrogancia", h.handleEstado)
	r.Post("/subrogancia", h.handleActivar)
	r.Delete("/subrogancia", h.handleDesactivar)
}

// titularParam lee titular_id; vacío significa el propio actor.
func titularParam(v string) (uuid.UUID, error) {
	if v == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(v)
}

func (h *Handler) handleEstado(w http.ResponseWriter, r *http.Request) {
	a, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "sesión requerida", nil)
		return
	}
	titular, err := titularParam(r.URL.Query().Get("titular_id"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "titular_id inválido", nil)
		return
	}
	est, err := h.service.Estado(r.Context(), a, titular)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, est)
}

type activarRequest struct {
	TitularID    string `json:"titular_id"`
	SubroganteID string `json:"subrogante_id"`
}

func (h *Handler) handleActivar(w http.ResponseWriter, r *http.Request) {
	a, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "sesión requerida", nil)
		return
	}
	var req activarRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	titular, err := titularParam(req.TitularID)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "titular_id inválido", nil)
		return
	}
	candidato, err := uuid.Parse(req.SubroganteID)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "subrogante_id inválido", nil)
		return
	}
	res, err := h.service.Activar(r.Context(), a, titular, candidato)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleDesactivar(w http.ResponseWriter, r *http.Request) {
	a, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "sesión requerida", nil)
		return
	}
	titular, err := titularParam(r.URL.Query().Get("titular_id"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "titular_id inválido", nil)
		return
	}
	res, err := h.service.Desactivar(r.Context(), a, titular)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCandidatoInvalido):
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "datos inválidos", []string{err.Error()})
	case errors.Is(err, acceso.ErrForbidden):
		respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", "sin acceso", nil)
	case errors.Is(err, repo.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "usuario no encontrado", nil)
	case errors.Is(err, repo.ErrConflicto):
		respond.WriteError(w, http.StatusConflict, "CONFLICT", "el titular ya tiene un subrogante", nil)
	default:
		log.Error().Err(err).Msg("subrogancia handler error")
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error interno", nil)
	}
}
