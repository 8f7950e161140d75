package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/redprotege/api/internal/http/middleware"
	"github.com/redprotege/api/internal/http/respond"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/service"
)

const refreshCookie = "redprotege_refresh"

// Login autentica por email y clave.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
		Clave string `json:"clave"`
	}
	if err := respond.DecodeJSON(r, &payload); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if strings.TrimSpace(payload.Email) == "" || strings.TrimSpace(payload.Clave) == "" {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "email y clave son obligatorios", nil)
		return
	}

	result, err := h.authService.LoginUsuario(r.Context(), payload.Email, payload.Clave)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}
	h.writeLoginSuccess(w, result)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "refresh ausente", nil)
		return
	}

	result, err := h.authService.Refresh(r.Context(), c.Value)
	if err != nil {
		if errors.Is(err, service.ErrRefreshInvalid) || errors.Is(err, service.ErrAccountDisabled) {
			h.clearRefreshCookie(w)
			respond.WriteError(w, http.StatusUnauthorized, "AUTH", "refresh inválido", nil)
			return
		}
		log.Error().Err(err).Msg("refresh")
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error al renovar la sesión", nil)
		return
	}
	h.writeLoginSuccess(w, result)
}

// Logout revoca el refresh token actual.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(refreshCookie); err == nil {
		if err := h.authService.Logout(r.Context(), c.Value); err != nil {
			log.Warn().Err(err).Msg("logout: no se revocó el refresh token")
		}
	}
	h.clearRefreshCookie(w)
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me retorna el perfil del usuario autenticado.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	subject, err := httpmiddleware.SubjectUUID(r.Context())
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "subject inválido", nil)
		return
	}

	profile, roles, err := h.authService.GetMe(r.Context(), subject)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			respond.WriteError(w, http.StatusUnauthorized, "AUTH", "usuario no encontrado", nil)
		case errors.Is(err, service.ErrAccountDisabled):
			respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		default:
			log.Error().Err(err).Msg("me")
			respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "no se pudo cargar el perfil", nil)
		}
		return
	}

	respond.WriteJSON(w, http.StatusOK, map[string]any{
		"user":  profile,
		"roles": roles,
	})
}

// CambiarClave reemplaza la clave propia.
func (h *Handler) CambiarClave(w http.ResponseWriter, r *http.Request) {
	subject, err := httpmiddleware.SubjectUUID(r.Context())
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", "subject inválido", nil)
		return
	}
	var payload struct {
		Actual string `json:"clave_actual"`
		Nueva  string `json:"clave_nueva"`
	}
	if err := respond.DecodeJSON(r, &payload); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	switch err := h.authService.CambiarClave(r.Context(), subject, payload.Actual, payload.Nueva); {
	case err == nil:
		respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, service.ErrClaveDebil):
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "la clave actual no es correcta", nil)
	default:
		log.Error().Err(err).Msg("cambiar clave")
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "no se pudo cambiar la clave", nil)
	}
}

func (h *Handler) handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		respond.WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, service.ErrAccountDisabled):
		respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	default:
		log.Error().Err(err).Msg("login")
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "error al autenticar", nil)
	}
}

func (h *Handler) writeLoginSuccess(w http.ResponseWriter, result *service.LoginResult) {
	h.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiry)

	respond.WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": result.AccessToken,
		"user":         result.Profile,
	})
}

func (h *Handler) cookie(value string) *http.Cookie {
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     refreshCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !h.devCookies,
		SameSite: sameSite,
	}
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	c := h.cookie(token)
	c.Expires = expires
	http.SetCookie(w, c)
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	c := h.cookie("")
	c.MaxAge = -1
	http.SetCookie(w, c)
}
