// Package service concentra la autenticación y las sesiones de la API.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/auditoria"
	"github.com/redprotege/api/internal/auth"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/util"
)

// Audience es la única audiencia de tokens emitida por la API.
const Audience = "redprotege"

const (
	largoMinimoClave  = 8
	eventoLogin       = "LOGIN"
	eventoCambioClave = "CAMBIO_CLAVE"
)

var (
	// ErrInvalidCredentials indica falla en la autenticación.
	ErrInvalidCredentials = errors.New("credenciales inválidas")
	// ErrAccountDisabled indica cuenta desactivada.
	ErrAccountDisabled = errors.New("cuenta desactivada")
	// ErrRefreshInvalid indica refresh token inválido o expirado.
	ErrRefreshInvalid = auth.ErrInvalidRefresh
	// ErrClaveDebil indica que la nueva clave no cumple el largo mínimo.
	ErrClaveDebil = errors.New("la nueva clave debe tener al menos 8 caracteres")
)

type usuarioRepository interface {
	Obtener(ctx context.Context, id uuid.UUID) (repo.Usuario, error)
	ObtenerPorEmail(ctx context.Context, email string) (repo.Usuario, error)
	CambiarClave(ctx context.Context, id uuid.UUID, hash string, requerirCambio bool) error
}

type refreshRepository interface {
	Insertar(ctx context.Context, arg repo.InsertRefreshTokenParams) error
	ObtenerPorHash(ctx context.Context, hash string) (repo.TokenRefresh, error)
	Revocar(ctx context.Context, hash string) error
	RevocarOtros(ctx context.Context, subject uuid.UUID, audience, keepHash string) error
}

type eventos interface {
	RegistrarEvento(ctx context.Context, ev repo.Evento) error
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService concentra reglas de autenticación y sesiones.
type AuthService struct {
	usuarios   usuarioRepository
	tokens     refreshRepository
	eventos    eventos
	redis      redisCommander
	jwt        *auth.JWTManager
	refreshTTL time.Duration
}

func NewAuthService(usuarios usuarioRepository, tokens refreshRepository, ev eventos, redisClient redisCommander, jwtMgr *auth.JWTManager, refreshTTL time.Duration) *AuthService {
	return &AuthService{usuarios: usuarios, tokens: tokens, eventos: ev, redis: redisClient, jwt: jwtMgr, refreshTTL: refreshTTL}
}

// JWT expone el gestor de JWT para los middlewares.
func (s *AuthService) JWT() *auth.JWTManager {
	return s.jwt
}

// LoginResult representa el retorno de login y refresh.
type LoginResult struct {
	AccessToken   string
	RefreshToken  string
	Subject       uuid.UUID
	Roles         []string
	Profile       *Perfil
	RefreshExpiry time.Time
}

// Perfil es la vista del usuario autenticado.
type Perfil struct {
	ID                   string  `json:"id"`
	Nombre               string  `json:"nombre"`
	Email                string  `json:"email"`
	Rol                  string  `json:"rol"`
	CicloAsignadoID      *int64  `json:"ciclo_asignado_id"`
	CambioClaveRequerido bool    `json:"cambio_clave_requerido"`
	SubroganteDe         *string `json:"subrogante_de,omitempty"`
}

func perfilDe(u repo.Usuario) *Perfil {
	p := &Perfil{
		ID:                   u.ID.String(),
		Nombre:               u.NombreCompleto,
		Email:                u.Email,
		Rol:                  u.Rol.String(),
		CicloAsignadoID:      u.Ambito.Ptr(),
		CambioClaveRequerido: u.CambioClaveRequerido,
	}
	if u.SubroganteDe != nil {
		id := u.SubroganteDe.String()
		p.SubroganteDe = &id
	}
	return p
}

func rolesDe(u repo.Usuario) []string {
	return []string{strings.ToUpper(u.Rol.String())}
}

// LoginUsuario autentica por email y clave.
func (s *AuthService) LoginUsuario(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.usuarios.ObtenerPorEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Msg("login: usuario no encontrado")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.Verify(password, user.ClaveHash)
	if err != nil {
		log.Warn().Err(err).Msg("login: verify password failed")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Warn().Str("usuario", user.ID.String()).Msg("login: clave inválida")
		return nil, ErrInvalidCredentials
	}
	if !user.Activo || !user.Rol.Valido() {
		return nil, ErrAccountDisabled
	}

	result, err := s.emitir(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.eventos.RegistrarEvento(ctx, auditoria.NuevoEvento(user, eventoLogin, "inicio de sesión")); err != nil {
		log.Warn().Err(err).Msg("login: no se registró el evento")
	}
	return result, nil
}

// Refresh rota el refresh token: el anterior queda revocado.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*LoginResult, error) {
	if rawToken == "" {
		return nil, ErrRefreshInvalid
	}

	hash := auth.HashRefreshToken(rawToken)
	record, err := s.tokens.ObtenerPorHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}
	if record.Revocado || util.Now().After(record.ExpiraEn) || record.Audience != Audience {
		return nil, ErrRefreshInvalid
	}

	redisKey := auth.ClaveSesion(Audience, hash)
	status, err := s.redis.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}
	if status != "active" {
		return nil, ErrRefreshInvalid
	}

	user, err := s.usuarios.Obtener(ctx, record.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}
	if !user.Activo {
		return nil, ErrAccountDisabled
	}

	result, err := s.emitir(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Revocar(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if err := s.redis.Del(ctx, redisKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return result, nil
}

// Logout revoca el refresh token actual; sin token no hace nada.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	hash := auth.HashRefreshToken(rawToken)
	if err := s.tokens.Revocar(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err := s.redis.Del(ctx, auth.ClaveSesion(Audience, hash)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// GetMe relee el usuario del token; una cuenta desactivada ya no obtiene perfil.
func (s *AuthService) GetMe(ctx context.Context, subject uuid.UUID) (*Perfil, []string, error) {
	user, err := s.usuarios.Obtener(ctx, subject)
	if err != nil {
		return nil, nil, err
	}
	if !user.Activo {
		return nil, nil, ErrAccountDisabled
	}
	return perfilDe(user), rolesDe(user), nil
}

// CambiarClave reemplaza la clave propia verificando la actual.
func (s *AuthService) CambiarClave(ctx context.Context, subject uuid.UUID, actual, nueva string) error {
	if len([]rune(nueva)) < largoMinimoClave {
		return ErrClaveDebil
	}
	user, err := s.usuarios.Obtener(ctx, subject)
	if err != nil {
		return err
	}
	ok, err := auth.Verify(actual, user.ClaveHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	hash, err := auth.Hash(nueva)
	if err != nil {
		return err
	}
	if err := s.usuarios.CambiarClave(ctx, user.ID, hash, false); err != nil {
		return err
	}
	if err := s.eventos.RegistrarEvento(ctx, auditoria.NuevoEvento(user, eventoCambioClave, "clave actualizada por el usuario")); err != nil {
		log.Warn().Err(err).Msg("cambio de clave: no se registró el evento")
	}
	return nil
}

func (s *AuthService) emitir(ctx context.Context, user repo.Usuario) (*LoginResult, error) {
	roles := rolesDe(user)
	token, _, err := s.jwt.GenerateAccessToken(user.ID.String(), Audience, roles)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	expires := util.Now().Add(s.refreshTTL)
	if err := s.persistRefresh(ctx, user.ID, refreshHash, expires); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:   token,
		RefreshToken:  rawRefresh,
		Subject:       user.ID,
		Roles:         roles,
		Profile:       perfilDe(user),
		RefreshExpiry: expires,
	}, nil
}

func (s *AuthService) persistRefresh(ctx context.Context, subject uuid.UUID, hash string, expires time.Time) error {
	err := s.tokens.Insertar(ctx, repo.InsertRefreshTokenParams{
		ID:        uuid.New(),
		Subject:   subject,
		Audience:  Audience,
		TokenHash: hash,
		ExpiraEn:  expires,
		CreadoEn:  util.Now(),
	})
	if err != nil {
		return err
	}

	if err := s.tokens.RevocarOtros(ctx, subject, Audience, hash); err != nil {
		return err
	}

	return s.redis.Set(ctx, auth.ClaveSesion(Audience, hash), "active", time.Until(expires)).Err()
}
