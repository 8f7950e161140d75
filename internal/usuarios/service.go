// Package usuarios administra cuentas y carga el actor de cada solicitud.
package usuarios

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/auditoria"
	"github.com/redprotege/api/internal/auth"
	"github.com/redprotege/api/internal/notificacion"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/util"
)

// ErrInactivo indica que la cuenta del actor está desactivada.
var ErrInactivo = fmt.Errorf("usuario inactivo: %w", acceso.ErrForbidden)

type store interface {
	Obtener(ctx context.Context, id uuid.UUID) (repo.Usuario, error)
	Listar(ctx context.Context, f Filtro) ([]repo.Usuario, int, error)
	Crear(ctx context.Context, n NuevoUsuario) (repo.Usuario, error)
	Actualizar(ctx context.Context, id uuid.UUID, c Cambios) error
	CambiarActivo(ctx context.Context, id uuid.UUID, activo bool) error
	CambiarClave(ctx context.Context, id uuid.UUID, hash string, requerirCambio bool) error
	Funcionarios(ctx context.Context, ciclo *int64) ([]repo.Usuario, error)
	LimpiarSubroganciasDe(ctx context.Context, id uuid.UUID) error
	Panel(ctx context.Context) (Panel, error)
}

type eventos interface {
	RegistrarEvento(ctx context.Context, ev repo.Evento) error
	ListarEventos(ctx context.Context, f auditoria.FiltroEventos) ([]repo.Evento, int, error)
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// Service concentra los casos de uso de administración de usuarios.
type Service struct {
	repo       store
	eventos    eventos
	tx         txRunner
	notif      notificacion.Notificador
	plantillas *notificacion.Plantillas
}

func NewService(r store, ev eventos, tx txRunner, notif notificacion.Notificador, plantillas *notificacion.Plantillas) *Service {
	if notif == nil {
		notif = notificacion.Noop{}
	}
	if plantillas == nil {
		plantillas = notificacion.NewPlantillas("")
	}
	return &Service{repo: r, eventos: ev, tx: tx, notif: notif, plantillas: plantillas}
}

// Actor carga al usuario y, si subroga a un referente activo, también al titular.
// Siempre lee desde la base: el estado de subrogancia puede cambiar entre solicitudes.
func (s *Service) Actor(ctx context.Context, id uuid.UUID) (acceso.Actor, error) {
	u, err := s.repo.Obtener(ctx, id)
	if err != nil {
		return acceso.Actor{}, err
	}
	if !u.Activo {
		return acceso.Actor{}, ErrInactivo
	}

	a := acceso.Actor{Usuario: u}
	if u.SubroganteDe == nil || u.Rol != repo.RolReferente {
		return a, nil
	}
	titular, err := s.repo.Obtener(ctx, *u.SubroganteDe)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		log.Warn().Str("usuario", u.ID.String()).Msg("subrogancia apunta a un titular inexistente")
	case err != nil:
		return acceso.Actor{}, err
	case titular.EsReferenteActivo():
		a.Titular = &titular
	}
	return a, nil
}

func (s *Service) Obtener(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	return s.repo.Obtener(ctx, id)
}

func (s *Service) Listar(ctx context.Context, f Filtro) ([]repo.Usuario, int, error) {
	return s.repo.Listar(ctx, f)
}

// Funcionarios lista los asignables; para un referente, sólo los del ciclo indicado.
func (s *Service) Funcionarios(ctx context.Context, a acceso.Actor, ciclo *int64) ([]repo.Usuario, error) {
	switch a.Rol() {
	case repo.RolAdmin:
	case repo.RolReferente:
		if ciclo == nil {
			if c, ok := a.Usuario.Ambito.Ciclo(); ok && a.Titular == nil {
				ciclo = &c
			}
		}
	default:
		return nil, acceso.ErrForbidden
	}
	return s.repo.Funcionarios(ctx, ciclo)
}

// DatosUsuario es la entrada de alta y edición.
type DatosUsuario struct {
	NombreCompleto string `json:"nombre_completo"`
	Email          string `json:"email"`
	Rol            string `json:"rol"`
	CicloID        *int64 `json:"ciclo_asignado_id"`
	Clave          string `json:"clave,omitempty"`
}

func (d DatosUsuario) validar(conClave bool) (repo.Rol, error) {
	var msgs []string
	if err := util.Requerido(d.NombreCompleto, "nombre completo"); err != nil {
		msgs = append(msgs, err.Error())
	}
	if err := util.ValidarEmail(d.Email); err != nil {
		msgs = append(msgs, err.Error())
	}
	rol := repo.ParseRol(d.Rol)
	if !rol.Valido() {
		msgs = append(msgs, "rol inválido")
	}
	if d.CicloID != nil && (rol == repo.RolAdmin || rol == repo.RolSolicitante) {
		msgs = append(msgs, "el rol "+rol.String()+" no admite ciclo vital")
	}
	if conClave && d.Clave != "" {
		if err := util.ValidarClave(d.Clave); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return rol, util.NewValidationError(msgs...)
}

// ResultadoAlta incluye la clave temporal sólo cuando no pudo enviarse por correo.
type ResultadoAlta struct {
	Usuario       repo.Usuario `json:"usuario"`
	ClaveTemporal string       `json:"clave_temporal,omitempty"`
	Advertencias  []string     `json:"advertencias,omitempty"`
}

// Crear da de alta una cuenta que deberá cambiar su contraseña en el primer ingreso.
func (s *Service) Crear(ctx context.Context, admin repo.Usuario, d DatosUsuario) (ResultadoAlta, error) {
	rol, err := d.validar(true)
	if err != nil {
		return ResultadoAlta{}, err
	}

	clave := d.Clave
	if clave == "" {
		if clave, err = auth.GenerarClaveTemporal(12); err != nil {
			return ResultadoAlta{}, err
		}
	}
	hash, err := auth.Hash(clave)
	if err != nil {
		return ResultadoAlta{}, err
	}

	var u repo.Usuario
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		u, err = s.repo.Crear(txCtx, NuevoUsuario{
			NombreCompleto:       strings.TrimSpace(d.NombreCompleto),
			Email:                strings.TrimSpace(d.Email),
			ClaveHash:            hash,
			Rol:                  rol,
			Ambito:               repo.AmbitoDesde(d.CicloID),
			CambioClaveRequerido: true,
		})
		if err != nil {
			return err
		}
		return s.eventos.RegistrarEvento(txCtx, auditoria.NuevoEvento(admin, "CREAR_USUARIO",
			fmt.Sprintf("%s (%s) rol %s", u.NombreCompleto, u.Email, u.Rol)))
	})
	if errors.Is(err, repo.ErrConflicto) {
		return ResultadoAlta{}, util.NewValidationError("ya existe un usuario con ese correo")
	}
	if err != nil {
		return ResultadoAlta{}, err
	}

	res := ResultadoAlta{Usuario: u}
	if err := s.enviarCredenciales(ctx, u, clave); err != nil {
		log.Warn().Err(err).Str("usuario", u.ID.String()).Msg("no se pudo enviar credenciales")
		res.ClaveTemporal = clave
		res.Advertencias = append(res.Advertencias, "no se pudo enviar el correo con las credenciales")
	}
	return res, nil
}

func (s *Service) enviarCredenciales(ctx context.Context, u repo.Usuario, clave string) error {
	msg, err := s.plantillas.Credenciales(u, clave)
	if err != nil {
		return err
	}
	return s.notif.Enviar(ctx, msg)
}

// Actualizar edita datos y rol. Cambiar rol o ciclo corta las subrogancias vigentes.
func (s *Service) Actualizar(ctx context.Context, admin repo.Usuario, id uuid.UUID, d DatosUsuario) (repo.Usuario, error) {
	rol, err := d.validar(false)
	if err != nil {
		return repo.Usuario{}, err
	}

	var actualizado repo.Usuario
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		previo, err := s.repo.Obtener(txCtx, id)
		if err != nil {
			return err
		}
		ambito := repo.AmbitoDesde(d.CicloID)
		if err := s.repo.Actualizar(txCtx, id, Cambios{
			NombreCompleto: strings.TrimSpace(d.NombreCompleto),
			Email:          strings.TrimSpace(d.Email),
			Rol:            rol,
			Ambito:         ambito,
		}); err != nil {
			return err
		}
		if previo.Rol != rol || previo.Ambito != ambito {
			if err := s.repo.LimpiarSubroganciasDe(txCtx, id); err != nil {
				return err
			}
		}
		if err := s.eventos.RegistrarEvento(txCtx, auditoria.NuevoEvento(admin, "EDITAR_USUARIO",
			fmt.Sprintf("%s rol %s -> %s", previo.Email, previo.Rol, rol))); err != nil {
			return err
		}
		actualizado, err = s.repo.Obtener(txCtx, id)
		return err
	})
	if errors.Is(err, repo.ErrConflicto) {
		return repo.Usuario{}, util.NewValidationError("ya existe un usuario con ese correo")
	}
	return actualizado, err
}

// CambiarActivo activa o desactiva una cuenta. Un administrador no puede desactivarse a sí mismo.
func (s *Service) CambiarActivo(ctx context.Context, admin repo.Usuario, id uuid.UUID, activo bool) error {
	if id == admin.ID && !activo {
		return util.NewValidationError("no puede desactivar su propia cuenta")
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		u, err := s.repo.Obtener(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.repo.CambiarActivo(txCtx, id, activo); err != nil {
			return err
		}
		accion := "ACTIVAR_USUARIO"
		if !activo {
			accion = "DESACTIVAR_USUARIO"
			if err := s.repo.LimpiarSubroganciasDe(txCtx, id); err != nil {
				return err
			}
		}
		return s.eventos.RegistrarEvento(txCtx, auditoria.NuevoEvento(admin, accion, u.Email))
	})
}

// RestablecerClave genera una clave temporal nueva y la envía por correo.
func (s *Service) RestablecerClave(ctx context.Context, admin repo.Usuario, id uuid.UUID) (ResultadoAlta, error) {
	u, err := s.repo.Obtener(ctx, id)
	if err != nil {
		return ResultadoAlta{}, err
	}
	clave, err := auth.GenerarClaveTemporal(12)
	if err != nil {
		return ResultadoAlta{}, err
	}
	hash, err := auth.Hash(clave)
	if err != nil {
		return ResultadoAlta{}, err
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CambiarClave(txCtx, id, hash, true); err != nil {
			return err
		}
		return s.eventos.RegistrarEvento(txCtx, auditoria.NuevoEvento(admin, "RESTABLECER_CLAVE", u.Email))
	})
	if err != nil {
		return ResultadoAlta{}, err
	}

	res := ResultadoAlta{Usuario: u}
	if err := s.enviarCredenciales(ctx, u, clave); err != nil {
		log.Warn().Err(err).Str("usuario", u.ID.String()).Msg("no se pudo enviar la clave restablecida")
		res.ClaveTemporal = clave
		res.Advertencias = append(res.Advertencias, "no se pudo enviar el correo con la nueva clave")
	}
	return res, nil
}

func (s *Service) Panel(ctx context.Context) (Panel, error) {
	return s.repo.Panel(ctx)
}

func (s *Service) Eventos(ctx context.Context, f auditoria.FiltroEventos) ([]repo.Evento, int, error) {
	return s.eventos.ListarEventos(ctx, f)
}
