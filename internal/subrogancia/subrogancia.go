// Package subrogancia permite a un referente titular delegar su ciclo vital en
// otro referente activo. La delegación vive en usuarios.subrogante_de, por lo
// que cada titular tiene a lo sumo un subrogante.
package subrogancia

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/auditoria"
	"github.com/redprotege/api/internal/catalogos"
	"github.com/redprotege/api/internal/notificacion"
	"github.com/redprotege/api/internal/repo"
)

// ErrCandidatoInvalido se retorna envuelto con el motivo concreto del rechazo.
var ErrCandidatoInvalido = errors.New("candidato a subrogante no válido")

type store interface {
	Obtener(ctx context.Context, id uuid.UUID) (repo.Usuario, error)
	SubroganteDe(ctx context.Context, titular uuid.UUID) (*repo.Usuario, error)
	AsignarSubrogancia(ctx context.Context, subrogante, titular uuid.UUID) error
	LimpiarSubrogancia(ctx context.Context, subrogante uuid.UUID) error
	ReferentesActivos(ctx context.Context) ([]repo.Usuario, error)
}

type eventos interface {
	RegistrarEvento(ctx context.Context, ev repo.Evento) error
}

type proveedorCatalogo interface {
	Catalogo(ctx context.Context) (catalogos.Catalogo, error)
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type Service struct {
	repo       store
	eventos    eventos
	catalogos  proveedorCatalogo
	tx         txRunner
	notif      notificacion.Notificador
	plantillas *notificacion.Plantillas
}

func NewService(r store, ev eventos, cat proveedorCatalogo, tx txRunner, notif notificacion.Notificador, plantillas *notificacion.Plantillas) *Service {
	if notif == nil {
		notif = notificacion.Noop{}
	}
	if plantillas == nil {
		plantillas = notificacion.NewPlantillas("")
	}
	return &Service{repo: r, eventos: ev, catalogos: cat, tx: tx, notif: notif, plantillas: plantillas}
}

// Resultado de activar o desactivar; las advertencias no revierten el cambio.
type Resultado struct {
	Titular      repo.Usuario  `json:"titular"`
	Subrogante   *repo.Usuario `json:"subrogante"`
	Advertencias []string      `json:"advertencias,omitempty"`
}

// Estado describe la delegación vigente de un titular y quiénes pueden recibirla.
type Estado struct {
	Titular    repo.Usuario   `json:"titular"`
	Subrogante *repo.Usuario  `json:"subrogante"`
	Candidatos []repo.Usuario `json:"candidatos"`
	// SubrogaA es el titular al que el propio actor subroga, si corresponde.
	SubrogaA *repo.Usuario `json:"subroga_a,omitempty"`
}

// titular resuelve sobre quién actúa a: un referente sólo sobre sí mismo, un admin sobre cualquiera.
func (s *Service) titular(ctx context.Context, a acceso.Actor, id uuid.UUID) (repo.Usuario, error) {
	if id == uuid.Nil {
		id = a.ID()
	}
	switch a.Rol() {
	case repo.RolAdmin:
	case repo.RolReferente:
		if id != a.ID() {
			return repo.Usuario{}, acceso.ErrForbidden
		}
	default:
		return repo.Usuario{}, acceso.ErrForbidden
	}

	t, err := s.repo.Obtener(ctx, id)
	if err != nil {
		return repo.Usuario{}, err
	}
	if !t.EsReferenteActivo() {
		return repo.Usuario{}, fmt.Errorf("%w: el titular debe ser un referente activo", ErrCandidatoInvalido)
	}
	return t, nil
}

func validarCandidato(titular, c repo.Usuario) error {
	switch {
	case c.ID == titular.ID:
		return fmt.Errorf("%w: no puede subrogarse a sí mismo", ErrCandidatoInvalido)
	case !c.Activo:
		return fmt.Errorf("%w: el usuario está inactivo", ErrCandidatoInvalido)
	case c.Rol != repo.RolReferente:
		return fmt.Errorf("%w: sólo un referente puede subrogar", ErrCandidatoInvalido)
	case c.SubroganteDe != nil && *c.SubroganteDe != titular.ID:
		return fmt.Errorf("%w: ya subroga a otro titular", ErrCandidatoInvalido)
	}
	return nil
}

// Activar designa al subrogante del titular. Un subrogante previo queda reemplazado.
func (s *Service) Activar(ctx context.Context, a acceso.Actor, titularID, candidatoID uuid.UUID) (Resultado, error) {
	var (
		titular   repo.Usuario
		candidato repo.Usuario
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if titular, err = s.titular(txCtx, a, titularID); err != nil {
			return err
		}
		candidato, err = s.repo.Obtener(txCtx, candidatoID)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: el usuario no existe", ErrCandidatoInvalido)
		}
		if err != nil {
			return err
		}
		if err := validarCandidato(titular, candidato); err != nil {
			return err
		}

		previo, err := s.repo.SubroganteDe(txCtx, titular.ID)
		if err != nil {
			return err
		}
		var reemplazado *uuid.UUID
		if previo != nil && previo.ID != candidato.ID {
			if err := s.repo.LimpiarSubrogancia(txCtx, previo.ID); err != nil {
				return err
			}
			reemplazado = &previo.ID
		}
		if err := s.repo.AsignarSubrogancia(txCtx, candidato.ID, titular.ID); err != nil {
			return err
		}
		candidato.SubroganteDe = &titular.ID

		return s.eventos.RegistrarEvento(txCtx, auditoria.NuevoEvento(a.Usuario, string(auditoria.AccionSubroganciaActivada),
			auditoria.DetalleSubrogancia{Titular: titular.ID, Subrogante: candidato.ID, Reemplazado: reemplazado}))
	})
	if err != nil {
		return Resultado{}, err
	}

	log.Info().Str("titular", titular.ID.String()).Str("subrogante", candidato.ID.String()).Msg("subrogancia activada")
	res := Resultado{Titular: titular, Subrogante: &candidato}
	msg, err := s.plantillas.SubroganciaActivada(titular, candidato, s.nombreCiclo(ctx, titular))
	if err == nil {
		err = s.notif.Enviar(ctx, msg)
	}
	if err != nil {
		log.Warn().Err(err).Str("subrogante", candidato.ID.String()).Msg("aviso de subrogancia no enviado")
		res.Advertencias = append(res.Advertencias, "no se pudo notificar al subrogante")
	}
	return res, nil
}

// Desactivar termina la subrogancia vigente del titular; sin subrogante es un no-op con advertencia.
func (s *Service) Desactivar(ctx context.Context, a acceso.Actor, titularID uuid.UUID) (Resultado, error) {
	var (
		titular repo.Usuario
		previo  *repo.Usuario
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if titular, err = s.titular(txCtx, a, titularID); err != nil {
			return err
		}
		if previo, err = s.repo.SubroganteDe(txCtx, titular.ID); err != nil || previo == nil {
			return err
		}
		if err := s.repo.LimpiarSubrogancia(txCtx, previo.ID); err != nil {
			return err
		}
		previo.SubroganteDe = nil
		return s.eventos.RegistrarEvento(txCtx, auditoria.NuevoEvento(a.Usuario, string(auditoria.AccionSubroganciaDesactivada),
			auditoria.DetalleSubrogancia{Titular: titular.ID, Subrogante: previo.ID}))
	})
	if err != nil {
		return Resultado{}, err
	}

	res := Resultado{Titular: titular}
	if previo == nil {
		log.Warn().Str("titular", titular.ID.String()).Msg("desactivación sin subrogancia vigente")
		res.Advertencias = []string{"no hay una subrogancia activa"}
		return res, nil
	}

	log.Info().Str("titular", titular.ID.String()).Str("subrogante", previo.ID.String()).Msg("subrogancia finalizada")
	msg, err := s.plantillas.SubroganciaFinalizada(titular, *previo)
	if err == nil {
		err = s.notif.Enviar(ctx, msg)
	}
	if err != nil {
		log.Warn().Err(err).Str("subrogante", previo.ID.String()).Msg("aviso de término de subrogancia no enviado")
		res.Advertencias = append(res.Advertencias, "no se pudo notificar al ex subrogante")
	}
	return res, nil
}

// Estado retorna el subrogante vigente del titular y los referentes elegibles.
func (s *Service) Estado(ctx context.Context, a acceso.Actor, titularID uuid.UUID) (Estado, error) {
	titular, err := s.titular(ctx, a, titularID)
	if err != nil {
		return Estado{}, err
	}
	actual, err := s.repo.SubroganteDe(ctx, titular.ID)
	if err != nil {
		return Estado{}, err
	}
	referentes, err := s.repo.ReferentesActivos(ctx)
	if err != nil {
		return Estado{}, err
	}

	candidatos := make([]repo.Usuario, 0, len(referentes))
	for _, r := range referentes {
		if validarCandidato(titular, r) == nil {
			candidatos = append(candidatos, r)
		}
	}
	est := Estado{Titular: titular, Subrogante: actual, Candidatos: candidatos}
	if a.ID() == titular.ID {
		est.SubrogaA = a.Titular
	}
	return est, nil
}

func (s *Service) nombreCiclo(ctx context.Context, titular repo.Usuario) string {
	id, ok := titular.Ambito.Ciclo()
	if !ok {
		return "Todos los ciclos"
	}
	cat, err := s.catalogos.Catalogo(ctx)
	if err != nil {
		return "-"
	}
	return cat.NombreCiclo(id)
}
