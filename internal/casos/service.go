// Package casos implementa el ciclo de vida de un caso: ingreso, asignación,
// gestión clínica y cierre con acta.
//
// Cada transición confirma primero el cambio de estado junto con su entrada de
// auditoría y sólo después intenta los efectos externos (acta, correo). Un
// fallo de esos colaboradores se informa como advertencia en Resultado y nunca
// revierte lo confirmado.
package casos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/actas"
	"github.com/redprotege/api/internal/auditoria"
	"github.com/redprotege/api/internal/catalogos"
	"github.com/redprotege/api/internal/notificacion"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/util"
)

// ErrSinActa indica que el caso aún no tiene acta disponible.
var ErrSinActa = fmt.Errorf("casos: el caso no tiene acta: %w", repo.ErrNotFound)

const eventoDescargaActa = "DESCARGA_ACTA"

type store interface {
	Obtener(ctx context.Context, id uuid.UUID) (repo.Caso, error)
	Listar(ctx context.Context, f acceso.Filtro, q Consulta) ([]repo.Caso, int, error)
	Crear(ctx context.Context, c *repo.Caso) error
	Asignar(ctx context.Context, id, asignado, por uuid.UUID, en time.Time, estado repo.Estado) (bool, error)
	GuardarGestion(ctx context.Context, c repo.Caso) (bool, error)
	AgregarGestion(ctx context.Context, g *repo.GestionEntrada) error
	Gestiones(ctx context.Context, id uuid.UUID) ([]repo.GestionEntrada, error)
	Cerrar(ctx context.Context, id, por uuid.UUID, en time.Time) (bool, error)
	GuardarActa(ctx context.Context, id uuid.UUID, ruta string) error
	Conteos(ctx context.Context, f acceso.Filtro) ([]Conteo, error)
}

type auditor interface {
	Registrar(ctx context.Context, e auditoria.Entrada) error
	ListarPorCaso(ctx context.Context, casoID uuid.UUID) ([]auditoria.Entrada, error)
}

type eventos interface {
	RegistrarEvento(ctx context.Context, ev repo.Evento) error
}

type directorio interface {
	Obtener(ctx context.Context, id uuid.UUID) (repo.Usuario, error)
	ReferentesParaCiclo(ctx context.Context, ciclo int64) ([]repo.Usuario, error)
}

type proveedorCatalogo interface {
	Catalogo(ctx context.Context) (catalogos.Catalogo, error)
}

type generador interface {
	Generar(ctx context.Context, a actas.Acta) (string, error)
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// Deps agrupa los colaboradores del servicio.
type Deps struct {
	Casos      store
	Auditoria  auditor
	Eventos    eventos
	Usuarios   directorio
	Catalogos  proveedorCatalogo
	Actas      generador
	Tx         txRunner
	Notif      notificacion.Notificador
	Plantillas *notificacion.Plantillas
	Now        func() time.Time
}

type Service struct {
	repo       store
	auditor    auditor
	eventos    eventos
	usuarios   directorio
	catalogos  proveedorCatalogo
	actas      generador
	tx         txRunner
	notif      notificacion.Notificador
	plantillas *notificacion.Plantillas
	now        func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:       d.Casos,
		auditor:    d.Auditoria,
		eventos:    d.Eventos,
		usuarios:   d.Usuarios,
		catalogos:  d.Catalogos,
		actas:      d.Actas,
		tx:         d.Tx,
		notif:      d.Notif,
		plantillas: d.Plantillas,
		now:        d.Now,
	}
	if s.notif == nil {
		s.notif = notificacion.Noop{}
	}
	if s.plantillas == nil {
		s.plantillas = notificacion.NewPlantillas("")
	}
	if s.now == nil {
		s.now = util.Now
	}
	return s
}

// Bandeja lista los casos visibles para el actor, pendientes primero.
func (s *Service) Bandeja(ctx context.Context, a acceso.Actor, q Consulta) (Pagina, error) {
	f := acceso.FiltroBandeja(a)
	if f.Alcance == acceso.AlcanceNinguno {
		return Pagina{}, acceso.ErrForbidden
	}
	if q.Pagina <= 0 {
		q.Pagina = 1
	}
	casos, total, err := s.repo.Listar(ctx, f, q)
	if err != nil {
		return Pagina{}, err
	}
	if casos == nil {
		casos = []repo.Caso{}
	}
	return Pagina{Casos: casos, Total: total, Pagina: q.Pagina, PorPagina: PorPagina}, nil
}

// Ver retorna el caso con su bitácora, su auditoría y los permisos del actor.
func (s *Service) Ver(ctx context.Context, a acceso.Actor, id uuid.UUID) (Detalle, error) {
	c, err := s.repo.Obtener(ctx, id)
	if err != nil {
		return Detalle{}, err
	}
	if err := acceso.Verificar(a, acceso.AccionVer, c); err != nil {
		return Detalle{}, err
	}

	gestiones, err := s.repo.Gestiones(ctx, id)
	if err != nil {
		return Detalle{}, err
	}
	entradas, err := s.auditor.ListarPorCaso(ctx, id)
	if err != nil {
		return Detalle{}, err
	}
	return Detalle{
		Caso:      c,
		Gestiones: gestiones,
		Auditoria: entradas,
		Permisos: Permisos{
			Asignar:       acceso.PuedeAsignar(a, c),
			Gestionar:     acceso.PuedeGestionar(a, c),
			Cerrar:        acceso.PuedeCerrar(a, c),
			DescargarActa: c.Cerrado() && acceso.PuedeDescargarActa(a, c),
		},
	}, nil
}

// Asignar fija el funcionario responsable y avanza PENDIENTE_RESCATAR a EN_SEGUIMIENTO.
func (s *Service) Asignar(ctx context.Context, a acceso.Actor, casoID, asignadoID uuid.UUID) (Resultado, error) {
	var (
		c        repo.Caso
		asignado repo.Usuario
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if c, err = s.repo.Obtener(txCtx, casoID); err != nil {
			return err
		}
		if err := acceso.Verificar(a, acceso.AccionAsignar, c); err != nil {
			return err
		}
		if asignado, err = s.validarAsignado(txCtx, a, c, asignadoID); err != nil {
			return err
		}

		anterior, estadoAnterior := c.AsignadoA, c.Estado
		estado := c.Estado
		if estado == repo.EstadoPendiente {
			estado = repo.EstadoSeguimiento
		}
		ahora := s.now()

		ok, err := s.repo.Asignar(txCtx, c.ID, asignado.ID, a.ID(), ahora, estado)
		if err != nil {
			return err
		}
		if !ok {
			// cerrado entre la lectura y la escritura
			return acceso.ErrForbidden
		}

		por := a.ID()
		c.AsignadoA, c.AsignadoPor, c.AsignadoEn = &asignado.ID, &por, &ahora
		c.AsignadoNombre = asignado.NombreCompleto
		c.Estado = estado
		c.ActualizadoEn = ahora

		accion := auditoria.AccionAsignacion
		if anterior != nil {
			accion = auditoria.AccionReasignacion
		}
		return s.auditor.Registrar(txCtx, auditoria.Entrada{
			CasoID:    c.ID,
			UsuarioID: a.ID(),
			Fecha:     ahora,
			Accion:    accion,
			Detalle: auditoria.DetalleAsignacion{
				Anterior:       anterior,
				Nuevo:          asignado.ID,
				EstadoAnterior: estadoAnterior,
				EstadoNuevo:    estado,
			},
		})
	})
	if err != nil {
		return Resultado{}, err
	}

	res := Resultado{Caso: c}
	msg, err := s.plantillas.Asignacion(c, asignado, s.nombreCiclo(ctx, c.CicloVitalID))
	s.notificar(ctx, &res, a, auditoria.AccionEmailAsignacion, msg, err)
	return res, nil
}

func (s *Service) validarAsignado(ctx context.Context, a acceso.Actor, c repo.Caso, id uuid.UUID) (repo.Usuario, error) {
	u, err := s.usuarios.Obtener(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return u, util.NewValidationError("el funcionario seleccionado no existe")
	}
	if err != nil {
		return u, err
	}

	var msgs []string
	if !u.Activo {
		msgs = append(msgs, "el funcionario seleccionado está inactivo")
	}
	if u.Rol != repo.RolFuncionario {
		msgs = append(msgs, "sólo se puede asignar a usuarios con rol Funcionario")
	}
	if a.Rol() == repo.RolReferente {
		if ciclo, ok := u.Ambito.Ciclo(); !ok || ciclo != c.CicloVitalID {
			msgs = append(msgs, "el funcionario no pertenece al ciclo vital del caso")
		}
	}
	return u, util.NewValidationError(msgs...)
}

// Gestionar fusiona la actualización clínica y agrega una línea a la bitácora.
func (s *Service) Gestionar(ctx context.Context, a acceso.Actor, casoID uuid.UUID, d DatosGestion) (Resultado, error) {
	cat, err := s.catalogos.Catalogo(ctx)
	if err != nil {
		return Resultado{}, err
	}

	var res Resultado
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.repo.Obtener(txCtx, casoID)
		if err != nil {
			return err
		}
		if err := acceso.Verificar(a, acceso.AccionGestionar, c); err != nil {
			return err
		}

		ahora := s.now()
		f := aplicarGestion(&c, d, cat, ahora)
		if err := util.NewValidationError(f.errores...); err != nil {
			return err
		}
		c.ActualizadoEn = ahora

		ok, err := s.repo.GuardarGestion(txCtx, c)
		if err != nil {
			return err
		}
		if !ok {
			return acceso.ErrForbidden
		}

		g := repo.GestionEntrada{
			CasoID:      c.ID,
			Fecha:       ahora,
			AutorID:     a.ID(),
			AutorNombre: a.Usuario.NombreCompleto,
			Texto:       textoBitacora(d, f.campos),
		}
		if err := s.repo.AgregarGestion(txCtx, &g); err != nil {
			return err
		}

		campos := f.campos
		if campos == nil {
			campos = []string{}
		}
		if err := s.auditor.Registrar(txCtx, auditoria.Entrada{
			CasoID:    c.ID,
			UsuarioID: a.ID(),
			Fecha:     ahora,
			Accion:    auditoria.AccionGestionClinica,
			Detalle:   auditoria.DetalleGestion{Campos: campos, Advertencias: f.advertencias},
		}); err != nil {
			return err
		}
		res = Resultado{Caso: c, Advertencias: f.advertencias}
		return nil
	})
	if err != nil {
		return Resultado{}, err
	}
	return res, nil
}

// Cerrar lleva el caso a CERRADO en pasos confirmados por separado: estado y auditoría,
// luego el acta y por último el aviso. Cerrar un caso ya cerrado no hace nada.
func (s *Service) Cerrar(ctx context.Context, a acceso.Actor, casoID uuid.UUID) (Resultado, error) {
	var (
		c         repo.Caso
		yaCerrado bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if c, err = s.repo.Obtener(txCtx, casoID); err != nil {
			return err
		}
		if c.Cerrado() {
			if !habriaPodidoCerrar(a, c) {
				return acceso.ErrForbidden
			}
			yaCerrado = true
			return nil
		}
		if err := acceso.Verificar(a, acceso.AccionCerrar, c); err != nil {
			return err
		}

		ahora := s.now()
		ok, err := s.repo.Cerrar(txCtx, c.ID, a.ID(), ahora)
		if err != nil {
			return err
		}
		if !ok {
			yaCerrado = true
			return nil
		}

		anterior := c.Estado
		por := a.ID()
		c.Estado, c.FechaCierre, c.UsuarioCierre = repo.EstadoCerrado, &ahora, &por
		c.ActualizadoEn = ahora
		return s.auditor.Registrar(txCtx, auditoria.Entrada{
			CasoID:    c.ID,
			UsuarioID: a.ID(),
			Fecha:     ahora,
			Accion:    auditoria.AccionCierre,
			Detalle:   auditoria.DetalleCierre{EstadoAnterior: anterior, FechaCierre: ahora},
		})
	})
	if err != nil {
		return Resultado{}, err
	}

	if yaCerrado {
		if c, err = s.repo.Obtener(ctx, casoID); err != nil {
			return Resultado{}, err
		}
		log.Warn().Str("caso", c.ID.String()).Str("usuario", a.ID().String()).Msg("cierre repetido ignorado")
		return Resultado{Caso: c, Advertencias: []string{"el caso ya se encontraba cerrado"}}, nil
	}

	res := Resultado{Caso: c}
	ruta, err := s.generarActa(ctx, c, a.Usuario)
	switch {
	case errors.Is(err, actas.ErrRespaldo):
		res.Caso.ActaPath = ruta
		res.advertir("el acta se generó pero no se pudo respaldar en el almacenamiento remoto")
	case err != nil:
		log.Error().Err(err).Str("caso", c.ID.String()).Msg("acta de cierre no generada")
		res.advertir("el caso quedó cerrado pero no se pudo generar el acta")
	default:
		res.Caso.ActaPath = ruta
	}

	para, err := s.destinatariosCierre(ctx, res.Caso)
	if err != nil {
		log.Warn().Err(err).Str("caso", c.ID.String()).Msg("no se pudieron resolver destinatarios de cierre")
		res.advertir("no se pudieron resolver todos los destinatarios del aviso de cierre")
	}
	msg, err := s.plantillas.Cierre(res.Caso, a.Usuario, para, res.Caso.ActaPath)
	s.notificar(ctx, &res, a, auditoria.AccionEmailCierre, msg, err)
	return res, nil
}

// habriaPodidoCerrar evalúa el permiso de cierre como si el caso siguiera abierto.
func habriaPodidoCerrar(a acceso.Actor, c repo.Caso) bool {
	abierto := c
	abierto.Estado = repo.EstadoSeguimiento
	return acceso.PuedeCerrar(a, abierto)
}

// generarActa produce el documento y persiste su ruta en su propia transacción. Un error
// actas.ErrRespaldo llega junto a una ruta ya guardada.
func (s *Service) generarActa(ctx context.Context, c repo.Caso, cerrador repo.Usuario) (string, error) {
	gestiones, err := s.repo.Gestiones(ctx, c.ID)
	if err != nil {
		return "", err
	}
	cat, err := s.catalogos.Catalogo(ctx)
	if err != nil {
		return "", err
	}
	ruta, errActa := s.actas.Generar(ctx, actas.NuevaActa(c, gestiones, cerrador, cat))
	if errActa != nil && !errors.Is(errActa, actas.ErrRespaldo) {
		return "", errActa
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.repo.GuardarActa(txCtx, c.ID, ruta)
	})
	if err != nil {
		return "", fmt.Errorf("casos: guardar ruta de acta: %w", err)
	}
	return ruta, errActa
}

// destinatariosCierre: el funcionario asignado y los referentes del ciclo (o globales).
func (s *Service) destinatariosCierre(ctx context.Context, c repo.Caso) ([]string, error) {
	var para []string
	if c.AsignadoA != nil {
		u, err := s.usuarios.Obtener(ctx, *c.AsignadoA)
		switch {
		case err == nil:
			para = append(para, u.Email)
		case !errors.Is(err, repo.ErrNotFound):
			return para, err
		}
	}
	referentes, err := s.usuarios.ReferentesParaCiclo(ctx, c.CicloVitalID)
	if err != nil {
		return para, err
	}
	for _, r := range referentes {
		para = append(para, r.Email)
	}
	return para, nil
}

// notificar envía el correo y deja en auditoría el resultado, se haya enviado o no.
func (s *Service) notificar(ctx context.Context, res *Resultado, a acceso.Actor, accion auditoria.Accion, msg notificacion.Mensaje, errPlantilla error) {
	detalle := auditoria.DetalleCorreo{Destinatarios: msg.Destinatarios()}
	if detalle.Destinatarios == nil {
		detalle.Destinatarios = []string{}
	}

	err := errPlantilla
	if err == nil {
		err = s.notif.Enviar(ctx, msg)
	}
	if err != nil {
		detalle.Error = err.Error()
		log.Warn().Err(err).Str("caso", res.Caso.ID.String()).Str("accion", string(accion)).Msg("correo no enviado")
		res.advertir("no se pudo enviar la notificación por correo")
	} else {
		detalle.Enviado = true
	}

	err = s.auditor.Registrar(ctx, auditoria.Entrada{
		CasoID:    res.Caso.ID,
		UsuarioID: a.ID(),
		Fecha:     s.now(),
		Accion:    accion,
		Detalle:   detalle,
	})
	if err != nil {
		log.Error().Err(err).Str("caso", res.Caso.ID.String()).Msg("no se pudo auditar el envío de correo")
		res.advertir("no se pudo registrar el resultado del correo")
	}
}

// Acta retorna la ruta local del acta, regenerándola si el archivo ya no existe.
func (s *Service) Acta(ctx context.Context, a acceso.Actor, casoID uuid.UUID) (string, error) {
	c, err := s.repo.Obtener(ctx, casoID)
	if err != nil {
		return "", err
	}
	if err := acceso.Verificar(a, acceso.AccionDescargar, c); err != nil {
		return "", err
	}
	if !c.Cerrado() {
		return "", ErrSinActa
	}

	ruta := c.ActaPath
	if _, statErr := os.Stat(ruta); ruta == "" || statErr != nil {
		cerrador := a.Usuario
		if c.UsuarioCierre != nil {
			if u, err := s.usuarios.Obtener(ctx, *c.UsuarioCierre); err == nil {
				cerrador = u
			}
		}
		if ruta, err = s.generarActa(ctx, c, cerrador); err != nil && !errors.Is(err, actas.ErrRespaldo) {
			return "", err
		}
		log.Info().Str("caso", c.ID.String()).Msg("acta regenerada")
	}

	uid := a.ID()
	ev := repo.Evento{
		Accion:        eventoDescargaActa,
		UsuarioID:     &uid,
		UsuarioNombre: a.Usuario.NombreCompleto,
		Detalles:      "Acta folio " + c.Ingreso.Folio,
	}
	if err := s.eventos.RegistrarEvento(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("no se pudo registrar la descarga del acta")
	}
	return ruta, nil
}

// Estadisticas cuenta los casos visibles por estado, en total y por ciclo.
func (s *Service) Estadisticas(ctx context.Context, a acceso.Actor) (Estadisticas, error) {
	f := acceso.FiltroBandeja(a)
	if f.Alcance == acceso.AlcanceNinguno {
		return Estadisticas{}, acceso.ErrForbidden
	}
	conteos, err := s.repo.Conteos(ctx, f)
	if err != nil {
		return Estadisticas{}, err
	}
	cat, err := s.catalogos.Catalogo(ctx)
	if err != nil {
		return Estadisticas{}, err
	}
	return agregar(conteos, cat), nil
}

func agregar(conteos []Conteo, cat catalogos.Catalogo) Estadisticas {
	est := Estadisticas{PorEstado: nuevoConteo(), PorCiclo: []EstadisticaCiclo{}}
	porCiclo := make(map[int64]*EstadisticaCiclo)
	for _, c := range conteos {
		est.Total += c.Cantidad
		est.PorEstado[c.Estado] += c.Cantidad

		ec, ok := porCiclo[c.CicloID]
		if !ok {
			ec = &EstadisticaCiclo{CicloID: c.CicloID, Ciclo: cat.NombreCiclo(c.CicloID), PorEstado: nuevoConteo()}
			porCiclo[c.CicloID] = ec
		}
		ec.Total += c.Cantidad
		ec.PorEstado[c.Estado] += c.Cantidad
	}
	for _, ec := range porCiclo {
		est.PorCiclo = append(est.PorCiclo, *ec)
	}
	sort.Slice(est.PorCiclo, func(i, j int) bool {
		return strings.ToLower(est.PorCiclo[i].Ciclo) < strings.ToLower(est.PorCiclo[j].Ciclo)
	})
	return est
}

func (s *Service) nombreCiclo(ctx context.Context, id int64) string {
	cat, err := s.catalogos.Catalogo(ctx)
	if err != nil {
		return "-"
	}
	return cat.NombreCiclo(id)
}
