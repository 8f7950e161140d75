package casos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/catalogos"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/util"
)

const (
	eventoIngresoPublico = "INGRESO_CASO_PUBLICO"
	eventoIngreso        = "INGRESO_CASO"
)

// obligatoriosPublicos son los campos exigidos por el formulario sin sesión.
func obligatoriosPublicos(d DatosIngreso) []string {
	campos := []struct{ valor, etiqueta string }{
		{d.FechaAtencion, "Fecha de atención"},
		{d.HoraAtencion, "Hora de atención"},
		{d.IngresadoPor, "Nombre funcionario"},
		{d.IngresadoCargo, "Cargo funcionario"},
		{d.Paciente.Nombres, "Nombres paciente"},
		{d.Paciente.Apellidos, "Apellidos paciente"},
		{d.Paciente.FechaNacimiento, "Fecha nacimiento paciente"},
		{d.Paciente.Calle, "Domicilio paciente"},
		{d.Acompanante.Nombre, "Nombre acompañante"},
		{d.Acompanante.Parentesco, "Parentesco acompañante"},
		{d.Acompanante.Telefono, "Teléfono acompañante"},
	}
	var msgs []string
	for _, c := range campos {
		if err := util.Requerido(c.valor, c.etiqueta); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

// construirCaso valida el formulario y arma el caso en PENDIENTE_RESCATAR.
// estricto aplica las exigencias del formulario público.
func construirCaso(d DatosIngreso, cat catalogos.Catalogo, estricto bool, ahora time.Time) (repo.Caso, error) {
	var f fusion
	if estricto {
		f.errores = append(f.errores, obligatoriosPublicos(d)...)
	}

	c := repo.Caso{
		Estado:       repo.EstadoPendiente,
		FechaIngreso: ahora,
		Seguimiento:  repo.SeguimientoInicial(),
	}

	if _, ok := cat.Ciclo(d.CicloVitalID); !ok {
		f.errores = append(f.errores, "debe seleccionar un ciclo vital válido")
	}
	c.CicloVitalID = d.CicloVitalID

	in := &c.Ingreso
	in.Folio = strings.TrimSpace(d.Folio)
	if in.Folio == "" {
		f.errores = append(f.errores, "el folio de atención es obligatorio")
	}
	in.Relato = strings.TrimSpace(d.Relato)
	if in.Relato == "" {
		f.errores = append(f.errores, "el relato del caso es obligatorio")
	}
	in.IngresadoPor = strings.TrimSpace(d.IngresadoPor)
	in.IngresadoCargo = strings.TrimSpace(d.IngresadoCargo)

	if strings.TrimSpace(d.FechaAtencion) == "" {
		if !estricto {
			f.errores = append(f.errores, "la fecha de atención es obligatoria")
		}
	} else {
		f.fecha(&in.FechaAtencion, d.FechaAtencion, "fecha de atención", ahora)
	}
	if h := strings.TrimSpace(d.HoraAtencion); h != "" {
		if _, err := time.Parse("15:04", h); err != nil {
			f.errores = append(f.errores, "la hora de atención debe tener formato HH:MM")
		} else {
			in.HoraAtencion = h
		}
	}

	if d.RecintoNotificaID == nil {
		f.errores = append(f.errores, "debe seleccionar un recinto de notificación")
	} else if rec, ok := cat.Recinto(*d.RecintoNotificaID); !ok {
		f.errores = append(f.errores, "el recinto de notificación no existe")
	} else {
		id := rec.ID
		in.RecintoNotificaID = &id
		if rec.EsOtro() {
			in.RecintoOtro = strings.TrimSpace(d.RecintoOtro)
			if in.RecintoOtro == "" {
				f.errores = append(f.errores, "especificó 'Otro' recinto pero no ingresó el nombre")
			}
		}
	}

	if len(d.VulneracionIDs) == 0 {
		f.errores = append(f.errores, "debe seleccionar al menos un tipo de vulneración")
	}
	otra := false
	for _, id := range d.VulneracionIDs {
		v, ok := cat.Vulneracion(id)
		if !ok {
			f.errores = append(f.errores, fmt.Sprintf("la vulneración %d no existe", id))
			continue
		}
		in.VulneracionIDs = append(in.VulneracionIDs, v.ID)
		otra = otra || v.EsOtro()
	}
	if otra {
		in.VulneracionOtro = strings.TrimSpace(d.VulneracionOtro)
		if in.VulneracionOtro == "" {
			f.errores = append(f.errores, "seleccionó vulneración 'Otro' pero no especificó cuál")
		}
	}

	if tipo := strings.TrimSpace(d.Paciente.TipoDocumento); strings.EqualFold(tipo, string(repo.DocumentoRUT)) &&
		strings.TrimSpace(d.Paciente.NumeroDocumento) == "" {
		f.errores = append(f.errores, "el RUT del paciente ingresado no es válido")
	}
	f.paciente(&c.Paciente, d.Paciente, ahora)
	f.acompanante(&c, d.Acompanante)

	if d.DenunciaRealizada {
		c.Denuncia = repo.Denuncia{
			Realizada:         true,
			ProfesionalNombre: strings.TrimSpace(d.ProfesionalNombre),
			ProfesionalCargo:  strings.TrimSpace(d.ProfesionalCargo),
		}
		switch {
		case d.InstitucionID == nil:
			f.errores = append(f.errores, "si hubo denuncia debe seleccionar la institución")
		default:
			inst, ok := cat.Institucion(*d.InstitucionID)
			if !ok {
				f.errores = append(f.errores, "la institución seleccionada no existe")
				break
			}
			id := inst.ID
			c.Denuncia.InstitucionID = &id
			if inst.EsOtro() {
				c.Denuncia.InstitucionOtro = strings.TrimSpace(d.InstitucionOtro)
				if c.Denuncia.InstitucionOtro == "" {
					f.errores = append(f.errores, "especificó 'Otra' institución pero no ingresó el nombre")
				}
			}
		}
	}

	if err := util.NewValidationError(f.errores...); err != nil {
		return repo.Caso{}, err
	}
	return c, nil
}

// IngresarPublico recibe el formulario sin sesión. Un honeypot informado retorna ErrHoneypot
// sin persistir nada.
func (s *Service) IngresarPublico(ctx context.Context, d DatosIngreso) (repo.Caso, error) {
	if strings.TrimSpace(d.Website) != "" {
		return repo.Caso{}, ErrHoneypot
	}
	c, err := s.ingresar(ctx, d, true, nil)
	if err != nil {
		return repo.Caso{}, err
	}
	ev := repo.Evento{Accion: eventoIngresoPublico, Detalles: "Nuevo caso folio: " + c.Ingreso.Folio}
	if err := s.eventos.RegistrarEvento(ctx, ev); err != nil {
		log.Warn().Err(err).Str("caso", c.ID.String()).Msg("no se pudo registrar el ingreso público")
	}
	return c, nil
}

// Ingresar es el ingreso con sesión (Solicitante, Admin o Referente). Tras el commit avisa
// a los referentes del ciclo.
func (s *Service) Ingresar(ctx context.Context, a acceso.Actor, d DatosIngreso) (Resultado, error) {
	switch a.Rol() {
	case repo.RolSolicitante, repo.RolAdmin, repo.RolReferente:
	default:
		return Resultado{}, acceso.ErrForbidden
	}
	if !a.Usuario.Activo {
		return Resultado{}, acceso.ErrForbidden
	}
	if strings.TrimSpace(d.Website) != "" {
		return Resultado{}, ErrHoneypot
	}

	solicitante := a.ID()
	c, err := s.ingresar(ctx, d, false, &solicitante)
	if err != nil {
		return Resultado{}, err
	}
	res := Resultado{Caso: c}

	ev := repo.Evento{
		Accion:        eventoIngreso,
		UsuarioID:     &solicitante,
		UsuarioNombre: a.Usuario.NombreCompleto,
		Detalles:      fmt.Sprintf("Caso #%s ingresado por %s", c.Ingreso.Folio, a.Usuario.Email),
	}
	if err := s.eventos.RegistrarEvento(ctx, ev); err != nil {
		log.Warn().Err(err).Str("caso", c.ID.String()).Msg("no se pudo registrar el ingreso")
	}

	s.avisarNuevoCaso(ctx, &res)
	return res, nil
}

func (s *Service) ingresar(ctx context.Context, d DatosIngreso, estricto bool, solicitante *uuid.UUID) (repo.Caso, error) {
	cat, err := s.catalogos.Catalogo(ctx)
	if err != nil {
		return repo.Caso{}, err
	}
	c, err := construirCaso(d, cat, estricto, s.now())
	if err != nil {
		return repo.Caso{}, err
	}
	c.Ingreso.SolicitanteID = solicitante

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.repo.Crear(txCtx, &c)
	})
	if errors.Is(err, repo.ErrConflicto) {
		return repo.Caso{}, util.NewValidationError("ya existe un caso con el folio " + c.Ingreso.Folio)
	}
	if err != nil {
		return repo.Caso{}, err
	}
	return c, nil
}

func (s *Service) avisarNuevoCaso(ctx context.Context, res *Resultado) {
	c := res.Caso
	referentes, err := s.usuarios.ReferentesParaCiclo(ctx, c.CicloVitalID)
	if err != nil {
		log.Warn().Err(err).Str("caso", c.ID.String()).Msg("no se pudieron cargar los referentes")
		res.advertir("no se pudo notificar a los referentes del ciclo")
		return
	}
	correos := make([]string, 0, len(referentes))
	for _, r := range referentes {
		correos = append(correos, r.Email)
	}
	if len(correos) == 0 {
		return
	}

	msg, err := s.plantillas.NuevoCaso(c, s.nombreCiclo(ctx, c.CicloVitalID), correos)
	if err == nil {
		err = s.notif.Enviar(ctx, msg)
	}
	if err != nil {
		log.Warn().Err(err).Str("caso", c.ID.String()).Msg("aviso de nuevo caso no enviado")
		res.advertir("no se pudo notificar a los referentes del ciclo")
	}
}
