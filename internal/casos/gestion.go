package casos

import (
	"fmt"
	"strings"
	"time"

	"github.com/redprotege/api/internal/catalogos"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/util"
)

const formatoFecha = "2006-01-02"

// fusion acumula los campos modificados, los errores bloqueantes y las advertencias.
type fusion struct {
	campos       []string
	errores      []string
	advertencias []string
}

func (f *fusion) texto(dst *string, v, campo string) {
	v = strings.TrimSpace(v)
	if v == "" || v == *dst {
		return
	}
	*dst = v
	f.campos = append(f.campos, campo)
}

func (f *fusion) fecha(dst **time.Time, v, campo string, hoy time.Time) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	t, err := time.ParseInLocation(formatoFecha, v, hoy.Location())
	if err != nil {
		f.errores = append(f.errores, fmt.Sprintf("%s debe tener formato AAAA-MM-DD", campo))
		return
	}
	if t.After(hoy) {
		f.errores = append(f.errores, fmt.Sprintf("%s no puede ser futura", campo))
		return
	}
	if *dst != nil && (*dst).Equal(t) {
		return
	}
	*dst = &t
	f.campos = append(f.campos, campo)
}

func (f *fusion) codigo(dst *repo.CodigoSeguimiento, v, campo string) {
	if strings.TrimSpace(v) == "" {
		return
	}
	c, ok := repo.ParseCodigoSeguimiento(v)
	if !ok {
		f.errores = append(f.errores, fmt.Sprintf("%s: código %q no válido", campo, v))
		return
	}
	if c == *dst {
		return
	}
	*dst = c
	f.campos = append(f.campos, campo)
}

func (f *fusion) flag(dst *bool, v *bool, campo string) {
	if v == nil || *v == *dst {
		return
	}
	*dst = *v
	f.campos = append(f.campos, campo)
}

// paciente aplica los datos del paciente con la política de sólo completar.
func (f *fusion) paciente(p *repo.Paciente, d DatosPaciente, hoy time.Time) {
	f.texto(&p.Nombres, d.Nombres, "nombres")
	f.texto(&p.Apellidos, d.Apellidos, "apellidos")
	f.texto(&p.Telefono, d.Telefono, "telefono")
	f.texto(&p.Domicilio.Calle, d.Calle, "calle")
	f.texto(&p.Domicilio.Numero, d.NumeroDomicilio, "numero_domicilio")
	f.fecha(&p.FechaNacimiento, d.FechaNacimiento, "fecha de nacimiento", hoy)

	if t := strings.TrimSpace(d.TipoDocumento); t != "" {
		tipo, ok := repo.ParseTipoDocumento(t)
		if !ok {
			f.errores = append(f.errores, fmt.Sprintf("tipo de documento %q no válido", t))
		} else if tipo != p.Documento.Tipo {
			p.Documento.Tipo = tipo
			f.campos = append(f.campos, "tipo_documento")
		}
	}
	numero := strings.TrimSpace(d.NumeroDocumento)
	if numero != "" && p.Documento.Tipo == repo.DocumentoRUT {
		if !util.RUTValido(numero) {
			f.errores = append(f.errores, "el RUT ingresado no es válido")
		} else {
			numero = util.FormatearRUT(numero)
		}
	}
	f.texto(&p.Documento.Numero, numero, "numero_documento")
	f.texto(&p.Documento.OtroDescripcion, d.DocumentoOtro, "documento_otro")
	if p.Documento.Tipo == repo.DocumentoOtro && p.Documento.OtroDescripcion == "" {
		f.errores = append(f.errores, "debe especificar el tipo de documento cuando selecciona 'Otro'")
	}
}

func (f *fusion) acompanante(c *repo.Caso, d DatosAcompanante) {
	if d.vacio() {
		return
	}
	if c.Acompanante == nil {
		c.Acompanante = &repo.Acompanante{}
	}
	a := c.Acompanante
	f.texto(&a.Nombre, d.Nombre, "acompanante_nombre")
	f.texto(&a.Parentesco, d.Parentesco, "acompanante_parentesco")
	f.texto(&a.Telefono, d.Telefono, "acompanante_telefono")
	f.texto(&a.TipoTelefono, d.TipoTelefono, "acompanante_tipo_telefono")
	f.texto(&a.Documento.Numero, d.Documento, "acompanante_documento")
	f.texto(&a.Domicilio, d.Domicilio, "acompanante_domicilio")
}

// denuncia: apagar el indicador borra la institución y el profesional.
// Institución ausente u "otra" sin texto son advertencias, no errores.
func (f *fusion) denuncia(den *repo.Denuncia, d DatosGestion, cat catalogos.Catalogo) {
	if d.DenunciaRealizada != nil && !*d.DenunciaRealizada {
		if den.Realizada {
			*den = repo.Denuncia{}
			f.campos = append(f.campos, "denuncia_realizada")
		}
		return
	}
	f.flag(&den.Realizada, d.DenunciaRealizada, "denuncia_realizada")
	if !den.Realizada {
		if d.InstitucionID != nil || d.ProfesionalNombre != "" || d.InstitucionOtro != "" {
			f.advertencias = append(f.advertencias, "datos de denuncia ignorados: la denuncia no está marcada como realizada")
		}
		return
	}

	if d.InstitucionID != nil {
		inst, ok := cat.Institucion(*d.InstitucionID)
		switch {
		case !ok:
			f.errores = append(f.errores, "la institución seleccionada no existe")
		case den.InstitucionID == nil || *den.InstitucionID != inst.ID:
			id := inst.ID
			den.InstitucionID = &id
			f.campos = append(f.campos, "institucion")
			if !inst.EsOtro() {
				den.InstitucionOtro = ""
			}
		}
	}
	f.texto(&den.InstitucionOtro, d.InstitucionOtro, "institucion_otro")
	f.texto(&den.ProfesionalNombre, d.ProfesionalNombre, "profesional_nombre")
	f.texto(&den.ProfesionalCargo, d.ProfesionalCargo, "profesional_cargo")

	if den.InstitucionID == nil {
		f.advertencias = append(f.advertencias, "denuncia realizada sin institución registrada")
	} else if inst, ok := cat.Institucion(*den.InstitucionID); ok && inst.EsOtro() && den.InstitucionOtro == "" {
		f.advertencias = append(f.advertencias, "falta especificar la institución 'Otra'")
	}
}

// seguimiento: recinto "otro" sin texto bloquea; fallecido sin fecha sólo advierte.
func (f *fusion) seguimiento(s *repo.Seguimiento, d DatosGestion, cat catalogos.Catalogo, hoy time.Time) {
	if d.RecintoInscritoID != nil {
		rec, ok := cat.Recinto(*d.RecintoInscritoID)
		switch {
		case !ok:
			f.errores = append(f.errores, "el recinto inscrito no existe")
		case s.RecintoInscritoID == nil || *s.RecintoInscritoID != rec.ID:
			id := rec.ID
			s.RecintoInscritoID = &id
			f.campos = append(f.campos, "recinto_inscrito")
			if !rec.EsOtro() {
				s.RecintoInscritoOtro = ""
			}
		}
	}
	f.texto(&s.RecintoInscritoOtro, d.RecintoInscritoOtro, "recinto_inscrito_otro")
	if s.RecintoInscritoID != nil {
		if rec, ok := cat.Recinto(*s.RecintoInscritoID); ok && rec.EsOtro() && s.RecintoInscritoOtro == "" {
			f.errores = append(f.errores, "debe especificar el recinto inscrito cuando selecciona 'Otro'")
		}
	}

	f.codigo(&s.ControlSanitario, d.ControlSanitario, "control_sanitario")
	f.codigo(&s.GestionVacunas, d.GestionVacunas, "gestion_vacunas")
	f.codigo(&s.GestionJudicial, d.GestionJudicial, "gestion_judicial")
	f.codigo(&s.GestionSaludMental, d.GestionSaludMental, "gestion_salud_mental")
	f.codigo(&s.GestionCOSAM, d.GestionCOSAM, "gestion_cosam")

	if d.Fallecido != nil && !*d.Fallecido {
		if s.Fallecido || s.FechaDefuncion != nil {
			s.Fallecido = false
			s.FechaDefuncion = nil
			f.campos = append(f.campos, "fallecido")
		}
		return
	}
	f.flag(&s.Fallecido, d.Fallecido, "fallecido")
	if !s.Fallecido {
		return
	}
	f.fecha(&s.FechaDefuncion, d.FechaDefuncion, "fecha de defunción", hoy)
	if s.FechaDefuncion == nil {
		f.advertencias = append(f.advertencias, "paciente fallecido sin fecha de defunción")
	}
}

// aplicarGestion fusiona d sobre c. Si hay errores bloqueantes c no se usa.
func aplicarGestion(c *repo.Caso, d DatosGestion, cat catalogos.Catalogo, hoy time.Time) fusion {
	var f fusion
	f.paciente(&c.Paciente, d.Paciente, hoy)
	f.acompanante(c, d.Acompanante)
	f.denuncia(&c.Denuncia, d, cat)
	f.seguimiento(&c.Seguimiento, d, cat, hoy)
	return f
}

// textoBitacora es la entrada de bitácora; sin texto se resume lo modificado.
func textoBitacora(d DatosGestion, campos []string) string {
	if t := strings.TrimSpace(d.Texto); t != "" {
		return t
	}
	if len(campos) == 0 {
		return "Gestión registrada sin cambios en la ficha."
	}
	return "Actualización de ficha: " + strings.Join(campos, ", ") + "."
}
