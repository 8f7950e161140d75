package repo

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Estado del caso. CERRADO es terminal.
type Estado string

const (
	EstadoPendiente   Estado = "PENDIENTE_RESCATAR"
	EstadoSeguimiento Estado = "EN_SEGUIMIENTO"
	EstadoCerrado     Estado = "CERRADO"
)

// ParseEstado acepta sólo los tres estados conocidos.
func ParseEstado(s string) (Estado, bool) {
	switch e := Estado(strings.ToUpper(strings.TrimSpace(s))); e {
	case EstadoPendiente, EstadoSeguimiento, EstadoCerrado:
		return e, true
	}
	return "", false
}

// Prioridad ordena la bandeja: pendientes primero, cerrados al final.
func (e Estado) Prioridad() int {
	switch e {
	case EstadoPendiente:
		return 0
	case EstadoSeguimiento:
		return 1
	default:
		return 2
	}
}

func (e Estado) Etiqueta() string {
	switch e {
	case EstadoPendiente:
		return "Pendiente de rescatar"
	case EstadoSeguimiento:
		return "En seguimiento"
	case EstadoCerrado:
		return "Cerrado"
	}
	return string(e)
}

// CodigoSeguimiento es el estado de cada línea de seguimiento clínico.
type CodigoSeguimiento string

const (
	SeguimientoPendiente CodigoSeguimiento = "PENDIENTE_REVISION"
	SeguimientoEnProceso CodigoSeguimiento = "EN_PROCESO"
	SeguimientoRealizado CodigoSeguimiento = "REALIZADO"
	SeguimientoNoAplica  CodigoSeguimiento = "NO_APLICA"
	SeguimientoRechazado CodigoSeguimiento = "RECHAZADO"
)

var etiquetasSeguimiento = map[CodigoSeguimiento]string{
	SeguimientoPendiente: "Pendiente de revisión",
	SeguimientoEnProceso: "En proceso",
	SeguimientoRealizado: "Realizado",
	SeguimientoNoAplica:  "No aplica",
	SeguimientoRechazado: "Rechazado por el usuario",
}

func ParseCodigoSeguimiento(s string) (CodigoSeguimiento, bool) {
	c := CodigoSeguimiento(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := etiquetasSeguimiento[c]
	return c, ok
}

// Etiqueta devuelve el texto legible; vacío equivale a pendiente.
func (c CodigoSeguimiento) Etiqueta() string {
	if c == "" {
		c = SeguimientoPendiente
	}
	if e, ok := etiquetasSeguimiento[c]; ok {
		return e
	}
	return string(c)
}

// TipoDocumento de identificación de paciente o acompañante.
type TipoDocumento string

const (
	DocumentoRUT       TipoDocumento = "RUT"
	DocumentoPasaporte TipoDocumento = "PASAPORTE"
	DocumentoOtro      TipoDocumento = "OTRO"
)

func ParseTipoDocumento(s string) (TipoDocumento, bool) {
	switch t := TipoDocumento(strings.ToUpper(strings.TrimSpace(s))); t {
	case DocumentoRUT, DocumentoPasaporte, DocumentoOtro:
		return t, true
	}
	return "", false
}

type Documento struct {
	Tipo            TipoDocumento `json:"tipo,omitempty"`
	Numero          string        `json:"numero,omitempty"`
	OtroDescripcion string        `json:"otro_descripcion,omitempty"`
}

func (d Documento) String() string {
	if d.Numero == "" {
		return "Sin ID"
	}
	if d.Tipo == DocumentoOtro && d.OtroDescripcion != "" {
		return d.OtroDescripcion + ": " + d.Numero
	}
	return string(d.Tipo) + ": " + d.Numero
}

type Domicilio struct {
	Calle  string `json:"calle,omitempty"`
	Numero string `json:"numero,omitempty"`
}

func (d Domicilio) String() string {
	return strings.TrimSpace(d.Calle + " " + d.Numero)
}

// Ingreso son los datos de origen; no cambian después de la recepción.
type Ingreso struct {
	Folio             string     `json:"folio"`
	FechaAtencion     *time.Time `json:"fecha_atencion,omitempty"`
	HoraAtencion      string     `json:"hora_atencion,omitempty"`
	RecintoNotificaID *int64     `json:"recinto_notifica_id,omitempty"`
	RecintoOtro       string     `json:"recinto_otro,omitempty"`
	IngresadoPor      string     `json:"ingresado_por,omitempty"`
	IngresadoCargo    string     `json:"ingresado_cargo,omitempty"`
	Relato            string     `json:"relato"`
	VulneracionIDs    []int64    `json:"vulneracion_ids"`
	VulneracionOtro   string     `json:"vulneracion_otro,omitempty"`
	SolicitanteID     *uuid.UUID `json:"solicitante_id,omitempty"`
}

type Paciente struct {
	Nombres         string     `json:"nombres"`
	Apellidos       string     `json:"apellidos"`
	Documento       Documento  `json:"documento"`
	FechaNacimiento *time.Time `json:"fecha_nacimiento,omitempty"`
	Telefono        string     `json:"telefono,omitempty"`
	Domicilio       Domicilio  `json:"domicilio"`
}

func (p Paciente) NombreCompleto() string {
	return strings.TrimSpace(p.Nombres + " " + p.Apellidos)
}

type Acompanante struct {
	Nombre       string    `json:"nombre,omitempty"`
	Parentesco   string    `json:"parentesco,omitempty"`
	Telefono     string    `json:"telefono,omitempty"`
	TipoTelefono string    `json:"tipo_telefono,omitempty"`
	Documento    Documento `json:"documento"`
	Domicilio    string    `json:"domicilio,omitempty"`
}

// Denuncia ante autoridad; los campos dependen de Realizada.
type Denuncia struct {
	Realizada         bool   `json:"realizada"`
	InstitucionID     *int64 `json:"institucion_id,omitempty"`
	InstitucionOtro   string `json:"institucion_otro,omitempty"`
	ProfesionalNombre string `json:"profesional_nombre,omitempty"`
	ProfesionalCargo  string `json:"profesional_cargo,omitempty"`
}

type Seguimiento struct {
	RecintoInscritoID   *int64            `json:"recinto_inscrito_id,omitempty"`
	RecintoInscritoOtro string            `json:"recinto_inscrito_otro,omitempty"`
	ControlSanitario    CodigoSeguimiento `json:"control_sanitario"`
	GestionVacunas      CodigoSeguimiento `json:"gestion_vacunas"`
	GestionJudicial     CodigoSeguimiento `json:"gestion_judicial"`
	GestionSaludMental  CodigoSeguimiento `json:"gestion_salud_mental"`
	GestionCOSAM        CodigoSeguimiento `json:"gestion_cosam"`
	Fallecido           bool              `json:"fallecido"`
	FechaDefuncion      *time.Time        `json:"fecha_defuncion,omitempty"`
	Observaciones       string            `json:"observaciones,omitempty"`
}

// SeguimientoInicial deja todos los códigos en pendiente de revisión.
func SeguimientoInicial() Seguimiento {
	return Seguimiento{
		ControlSanitario:   SeguimientoPendiente,
		GestionVacunas:     SeguimientoPendiente,
		GestionJudicial:    SeguimientoPendiente,
		GestionSaludMental: SeguimientoPendiente,
		GestionCOSAM:       SeguimientoPendiente,
	}
}

// Caso es la entidad central del sistema. Nunca se elimina.
type Caso struct {
	ID             uuid.UUID    `json:"id"`
	CicloVitalID   int64        `json:"ciclo_vital_id"`
	Estado         Estado       `json:"estado"`
	FechaIngreso   time.Time    `json:"fecha_ingreso"`
	Ingreso        Ingreso      `json:"ingreso"`
	Paciente       Paciente     `json:"paciente"`
	Acompanante    *Acompanante `json:"acompanante,omitempty"`
	Denuncia       Denuncia     `json:"denuncia"`
	Seguimiento    Seguimiento  `json:"seguimiento"`
	AsignadoA      *uuid.UUID   `json:"asignado_a,omitempty"`
	AsignadoNombre string       `json:"asignado_nombre,omitempty"`
	AsignadoPor    *uuid.UUID   `json:"asignado_por,omitempty"`
	AsignadoEn     *time.Time   `json:"asignado_en,omitempty"`
	FechaCierre    *time.Time   `json:"fecha_cierre,omitempty"`
	UsuarioCierre  *uuid.UUID   `json:"usuario_cierre,omitempty"`
	ActaPath       string       `json:"acta_path,omitempty"`
	ActualizadoEn  time.Time    `json:"actualizado_en"`
}

func (c Caso) Cerrado() bool {
	return c.Estado == EstadoCerrado
}

// AsignadoAUsuario indica si el caso está asignado a id.
func (c Caso) AsignadoAUsuario(id uuid.UUID) bool {
	return c.AsignadoA != nil && *c.AsignadoA == id
}

// CerradoPorUsuario indica si id cerró el caso.
func (c Caso) CerradoPorUsuario(id uuid.UUID) bool {
	return c.UsuarioCierre != nil && *c.UsuarioCierre == id
}
