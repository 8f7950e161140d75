package casos

import (
	"errors"

	"github.com/redprotege/api/internal/auditoria"
	"github.com/redprotege/api/internal/repo"
)

// PorPagina es el tamaño de página de la bandeja.
const PorPagina = 15

// ErrHoneypot marca envíos automatizados del formulario público.
var ErrHoneypot = errors.New("casos: envío descartado")

// Resultado es el desenlace de una transición ya confirmada.
// Sin advertencias equivale a Committed; con advertencias, a CommittedWithWarning.
type Resultado struct {
	Caso         repo.Caso `json:"caso"`
	Advertencias []string  `json:"advertencias,omitempty"`
}

// ConAdvertencias indica si algún colaborador falló tras el commit.
func (r Resultado) ConAdvertencias() bool {
	return len(r.Advertencias) > 0
}

func (r *Resultado) advertir(msg string) {
	r.Advertencias = append(r.Advertencias, msg)
}

// Consulta son los filtros opcionales de la bandeja, además de la visibilidad.
type Consulta struct {
	Estado     *repo.Estado
	Texto      string
	Pagina     int
	SinPaginar bool
}

// Pagina de la bandeja.
type Pagina struct {
	Casos     []repo.Caso `json:"casos"`
	Total     int         `json:"total"`
	Pagina    int         `json:"pagina"`
	PorPagina int         `json:"por_pagina"`
}

// Permisos resume lo que el actor puede hacer sobre el caso mostrado.
type Permisos struct {
	Asignar       bool `json:"asignar"`
	Gestionar     bool `json:"gestionar"`
	Cerrar        bool `json:"cerrar"`
	DescargarActa bool `json:"descargar_acta"`
}

// Detalle es la vista completa de un caso.
type Detalle struct {
	Caso      repo.Caso             `json:"caso"`
	Gestiones []repo.GestionEntrada `json:"gestiones"`
	Auditoria []auditoria.Entrada   `json:"auditoria"`
	Permisos  Permisos              `json:"permisos"`
}

// EstadisticaCiclo cuenta casos por estado dentro de un ciclo vital.
type EstadisticaCiclo struct {
	CicloID   int64               `json:"ciclo_id"`
	Ciclo     string              `json:"ciclo"`
	Total     int                 `json:"total"`
	PorEstado map[repo.Estado]int `json:"por_estado"`
}

// Estadisticas sobre el conjunto visible para el actor.
type Estadisticas struct {
	Total     int                 `json:"total"`
	PorEstado map[repo.Estado]int `json:"por_estado"`
	PorCiclo  []EstadisticaCiclo  `json:"por_ciclo"`
}

func nuevoConteo() map[repo.Estado]int {
	return map[repo.Estado]int{
		repo.EstadoPendiente:   0,
		repo.EstadoSeguimiento: 0,
		repo.EstadoCerrado:     0,
	}
}

// Conteo es una fila agregada (ciclo, estado, cantidad) del repositorio.
type Conteo struct {
	CicloID  int64
	Estado   repo.Estado
	Cantidad int
}

// DatosPaciente se comparte entre ingreso y gestión.
type DatosPaciente struct {
	Nombres         string `json:"nombres"`
	Apellidos       string `json:"apellidos"`
	TipoDocumento   string `json:"tipo_documento"`
	NumeroDocumento string `json:"numero_documento"`
	DocumentoOtro   string `json:"documento_otro"`
	FechaNacimiento string `json:"fecha_nacimiento"`
	Telefono        string `json:"telefono"`
	Calle           string `json:"calle"`
	NumeroDomicilio string `json:"numero_domicilio"`
}

type DatosAcompanante struct {
	Nombre       string `json:"nombre"`
	Parentesco   string `json:"parentesco"`
	Telefono     string `json:"telefono"`
	TipoTelefono string `json:"tipo_telefono"`
	Documento    string `json:"documento"`
	Domicilio    string `json:"domicilio"`
}

func (d DatosAcompanante) vacio() bool {
	return d == DatosAcompanante{}
}

// DatosIngreso es el formulario de ingreso (público o autenticado).
type DatosIngreso struct {
	CicloVitalID      int64            `json:"ciclo_vital_id"`
	Folio             string           `json:"folio"`
	FechaAtencion     string           `json:"fecha_atencion"`
	HoraAtencion      string           `json:"hora_atencion"`
	RecintoNotificaID *int64           `json:"recinto_notifica_id"`
	RecintoOtro       string           `json:"recinto_otro"`
	IngresadoPor      string           `json:"ingresado_por"`
	IngresadoCargo    string           `json:"ingresado_cargo"`
	Relato            string           `json:"relato"`
	VulneracionIDs    []int64          `json:"vulneracion_ids"`
	VulneracionOtro   string           `json:"vulneracion_otro"`
	Paciente          DatosPaciente    `json:"paciente"`
	Acompanante       DatosAcompanante `json:"acompanante"`
	DenunciaRealizada bool             `json:"denuncia_realizada"`
	InstitucionID     *int64           `json:"institucion_id"`
	InstitucionOtro   string           `json:"institucion_otro"`
	ProfesionalNombre string           `json:"profesional_nombre"`
	ProfesionalCargo  string           `json:"profesional_cargo"`
	Website           string           `json:"website"`
}

// DatosGestion es una actualización clínica. Los campos vacíos no modifican nada;
// los punteros a bool sólo actúan cuando vienen informados.
type DatosGestion struct {
	Paciente            DatosPaciente    `json:"paciente"`
	Acompanante         DatosAcompanante `json:"acompanante"`
	DenunciaRealizada   *bool            `json:"denuncia_realizada"`
	InstitucionID       *int64           `json:"institucion_id"`
	InstitucionOtro     string           `json:"institucion_otro"`
	ProfesionalNombre   string           `json:"profesional_nombre"`
	ProfesionalCargo    string           `json:"profesional_cargo"`
	RecintoInscritoID   *int64           `json:"recinto_inscrito_id"`
	RecintoInscritoOtro string           `json:"recinto_inscrito_otro"`
	ControlSanitario    string           `json:"control_sanitario"`
	GestionVacunas      string           `json:"gestion_vacunas"`
	GestionJudicial     string           `json:"gestion_judicial"`
	GestionSaludMental  string           `json:"gestion_salud_mental"`
	GestionCOSAM        string           `json:"gestion_cosam"`
	Fallecido           *bool            `json:"fallecido"`
	FechaDefuncion      string           `json:"fecha_defuncion"`
	Texto               string           `json:"texto"`
}
