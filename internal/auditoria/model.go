package auditoria

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/redprotege/api/internal/repo"
)

// Accion es el vocabulario cerrado de movimientos auditables.
type Accion string

const (
	AccionAsignacion             Accion = "ASIGNACION"
	AccionReasignacion           Accion = "REASIGNACION"
	AccionEmailAsignacion        Accion = "EMAIL_ASIGNACION"
	AccionEmailCierre            Accion = "EMAIL_CIERRE"
	AccionGestionClinica         Accion = "GESTION_CLINICA"
	AccionCierre                 Accion = "CIERRE"
	AccionSubroganciaActivada    Accion = "SUBROGANCIA_ACTIVADA"
	AccionSubroganciaDesactivada Accion = "SUBROGANCIA_DESACTIVADA"
)

// Detalle es el payload tipado de cada acción. Sólo lo implementan los tipos de este paquete.
type Detalle interface {
	detalle()
}

// DetalleAsignacion registra el antes y después del responsable.
type DetalleAsignacion struct {
	Anterior       *uuid.UUID  `json:"anterior"`
	Nuevo          uuid.UUID   `json:"nuevo"`
	EstadoAnterior repo.Estado `json:"estado_anterior"`
	EstadoNuevo    repo.Estado `json:"estado_nuevo"`
}

// DetalleCorreo registra el resultado de un envío best-effort.
type DetalleCorreo struct {
	Destinatarios []string `json:"destinatarios"`
	Enviado       bool     `json:"enviado"`
	Error         string   `json:"error,omitempty"`
}

type DetalleGestion struct {
	Campos       []string `json:"campos"`
	Advertencias []string `json:"advertencias,omitempty"`
}

type DetalleCierre struct {
	EstadoAnterior repo.Estado `json:"estado_anterior"`
	FechaCierre    time.Time   `json:"fecha_cierre"`
}

type DetalleSubrogancia struct {
	Titular     uuid.UUID  `json:"titular"`
	Subrogante  uuid.UUID  `json:"subrogante"`
	Reemplazado *uuid.UUID `json:"reemplazado,omitempty"`
}

func (DetalleAsignacion) detalle()  {}
func (DetalleCorreo) detalle()      {}
func (DetalleGestion) detalle()     {}
func (DetalleCierre) detalle()      {}
func (DetalleSubrogancia) detalle() {}

// Entrada es un registro inmutable de auditoría de un caso.
type Entrada struct {
	ID        int64     `json:"id"`
	CasoID    uuid.UUID `json:"caso_id"`
	UsuarioID uuid.UUID `json:"usuario_id"`
	Fecha     time.Time `json:"fecha"`
	Accion    Accion    `json:"accion"`
	Detalle   Detalle   `json:"detalle"`
}

// detalleVacio retorna el tipo concreto que corresponde a la acción.
func detalleVacio(a Accion) (Detalle, error) {
	switch a {
	case AccionAsignacion, AccionReasignacion:
		return &DetalleAsignacion{}, nil
	case AccionEmailAsignacion, AccionEmailCierre:
		return &DetalleCorreo{}, nil
	case AccionGestionClinica:
		return &DetalleGestion{}, nil
	case AccionCierre:
		return &DetalleCierre{}, nil
	case AccionSubroganciaActivada, AccionSubroganciaDesactivada:
		return &DetalleSubrogancia{}, nil
	}
	return nil, fmt.Errorf("auditoria: acción desconocida %q", a)
}

// DecodificarDetalle reconstruye el detalle tipado desde JSONB.
func DecodificarDetalle(a Accion, raw []byte) (Detalle, error) {
	d, err := detalleVacio(a)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, d); err != nil {
			return nil, fmt.Errorf("auditoria: detalle %s: %w", a, err)
		}
	}

	switch v := d.(type) {
	case *DetalleAsignacion:
		return *v, nil
	case *DetalleCorreo:
		return *v, nil
	case *DetalleGestion:
		return *v, nil
	case *DetalleCierre:
		return *v, nil
	case *DetalleSubrogancia:
		return *v, nil
	}
	return d, nil
}

// Valida comprueba que el detalle corresponda a la acción.
func (e Entrada) Valida() error {
	var permitidas []Accion
	switch e.Detalle.(type) {
	case DetalleAsignacion:
		permitidas = []Accion{AccionAsignacion, AccionReasignacion}
	case DetalleCorreo:
		permitidas = []Accion{AccionEmailAsignacion, AccionEmailCierre}
	case DetalleGestion:
		permitidas = []Accion{AccionGestionClinica}
	case DetalleCierre:
		permitidas = []Accion{AccionCierre}
	case DetalleSubrogancia:
		permitidas = []Accion{AccionSubroganciaActivada, AccionSubroganciaDesactivada}
	default:
		return fmt.Errorf("auditoria: %s sin detalle válido", e.Accion)
	}
	for _, a := range permitidas {
		if a == e.Accion {
			return nil
		}
	}
	return fmt.Errorf("auditoria: detalle %T no corresponde a %s", e.Detalle, e.Accion)
}
