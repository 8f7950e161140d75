package repo

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Usuario representa una cuenta interna de la red.
type Usuario struct {
	ID                   uuid.UUID  `json:"id"`
	NombreCompleto       string     `json:"nombre_completo"`
	Email                string     `json:"email"`
	ClaveHash            string     `json:"-"`
	Activo               bool       `json:"activo"`
	Rol                  Rol        `json:"rol"`
	Ambito               Ambito     `json:"ciclo_asignado_id"`
	SubroganteDe         *uuid.UUID `json:"subrogante_de,omitempty"`
	CambioClaveRequerido bool       `json:"cambio_clave_requerido"`
	CreadoEn             time.Time  `json:"creado_en"`
}

// EsReferenteActivo indica si el usuario puede ser titular o subrogante.
func (u Usuario) EsReferenteActivo() bool {
	return u.Activo && u.Rol == RolReferente
}

// CicloVital es la categoría etaria que particiona casos y usuarios.
type CicloVital struct {
	ID               int64  `json:"id"`
	Nombre           string `json:"nombre"`
	RangoDescripcion string `json:"rango_descripcion,omitempty"`
}

// EntradaCatalogo es un ítem de catálogo (recinto, vulneración, institución).
type EntradaCatalogo struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
}

// EsOtro indica la opción "Otro/Otra" que exige texto complementario.
func (e EntradaCatalogo) EsOtro() bool {
	nombre := strings.ToLower(e.Nombre)
	return strings.Contains(nombre, "otro") || strings.Contains(nombre, "otra")
}

// GestionEntrada es una línea de la bitácora de gestión del caso.
type GestionEntrada struct {
	ID          int64     `json:"id"`
	CasoID      uuid.UUID `json:"caso_id"`
	Fecha       time.Time `json:"fecha"`
	AutorID     uuid.UUID `json:"autor_id"`
	AutorNombre string    `json:"autor_nombre"`
	Texto       string    `json:"texto"`
}

// Evento es un registro del log general del sistema.
type Evento struct {
	ID            int64      `json:"id"`
	Fecha         time.Time  `json:"fecha"`
	UsuarioID     *uuid.UUID `json:"usuario_id,omitempty"`
	UsuarioNombre string     `json:"usuario_nombre"`
	Accion        string     `json:"accion"`
	Detalles      string     `json:"detalles"`
}

type TokenRefresh struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	Audience  string
	TokenHash string
	ExpiraEn  time.Time
	CreadoEn  time.Time
	Revocado  bool
}

type InsertRefreshTokenParams struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	Audience  string
	TokenHash string
	ExpiraEn  time.Time
	CreadoEn  time.Time
}
