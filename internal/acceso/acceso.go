// Package acceso decide qué casos puede ver o modificar cada usuario.
//
// Las decisiones son funciones puras sobre el Actor (usuario + titular al que
// subroga) y el caso; no leen ni escriben almacenamiento.
package acceso

import (
	"errors"

	"github.com/google/uuid"

	"github.com/redprotege/api/internal/repo"
)

// ErrForbidden indica que el actor no tiene permiso para la acción.
var ErrForbidden = errors.New("sin permiso para esta acción")

// Actor es el usuario que ejecuta la acción, releído en cada solicitud.
type Actor struct {
	Usuario repo.Usuario
	// Titular es el referente al que el usuario subroga, si la subrogancia está vigente.
	Titular *repo.Usuario
}

func (a Actor) ID() uuid.UUID {
	return a.Usuario.ID
}

func (a Actor) Rol() repo.Rol {
	return a.Usuario.Rol
}

// Subrogando indica si el actor actúa como subrogante de otro referente.
func (a Actor) Subrogando() bool {
	return a.Titular != nil
}

// Alcance es la forma del predicado de bandeja.
type Alcance int

const (
	AlcanceNinguno Alcance = iota
	AlcanceTodos
	AlcanceCiclos
	AlcanceAsignados
)

// Filtro es el predicado de visibilidad; el repositorio lo traduce a SQL.
type Filtro struct {
	Alcance   Alcance
	Ciclos    []int64
	UsuarioID uuid.UUID
}

// Incluye evalúa el filtro sobre un caso en memoria.
func (f Filtro) Incluye(c repo.Caso) bool {
	switch f.Alcance {
	case AlcanceTodos:
		return true
	case AlcanceCiclos:
		for _, id := range f.Ciclos {
			if id == c.CicloVitalID {
				return true
			}
		}
		return false
	case AlcanceAsignados:
		return c.AsignadoAUsuario(f.UsuarioID)
	default:
		return false
	}
}

// FiltroBandeja construye el predicado de listado para el actor.
func FiltroBandeja(a Actor) Filtro {
	if !a.Usuario.Activo {
		return Filtro{Alcance: AlcanceNinguno}
	}

	switch a.Rol() {
	case repo.RolAdmin:
		return Filtro{Alcance: AlcanceTodos}
	case repo.RolReferente, repo.RolVisualizador:
		return filtroReferente(a)
	case repo.RolFuncionario:
		return Filtro{Alcance: AlcanceAsignados, UsuarioID: a.ID()}
	default:
		return Filtro{Alcance: AlcanceNinguno}
	}
}

// filtroReferente une el ciclo propio con el del titular subrogado.
func filtroReferente(a Actor) Filtro {
	ciclos := make([]int64, 0, 2)
	if id, ok := a.Usuario.Ambito.Ciclo(); ok {
		ciclos = append(ciclos, id)
	}
	if a.Titular != nil {
		if id, ok := a.Titular.Ambito.Ciclo(); ok && (len(ciclos) == 0 || ciclos[0] != id) {
			ciclos = append(ciclos, id)
		}
	}

	if len(ciclos) == 0 {
		// Sin ciclo propio ni del titular: ambos son globales.
		return Filtro{Alcance: AlcanceTodos}
	}
	return Filtro{Alcance: AlcanceCiclos, Ciclos: ciclos}
}

func PuedeListar(a Actor) bool {
	return FiltroBandeja(a).Alcance != AlcanceNinguno
}

func PuedeVer(a Actor, c repo.Caso) bool {
	return FiltroBandeja(a).Incluye(c)
}

// PuedeAsignar: Admin o Referente dentro de su alcance, nunca sobre casos cerrados.
func PuedeAsignar(a Actor, c repo.Caso) bool {
	if c.Cerrado() {
		return false
	}
	switch a.Rol() {
	case repo.RolAdmin, repo.RolReferente:
		return PuedeVer(a, c)
	default:
		return false
	}
}

// PuedeGestionar: Admin o el funcionario asignado, nunca sobre casos cerrados.
func PuedeGestionar(a Actor, c repo.Caso) bool {
	if c.Cerrado() || !a.Usuario.Activo {
		return false
	}
	switch a.Rol() {
	case repo.RolAdmin:
		return true
	case repo.RolFuncionario:
		return c.AsignadoAUsuario(a.ID())
	default:
		return false
	}
}

func PuedeCerrar(a Actor, c repo.Caso) bool {
	return PuedeGestionar(a, c)
}

// PuedeDescargarActa amplía la visibilidad del funcionario a los casos que él cerró.
func PuedeDescargarActa(a Actor, c repo.Caso) bool {
	if PuedeVer(a, c) {
		return true
	}
	return a.Usuario.Activo && a.Rol() == repo.RolFuncionario && c.CerradoPorUsuario(a.ID())
}

// Accion identifica la operación a verificar.
type Accion string

const (
	AccionVer       Accion = "ver"
	AccionAsignar   Accion = "asignar"
	AccionGestionar Accion = "gestionar"
	AccionCerrar    Accion = "cerrar"
	AccionDescargar Accion = "descargar_acta"
)

// Verificar retorna ErrForbidden cuando el actor no puede ejecutar accion sobre c.
func Verificar(a Actor, accion Accion, c repo.Caso) error {
	var ok bool
	switch accion {
	case AccionVer:
		ok = PuedeVer(a, c)
	case AccionAsignar:
		ok = PuedeAsignar(a, c)
	case AccionGestionar:
		ok = PuedeGestionar(a, c)
	case AccionCerrar:
		ok = PuedeCerrar(a, c)
	case AccionDescargar:
		ok = PuedeDescargarActa(a, c)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
