package repo

import (
	"encoding/json"
	"strings"
)

// Rol es la capacidad de un usuario. Es una enumeración cerrada.
type Rol int

const (
	RolDesconocido Rol = iota
	RolAdmin
	RolReferente
	RolVisualizador
	RolFuncionario
	RolSolicitante
)

var nombresRol = map[Rol]string{
	RolAdmin:        "Admin",
	RolReferente:    "Referente",
	RolVisualizador: "Visualizador",
	RolFuncionario:  "Funcionario",
	RolSolicitante:  "Solicitante",
}

// ParseRol traduce el nombre almacenado; nombres desconocidos producen RolDesconocido.
func ParseRol(nombre string) Rol {
	nombre = strings.TrimSpace(nombre)
	for rol, n := range nombresRol {
		if strings.EqualFold(n, nombre) {
			return rol
		}
	}
	return RolDesconocido
}

func (r Rol) String() string {
	if n, ok := nombresRol[r]; ok {
		return n
	}
	return "Desconocido"
}

// Valido indica si el rol pertenece a la enumeración.
func (r Rol) Valido() bool {
	_, ok := nombresRol[r]
	return ok
}

func (r Rol) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rol) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = ParseRol(s)
	return nil
}
