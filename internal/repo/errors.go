package repo

import "errors"

var (
	// ErrNotFound se retorna cuando no existe el registro.
	ErrNotFound = errors.New("registro no encontrado")
	// ErrConflicto indica que el cambio viola una restricción de unicidad.
	ErrConflicto = errors.New("el registro entra en conflicto con uno existente")
)
