package util

import (
	"errors"
	"net/mail"
	"strings"
)

// ValidationError agrupa mensajes legibles de validación.
type ValidationError struct {
	Mensajes []string
}

func (e *ValidationError) Error() string {
	if len(e.Mensajes) == 0 {
		return "datos inválidos"
	}
	return strings.Join(e.Mensajes, "; ")
}

// NewValidationError devuelve nil cuando no hay mensajes.
func NewValidationError(mensajes ...string) error {
	if len(mensajes) == 0 {
		return nil
	}
	return &ValidationError{Mensajes: mensajes}
}

// ValidarEmail retorna error para correos inválidos.
func ValidarEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("el correo es obligatorio")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("el correo no es válido")
	}
	return nil
}

// ValidarClave verifica requisitos mínimos de contraseña.
func ValidarClave(clave string) error {
	if len(clave) < 8 {
		return errors.New("la contraseña debe tener al menos 8 caracteres")
	}
	return nil
}

// Requerido garantiza string no vacío.
func Requerido(valor, campo string) error {
	if strings.TrimSpace(valor) == "" {
		return errors.New("el campo '" + campo + "' es obligatorio")
	}
	return nil
}
