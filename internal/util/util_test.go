package util

import (
	"errors"
	"testing"
)

func TestRUTValido(t *testing.T) {
	tests := []struct {
		rut  string
		want bool
	}{
		{"12.345.678-5", true},
		{"123456785", true},
		{"11.111.111-1", true},
		{"7.654.321-6", true},
		{"12.345.678-K", false},
		{"12.345.678-4", false},
		{"1234", false},
		{"abcdefgh-1", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.rut, func(t *testing.T) {
			if got := RUTValido(tc.rut); got != tc.want {
				t.Fatalf("RUTValido(%q) = %v, want %v", tc.rut, got, tc.want)
			}
		})
	}
}

func TestFormatearRUT(t *testing.T) {
	if got := FormatearRUT("123456785"); got != "12.345.678-5" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := FormatearRUT("7654321-6"); got != "7.654.321-6" {
		t.Fatalf("unexpected format %q", got)
	}
}

func TestValidationError(t *testing.T) {
	if NewValidationError() != nil {
		t.Fatalf("expected nil without messages")
	}

	err := NewValidationError("a", "b")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Mensajes) != 2 || err.Error() != "a; b" {
		t.Fatalf("unexpected error %q", err.Error())
	}
}

func TestValidarEmail(t *testing.T) {
	if err := ValidarEmail("referente@salud.cl"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidarEmail("no-es-correo"); err == nil {
		t.Fatalf("expected error for invalid email")
	}
}
