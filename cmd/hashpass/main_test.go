package main

import (
	"strings"
	"testing"
)

func TestLeerClave(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
		ok    bool
	}{
		{"argumento", []string{"Secreta.2026"}, "", "Secreta.2026", true},
		{"stdin", nil, "Secreta.2026\n", "Secreta.2026", true},
		{"stdin sin salto", nil, "Secreta.2026", "Secreta.2026", true},
		{"vacio", nil, "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := leerClave(tc.args, strings.NewReader(tc.stdin))
			if (err == nil) != tc.ok || got != tc.want {
				t.Fatalf("leerClave() = %q, %v", got, err)
			}
		})
	}
}
