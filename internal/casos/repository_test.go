package casos

import (
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/repo"
)

func TestConstruirFiltro(t *testing.T) {
	usuario := uuid.New()
	cerrado := repo.EstadoCerrado

	tests := []struct {
		name     string
		filtro   acceso.Filtro
		consulta Consulta
		sql      string
		args     []any
	}{
		{"todos", acceso.Filtro{Alcance: acceso.AlcanceTodos}, Consulta{}, "TRUE", nil},
		{"ninguno", acceso.Filtro{}, Consulta{}, "FALSE", nil},
		{
			"ciclos",
			acceso.Filtro{Alcance: acceso.AlcanceCiclos, Ciclos: []int64{1, 2}},
			Consulta{},
			"c.ciclo_vital_id = ANY($1)",
			[]any{[]int64{1, 2}},
		},
		{
			"asignados con estado",
			acceso.Filtro{Alcance: acceso.AlcanceAsignados, UsuarioID: usuario},
			Consulta{Estado: &cerrado},
			"c.asignado_a = $1 AND c.estado = $2",
			[]any{usuario, "CERRADO"},
		},
		{
			"texto",
			acceso.Filtro{Alcance: acceso.AlcanceTodos},
			Consulta{Texto: "ana"},
			"(c.folio ILIKE $1 OR c.paciente_nombres ILIKE $1 OR c.paciente_apellidos ILIKE $1 OR c.paciente_doc_numero ILIKE $1)",
			[]any{"%ana%"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := construirFiltro(tc.filtro, tc.consulta)
			if got := f.String(); got != tc.sql {
				t.Fatalf("sql = %q, want %q", got, tc.sql)
			}
			if !reflect.DeepEqual(f.args, tc.args) {
				t.Fatalf("args = %v, want %v", f.args, tc.args)
			}
		})
	}
}
