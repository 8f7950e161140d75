package acceso

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/redprotege/api/internal/repo"
)

const (
	cicloInfantil int64 = 1
	cicloAdulto   int64 = 2
	cicloMayor    int64 = 3
)

func usuario(rol repo.Rol, ambito repo.Ambito) repo.Usuario {
	return repo.Usuario{ID: uuid.New(), Rol: rol, Ambito: ambito, Activo: true}
}

func caso(ciclo int64, estado repo.Estado) repo.Caso {
	return repo.Caso{ID: uuid.New(), CicloVitalID: ciclo, Estado: estado}
}

func asignado(c repo.Caso, id uuid.UUID) repo.Caso {
	c.AsignadoA = &id
	return c
}

func TestMatrizDePermisos(t *testing.T) {
	admin := Actor{Usuario: usuario(repo.RolAdmin, repo.AmbitoGlobal())}
	refInfantil := Actor{Usuario: usuario(repo.RolReferente, repo.AmbitoCiclo(cicloInfantil))}
	refGlobal := Actor{Usuario: usuario(repo.RolReferente, repo.AmbitoGlobal())}
	visInfantil := Actor{Usuario: usuario(repo.RolVisualizador, repo.AmbitoCiclo(cicloInfantil))}
	func1 := Actor{Usuario: usuario(repo.RolFuncionario, repo.AmbitoCiclo(cicloInfantil))}
	solicitante := Actor{Usuario: usuario(repo.RolSolicitante, repo.AmbitoGlobal())}
	desconocido := Actor{Usuario: usuario(repo.RolDesconocido, repo.AmbitoGlobal())}

	infantil := caso(cicloInfantil, repo.EstadoPendiente)
	adulto := caso(cicloAdulto, repo.EstadoSeguimiento)
	propio := asignado(caso(cicloInfantil, repo.EstadoSeguimiento), func1.ID())
	ajeno := asignado(caso(cicloInfantil, repo.EstadoSeguimiento), uuid.New())
	cerrado := asignado(caso(cicloInfantil, repo.EstadoCerrado), func1.ID())

	tests := []struct {
		name   string
		actor  Actor
		caso   repo.Caso
		accion Accion
		want   bool
	}{
		{"admin ve todo", admin, adulto, AccionVer, true},
		{"admin asigna", admin, infantil, AccionAsignar, true},
		{"admin gestiona", admin, adulto, AccionGestionar, true},
		{"admin no asigna cerrado", admin, cerrado, AccionAsignar, false},
		{"admin no cierra cerrado", admin, cerrado, AccionCerrar, false},
		{"referente ve su ciclo", refInfantil, infantil, AccionVer, true},
		{"referente no ve otro ciclo", refInfantil, adulto, AccionVer, false},
		{"referente asigna en su ciclo", refInfantil, infantil, AccionAsignar, true},
		{"referente no asigna fuera de ciclo", refInfantil, adulto, AccionAsignar, false},
		{"referente nunca gestiona", refInfantil, infantil, AccionGestionar, false},
		{"referente nunca cierra", refInfantil, infantil, AccionCerrar, false},
		{"referente global ve todo", refGlobal, adulto, AccionVer, true},
		{"visualizador ve su ciclo", visInfantil, infantil, AccionVer, true},
		{"visualizador no asigna", visInfantil, infantil, AccionAsignar, false},
		{"funcionario ve asignado", func1, propio, AccionVer, true},
		{"funcionario no ve ajeno", func1, ajeno, AccionVer, false},
		{"funcionario gestiona asignado", func1, propio, AccionGestionar, true},
		{"funcionario cierra asignado", func1, propio, AccionCerrar, true},
		{"funcionario no gestiona cerrado", func1, cerrado, AccionGestionar, false},
		{"funcionario no asigna", func1, propio, AccionAsignar, false},
		{"solicitante no ve", solicitante, infantil, AccionVer, false},
		{"rol desconocido no ve", desconocido, infantil, AccionVer, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Verificar(tc.actor, tc.accion, tc.caso)
			if got := err == nil; got != tc.want {
				t.Fatalf("Verificar(%s) = %v, want allowed=%v", tc.accion, err, tc.want)
			}
			if err != nil && !errors.Is(err, ErrForbidden) {
				t.Fatalf("expected ErrForbidden, got %v", err)
			}
		})
	}
}

func TestCasoCerradoNuncaAsignable(t *testing.T) {
	roles := []repo.Rol{repo.RolAdmin, repo.RolReferente, repo.RolVisualizador, repo.RolFuncionario, repo.RolSolicitante}
	for _, rol := range roles {
		a := Actor{Usuario: usuario(rol, repo.AmbitoGlobal())}
		c := asignado(caso(cicloInfantil, repo.EstadoCerrado), a.ID())
		if PuedeAsignar(a, c) {
			t.Fatalf("%s could assign a closed case", rol)
		}
	}
}

func TestFuncionarioDescargaActaDeCasoQueCerro(t *testing.T) {
	f := Actor{Usuario: usuario(repo.RolFuncionario, repo.AmbitoCiclo(cicloInfantil))}
	c := asignado(caso(cicloInfantil, repo.EstadoCerrado), uuid.New())
	closer := f.ID()
	c.UsuarioCierre = &closer

	if PuedeVer(f, c) {
		t.Fatalf("funcionario should not view a case reassigned to someone else")
	}
	if !PuedeDescargarActa(f, c) {
		t.Fatalf("funcionario should download the act of a case they closed")
	}
}

func TestSubroganciaUneCiclos(t *testing.T) {
	titular := usuario(repo.RolReferente, repo.AmbitoCiclo(cicloInfantil))
	r2 := Actor{Usuario: usuario(repo.RolReferente, repo.AmbitoCiclo(cicloAdulto)), Titular: &titular}

	f := FiltroBandeja(r2)
	if f.Alcance != AlcanceCiclos || len(f.Ciclos) != 2 {
		t.Fatalf("expected union of two ciclos, got %+v", f)
	}
	if !PuedeVer(r2, caso(cicloInfantil, repo.EstadoPendiente)) || !PuedeVer(r2, caso(cicloAdulto, repo.EstadoPendiente)) {
		t.Fatalf("delegate must see own and titular ciclo")
	}
	if PuedeVer(r2, caso(cicloMayor, repo.EstadoPendiente)) {
		t.Fatalf("delegate must not see unrelated ciclo")
	}
	if !PuedeAsignar(r2, caso(cicloInfantil, repo.EstadoPendiente)) {
		t.Fatalf("delegate must assign in titular ciclo")
	}

	r2.Titular = nil
	if PuedeVer(r2, caso(cicloInfantil, repo.EstadoPendiente)) {
		t.Fatalf("ending delegation must remove titular ciclo")
	}
}

func TestSubroganciaConAmbitosAusentes(t *testing.T) {
	titularGlobal := usuario(repo.RolReferente, repo.AmbitoGlobal())
	titularInfantil := usuario(repo.RolReferente, repo.AmbitoCiclo(cicloInfantil))

	tests := []struct {
		name  string
		actor Actor
		want  Filtro
	}{
		{
			name:  "propio global sin subrogancia",
			actor: Actor{Usuario: usuario(repo.RolReferente, repo.AmbitoGlobal())},
			want:  Filtro{Alcance: AlcanceTodos},
		},
		{
			name:  "propio global subrogando titular con ciclo",
			actor: Actor{Usuario: usuario(repo.RolReferente, repo.AmbitoGlobal()), Titular: &titularInfantil},
			want:  Filtro{Alcance: AlcanceCiclos, Ciclos: []int64{cicloInfantil}},
		},
		{
			name:  "propio con ciclo subrogando titular global",
			actor: Actor{Usuario: usuario(repo.RolReferente, repo.AmbitoCiclo(cicloAdulto)), Titular: &titularGlobal},
			want:  Filtro{Alcance: AlcanceCiclos, Ciclos: []int64{cicloAdulto}},
		},
		{
			name:  "ambos globales",
			actor: Actor{Usuario: usuario(repo.RolReferente, repo.AmbitoGlobal()), Titular: &titularGlobal},
			want:  Filtro{Alcance: AlcanceTodos},
		},
		{
			name:  "mismo ciclo no se duplica",
			actor: Actor{Usuario: usuario(repo.RolReferente, repo.AmbitoCiclo(cicloInfantil)), Titular: &titularInfantil},
			want:  Filtro{Alcance: AlcanceCiclos, Ciclos: []int64{cicloInfantil}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FiltroBandeja(tc.actor)
			if got.Alcance != tc.want.Alcance || len(got.Ciclos) != len(tc.want.Ciclos) {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
			for i := range got.Ciclos {
				if got.Ciclos[i] != tc.want.Ciclos[i] {
					t.Fatalf("got %+v want %+v", got, tc.want)
				}
			}
		})
	}
}

func TestUsuarioInactivoNoVe(t *testing.T) {
	a := Actor{Usuario: usuario(repo.RolAdmin, repo.AmbitoGlobal())}
	a.Usuario.Activo = false
	if PuedeListar(a) || PuedeVer(a, caso(cicloInfantil, repo.EstadoPendiente)) {
		t.Fatalf("inactive users must see nothing")
	}
}
