package actas

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/redprotege/api/internal/catalogos"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/storage"
)

func int64p(v int64) *int64 { return &v }

func catalogo() catalogos.Catalogo {
	return catalogos.Catalogo{
		Ciclos:        []repo.CicloVital{{ID: 1, Nombre: "Infantil"}},
		Recintos:      []repo.EntradaCatalogo{{ID: 10, Nombre: "CESFAM Norte"}, {ID: 11, Nombre: "Otro recinto"}},
		Vulneraciones: []repo.EntradaCatalogo{{ID: 20, Nombre: "Maltrato físico"}, {ID: 21, Nombre: "Otro"}},
		Instituciones: []repo.EntradaCatalogo{{ID: 30, Nombre: "Carabineros"}},
	}
}

func casoCerrado() repo.Caso {
	cierre := time.Date(2026, 5, 2, 15, 0, 0, 0, time.UTC)
	defuncion := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	seg := repo.SeguimientoInicial()
	seg.RecintoInscritoID = int64p(11)
	seg.RecintoInscritoOtro = "Posta rural"
	seg.GestionVacunas = repo.SeguimientoRealizado
	seg.Fallecido = true
	seg.FechaDefuncion = &defuncion
	seg.Observaciones = "nota antigua"
	return repo.Caso{
		ID:           uuid.New(),
		CicloVitalID: 1,
		Estado:       repo.EstadoCerrado,
		FechaIngreso: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		FechaCierre:  &cierre,
		Ingreso: repo.Ingreso{
			Folio:           "F/77",
			Relato:          "Relato del ingreso",
			VulneracionIDs:  []int64{20, 21},
			VulneracionOtro: "Abandono",
		},
		Paciente: repo.Paciente{
			Nombres:   "Ana",
			Apellidos: "Muñoz",
			Documento: repo.Documento{Tipo: repo.DocumentoRUT, Numero: "11.111.111-1"},
		},
		Denuncia:    repo.Denuncia{Realizada: true, InstitucionID: int64p(30), ProfesionalNombre: "Dra. Soto"},
		Seguimiento: seg,
	}
}

func TestNuevaActa(t *testing.T) {
	cerrador := repo.Usuario{NombreCompleto: "Fina Funcionaria", Rol: repo.RolFuncionario}
	gestiones := []repo.GestionEntrada{
		{Fecha: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC), AutorNombre: "Fina", Texto: "Primer contacto"},
		{Fecha: time.Date(2026, 4, 9, 10, 0, 0, 0, time.UTC), AutorNombre: "Fina", Texto: "Visita domiciliaria"},
	}

	a := NuevaActa(casoCerrado(), gestiones, cerrador, catalogo())

	if a.Ciclo != "Infantil" || a.CerradorRol != "Funcionario" {
		t.Fatalf("unexpected header %+v", a)
	}
	if len(a.Vulneraciones) != 2 || a.Vulneraciones[1] != "Otro: Abandono" {
		t.Fatalf("unexpected violations %v", a.Vulneraciones)
	}
	if len(a.Gestiones) != 2 || a.Gestiones[1].Texto != "Visita domiciliaria" {
		t.Fatalf("expected ordered transcript, got %+v", a.Gestiones)
	}
	if a.Observaciones != "" {
		t.Fatalf("legacy notes must be omitted when the log has entries")
	}
	if !a.Fallecido || a.FechaDefuncion != "30/04/2026" {
		t.Fatalf("unexpected deceased marker %v %q", a.Fallecido, a.FechaDefuncion)
	}
	if a.Seguimiento[0].Valor != "Otro: Posta rural" || a.Seguimiento[2].Valor != "Realizado" || a.Seguimiento[1].Valor != "Pendiente de revisión" {
		t.Fatalf("unexpected follow-up labels %+v", a.Seguimiento)
	}
	if len(a.Denuncia) == 0 || a.Denuncia[0].Valor != "Carabineros" {
		t.Fatalf("unexpected report %+v", a.Denuncia)
	}

	legado := NuevaActa(casoCerrado(), nil, cerrador, catalogo())
	if legado.Observaciones != "nota antigua" {
		t.Fatalf("expected legacy notes, got %q", legado.Observaciones)
	}
}

type stubUploader struct {
	keys []string
}

func (s *stubUploader) Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadResult, error) {
	s.keys = append(s.keys, in.Key)
	return &storage.UploadResult{URL: "https://cdn/" + in.Key}, nil
}

func TestGenerarPDF(t *testing.T) {
	dir := t.TempDir()
	up := &stubUploader{}
	g := NewPDF(dir, up)

	a := NuevaActa(casoCerrado(), nil, repo.Usuario{NombreCompleto: "Ádmin", Rol: repo.RolAdmin}, catalogo())
	ruta, err := g.Generar(context.Background(), a)
	if err != nil {
		t.Fatalf("generar: %v", err)
	}
	if filepath.Dir(ruta) != dir || !strings.HasPrefix(filepath.Base(ruta), "acta_F_77_") {
		t.Fatalf("unexpected path %s", ruta)
	}
	data, err := os.ReadFile(ruta)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}
	if len(up.keys) != 1 || up.keys[0] != "actas/"+filepath.Base(ruta) {
		t.Fatalf("unexpected uploads %v", up.keys)
	}
}

func TestGenerarSinRespaldo(t *testing.T) {
	g := NewPDF(t.TempDir(), nil)
	if _, err := g.Generar(context.Background(), NuevaActa(casoCerrado(), nil, repo.Usuario{}, catalogo())); err != nil {
		t.Fatalf("generar: %v", err)
	}
}

type uploaderCaido struct{}

func (uploaderCaido) Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadResult, error) {
	return nil, errors.New("403 denied")
}

func TestGenerarRespaldoFallido(t *testing.T) {
	g := NewPDF(t.TempDir(), uploaderCaido{})
	ruta, err := g.Generar(context.Background(), NuevaActa(casoCerrado(), nil, repo.Usuario{}, catalogo()))
	if !errors.Is(err, ErrRespaldo) {
		t.Fatalf("expected ErrRespaldo, got %v", err)
	}
	if _, statErr := os.Stat(ruta); ruta == "" || statErr != nil {
		t.Fatalf("local act must exist at %q", ruta)
	}
}
