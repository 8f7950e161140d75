package subrogancia

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/catalogos"
	httpmiddleware "github.com/redprotege/api/internal/http/middleware"
	"github.com/redprotege/api/internal/notificacion"
	"github.com/redprotege/api/internal/repo"
)

type memUsuarios struct {
	usuarios map[uuid.UUID]repo.Usuario
}

func (m *memUsuarios) Obtener(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	u, ok := m.usuarios[id]
	if !ok {
		return repo.Usuario{}, repo.ErrNotFound
	}
	return u, nil
}

func (m *memUsuarios) SubroganteDe(ctx context.Context, titular uuid.UUID) (*repo.Usuario, error) {
	for _, u := range m.usuarios {
		if u.SubroganteDe != nil && *u.SubroganteDe == titular {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *memUsuarios) AsignarSubrogancia(ctx context.Context, subrogante, titular uuid.UUID) error {
	if otro, _ := m.SubroganteDe(ctx, titular); otro != nil && otro.ID != subrogante {
		return repo.ErrConflicto
	}
	u, ok := m.usuarios[subrogante]
	if !ok {
		return repo.ErrNotFound
	}
	if u.SubroganteDe != nil && *u.SubroganteDe != titular {
		return repo.ErrConflicto
	}
	t := titular
	u.SubroganteDe = &t
	m.usuarios[subrogante] = u
	return nil
}

func (m *memUsuarios) LimpiarSubrogancia(ctx context.Context, subrogante uuid.UUID) error {
	u := m.usuarios[subrogante]
	u.SubroganteDe = nil
	m.usuarios[subrogante] = u
	return nil
}

func (m *memUsuarios) ReferentesActivos(ctx context.Context) ([]repo.Usuario, error) {
	var out []repo.Usuario
	for _, u := range m.usuarios {
		if u.EsReferenteActivo() {
			out = append(out, u)
		}
	}
	return out, nil
}

// actor replica la carga por solicitud: el titular sólo cuenta si sigue activo.
func (m *memUsuarios) actor(id uuid.UUID) acceso.Actor {
	u := m.usuarios[id]
	a := acceso.Actor{Usuario: u}
	if u.SubroganteDe != nil {
		if t, ok := m.usuarios[*u.SubroganteDe]; ok && t.EsReferenteActivo() {
			a.Titular = &t
		}
	}
	return a
}

type memEventos struct {
	eventos []repo.Evento
}

func (m *memEventos) RegistrarEvento(ctx context.Context, ev repo.Evento) error {
	m.eventos = append(m.eventos, ev)
	return nil
}

type stubCatalogo struct{}

func (stubCatalogo) Catalogo(ctx context.Context) (catalogos.Catalogo, error) {
	return catalogos.Catalogo{Ciclos: []repo.CicloVital{{ID: 1, Nombre: "Infantil"}, {ID: 2, Nombre: "Adulto"}}}, nil
}

type directTx struct{}

func (directTx) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type stubNotif struct {
	err      error
	enviados []notificacion.Mensaje
}

func (s *stubNotif) Enviar(ctx context.Context, m notificacion.Mensaje) error {
	if s.err != nil {
		return s.err
	}
	s.enviados = append(s.enviados, m)
	return nil
}

type entorno struct {
	usuarios *memUsuarios
	eventos  *memEventos
	notif    *stubNotif
	svc      *Service

	admin, refInf, refAdu, refInactivo, funcionario repo.Usuario
}

func nuevoUsuario(nombre string, rol repo.Rol, ambito repo.Ambito) repo.Usuario {
	return repo.Usuario{
		ID:             uuid.New(),
		NombreCompleto: nombre,
		Email:          strings.ToLower(strings.ReplaceAll(nombre, " ", ".")) + "@salud.cl",
		Activo:         true,
		Rol:            rol,
		Ambito:         ambito,
	}
}

func nuevoEntorno() *entorno {
	e := &entorno{
		usuarios:    &memUsuarios{usuarios: map[uuid.UUID]repo.Usuario{}},
		eventos:     &memEventos{},
		notif:       &stubNotif{},
		admin:       nuevoUsuario("Ana Admin", repo.RolAdmin, repo.AmbitoGlobal()),
		refInf:      nuevoUsuario("Ines Infantil", repo.RolReferente, repo.AmbitoCiclo(1)),
		refAdu:      nuevoUsuario("Raul Adulto", repo.RolReferente, repo.AmbitoCiclo(2)),
		refInactivo: nuevoUsuario("Olga Inactiva", repo.RolReferente, repo.AmbitoCiclo(2)),
		funcionario: nuevoUsuario("Fabian Funcionario", repo.RolFuncionario, repo.AmbitoCiclo(1)),
	}
	e.refInactivo.Activo = false
	for _, u := range []repo.Usuario{e.admin, e.refInf, e.refAdu, e.refInactivo, e.funcionario} {
		e.usuarios.usuarios[u.ID] = u
	}
	e.svc = NewService(e.usuarios, e.eventos, stubCatalogo{}, directTx{}, e.notif, notificacion.NewPlantillas("https://redprotege.test"))
	return e
}

func casoEnCiclo(ciclo int64) repo.Caso {
	return repo.Caso{ID: uuid.New(), CicloVitalID: ciclo, Estado: repo.EstadoPendiente}
}

func TestSubroganteVeCiclosUnidos(t *testing.T) {
	e := nuevoEntorno()
	ctx := context.Background()
	infantil, adulto := casoEnCiclo(1), casoEnCiclo(2)

	antes := acceso.FiltroBandeja(e.usuarios.actor(e.refAdu.ID))
	if antes.Incluye(infantil) || !antes.Incluye(adulto) {
		t.Fatalf("before delegation the referente sees only their ciclo: %+v", antes)
	}

	res, err := e.svc.Activar(ctx, e.usuarios.actor(e.refInf.ID), uuid.Nil, e.refAdu.ID)
	if err != nil {
		t.Fatalf("activar: %v", err)
	}
	if res.Subrogante == nil || res.Subrogante.ID != e.refAdu.ID || len(res.Advertencias) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(e.notif.enviados) != 1 || e.notif.enviados[0].Para[0] != e.refAdu.Email {
		t.Fatalf("expected activation email to the delegate, got %+v", e.notif.enviados)
	}

	durante := acceso.FiltroBandeja(e.usuarios.actor(e.refAdu.ID))
	if !durante.Incluye(infantil) || !durante.Incluye(adulto) {
		t.Fatalf("delegate must see both ciclos: %+v", durante)
	}
	// el titular no gana visibilidad
	if acceso.FiltroBandeja(e.usuarios.actor(e.refInf.ID)).Incluye(adulto) {
		t.Fatalf("titular must not see the delegate's ciclo")
	}

	if _, err := e.svc.Desactivar(ctx, e.usuarios.actor(e.refInf.ID), uuid.Nil); err != nil {
		t.Fatalf("desactivar: %v", err)
	}
	despues := acceso.FiltroBandeja(e.usuarios.actor(e.refAdu.ID))
	if despues.Incluye(infantil) {
		t.Fatalf("visibility must be lost after deactivation: %+v", despues)
	}

	if len(e.eventos.eventos) != 2 ||
		e.eventos.eventos[0].Accion != "SUBROGANCIA_ACTIVADA" ||
		e.eventos.eventos[1].Accion != "SUBROGANCIA_DESACTIVADA" {
		t.Fatalf("unexpected events %+v", e.eventos.eventos)
	}
	if len(e.notif.enviados) != 2 {
		t.Fatalf("expected end-of-delegation email, got %d", len(e.notif.enviados))
	}
}

func TestSubroganciaTitularInactivoNoSuma(t *testing.T) {
	e := nuevoEntorno()
	if _, err := e.svc.Activar(context.Background(), e.usuarios.actor(e.refInf.ID), uuid.Nil, e.refAdu.ID); err != nil {
		t.Fatalf("activar: %v", err)
	}
	titular := e.usuarios.usuarios[e.refInf.ID]
	titular.Activo = false
	e.usuarios.usuarios[titular.ID] = titular

	if acceso.FiltroBandeja(e.usuarios.actor(e.refAdu.ID)).Incluye(casoEnCiclo(1)) {
		t.Fatalf("an inactive titular must not extend visibility")
	}
}

func TestActivarReemplazaSubrogantePrevio(t *testing.T) {
	e := nuevoEntorno()
	ctx := context.Background()
	otro := nuevoUsuario("Pedro Global", repo.RolReferente, repo.AmbitoGlobal())
	e.usuarios.usuarios[otro.ID] = otro

	if _, err := e.svc.Activar(ctx, e.usuarios.actor(e.admin.ID), e.refInf.ID, e.refAdu.ID); err != nil {
		t.Fatalf("activar: %v", err)
	}
	if _, err := e.svc.Activar(ctx, e.usuarios.actor(e.admin.ID), e.refInf.ID, otro.ID); err != nil {
		t.Fatalf("reemplazar: %v", err)
	}
	if e.usuarios.usuarios[e.refAdu.ID].SubroganteDe != nil {
		t.Fatalf("previous delegate must be cleared")
	}
	actual, _ := e.usuarios.SubroganteDe(ctx, e.refInf.ID)
	if actual == nil || actual.ID != otro.ID {
		t.Fatalf("unexpected current delegate %+v", actual)
	}
	if !strings.Contains(e.eventos.eventos[1].Detalles, e.refAdu.ID.String()) {
		t.Fatalf("replacement must record the previous delegate: %s", e.eventos.eventos[1].Detalles)
	}
}

func TestActivarRechazos(t *testing.T) {
	e := nuevoEntorno()
	tests := []struct {
		name      string
		actor     repo.Usuario
		titular   uuid.UUID
		candidato uuid.UUID
		want      error
	}{
		{"a si mismo", e.refInf, uuid.Nil, e.refInf.ID, ErrCandidatoInvalido},
		{"candidato inactivo", e.refInf, uuid.Nil, e.refInactivo.ID, ErrCandidatoInvalido},
		{"candidato no referente", e.refInf, uuid.Nil, e.funcionario.ID, ErrCandidatoInvalido},
		{"candidato inexistente", e.refInf, uuid.Nil, uuid.New(), ErrCandidatoInvalido},
		{"referente por otro titular", e.refInf, e.refAdu.ID, e.admin.ID, acceso.ErrForbidden},
		{"funcionario", e.funcionario, uuid.Nil, e.refAdu.ID, acceso.ErrForbidden},
		{"admin sobre no referente", e.admin, e.funcionario.ID, e.refAdu.ID, ErrCandidatoInvalido},
		{"titular inexistente", e.admin, uuid.New(), e.refAdu.ID, repo.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Activar(context.Background(), e.usuarios.actor(tc.actor.ID), tc.titular, tc.candidato)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(e.eventos.eventos) != 0 {
		t.Fatalf("rejected activations must not log events")
	}
}

func TestActivarCandidatoQueYaSubroga(t *testing.T) {
	e := nuevoEntorno()
	ctx := context.Background()
	otroTitular := nuevoUsuario("Xavier Referente", repo.RolReferente, repo.AmbitoCiclo(2))
	e.usuarios.usuarios[otroTitular.ID] = otroTitular

	if _, err := e.svc.Activar(ctx, e.usuarios.actor(e.refInf.ID), uuid.Nil, e.refAdu.ID); err != nil {
		t.Fatalf("activar: %v", err)
	}
	enviados := len(e.notif.enviados)

	_, err := e.svc.Activar(ctx, e.usuarios.actor(otroTitular.ID), uuid.Nil, e.refAdu.ID)
	if !errors.Is(err, ErrCandidatoInvalido) {
		t.Fatalf("expected ErrCandidatoInvalido, got %v", err)
	}
	actual, _ := e.usuarios.SubroganteDe(ctx, e.refInf.ID)
	if actual == nil || actual.ID != e.refAdu.ID {
		t.Fatalf("existing delegation must survive, got %+v", actual)
	}
	if len(e.eventos.eventos) != 1 || len(e.notif.enviados) != enviados {
		t.Fatalf("rejected activation must not log or notify: %d events", len(e.eventos.eventos))
	}

	// reactivar para el mismo titular sigue permitido
	if _, err := e.svc.Activar(ctx, e.usuarios.actor(e.refInf.ID), uuid.Nil, e.refAdu.ID); err != nil {
		t.Fatalf("reactivar mismo titular: %v", err)
	}

	est, err := e.svc.Estado(ctx, e.usuarios.actor(otroTitular.ID), uuid.Nil)
	if err != nil {
		t.Fatalf("estado: %v", err)
	}
	for _, c := range est.Candidatos {
		if c.ID == e.refAdu.ID {
			t.Fatalf("a referent covering another titular must not be offered")
		}
	}
}

func TestActivarCorreoFallidoAdvierte(t *testing.T) {
	e := nuevoEntorno()
	e.notif.err = errors.New("smtp caído")

	res, err := e.svc.Activar(context.Background(), e.usuarios.actor(e.refInf.ID), uuid.Nil, e.refAdu.ID)
	if err != nil {
		t.Fatalf("email failure must not abort: %v", err)
	}
	if len(res.Advertencias) != 1 {
		t.Fatalf("expected a warning, got %+v", res.Advertencias)
	}
	if e.usuarios.usuarios[e.refAdu.ID].SubroganteDe == nil {
		t.Fatalf("delegation must persist")
	}
}

func TestDesactivarSinSubrogancia(t *testing.T) {
	e := nuevoEntorno()
	res, err := e.svc.Desactivar(context.Background(), e.usuarios.actor(e.refInf.ID), uuid.Nil)
	if err != nil {
		t.Fatalf("desactivar: %v", err)
	}
	if len(res.Advertencias) != 1 || len(e.eventos.eventos) != 0 || len(e.notif.enviados) != 0 {
		t.Fatalf("expected a warning-only no-op, got %+v", res)
	}
}

func TestEstado(t *testing.T) {
	e := nuevoEntorno()
	ctx := context.Background()
	if _, err := e.svc.Activar(ctx, e.usuarios.actor(e.refInf.ID), uuid.Nil, e.refAdu.ID); err != nil {
		t.Fatalf("activar: %v", err)
	}

	est, err := e.svc.Estado(ctx, e.usuarios.actor(e.refInf.ID), uuid.Nil)
	if err != nil {
		t.Fatalf("estado: %v", err)
	}
	if est.Subrogante == nil || est.Subrogante.ID != e.refAdu.ID {
		t.Fatalf("unexpected delegate %+v", est.Subrogante)
	}
	for _, c := range est.Candidatos {
		if c.ID == e.refInf.ID || c.ID == e.refInactivo.ID {
			t.Fatalf("unexpected candidate %s", c.NombreCompleto)
		}
	}

	delegado, err := e.svc.Estado(ctx, e.usuarios.actor(e.refAdu.ID), uuid.Nil)
	if err != nil {
		t.Fatalf("estado delegado: %v", err)
	}
	if delegado.SubrogaA == nil || delegado.SubrogaA.ID != e.refInf.ID {
		t.Fatalf("delegate must see whom they replace, got %+v", delegado.SubrogaA)
	}
}

func TestHandlerCodigos(t *testing.T) {
	e := nuevoEntorno()
	h := NewHandler(e.svc)

	tests := []struct {
		name   string
		actor  repo.Usuario
		method string
		target string
		body   string
		code   int
	}{
		{"estado", e.refInf, http.MethodGet, "/subrogancia", "", http.StatusOK},
		{"titular invalido", e.admin, http.MethodGet, "/subrogancia?titular_id=x", "", http.StatusBadRequest},
		{"funcionario", e.funcionario, http.MethodGet, "/subrogancia", "", http.StatusForbidden},
		{"candidato invalido", e.refInf, http.MethodPost, "/subrogancia", `{"subrogante_id":"` + e.funcionario.ID.String() + `"}`, http.StatusBadRequest},
		{"activar", e.refInf, http.MethodPost, "/subrogancia", `{"subrogante_id":"` + e.refAdu.ID.String() + `"}`, http.StatusOK},
		{"desactivar", e.refInf, http.MethodDelete, "/subrogancia", "", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			actor := e.usuarios.actor(tc.actor.ID)
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					next.ServeHTTP(w, req.WithContext(httpmiddleware.WithActor(req.Context(), actor)))
				})
			})
			h.RegisterRoutes(r)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body)))
			if rec.Code != tc.code {
				t.Fatalf("expected %d got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
		})
	}
}
