package casos

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/actas"
	"github.com/redprotege/api/internal/auditoria"
	"github.com/redprotege/api/internal/catalogos"
	"github.com/redprotege/api/internal/notificacion"
	"github.com/redprotege/api/internal/repo"
)

const (
	cicloInfantil int64 = 1
	cicloAdulto   int64 = 2
)

var errDB = errors.New("db caída")

// mundo es el estado compartido por los stubs en memoria.
type mundo struct {
	casos     map[uuid.UUID]repo.Caso
	gestiones []repo.GestionEntrada
	entradas  []auditoria.Entrada
	eventos   []repo.Evento
	usuarios  map[uuid.UUID]repo.Usuario

	fallaAuditoria  bool
	fallaReferentes bool
}

func copiarCaso(c repo.Caso) repo.Caso {
	if c.Acompanante != nil {
		a := *c.Acompanante
		c.Acompanante = &a
	}
	c.Ingreso.VulneracionIDs = append([]int64(nil), c.Ingreso.VulneracionIDs...)
	return c
}

type memCasos struct{ *mundo }

func (m memCasos) Obtener(ctx context.Context, id uuid.UUID) (repo.Caso, error) {
	c, ok := m.casos[id]
	if !ok {
		return repo.Caso{}, repo.ErrNotFound
	}
	c = copiarCaso(c)
	if c.AsignadoA != nil {
		c.AsignadoNombre = m.usuarios[*c.AsignadoA].NombreCompleto
	}
	return c, nil
}

func (m memCasos) Listar(ctx context.Context, f acceso.Filtro, q Consulta) ([]repo.Caso, int, error) {
	var out []repo.Caso
	for _, c := range m.casos {
		if !f.Incluye(c) {
			continue
		}
		if q.Estado != nil && c.Estado != *q.Estado {
			continue
		}
		out = append(out, copiarCaso(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Estado.Prioridad() != out[j].Estado.Prioridad() {
			return out[i].Estado.Prioridad() < out[j].Estado.Prioridad()
		}
		return out[i].FechaIngreso.After(out[j].FechaIngreso)
	})
	total := len(out)
	if !q.SinPaginar {
		desde := (q.Pagina - 1) * PorPagina
		if desde > len(out) {
			desde = len(out)
		}
		hasta := desde + PorPagina
		if hasta > len(out) {
			hasta = len(out)
		}
		out = out[desde:hasta]
	}
	return out, total, nil
}

func (m memCasos) Crear(ctx context.Context, c *repo.Caso) error {
	for _, otro := range m.casos {
		if otro.Ingreso.Folio == c.Ingreso.Folio {
			return repo.ErrConflicto
		}
	}
	c.ID = uuid.New()
	m.casos[c.ID] = copiarCaso(*c)
	return nil
}

func (m memCasos) Asignar(ctx context.Context, id, asignado, por uuid.UUID, en time.Time, estado repo.Estado) (bool, error) {
	c := m.casos[id]
	if c.Cerrado() {
		return false, nil
	}
	c.AsignadoA, c.AsignadoPor, c.AsignadoEn, c.Estado = &asignado, &por, &en, estado
	m.casos[id] = c
	return true, nil
}

func (m memCasos) GuardarGestion(ctx context.Context, c repo.Caso) (bool, error) {
	actual := m.casos[c.ID]
	if actual.Cerrado() {
		return false, nil
	}
	actual.Paciente, actual.Denuncia, actual.Seguimiento = c.Paciente, c.Denuncia, c.Seguimiento
	actual.Acompanante = copiarCaso(c).Acompanante
	actual.ActualizadoEn = c.ActualizadoEn
	m.casos[c.ID] = actual
	return true, nil
}

func (m memCasos) AgregarGestion(ctx context.Context, g *repo.GestionEntrada) error {
	g.ID = int64(len(m.gestiones) + 1)
	m.gestiones = append(m.gestiones, *g)
	return nil
}

func (m memCasos) Gestiones(ctx context.Context, id uuid.UUID) ([]repo.GestionEntrada, error) {
	out := []repo.GestionEntrada{}
	for _, g := range m.gestiones {
		if g.CasoID == id {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m memCasos) Cerrar(ctx context.Context, id, por uuid.UUID, en time.Time) (bool, error) {
	c := m.casos[id]
	if c.Cerrado() {
		return false, nil
	}
	c.Estado, c.FechaCierre, c.UsuarioCierre = repo.EstadoCerrado, &en, &por
	m.casos[id] = c
	return true, nil
}

func (m memCasos) GuardarActa(ctx context.Context, id uuid.UUID, ruta string) error {
	c, ok := m.casos[id]
	if !ok {
		return repo.ErrNotFound
	}
	c.ActaPath = ruta
	m.casos[id] = c
	return nil
}

func (m memCasos) Conteos(ctx context.Context, f acceso.Filtro) ([]Conteo, error) {
	type clave struct {
		ciclo  int64
		estado repo.Estado
	}
	acum := map[clave]int{}
	for _, c := range m.casos {
		if f.Incluye(c) {
			acum[clave{c.CicloVitalID, c.Estado}]++
		}
	}
	var out []Conteo
	for k, n := range acum {
		out = append(out, Conteo{CicloID: k.ciclo, Estado: k.estado, Cantidad: n})
	}
	return out, nil
}

type memAuditoria struct{ *mundo }

func (m memAuditoria) Registrar(ctx context.Context, e auditoria.Entrada) error {
	if m.fallaAuditoria {
		return errDB
	}
	if err := e.Valida(); err != nil {
		return err
	}
	e.ID = int64(len(m.entradas) + 1)
	m.entradas = append(m.entradas, e)
	return nil
}

func (m memAuditoria) ListarPorCaso(ctx context.Context, id uuid.UUID) ([]auditoria.Entrada, error) {
	var out []auditoria.Entrada
	for _, e := range m.entradas {
		if e.CasoID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m memAuditoria) RegistrarEvento(ctx context.Context, ev repo.Evento) error {
	m.eventos = append(m.eventos, ev)
	return nil
}

type memUsuarios struct{ *mundo }

func (m memUsuarios) Obtener(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	u, ok := m.usuarios[id]
	if !ok {
		return repo.Usuario{}, repo.ErrNotFound
	}
	return u, nil
}

func (m memUsuarios) ReferentesParaCiclo(ctx context.Context, ciclo int64) ([]repo.Usuario, error) {
	if m.fallaReferentes {
		return nil, errDB
	}
	var out []repo.Usuario
	for _, u := range m.usuarios {
		if !u.EsReferenteActivo() {
			continue
		}
		if c, ok := u.Ambito.Ciclo(); !ok || c == ciclo {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// memTx restaura el estado si fn falla, como un rollback.
type memTx struct{ *mundo }

func (m memTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	casos := make(map[uuid.UUID]repo.Caso, len(m.casos))
	for k, v := range m.casos {
		casos[k] = copiarCaso(v)
	}
	nGestiones, nEntradas := len(m.gestiones), len(m.entradas)

	if err := fn(ctx); err != nil {
		m.casos = casos
		m.gestiones = m.gestiones[:nGestiones]
		m.entradas = m.entradas[:nEntradas]
		return err
	}
	return nil
}

type stubCatalogo struct{ cat catalogos.Catalogo }

func (s stubCatalogo) Catalogo(ctx context.Context) (catalogos.Catalogo, error) {
	return s.cat, nil
}

type stubGenerador struct {
	ruta    string
	err     error
	llamado int
	ultima  actas.Acta
}

func (s *stubGenerador) Generar(ctx context.Context, a actas.Acta) (string, error) {
	s.llamado++
	s.ultima = a
	if s.err != nil && !errors.Is(s.err, actas.ErrRespaldo) {
		return "", s.err
	}
	return s.ruta, s.err
}

type stubNotif struct {
	err      error
	enviados []notificacion.Mensaje
}

func (s *stubNotif) Enviar(ctx context.Context, m notificacion.Mensaje) error {
	s.enviados = append(s.enviados, m)
	return s.err
}

func catalogoPrueba() catalogos.Catalogo {
	return catalogos.Catalogo{
		Ciclos:        []repo.CicloVital{{ID: cicloInfantil, Nombre: "Infantil"}, {ID: cicloAdulto, Nombre: "Adulto"}},
		Recintos:      []repo.EntradaCatalogo{{ID: 10, Nombre: "CESFAM Norte"}, {ID: 11, Nombre: "Otro"}},
		Vulneraciones: []repo.EntradaCatalogo{{ID: 20, Nombre: "Maltrato físico"}, {ID: 21, Nombre: "Otro"}},
		Instituciones: []repo.EntradaCatalogo{{ID: 30, Nombre: "Carabineros"}, {ID: 31, Nombre: "Otra institución"}},
	}
}

func usuario(nombre string, rol repo.Rol, ambito repo.Ambito) repo.Usuario {
	return repo.Usuario{
		ID:             uuid.New(),
		NombreCompleto: nombre,
		Email:          nombre + "@red.cl",
		Activo:         true,
		Rol:            rol,
		Ambito:         ambito,
	}
}

// entorno arma el servicio sobre un mundo en memoria con usuarios típicos.
type entorno struct {
	m      *mundo
	svc    *Service
	gen    *stubGenerador
	notif  *stubNotif
	ahora  time.Time
	admin  repo.Usuario
	refInf repo.Usuario
	refAdu repo.Usuario
	funInf repo.Usuario
	funAdu repo.Usuario
	solic  repo.Usuario
}

func nuevoEntorno() *entorno {
	e := &entorno{
		m: &mundo{
			casos:    make(map[uuid.UUID]repo.Caso),
			usuarios: make(map[uuid.UUID]repo.Usuario),
		},
		gen:    &stubGenerador{ruta: "/tmp/acta.pdf"},
		notif:  &stubNotif{},
		ahora:  time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
		admin:  usuario("admin", repo.RolAdmin, repo.AmbitoGlobal()),
		refInf: usuario("ref.infantil", repo.RolReferente, repo.AmbitoCiclo(cicloInfantil)),
		refAdu: usuario("ref.adulto", repo.RolReferente, repo.AmbitoCiclo(cicloAdulto)),
		funInf: usuario("fun.infantil", repo.RolFuncionario, repo.AmbitoCiclo(cicloInfantil)),
		funAdu: usuario("fun.adulto", repo.RolFuncionario, repo.AmbitoCiclo(cicloAdulto)),
		solic:  usuario("solicitante", repo.RolSolicitante, repo.AmbitoGlobal()),
	}
	for _, u := range []repo.Usuario{e.admin, e.refInf, e.refAdu, e.funInf, e.funAdu, e.solic} {
		e.m.usuarios[u.ID] = u
	}
	e.svc = NewService(Deps{
		Casos:      memCasos{e.m},
		Auditoria:  memAuditoria{e.m},
		Eventos:    memAuditoria{e.m},
		Usuarios:   memUsuarios{e.m},
		Catalogos:  stubCatalogo{catalogoPrueba()},
		Actas:      e.gen,
		Tx:         memTx{e.m},
		Notif:      e.notif,
		Plantillas: notificacion.NewPlantillas("https://red.example.cl"),
		Now:        func() time.Time { return e.ahora },
	})
	return e
}

func actorDe(u repo.Usuario) acceso.Actor {
	return acceso.Actor{Usuario: u}
}

// sembrar agrega un caso directamente al almacenamiento.
func (e *entorno) sembrar(ciclo int64, estado repo.Estado, asignado *repo.Usuario) repo.Caso {
	c := repo.Caso{
		ID:           uuid.New(),
		CicloVitalID: ciclo,
		Estado:       estado,
		FechaIngreso: e.ahora.Add(-time.Duration(len(e.m.casos)+1) * time.Hour),
		Ingreso:      repo.Ingreso{Folio: uuid.NewString()[:8], Relato: "relato", VulneracionIDs: []int64{20}},
		Paciente:     repo.Paciente{Nombres: "Ana", Apellidos: "Pérez"},
		Seguimiento:  repo.SeguimientoInicial(),
	}
	if asignado != nil {
		id := asignado.ID
		c.AsignadoA = &id
	}
	e.m.casos[c.ID] = c
	return c
}

func (e *entorno) acciones(casoID uuid.UUID) []auditoria.Accion {
	var out []auditoria.Accion
	for _, en := range e.m.entradas {
		if en.CasoID == casoID {
			out = append(out, en.Accion)
		}
	}
	return out
}
