package usuarios

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redprotege/api/internal/db"
	"github.com/redprotege/api/internal/repo"
)

const dbTimeout = 3 * time.Second

const selectUsuario = `
	SELECT u.id, u.nombre_completo, u.email, u.clave_hash, u.activo, r.nombre,
	       u.ciclo_asignado_id, u.subrogante_de, u.cambio_clave_requerido, u.creado_en
	FROM usuarios u
	JOIN roles r ON r.id = u.rol_id`

// Repository accede a usuarios y roles en Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanUsuario(row pgx.Row) (repo.Usuario, error) {
	var (
		u     repo.Usuario
		rol   string
		ciclo *int64
	)
	err := row.Scan(&u.ID, &u.NombreCompleto, &u.Email, &u.ClaveHash, &u.Activo, &rol,
		&ciclo, &u.SubroganteDe, &u.CambioClaveRequerido, &u.CreadoEn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repo.Usuario{}, repo.ErrNotFound
		}
		return repo.Usuario{}, err
	}
	u.Rol = repo.ParseRol(rol)
	u.Ambito = repo.AmbitoDesde(ciclo)
	return u, nil
}

func (r *Repository) listar(ctx context.Context, sql string, args ...any) ([]repo.Usuario, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repo.Usuario
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) Obtener(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return scanUsuario(db.Conn(ctx, r.pool).QueryRow(ctx, selectUsuario+` WHERE u.id = $1`, id))
}

func (r *Repository) ObtenerPorEmail(ctx context.Context, email string) (repo.Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return scanUsuario(db.Conn(ctx, r.pool).QueryRow(ctx, selectUsuario+` WHERE lower(u.email) = lower($1)`, strings.TrimSpace(email)))
}

// Filtro restringe el listado administrativo.
type Filtro struct {
	Texto     string
	Rol       repo.Rol
	Pagina    int
	PorPagina int
}

// Listar retorna una página de usuarios y el total.
func (r *Repository) Listar(ctx context.Context, f Filtro) ([]repo.Usuario, int, error) {
	where := []string{"1=1"}
	var args []any
	if t := strings.TrimSpace(f.Texto); t != "" {
		args = append(args, "%"+t+"%")
		where = append(where, fmt.Sprintf("(u.nombre_completo ILIKE $%d OR u.email ILIKE $%d)", len(args), len(args)))
	}
	if f.Rol.Valido() {
		args = append(args, f.Rol.String())
		where = append(where, fmt.Sprintf("r.nombre = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT count(*) FROM usuarios u JOIN roles r ON r.id = u.rol_id WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	porPagina := f.PorPagina
	if porPagina <= 0 || porPagina > 100 {
		porPagina = 20
	}
	pagina := f.Pagina
	if pagina <= 0 {
		pagina = 1
	}
	args = append(args, porPagina, (pagina-1)*porPagina)
	usuarios, err := r.listar(ctx, fmt.Sprintf(`%s WHERE %s ORDER BY u.nombre_completo LIMIT $%d OFFSET $%d`,
		selectUsuario, cond, len(args)-1, len(args)), args...)
	return usuarios, total, err
}

// NuevoUsuario son los datos persistibles de un alta.
type NuevoUsuario struct {
	NombreCompleto       string
	Email                string
	ClaveHash            string
	Rol                  repo.Rol
	Ambito               repo.Ambito
	CambioClaveRequerido bool
}

func (r *Repository) Crear(ctx context.Context, n NuevoUsuario) (repo.Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	u := repo.Usuario{
		NombreCompleto:       n.NombreCompleto,
		Email:                strings.ToLower(n.Email),
		ClaveHash:            n.ClaveHash,
		Activo:               true,
		Rol:                  n.Rol,
		Ambito:               n.Ambito,
		CambioClaveRequerido: n.CambioClaveRequerido,
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO usuarios (nombre_completo, email, clave_hash, activo, rol_id, ciclo_asignado_id, cambio_clave_requerido)
		SELECT $1, $2, $3, true, r.id, $5, $6 FROM roles r WHERE r.nombre = $4
		RETURNING id, creado_en
	`, u.NombreCompleto, u.Email, u.ClaveHash, u.Rol.String(), u.Ambito.Ptr(), u.CambioClaveRequerido).Scan(&u.ID, &u.CreadoEn)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return repo.Usuario{}, fmt.Errorf("usuarios: rol %s no registrado: %w", u.Rol, repo.ErrNotFound)
	case db.EsViolacionUnica(err):
		return repo.Usuario{}, repo.ErrConflicto
	case err != nil:
		return repo.Usuario{}, err
	}
	return u, nil
}

// Cambios son los campos editables por un administrador.
type Cambios struct {
	NombreCompleto string
	Email          string
	Rol            repo.Rol
	Ambito         repo.Ambito
}

func (r *Repository) Actualizar(ctx context.Context, id uuid.UUID, c Cambios) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE usuarios u
		SET nombre_completo = $2, email = $3, rol_id = r.id, ciclo_asignado_id = $5
		FROM roles r
		WHERE u.id = $1 AND r.nombre = $4
	`, id, c.NombreCompleto, strings.ToLower(c.Email), c.Rol.String(), c.Ambito.Ptr())
	if db.EsViolacionUnica(err) {
		return repo.ErrConflicto
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *Repository) CambiarActivo(ctx context.Context, id uuid.UUID, activo bool) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE usuarios SET activo = $2 WHERE id = $1`, id, activo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// CambiarClave guarda un nuevo hash y fija si se exige cambio en el próximo ingreso.
func (r *Repository) CambiarClave(ctx context.Context, id uuid.UUID, hash string, requerirCambio bool) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE usuarios SET clave_hash = $2, cambio_clave_requerido = $3 WHERE id = $1`, id, hash, requerirCambio)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ReferentesParaCiclo retorna los referentes activos del ciclo o sin ciclo (globales).
func (r *Repository) ReferentesParaCiclo(ctx context.Context, ciclo int64) ([]repo.Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return r.listar(ctx, selectUsuario+`
		WHERE r.nombre = 'Referente' AND u.activo
		  AND (u.ciclo_asignado_id = $1 OR u.ciclo_asignado_id IS NULL)
		ORDER BY u.nombre_completo`, ciclo)
}

// ReferentesActivos lista todos los referentes activos.
func (r *Repository) ReferentesActivos(ctx context.Context) ([]repo.Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return r.listar(ctx, selectUsuario+` WHERE r.nombre = 'Referente' AND u.activo ORDER BY u.nombre_completo`)
}

// Funcionarios lista funcionarios activos; con ciclo, sólo los de ese ciclo.
func (r *Repository) Funcionarios(ctx context.Context, ciclo *int64) ([]repo.Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	if ciclo == nil {
		return r.listar(ctx, selectUsuario+` WHERE r.nombre = 'Funcionario' AND u.activo ORDER BY u.nombre_completo`)
	}
	return r.listar(ctx, selectUsuario+`
		WHERE r.nombre = 'Funcionario' AND u.activo AND u.ciclo_asignado_id = $1
		ORDER BY u.nombre_completo`, *ciclo)
}

// SubroganteDe retorna quien subroga actualmente al titular, o nil.
func (r *Repository) SubroganteDe(ctx context.Context, titular uuid.UUID) (*repo.Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	u, err := scanUsuario(db.Conn(ctx, r.pool).QueryRow(ctx, selectUsuario+` WHERE u.subrogante_de = $1`, titular))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AsignarSubrogancia apunta subrogante.subrogante_de al titular. Si el subrogante ya
// cubre a otro titular retorna repo.ErrConflicto sin modificar nada.
func (r *Repository) AsignarSubrogancia(ctx context.Context, subrogante, titular uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE usuarios SET subrogante_de = $2
		WHERE id = $1 AND (subrogante_de IS NULL OR subrogante_de = $2)
	`, subrogante, titular)
	if db.EsViolacionUnica(err) {
		return repo.ErrConflicto
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrConflicto
	}
	return nil
}

// LimpiarSubrogancia anula el puntero del subrogante.
func (r *Repository) LimpiarSubrogancia(ctx context.Context, subrogante uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE usuarios SET subrogante_de = NULL WHERE id = $1`, subrogante)
	return err
}

// LimpiarSubroganciasDe corta toda subrogancia en que participa el usuario, como titular o subrogante.
func (r *Repository) LimpiarSubroganciasDe(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE usuarios SET subrogante_de = NULL
		WHERE subrogante_de IS NOT NULL AND (id = $1 OR subrogante_de = $1)
	`, id)
	return err
}

// Panel resume la operación para el tablero de administración.
type Panel struct {
	Usuarios        int                 `json:"usuarios"`
	UsuariosActivos int                 `json:"usuarios_activos"`
	Casos           int                 `json:"casos"`
	PorEstado       map[repo.Estado]int `json:"por_estado"`
}

func (r *Repository) Panel(ctx context.Context) (Panel, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	q := db.Conn(ctx, r.pool)
	p := Panel{PorEstado: map[repo.Estado]int{
		repo.EstadoPendiente:   0,
		repo.EstadoSeguimiento: 0,
		repo.EstadoCerrado:     0,
	}}
	if err := q.QueryRow(ctx, `SELECT count(*), count(*) FILTER (WHERE activo) FROM usuarios`).Scan(&p.Usuarios, &p.UsuariosActivos); err != nil {
		return p, err
	}

	rows, err := q.Query(ctx, `SELECT estado, count(*) FROM casos GROUP BY estado`)
	if err != nil {
		return p, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			estado string
			n      int
		)
		if err := rows.Scan(&estado, &n); err != nil {
			return p, err
		}
		p.PorEstado[repo.Estado(estado)] = n
		p.Casos += n
	}
	return p, rows.Err()
}
