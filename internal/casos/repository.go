package casos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redprotege/api/internal/acceso"
	"github.com/redprotege/api/internal/db"
	"github.com/redprotege/api/internal/repo"
)

const dbTimeout = 3 * time.Second

// Repository persiste casos, vulneraciones y bitácora en Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectCaso = `
	SELECT c.id, c.ciclo_vital_id, c.estado, c.fecha_ingreso,
	       c.folio, c.fecha_atencion, c.hora_atencion, c.recinto_notifica_id, c.recinto_otro,
	       c.ingresado_por, c.ingresado_cargo, c.relato, c.vulneracion_otro, c.solicitante_id,
	       COALESCE((SELECT array_agg(cv.vulneracion_id ORDER BY cv.vulneracion_id)
	                 FROM caso_vulneraciones cv WHERE cv.caso_id = c.id), '{}'::bigint[]),
	       c.paciente_nombres, c.paciente_apellidos, c.paciente_doc_tipo, c.paciente_doc_numero,
	       c.paciente_doc_otro, c.paciente_fecha_nacimiento, c.paciente_telefono,
	       c.paciente_calle, c.paciente_numero, c.acompanante,
	       c.denuncia_realizada, c.denuncia_institucion_id, c.denuncia_institucion_otro,
	       c.denuncia_profesional_nombre, c.denuncia_profesional_cargo,
	       c.recinto_inscrito_id, c.recinto_inscrito_otro, c.control_sanitario, c.gestion_vacunas,
	       c.gestion_judicial, c.gestion_salud_mental, c.gestion_cosam,
	       c.fallecido, c.fecha_defuncion, c.observaciones,
	       c.asignado_a, COALESCE(u.nombre_completo, ''), c.asignado_por, c.asignado_en,
	       c.fecha_cierre, c.usuario_cierre, c.acta_path, c.actualizado_en
	FROM casos c
	LEFT JOIN usuarios u ON u.id = c.asignado_a`

func scanCaso(row pgx.Row) (repo.Caso, error) {
	var (
		c                                       repo.Caso
		estado, docTipo                         string
		control, vacunas, judicial, mental, cos string
		acompanante                             []byte
	)
	s := &c.Seguimiento
	err := row.Scan(
		&c.ID, &c.CicloVitalID, &estado, &c.FechaIngreso,
		&c.Ingreso.Folio, &c.Ingreso.FechaAtencion, &c.Ingreso.HoraAtencion, &c.Ingreso.RecintoNotificaID, &c.Ingreso.RecintoOtro,
		&c.Ingreso.IngresadoPor, &c.Ingreso.IngresadoCargo, &c.Ingreso.Relato, &c.Ingreso.VulneracionOtro, &c.Ingreso.SolicitanteID,
		&c.Ingreso.VulneracionIDs,
		&c.Paciente.Nombres, &c.Paciente.Apellidos, &docTipo, &c.Paciente.Documento.Numero,
		&c.Paciente.Documento.OtroDescripcion, &c.Paciente.FechaNacimiento, &c.Paciente.Telefono,
		&c.Paciente.Domicilio.Calle, &c.Paciente.Domicilio.Numero, &acompanante,
		&c.Denuncia.Realizada, &c.Denuncia.InstitucionID, &c.Denuncia.InstitucionOtro,
		&c.Denuncia.ProfesionalNombre, &c.Denuncia.ProfesionalCargo,
		&s.RecintoInscritoID, &s.RecintoInscritoOtro, &control, &vacunas,
		&judicial, &mental, &cos,
		&s.Fallecido, &s.FechaDefuncion, &s.Observaciones,
		&c.AsignadoA, &c.AsignadoNombre, &c.AsignadoPor, &c.AsignadoEn,
		&c.FechaCierre, &c.UsuarioCierre, &c.ActaPath, &c.ActualizadoEn,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, repo.ErrNotFound
	}
	if err != nil {
		return c, err
	}

	c.Estado = repo.Estado(estado)
	c.Paciente.Documento.Tipo = repo.TipoDocumento(docTipo)
	s.ControlSanitario = repo.CodigoSeguimiento(control)
	s.GestionVacunas = repo.CodigoSeguimiento(vacunas)
	s.GestionJudicial = repo.CodigoSeguimiento(judicial)
	s.GestionSaludMental = repo.CodigoSeguimiento(mental)
	s.GestionCOSAM = repo.CodigoSeguimiento(cos)
	if len(acompanante) > 0 && string(acompanante) != "null" {
		var a repo.Acompanante
		if err := json.Unmarshal(acompanante, &a); err != nil {
			return c, fmt.Errorf("casos: acompañante de %s: %w", c.ID, err)
		}
		c.Acompanante = &a
	}
	return c, nil
}

func (r *Repository) Obtener(ctx context.Context, id uuid.UUID) (repo.Caso, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return scanCaso(db.Conn(ctx, r.pool).QueryRow(ctx, selectCaso+` WHERE c.id = $1`, id))
}

// filtroSQL acumula condiciones y argumentos posicionales.
type filtroSQL struct {
	where []string
	args  []any
}

func (f *filtroSQL) add(cond string, v any) {
	f.args = append(f.args, v)
	f.where = append(f.where, fmt.Sprintf(cond, len(f.args)))
}

func (f *filtroSQL) String() string {
	if len(f.where) == 0 {
		return "TRUE"
	}
	return strings.Join(f.where, " AND ")
}

// construirFiltro traduce la visibilidad y la consulta a SQL. Un alcance vacío no devuelve filas.
func construirFiltro(v acceso.Filtro, q Consulta) *filtroSQL {
	f := &filtroSQL{}
	switch v.Alcance {
	case acceso.AlcanceTodos:
	case acceso.AlcanceCiclos:
		f.add("c.ciclo_vital_id = ANY($%d)", v.Ciclos)
	case acceso.AlcanceAsignados:
		f.add("c.asignado_a = $%d", v.UsuarioID)
	default:
		f.where = append(f.where, "FALSE")
	}

	if q.Estado != nil {
		f.add("c.estado = $%d", string(*q.Estado))
	}
	if t := strings.TrimSpace(q.Texto); t != "" {
		patron := "%" + t + "%"
		f.args = append(f.args, patron)
		n := len(f.args)
		f.where = append(f.where, fmt.Sprintf(
			"(c.folio ILIKE $%[1]d OR c.paciente_nombres ILIKE $%[1]d OR c.paciente_apellidos ILIKE $%[1]d OR c.paciente_doc_numero ILIKE $%[1]d)", n))
	}
	return f
}

const ordenBandeja = `
	ORDER BY CASE c.estado
	           WHEN 'PENDIENTE_RESCATAR' THEN 0
	           WHEN 'EN_SEGUIMIENTO' THEN 1
	           ELSE 2
	         END, c.fecha_ingreso DESC, c.id`

// Listar retorna la página pedida y el total de casos que cumplen el filtro.
func (r *Repository) Listar(ctx context.Context, v acceso.Filtro, q Consulta) ([]repo.Caso, int, error) {
	f := construirFiltro(v, q)

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT count(*) FROM casos c WHERE `+f.String(), f.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := selectCaso + ` WHERE ` + f.String() + ordenBandeja
	args := f.args
	if !q.SinPaginar {
		pagina := q.Pagina
		if pagina <= 0 {
			pagina = 1
		}
		args = append(args, PorPagina, (pagina-1)*PorPagina)
		sql += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var casos []repo.Caso
	for rows.Next() {
		c, err := scanCaso(rows)
		if err != nil {
			return nil, 0, err
		}
		casos = append(casos, c)
	}
	return casos, total, rows.Err()
}

func acompananteJSON(a *repo.Acompanante) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Crear inserta el caso y sus vulneraciones. Debe llamarse dentro de una transacción.
func (r *Repository) Crear(ctx context.Context, c *repo.Caso) error {
	acomp, err := acompananteJSON(c.Acompanante)
	if err != nil {
		return err
	}
	if c.ActualizadoEn.IsZero() {
		c.ActualizadoEn = c.FechaIngreso
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	conn := db.Conn(ctx, r.pool)

	in, p, d, s := c.Ingreso, c.Paciente, c.Denuncia, c.Seguimiento
	err = conn.QueryRow(ctx, `
		INSERT INTO casos (
			ciclo_vital_id, estado, fecha_ingreso, folio, fecha_atencion, hora_atencion,
			recinto_notifica_id, recinto_otro, ingresado_por, ingresado_cargo, relato,
			vulneracion_otro, solicitante_id,
			paciente_nombres, paciente_apellidos, paciente_doc_tipo, paciente_doc_numero,
			paciente_doc_otro, paciente_fecha_nacimiento, paciente_telefono, paciente_calle,
			paciente_numero, acompanante,
			denuncia_realizada, denuncia_institucion_id, denuncia_institucion_otro,
			denuncia_profesional_nombre, denuncia_profesional_cargo,
			control_sanitario, gestion_vacunas, gestion_judicial, gestion_salud_mental, gestion_cosam,
			actualizado_en
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23,
			$24, $25, $26, $27, $28,
			$29, $30, $31, $32, $33, $34
		) RETURNING id
	`,
		c.CicloVitalID, string(c.Estado), c.FechaIngreso, in.Folio, in.FechaAtencion, in.HoraAtencion,
		in.RecintoNotificaID, in.RecintoOtro, in.IngresadoPor, in.IngresadoCargo, in.Relato,
		in.VulneracionOtro, in.SolicitanteID,
		p.Nombres, p.Apellidos, string(p.Documento.Tipo), p.Documento.Numero,
		p.Documento.OtroDescripcion, p.FechaNacimiento, p.Telefono, p.Domicilio.Calle,
		p.Domicilio.Numero, acomp,
		d.Realizada, d.InstitucionID, d.InstitucionOtro, d.ProfesionalNombre, d.ProfesionalCargo,
		string(s.ControlSanitario), string(s.GestionVacunas), string(s.GestionJudicial),
		string(s.GestionSaludMental), string(s.GestionCOSAM),
		c.ActualizadoEn,
	).Scan(&c.ID)
	if db.EsViolacionUnica(err) {
		return repo.ErrConflicto
	}
	if err != nil {
		return err
	}

	for _, v := range in.VulneracionIDs {
		if _, err := conn.Exec(ctx, `
			INSERT INTO caso_vulneraciones (caso_id, vulneracion_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, c.ID, v); err != nil {
			return err
		}
	}
	return nil
}

// Asignar actualiza responsable y estado. false indica que el caso ya estaba cerrado.
func (r *Repository) Asignar(ctx context.Context, id, asignado, por uuid.UUID, en time.Time, estado repo.Estado) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE casos
		SET asignado_a = $2, asignado_por = $3, asignado_en = $4, estado = $5, actualizado_en = $4
		WHERE id = $1 AND estado <> 'CERRADO'
	`, id, asignado, por, en, string(estado))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GuardarGestion persiste los campos clínicos; no toca estado ni asignación.
func (r *Repository) GuardarGestion(ctx context.Context, c repo.Caso) (bool, error) {
	acomp, err := acompananteJSON(c.Acompanante)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p, d, s := c.Paciente, c.Denuncia, c.Seguimiento
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE casos SET
			paciente_nombres = $2, paciente_apellidos = $3, paciente_doc_tipo = $4,
			paciente_doc_numero = $5, paciente_doc_otro = $6, paciente_fecha_nacimiento = $7,
			paciente_telefono = $8, paciente_calle = $9, paciente_numero = $10, acompanante = $11,
			denuncia_realizada = $12, denuncia_institucion_id = $13, denuncia_institucion_otro = $14,
			denuncia_profesional_nombre = $15, denuncia_profesional_cargo = $16,
			recinto_inscrito_id = $17, recinto_inscrito_otro = $18,
			control_sanitario = $19, gestion_vacunas = $20, gestion_judicial = $21,
			gestion_salud_mental = $22, gestion_cosam = $23,
			fallecido = $24, fecha_defuncion = $25, actualizado_en = $26
		WHERE id = $1 AND estado <> 'CERRADO'
	`,
		c.ID,
		p.Nombres, p.Apellidos, string(p.Documento.Tipo),
		p.Documento.Numero, p.Documento.OtroDescripcion, p.FechaNacimiento,
		p.Telefono, p.Domicilio.Calle, p.Domicilio.Numero, acomp,
		d.Realizada, d.InstitucionID, d.InstitucionOtro,
		d.ProfesionalNombre, d.ProfesionalCargo,
		s.RecintoInscritoID, s.RecintoInscritoOtro,
		string(s.ControlSanitario), string(s.GestionVacunas), string(s.GestionJudicial),
		string(s.GestionSaludMental), string(s.GestionCOSAM),
		s.Fallecido, s.FechaDefuncion, c.ActualizadoEn,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) AgregarGestion(ctx context.Context, g *repo.GestionEntrada) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO caso_gestiones (caso_id, fecha, autor_id, autor_nombre, texto)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, g.CasoID, g.Fecha, g.AutorID, g.AutorNombre, g.Texto).Scan(&g.ID)
}

// Gestiones retorna la bitácora en orden cronológico.
func (r *Repository) Gestiones(ctx context.Context, id uuid.UUID) ([]repo.GestionEntrada, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, caso_id, fecha, autor_id, autor_nombre, texto
		FROM caso_gestiones
		WHERE caso_id = $1
		ORDER BY fecha ASC, id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	gestiones := []repo.GestionEntrada{}
	for rows.Next() {
		var g repo.GestionEntrada
		if err := rows.Scan(&g.ID, &g.CasoID, &g.Fecha, &g.AutorID, &g.AutorNombre, &g.Texto); err != nil {
			return nil, err
		}
		gestiones = append(gestiones, g)
	}
	return gestiones, rows.Err()
}

// Cerrar marca el caso como CERRADO. false indica que ya lo estaba.
func (r *Repository) Cerrar(ctx context.Context, id, por uuid.UUID, en time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE casos
		SET estado = 'CERRADO', fecha_cierre = $3, usuario_cierre = $2, actualizado_en = $3
		WHERE id = $1 AND estado <> 'CERRADO'
	`, id, por, en)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) GuardarActa(ctx context.Context, id uuid.UUID, ruta string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE casos SET acta_path = $2 WHERE id = $1`, id, ruta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// Conteos agrupa por ciclo y estado los casos visibles.
func (r *Repository) Conteos(ctx context.Context, v acceso.Filtro) ([]Conteo, error) {
	f := construirFiltro(v, Consulta{})

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT c.ciclo_vital_id, c.estado, count(*)
		FROM casos c
		WHERE `+f.String()+`
		GROUP BY c.ciclo_vital_id, c.estado
	`, f.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conteo
	for rows.Next() {
		var (
			c      Conteo
			estado string
		)
		if err := rows.Scan(&c.CicloID, &estado, &c.Cantidad); err != nil {
			return nil, err
		}
		c.Estado = repo.Estado(estado)
		out = append(out, c)
	}
	return out, rows.Err()
}
