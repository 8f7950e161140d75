package auditoria

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redprotege/api/internal/db"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/util"
)

const dbTimeout = 3 * time.Second

// Repository persiste la auditoría de casos y el log del sistema.
// Sólo expone inserciones y lecturas.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Registrar agrega una entrada; participa de la transacción presente en ctx.
func (r *Repository) Registrar(ctx context.Context, e Entrada) error {
	if err := e.Valida(); err != nil {
		return err
	}
	payload, err := json.Marshal(e.Detalle)
	if err != nil {
		return fmt.Errorf("auditoria: serializar detalle: %w", err)
	}
	if e.Fecha.IsZero() {
		e.Fecha = util.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO auditoria_casos (caso_id, usuario_id, fecha, accion, detalle)
		VALUES ($1, $2, $3, $4, $5)
	`, e.CasoID, e.UsuarioID, e.Fecha, string(e.Accion), payload)
	return err
}

// ListarPorCaso retorna la trazabilidad del caso, de la más antigua a la más reciente.
func (r *Repository) ListarPorCaso(ctx context.Context, casoID uuid.UUID) ([]Entrada, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, caso_id, usuario_id, fecha, accion, detalle
		FROM auditoria_casos
		WHERE caso_id = $1
		ORDER BY fecha ASC, id ASC
	`, casoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entradas []Entrada
	for rows.Next() {
		var (
			e      Entrada
			accion string
			raw    []byte
		)
		if err := rows.Scan(&e.ID, &e.CasoID, &e.UsuarioID, &e.Fecha, &accion, &raw); err != nil {
			return nil, err
		}
		e.Accion = Accion(accion)
		if e.Detalle, err = DecodificarDetalle(e.Accion, raw); err != nil {
			return nil, err
		}
		entradas = append(entradas, e)
	}
	return entradas, rows.Err()
}

// FiltroEventos restringe la consulta del log del sistema.
type FiltroEventos struct {
	Accion    string
	UsuarioID *uuid.UUID
	Desde     *time.Time
	Hasta     *time.Time
	Pagina    int
	PorPagina int
}

// RegistrarEvento agrega una línea al log del sistema.
func (r *Repository) RegistrarEvento(ctx context.Context, ev repo.Evento) error {
	if ev.Fecha.IsZero() {
		ev.Fecha = util.Now()
	}
	if strings.TrimSpace(ev.UsuarioNombre) == "" {
		ev.UsuarioNombre = "Sistema/Anónimo"
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO logs (fecha, usuario_id, usuario_nombre, accion, detalles)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.Fecha, ev.UsuarioID, ev.UsuarioNombre, ev.Accion, ev.Detalles)
	return err
}

// ListarEventos retorna una página del log ordenada por fecha descendente y el total.
func (r *Repository) ListarEventos(ctx context.Context, f FiltroEventos) ([]repo.Evento, int, error) {
	where := []string{"1=1"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Accion != "" {
		add("accion ILIKE $%d", "%"+f.Accion+"%")
	}
	if f.UsuarioID != nil {
		add("usuario_id = $%d", *f.UsuarioID)
	}
	if f.Desde != nil {
		add("fecha >= $%d", *f.Desde)
	}
	if f.Hasta != nil {
		add("fecha < $%d", *f.Hasta)
	}
	cond := strings.Join(where, " AND ")

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM logs WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limite, offset := paginar(f.Pagina, f.PorPagina)
	args = append(args, limite, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT id, fecha, usuario_id, usuario_nombre, accion, COALESCE(detalles, '')
		FROM logs
		WHERE %s
		ORDER BY fecha DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var eventos []repo.Evento
	for rows.Next() {
		var ev repo.Evento
		if err := rows.Scan(&ev.ID, &ev.Fecha, &ev.UsuarioID, &ev.UsuarioNombre, &ev.Accion, &ev.Detalles); err != nil {
			return nil, 0, err
		}
		eventos = append(eventos, ev)
	}
	return eventos, total, rows.Err()
}

func paginar(pagina, porPagina int) (int, int) {
	if porPagina <= 0 || porPagina > 200 {
		porPagina = 50
	}
	if pagina <= 0 {
		pagina = 1
	}
	return porPagina, (pagina - 1) * porPagina
}

// NuevoEvento arma un evento del log a nombre de un usuario. detalle puede ser texto o una estructura.
func NuevoEvento(u repo.Usuario, accion string, detalle any) repo.Evento {
	ev := repo.Evento{Accion: accion, UsuarioNombre: u.NombreCompleto}
	if u.ID != uuid.Nil {
		id := u.ID
		ev.UsuarioID = &id
	}
	switch v := detalle.(type) {
	case nil:
	case string:
		ev.Detalles = v
	default:
		if raw, err := json.Marshal(v); err == nil {
			ev.Detalles = string(raw)
		}
	}
	return ev
}
