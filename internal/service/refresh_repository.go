package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redprotege/api/internal/repo"
)

const dbTimeout = 3 * time.Second

// RefreshRepository persiste los refresh tokens emitidos.
type RefreshRepository struct {
	pool *pgxpool.Pool
}

func NewRefreshRepository(pool *pgxpool.Pool) *RefreshRepository {
	return &RefreshRepository{pool: pool}
}

func (r *RefreshRepository) Insertar(ctx context.Context, arg repo.InsertRefreshTokenParams) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO tokens_refresh (id, subject, audience, token_hash, expira_en, creado_en)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, arg.ID, arg.Subject, arg.Audience, arg.TokenHash, arg.ExpiraEn, arg.CreadoEn)
	return err
}

func (r *RefreshRepository) ObtenerPorHash(ctx context.Context, hash string) (repo.TokenRefresh, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var t repo.TokenRefresh
	err := r.pool.QueryRow(ctx, `
		SELECT id, subject, audience, token_hash, expira_en, creado_en, revocado
		FROM tokens_refresh
		WHERE token_hash = $1
	`, hash).Scan(&t.ID, &t.Subject, &t.Audience, &t.TokenHash, &t.ExpiraEn, &t.CreadoEn, &t.Revocado)
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.TokenRefresh{}, repo.ErrNotFound
	}
	return t, err
}

func (r *RefreshRepository) Revocar(ctx context.Context, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `UPDATE tokens_refresh SET revocado = true WHERE token_hash = $1`, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// RevocarOtros deja una única sesión vigente por usuario.
func (r *RefreshRepository) RevocarOtros(ctx context.Context, subject uuid.UUID, audience, keepHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		UPDATE tokens_refresh SET revocado = true
		WHERE subject = $1 AND audience = $2 AND token_hash <> $3 AND NOT revocado
	`, subject, audience, keepHash)
	return err
}
