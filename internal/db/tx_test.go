package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeQuerier struct{}

func (fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func TestConnWithoutTxReturnsRoot(t *testing.T) {
	root := fakeQuerier{}
	if got := Conn(context.Background(), root); got != root {
		t.Fatalf("expected root querier, got %T", got)
	}
}

func TestEsViolacionUnica(t *testing.T) {
	if !EsViolacionUnica(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected unique violation")
	}
	if EsViolacionUnica(errors.New("otro")) {
		t.Fatalf("plain error is not a unique violation")
	}
}
