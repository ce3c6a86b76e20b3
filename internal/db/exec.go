package db

import (
	"context"
	"database/sql"
)

// Exec is the query surface handed to WithDB and WithTx callbacks. Errors
// returned through it are already translated to the package sentinels.
type Exec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) Row
}

// Row is the single-row result of QueryRowContext.
type Row interface {
	Scan(dest ...any) error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// executor wraps a *sql.DB or *sql.Tx and runs every error through the
// backend's translator.
type executor struct {
	q         querier
	translate func(error) error
}

func (e *executor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := e.q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, e.translate(err)
	}
	return res, nil
}

func (e *executor) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, e.translate(err)
	}
	return rows, nil
}

func (e *executor) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return &row{inner: e.q.QueryRowContext(ctx, query, args...), translate: e.translate}
}

type row struct {
	inner     *sql.Row
	translate func(error) error
}

func (r *row) Scan(dest ...any) error {
	return r.translate(r.inner.Scan(dest...))
}
