package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Postgres is the networked backend. The pgvector extension is created by
// the first migration.
type Postgres struct {
	DSN string
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Open(ctx context.Context) (*sql.DB, error) {
	conn, err := sql.Open("postgres", p.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", translatePostgresError(err))
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", translatePostgresError(err))
	}
	return conn, nil
}

func (p *Postgres) translate(err error) error { return translatePostgresError(err) }

func (p *Postgres) JSONParam(n int) string { return fmt.Sprintf("$%d::jsonb", n) }

func (p *Postgres) VectorParam(n int) string { return fmt.Sprintf("$%d::vector", n) }

func (p *Postgres) Contains(col string, n int) string {
	return fmt.Sprintf("%s @> $%d::jsonb", col, n)
}

func (p *Postgres) CosineDistance(col string, n int) string {
	return fmt.Sprintf("(%s <=> $%d::vector)", col, n)
}

func (p *Postgres) Like(col string, n int) string {
	return fmt.Sprintf("%s ILIKE $%d", col, n)
}
