package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/user/tgsearch/internal/config"
)

// Backend is the storage engine strategy selected once at startup.
type Backend interface {
	Dialect
	// Name is also the migrations subdirectory.
	Name() string
	// Open connects and pings; it never touches the schema.
	Open(ctx context.Context) (*sql.DB, error)
	translate(err error) error
}

// Dialect renders the SQL fragments that differ between backends. Parameter
// placeholders are always positional $n.
type Dialect interface {
	JSONParam(n int) string
	VectorParam(n int) string
	// Contains matches rows whose JSON array column holds every element of
	// the JSON array parameter n.
	Contains(col string, n int) string
	// CosineDistance orders by distance between a vector column and parameter n.
	CosineDistance(col string, n int) string
	Like(col string, n int) string
}

// NewBackend selects the backend named by cfg.Database.Type.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Database.Type {
	case config.DatabasePostgres:
		return &Postgres{DSN: cfg.DatabaseDSN()}, nil
	case config.DatabaseSQLite:
		return &SQLite{Path: cfg.DatabaseDSN()}, nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
}

// EncodeVector returns the SQL parameter for vec in pgvector text form, or
// nil for an empty vector so the column stays NULL.
func EncodeVector(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return pgvector.NewVector(vec).String()
}

// DecodeVector parses a vector column scanned as text.
func DecodeVector(s sql.NullString) ([]float32, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var v pgvector.Vector
	if err := v.Parse(s.String); err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	return v.Slice(), nil
}
