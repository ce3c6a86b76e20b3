package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pgvector/pgvector-go"
	"modernc.org/sqlite"
)

// SQLite is the embedded backend. Path may be a file or ":memory:". Vectors
// are stored in pgvector text form and compared with vec_cosine_distance.
type SQLite struct {
	Path string
}

var registerOnce sync.Once

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) Open(ctx context.Context) (*sql.DB, error) {
	registerOnce.Do(func() {
		sqlite.MustRegisterDeterministicScalarFunction("vec_cosine_distance", 2, cosineDistanceFunc)
	})

	if err := ensureSQLiteParentDir(s.Path); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	conn, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", translateSQLiteError(err))
	}
	// One connection keeps :memory: databases shared and serializes writers.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", translateSQLiteError(err))
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", translateSQLiteError(err))
	}
	return conn, nil
}

func (s *SQLite) translate(err error) error { return translateSQLiteError(err) }

func (s *SQLite) JSONParam(n int) string { return fmt.Sprintf("$%d", n) }

func (s *SQLite) VectorParam(n int) string { return fmt.Sprintf("$%d", n) }

func (s *SQLite) Contains(col string, n int) string {
	return fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM json_each($%d) AS q WHERE q.value NOT IN (SELECT value FROM json_each(%s)))",
		n, col)
}

func (s *SQLite) CosineDistance(col string, n int) string {
	return fmt.Sprintf("vec_cosine_distance(%s, $%d)", col, n)
}

func (s *SQLite) Like(col string, n int) string {
	return fmt.Sprintf("%s LIKE $%d", col, n)
}

func cosineDistanceFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, err := vectorArg(args[0])
	if err != nil || a == nil {
		return nil, err
	}
	b, err := vectorArg(args[1])
	if err != nil || b == nil {
		return nil, err
	}
	return cosineDistance(a, b)
}

func vectorArg(v driver.Value) ([]float32, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return nil, fmt.Errorf("vec_cosine_distance: unsupported argument %T", v)
	}
	var vec pgvector.Vector
	if err := vec.Parse(s); err != nil {
		return nil, fmt.Errorf("vec_cosine_distance: %w", err)
	}
	return vec.Slice(), nil
}

func cosineDistance(a, b []float32) (driver.Value, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("vec_cosine_distance: dimensions differ (%d and %d)", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return nil, nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

// ensureSQLiteParentDir creates the directory holding a file-backed database.
func ensureSQLiteParentDir(path string) error {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file::memory") {
		return nil
	}
	fsPath := strings.TrimPrefix(path, "file:")
	if before, _, ok := strings.Cut(fsPath, "?"); ok {
		fsPath = before
	}
	dir := filepath.Dir(fsPath)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
