package db

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLiteGateway(t *testing.T) *Gateway {
	t.Helper()
	gw := NewGateway(&SQLite{Path: ":memory:"}, testLogger())
	require.NoError(t, gw.Init(context.Background()))
	t.Cleanup(func() { gw.Close() })
	return gw
}

func TestWithDBNotReady(t *testing.T) {
	gw := NewGateway(&SQLite{Path: ":memory:"}, testLogger())

	_, err := WithDB(context.Background(), gw, func(ctx context.Context, ex Exec) (int, error) {
		t.Fatal("callback must not run before Init")
		return 0, nil
	})
	require.ErrorIs(t, err, ErrNotReady)
}

func TestInitAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "tgsearch.db")
	ctx := context.Background()

	first := NewGateway(&SQLite{Path: path}, testLogger())
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.Close())

	second := NewGateway(&SQLite{Path: path}, testLogger())
	require.NoError(t, second.Init(ctx))
	defer second.Close()

	count, err := WithDB(ctx, second, func(ctx context.Context, ex Exec) (int, error) {
		var n int
		err := ex.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n)
		return n, err
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestInitUnreachableFailsBeforeMigration(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	gw := NewGateway(&Postgres{DSN: "postgres://u:p@127.0.0.1:1/none?sslmode=disable&connect_timeout=2"}, logger)

	err := gw.Init(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "connect database")
	require.False(t, gw.Ready())
	require.NotContains(t, logs.String(), "migration")
	require.Contains(t, logs.String(), "database connection failed")
}

func TestWithDBWrapsCallbackError(t *testing.T) {
	gw := newSQLiteGateway(t)

	_, err := WithDB(context.Background(), gw, func(ctx context.Context, ex Exec) (string, error) {
		var id string
		err := ex.QueryRowContext(ctx, "SELECT id FROM chats WHERE id = $1", "missing").Scan(&id)
		return id, err
	})
	var dbErr *Error
	require.ErrorAs(t, err, &dbErr)
	require.Equal(t, "query", dbErr.Op)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWithDBRecoversPanic(t *testing.T) {
	gw := newSQLiteGateway(t)

	n, err := WithDB(context.Background(), gw, func(ctx context.Context, ex Exec) (int, error) {
		panic("boom")
	})
	require.Zero(t, n)
	var dbErr *Error
	require.ErrorAs(t, err, &dbErr)
	require.Contains(t, dbErr.Cause.Error(), "boom")
}

func TestWithTxRollsBackOnError(t *testing.T) {
	gw := newSQLiteGateway(t)
	ctx := context.Background()
	sentinel := errors.New("stop")

	_, err := WithTx(ctx, gw, func(ctx context.Context, ex Exec) (struct{}, error) {
		_, err := ex.ExecContext(ctx, "INSERT INTO chats (id, name) VALUES ($1, $2)", "c1", "chat")
		require.NoError(t, err)
		return struct{}{}, sentinel
	})
	require.ErrorIs(t, err, sentinel)

	count, err := WithDB(ctx, gw, func(ctx context.Context, ex Exec) (int, error) {
		var n int
		err := ex.QueryRowContext(ctx, "SELECT COUNT(*) FROM chats").Scan(&n)
		return n, err
	})
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestTranslateUniqueViolation(t *testing.T) {
	gw := newSQLiteGateway(t)
	ctx := context.Background()

	insert := func(ctx context.Context, ex Exec) (struct{}, error) {
		_, err := ex.ExecContext(ctx, "INSERT INTO chats (id) VALUES ($1)", "dup")
		return struct{}{}, err
	}
	_, err := WithDB(ctx, gw, insert)
	require.NoError(t, err)
	_, err = WithDB(ctx, gw, insert)
	require.ErrorIs(t, err, ErrUniqueViolation)
}

func TestCosineDistanceFunction(t *testing.T) {
	gw := newSQLiteGateway(t)

	d, err := WithDB(context.Background(), gw, func(ctx context.Context, ex Exec) (float64, error) {
		var d float64
		err := ex.QueryRowContext(ctx, "SELECT vec_cosine_distance($1, $2)", "[1,0]", "[0,1]").Scan(&d)
		return d, err
	})
	require.NoError(t, err)
	require.InDelta(t, 1.0, d, 1e-9)
}

func TestEncodeDecodeVector(t *testing.T) {
	require.Nil(t, EncodeVector(nil))

	vec, err := DecodeVector(sql.NullString{})
	require.NoError(t, err)
	require.Nil(t, vec)

	vec, err = DecodeVector(sql.NullString{String: "[1,2.5,3]", Valid: true})
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2.5, 3}, vec)
}
