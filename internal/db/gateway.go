package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Gateway owns the database connection. It must be initialized with Init
// before WithDB or WithTx will run callbacks; until then they fail with
// ErrNotReady.
type Gateway struct {
	backend Backend
	logger  *slog.Logger

	mu    sync.Mutex
	conn  *sql.DB
	ready atomic.Bool
}

func NewGateway(backend Backend, logger *slog.Logger) *Gateway {
	return &Gateway{
		backend: backend,
		logger:  logger.With("component", "db", "backend", backend.Name()),
	}
}

// Init connects, migrates and verifies the database, in that order. Any
// failing step aborts with its cause and leaves the gateway not ready.
// Calling Init on a ready gateway is a no-op.
func (g *Gateway) Init(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ready.Load() {
		return nil
	}

	g.logger.Info("connecting to database")
	conn, err := g.backend.Open(ctx)
	if err != nil {
		g.logger.Error("database connection failed", "error", err)
		return fmt.Errorf("connect database: %w", err)
	}

	g.logger.Info("applying database migrations")
	applied, err := migrate(ctx, conn, g.backend)
	if err != nil {
		conn.Close()
		g.logger.Error("database migration failed", "error", err)
		return fmt.Errorf("migrate database: %w", err)
	}

	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		conn.Close()
		g.logger.Error("database verification failed", "error", err)
		return fmt.Errorf("verify database: %w", g.backend.translate(err))
	}

	g.conn = conn
	g.ready.Store(true)
	g.logger.Info("database ready", "migrations_applied", applied)
	return nil
}

func (g *Gateway) Ready() bool {
	return g.ready.Load()
}

func (g *Gateway) Dialect() Dialect {
	return g.backend
}

func (g *Gateway) BackendName() string {
	return g.backend.Name()
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ready.Store(false)
	if g.conn == nil {
		return nil
	}
	err := g.conn.Close()
	g.conn = nil
	return err
}

// WithDB runs fn with scoped access to the database. A returned error or a
// panic inside fn comes back as *Error carrying the original cause.
func WithDB[T any](ctx context.Context, g *Gateway, fn func(ctx context.Context, ex Exec) (T, error)) (result T, err error) {
	if !g.ready.Load() {
		return result, ErrNotReady
	}
	defer recoverInto("query", &err)

	ex := &executor{q: g.conn, translate: g.backend.translate}
	result, err = fn(ctx, ex)
	if err != nil {
		var zero T
		return zero, &Error{Op: "query", Cause: err}
	}
	return result, nil
}

// WithTx is WithDB inside a transaction, committed only when fn succeeds.
func WithTx[T any](ctx context.Context, g *Gateway, fn func(ctx context.Context, ex Exec) (T, error)) (result T, err error) {
	if !g.ready.Load() {
		return result, ErrNotReady
	}

	tx, err := g.conn.BeginTx(ctx, nil)
	if err != nil {
		return result, &Error{Op: "begin", Cause: fmt.Errorf("%w: %w", ErrTxFailed, g.backend.translate(err))}
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			var zero T
			result, err = zero, &Error{Op: "tx", Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	ex := &executor{q: tx, translate: g.backend.translate}
	result, err = fn(ctx, ex)
	if err != nil {
		tx.Rollback()
		var zero T
		return zero, &Error{Op: "tx", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		var zero T
		return zero, &Error{Op: "commit", Cause: fmt.Errorf("%w: %w", ErrTxFailed, g.backend.translate(err))}
	}
	return result, nil
}

func recoverInto(op string, err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = &Error{Op: op, Cause: fmt.Errorf("panic: %w", e)}
			return
		}
		*err = &Error{Op: op, Cause: fmt.Errorf("panic: %v", r)}
	}
}
