package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

var (
	ErrNotReady            = errors.New("db: gateway not ready")
	ErrNotFound            = errors.New("db: not found")
	ErrUniqueViolation     = errors.New("db: unique constraint violation")
	ErrForeignKeyViolation = errors.New("db: foreign key violation")
	ErrNotNullViolation    = errors.New("db: not null violation")
	ErrCheckViolation      = errors.New("db: check constraint violation")
	ErrConstraintViolation = errors.New("db: constraint violation")
	ErrQueryCanceled       = errors.New("db: query canceled")
	ErrDeadlockDetected    = errors.New("db: deadlock detected")
	ErrSerializationFailed = errors.New("db: serialization failure")
	ErrInvalidInputSyntax  = errors.New("db: invalid input syntax")
	ErrUndefinedTable      = errors.New("db: undefined table")
	ErrUndefinedColumn     = errors.New("db: undefined column")
	ErrTxFailed            = errors.New("db: transaction failed")
)

// Error is the failure result of a WithDB or WithTx callback. Cause is the
// original error, or the recovered panic value wrapped as an error.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("db %s: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func translateCommon(err error) (error, bool) {
	switch {
	case err == nil:
		return nil, true
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %w", ErrNotFound, err), true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrQueryCanceled, err), true
	}
	return err, false
}

// translatePostgresError maps lib/pq SQLSTATE codes onto the package sentinels.
func translatePostgresError(err error) error {
	if out, ok := translateCommon(err); ok {
		return out
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return fmt.Errorf("postgres: %w", err)
	}
	switch pqErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pqErr.Message)
	case "23503":
		return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pqErr.Message)
	case "23502":
		return fmt.Errorf("%w: %s", ErrNotNullViolation, pqErr.Message)
	case "23514":
		return fmt.Errorf("%w: %s", ErrCheckViolation, pqErr.Message)
	case "40P01":
		return ErrDeadlockDetected
	case "40001":
		return ErrSerializationFailed
	case "57014":
		return fmt.Errorf("%w: %s", ErrQueryCanceled, pqErr.Message)
	case "22P02":
		return fmt.Errorf("%w: %s", ErrInvalidInputSyntax, pqErr.Message)
	case "42703":
		return fmt.Errorf("%w: %s", ErrUndefinedColumn, pqErr.Message)
	case "42P01":
		return fmt.Errorf("%w: %s", ErrUndefinedTable, pqErr.Message)
	}
	if pqErr.Code.Class() == "23" {
		return fmt.Errorf("%w: %s", ErrConstraintViolation, pqErr.Message)
	}
	return fmt.Errorf("postgres: code=%s message=%q: %w", pqErr.Code, pqErr.Message, err)
}

// translateSQLiteError maps sqlite constraint failures by message, since the
// driver does not expose stable typed codes through database/sql.
func translateSQLiteError(err error) error {
	if out, ok := translateCommon(err); ok {
		return out
	}

	s := err.Error()
	switch {
	case strings.Contains(s, "UNIQUE constraint"):
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case strings.Contains(s, "FOREIGN KEY constraint"):
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	case strings.Contains(s, "NOT NULL constraint"):
		return fmt.Errorf("%w: %w", ErrNotNullViolation, err)
	case strings.Contains(s, "CHECK constraint"):
		return fmt.Errorf("%w: %w", ErrCheckViolation, err)
	case strings.Contains(s, "no such table"):
		return fmt.Errorf("%w: %w", ErrUndefinedTable, err)
	case strings.Contains(s, "no such column"):
		return fmt.Errorf("%w: %w", ErrUndefinedColumn, err)
	}
	return fmt.Errorf("sqlite: %w", err)
}
