package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Typed storage errors. Callers branch on these with errors.Is instead of
// parsing driver messages. ErrStoreUnavailable is retryable with backoff and
// must never be interpreted as "resource does not exist".
var (
	ErrNotFound            = errors.New("resource not found")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrForeignKeyViolation = errors.New("foreign key violation")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// SQLSTATE codes mapped to typed errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// MapError converts pgx/pgconn errors into the typed taxonomy. Unknown
// errors pass through unchanged so nothing is silently reclassified.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return ErrDuplicateKey
		case pgErr.Code == codeForeignKeyViolation:
			return ErrForeignKeyViolation
		case strings.HasPrefix(pgErr.Code, "08"), // connection exceptions
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			strings.HasPrefix(pgErr.Code, "57"): // operator intervention
			return ErrStoreUnavailable
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if pgconn.Timeout(err) {
		return ErrStoreUnavailable
	}
	return err
}
