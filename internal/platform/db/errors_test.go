package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError_Nil(t *testing.T) {
	if err := MapError(nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestMapError_NoRows(t *testing.T) {
	if err := MapError(pgx.ErrNoRows); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMapError_UniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "patients_tenant_id_mrn_key"}
	if err := MapError(pgErr); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestMapError_ForeignKeyViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503"}
	if err := MapError(pgErr); !errors.Is(err, ErrForeignKeyViolation) {
		t.Errorf("expected ErrForeignKeyViolation, got %v", err)
	}
}

func TestMapError_ConnectionFailure(t *testing.T) {
	for _, code := range []string{"08006", "53300", "57P01"} {
		pgErr := &pgconn.PgError{Code: code}
		if err := MapError(pgErr); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("code %s: expected ErrStoreUnavailable, got %v", code, err)
		}
	}
}

func TestMapError_UnknownPgErrorPassesThrough(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "22012"} // division_by_zero
	err := MapError(pgErr)
	var got *pgconn.PgError
	if !errors.As(err, &got) || got.Code != "22012" {
		t.Errorf("expected original pg error, got %v", err)
	}
}

func TestMapError_WrappedErrorsStillMatch(t *testing.T) {
	wrapped := fmt.Errorf("create patient: %w", &pgconn.PgError{Code: "23505"})
	if err := MapError(wrapped); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey from wrapped error, got %v", err)
	}
}

func TestMapError_UnavailableIsNotNotFound(t *testing.T) {
	err := MapError(&pgconn.PgError{Code: "08000"})
	if errors.Is(err, ErrNotFound) {
		t.Error("store unavailability must never be reported as not-found")
	}
}
