package encounter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scribehealth/recordstore/internal/platform/db"
	"github.com/scribehealth/recordstore/internal/platform/scope"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const encounterCols = "id, tenant_id, patient_id, reason, started_at, ended_at, created_at, updated_at"

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	var reason *string
	err := row.Scan(&e.ID, &e.TenantID, &e.PatientID, &reason, &e.StartedAt, &e.EndedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	if reason != nil {
		e.Reason = *reason
	}
	return &e, nil
}

func (r *RepoPG) ownerOf(ctx context.Context, id uuid.UUID) uuid.UUID {
	var owner uuid.UUID
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT tenant_id FROM encounters WHERE id = $1", id).Scan(&owner); err != nil {
		return uuid.Nil
	}
	return owner
}

func (r *RepoPG) Create(ctx context.Context, s scope.Scope, e *Encounter) error {
	if err := scope.CheckWrite(s, e.TenantID); err != nil {
		return err
	}
	e.TenantID = s.TenantID()

	var reason *string
	if e.Reason != "" {
		reason = &e.Reason
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO encounters (id, tenant_id, patient_id, reason, started_at, ended_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.TenantID, e.PatientID, reason, e.StartedAt, e.EndedAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert encounter: %w", db.MapError(err))
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, s scope.Scope, id uuid.UUID) (*Encounter, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}
	row := r.conn(ctx).QueryRow(ctx,
		"SELECT "+encounterCols+" FROM encounters WHERE id = $1 AND tenant_id = $2", id, s.TenantID())
	e, err := scanEncounter(row)
	if errors.Is(err, db.ErrNotFound) {
		return nil, scope.Classify(s, r.ownerOf(ctx, id), db.ErrNotFound)
	}
	return e, err
}

func (r *RepoPG) End(ctx context.Context, s scope.Scope, id uuid.UUID, endedAt time.Time) error {
	if err := scope.Require(s); err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE encounters SET ended_at = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND ended_at IS NULL`,
		id, s.TenantID(), endedAt,
	)
	if err != nil {
		return fmt.Errorf("end encounter: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return scope.Classify(s, r.ownerOf(ctx, id), db.ErrNotFound)
	}
	return nil
}

func (r *RepoPG) ListByPatient(ctx context.Context, s scope.Scope, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	if err := scope.Require(s); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM encounters WHERE tenant_id = $1 AND patient_id = $2",
		s.TenantID(), patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count encounters: %w", db.MapError(err))
	}

	rows, err := r.conn(ctx).Query(ctx,
		"SELECT "+encounterCols+" FROM encounters WHERE tenant_id = $1 AND patient_id = $2 ORDER BY started_at DESC LIMIT $3 OFFSET $4",
		s.TenantID(), patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query encounters: %w", db.MapError(err))
	}
	defer rows.Close()

	var encounters []*Encounter
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, 0, err
		}
		encounters = append(encounters, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate encounters: %w", db.MapError(err))
	}
	return encounters, total, nil
}
