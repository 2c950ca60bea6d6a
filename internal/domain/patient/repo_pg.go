package patient

import (
	"context"
	"errors"
	"fmt"

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

const patientCols = "id, tenant_id, mrn, first_name, last_name, birth_date, created_at, updated_at"

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var birthDate *string
	err := row.Scan(&p.ID, &p.TenantID, &p.MRN, &p.FirstName, &p.LastName, &birthDate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	if birthDate != nil {
		p.BirthDate = *birthDate
	}
	return &p, nil
}

// ownerOf resolves which tenant holds the row, for classifying a miss as
// cross-tenant rather than absent. Internal to the gate, never returned
// to callers.
func (r *RepoPG) ownerOf(ctx context.Context, id uuid.UUID) uuid.UUID {
	var owner uuid.UUID
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT tenant_id FROM patients WHERE id = $1", id).Scan(&owner); err != nil {
		return uuid.Nil
	}
	return owner
}

func (r *RepoPG) Create(ctx context.Context, s scope.Scope, p *Patient) error {
	if err := scope.CheckWrite(s, p.TenantID); err != nil {
		return err
	}
	p.TenantID = s.TenantID()

	var birthDate *string
	if p.BirthDate != "" {
		birthDate = &p.BirthDate
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, tenant_id, mrn, first_name, last_name, birth_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.TenantID, p.MRN, p.FirstName, p.LastName, birthDate, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert patient: %w", db.MapError(err))
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, s scope.Scope, id uuid.UUID) (*Patient, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}
	row := r.conn(ctx).QueryRow(ctx,
		"SELECT "+patientCols+" FROM patients WHERE id = $1 AND tenant_id = $2", id, s.TenantID())
	p, err := scanPatient(row)
	if errors.Is(err, db.ErrNotFound) {
		return nil, scope.Classify(s, r.ownerOf(ctx, id), db.ErrNotFound)
	}
	return p, err
}

func (r *RepoPG) GetByMRN(ctx context.Context, s scope.Scope, mrn string) (*Patient, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}
	row := r.conn(ctx).QueryRow(ctx,
		"SELECT "+patientCols+" FROM patients WHERE mrn = $1 AND tenant_id = $2", mrn, s.TenantID())
	return scanPatient(row)
}

func (r *RepoPG) Update(ctx context.Context, s scope.Scope, p *Patient) error {
	if err := scope.CheckWrite(s, p.TenantID); err != nil {
		return err
	}

	var birthDate *string
	if p.BirthDate != "" {
		birthDate = &p.BirthDate
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET mrn = $3, first_name = $4, last_name = $5, birth_date = $6, updated_at = now()
		WHERE id = $1 AND tenant_id = $2`,
		p.ID, s.TenantID(), p.MRN, p.FirstName, p.LastName, birthDate,
	)
	if err != nil {
		return fmt.Errorf("update patient: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return scope.Classify(s, r.ownerOf(ctx, p.ID), db.ErrNotFound)
	}
	return nil
}

func (r *RepoPG) List(ctx context.Context, s scope.Scope, limit, offset int) ([]*Patient, int, error) {
	if err := scope.Require(s); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM patients WHERE tenant_id = $1", s.TenantID()).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", db.MapError(err))
	}

	rows, err := r.conn(ctx).Query(ctx,
		"SELECT "+patientCols+" FROM patients WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		s.TenantID(), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query patients: %w", db.MapError(err))
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate patients: %w", db.MapError(err))
	}
	return patients, total, nil
}
