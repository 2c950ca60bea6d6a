package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scribehealth/recordstore/internal/platform/db"
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

const tenantCols = "id, name, slug, is_active, retention_years, created_at, updated_at"

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.IsActive, &t.RetentionYears, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &t, nil
}

func (r *RepoPG) Create(ctx context.Context, t *Tenant) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO tenants (id, name, slug, is_active, retention_years, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.Name, t.Slug, t.IsActive, t.RetentionYears, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", db.MapError(err))
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	row := r.conn(ctx).QueryRow(ctx,
		"SELECT "+tenantCols+" FROM tenants WHERE id = $1", id)
	return scanTenant(row)
}

func (r *RepoPG) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	row := r.conn(ctx).QueryRow(ctx,
		"SELECT "+tenantCols+" FROM tenants WHERE slug = $1", slug)
	return scanTenant(row)
}

func (r *RepoPG) List(ctx context.Context, limit, offset int) ([]*Tenant, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM tenants").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tenants: %w", db.MapError(err))
	}

	rows, err := r.conn(ctx).Query(ctx,
		"SELECT "+tenantCols+" FROM tenants ORDER BY created_at ASC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query tenants: %w", db.MapError(err))
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tenants: %w", db.MapError(err))
	}
	return tenants, total, nil
}

func (r *RepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE tenants SET is_active = $2, updated_at = now() WHERE id = $1", id, active)
	if err != nil {
		return fmt.Errorf("update tenant active flag: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// DeleteCascade removes scoped entities child-first so no FK trips along
// the way. audit_events is intentionally absent from this list.
func (r *RepoPG) DeleteCascade(ctx context.Context, id uuid.UUID) (int64, error) {
	c := r.conn(ctx)
	var removed int64

	// note_versions is WORM-protected; the trigger admits deletes only
	// when this transaction-local flag is set.
	if _, err := c.Exec(ctx, "SELECT set_config('recordstore.purge', 'allow', true)"); err != nil {
		return 0, fmt.Errorf("arm purge flag: %w", db.MapError(err))
	}

	for _, q := range []string{
		"DELETE FROM media_assets WHERE tenant_id = $1",
		"DELETE FROM note_versions WHERE note_id IN (SELECT id FROM notes WHERE tenant_id = $1)",
		"DELETE FROM notes WHERE tenant_id = $1",
		"DELETE FROM encounters WHERE tenant_id = $1",
		"DELETE FROM patients WHERE tenant_id = $1",
	} {
		tag, err := c.Exec(ctx, q, id)
		if err != nil {
			return 0, fmt.Errorf("cascade delete tenant entities: %w", db.MapError(err))
		}
		removed += tag.RowsAffected()
	}

	tag, err := c.Exec(ctx, "DELETE FROM tenants WHERE id = $1", id)
	if err != nil {
		return 0, fmt.Errorf("delete tenant: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return 0, db.ErrNotFound
	}
	return removed, nil
}
