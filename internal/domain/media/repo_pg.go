package media

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

const assetCols = "id, tenant_id, encounter_id, storage_key, content_type, size_bytes, created_at"

func scanAsset(row pgx.Row) (*Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.TenantID, &a.EncounterID, &a.StorageKey, &a.ContentType, &a.SizeBytes, &a.CreatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &a, nil
}

func (r *RepoPG) ownerOf(ctx context.Context, id uuid.UUID) uuid.UUID {
	var owner uuid.UUID
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT tenant_id FROM media_assets WHERE id = $1", id).Scan(&owner); err != nil {
		return uuid.Nil
	}
	return owner
}

func (r *RepoPG) Create(ctx context.Context, s scope.Scope, a *Asset) error {
	if err := scope.CheckWrite(s, a.TenantID); err != nil {
		return err
	}
	a.TenantID = s.TenantID()

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO media_assets (id, tenant_id, encounter_id, storage_key, content_type, size_bytes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.TenantID, a.EncounterID, a.StorageKey, a.ContentType, a.SizeBytes, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert media asset: %w", db.MapError(err))
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, s scope.Scope, id uuid.UUID) (*Asset, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}
	row := r.conn(ctx).QueryRow(ctx,
		"SELECT "+assetCols+" FROM media_assets WHERE id = $1 AND tenant_id = $2", id, s.TenantID())
	a, err := scanAsset(row)
	if errors.Is(err, db.ErrNotFound) {
		return nil, scope.Classify(s, r.ownerOf(ctx, id), db.ErrNotFound)
	}
	return a, err
}

func (r *RepoPG) ListByEncounter(ctx context.Context, s scope.Scope, encounterID uuid.UUID, limit, offset int) ([]*Asset, int, error) {
	if err := scope.Require(s); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM media_assets WHERE tenant_id = $1 AND encounter_id = $2",
		s.TenantID(), encounterID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count media assets: %w", db.MapError(err))
	}

	rows, err := r.conn(ctx).Query(ctx,
		"SELECT "+assetCols+" FROM media_assets WHERE tenant_id = $1 AND encounter_id = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		s.TenantID(), encounterID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query media assets: %w", db.MapError(err))
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, 0, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate media assets: %w", db.MapError(err))
	}
	return assets, total, nil
}

func (r *RepoPG) Delete(ctx context.Context, s scope.Scope, id uuid.UUID) error {
	if err := scope.Require(s); err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx,
		"DELETE FROM media_assets WHERE id = $1 AND tenant_id = $2", id, s.TenantID())
	if err != nil {
		return fmt.Errorf("delete media asset: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return scope.Classify(s, r.ownerOf(ctx, id), db.ErrNotFound)
	}
	return nil
}
