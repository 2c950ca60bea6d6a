package note

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

const noteCols = `id, tenant_id, encounter_id, author_id, status, current_version,
	finalized_by, finalized_at, archived_at, created_at, updated_at`

const versionCols = "id, note_id, version, content, change_summary, created_by, created_at"

func scanNote(row pgx.Row) (*Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.TenantID, &n.EncounterID, &n.AuthorID, &n.Status, &n.CurrentVersion,
		&n.FinalizedBy, &n.FinalizedAt, &n.ArchivedAt, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &n, nil
}

func scanVersion(row pgx.Row) (*NoteVersion, error) {
	var v NoteVersion
	var summary *string
	err := row.Scan(&v.ID, &v.NoteID, &v.Version, &v.Content, &summary, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	if summary != nil {
		v.ChangeSummary = *summary
	}
	return &v, nil
}

func (r *RepoPG) ownerOf(ctx context.Context, id uuid.UUID) uuid.UUID {
	var owner uuid.UUID
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT tenant_id FROM notes WHERE id = $1", id).Scan(&owner); err != nil {
		return uuid.Nil
	}
	return owner
}

func (r *RepoPG) Create(ctx context.Context, s scope.Scope, n *Note, first *NoteVersion) error {
	if err := scope.CheckWrite(s, n.TenantID); err != nil {
		return err
	}
	n.TenantID = s.TenantID()

	c := r.conn(ctx)
	_, err := c.Exec(ctx, `
		INSERT INTO notes (id, tenant_id, encounter_id, author_id, status, current_version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID, n.TenantID, n.EncounterID, n.AuthorID, n.Status, n.CurrentVersion, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", db.MapError(err))
	}
	if err := r.insertVersion(ctx, c, first); err != nil {
		return err
	}
	return nil
}

func (r *RepoPG) insertVersion(ctx context.Context, c queryable, v *NoteVersion) error {
	var summary *string
	if v.ChangeSummary != "" {
		summary = &v.ChangeSummary
	}
	_, err := c.Exec(ctx, `
		INSERT INTO note_versions (id, note_id, version, content, change_summary, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		v.ID, v.NoteID, v.Version, v.Content, summary, v.CreatedBy, v.CreatedAt,
	)
	if err != nil {
		mapped := db.MapError(err)
		if errors.Is(mapped, db.ErrDuplicateKey) {
			// Someone else claimed this version number first.
			return ErrVersionConflict
		}
		return fmt.Errorf("insert note version: %w", mapped)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, s scope.Scope, id uuid.UUID) (*Note, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}
	row := r.conn(ctx).QueryRow(ctx,
		"SELECT "+noteCols+" FROM notes WHERE id = $1 AND tenant_id = $2", id, s.TenantID())
	n, err := scanNote(row)
	if errors.Is(err, db.ErrNotFound) {
		return nil, scope.Classify(s, r.ownerOf(ctx, id), db.ErrNotFound)
	}
	return n, err
}

func (r *RepoPG) GetVersion(ctx context.Context, s scope.Scope, noteID uuid.UUID, version int) (*NoteVersion, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}
	// Join through notes so the tenant predicate stays authoritative even
	// though note_versions has no tenant column of its own.
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT v.id, v.note_id, v.version, v.content, v.change_summary, v.created_by, v.created_at
		FROM note_versions v JOIN notes n ON n.id = v.note_id
		WHERE v.note_id = $1 AND v.version = $2 AND n.tenant_id = $3`,
		noteID, version, s.TenantID())
	v, err := scanVersion(row)
	if errors.Is(err, db.ErrNotFound) {
		return nil, scope.Classify(s, r.ownerOf(ctx, noteID), db.ErrNotFound)
	}
	return v, err
}

func (r *RepoPG) ListVersions(ctx context.Context, s scope.Scope, noteID uuid.UUID) ([]*NoteVersion, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT v.id, v.note_id, v.version, v.content, v.change_summary, v.created_by, v.created_at
		FROM note_versions v JOIN notes n ON n.id = v.note_id
		WHERE v.note_id = $1 AND n.tenant_id = $2
		ORDER BY v.version ASC`,
		noteID, s.TenantID())
	if err != nil {
		return nil, fmt.Errorf("query note versions: %w", db.MapError(err))
	}
	defer rows.Close()

	var versions []*NoteVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note versions: %w", db.MapError(err))
	}
	if len(versions) == 0 {
		return nil, scope.Classify(s, r.ownerOf(ctx, noteID), db.ErrNotFound)
	}
	return versions, nil
}

func (r *RepoPG) ListByEncounter(ctx context.Context, s scope.Scope, encounterID uuid.UUID, limit, offset int) ([]*Note, int, error) {
	if err := scope.Require(s); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM notes WHERE tenant_id = $1 AND encounter_id = $2",
		s.TenantID(), encounterID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notes: %w", db.MapError(err))
	}

	rows, err := r.conn(ctx).Query(ctx,
		"SELECT "+noteCols+" FROM notes WHERE tenant_id = $1 AND encounter_id = $2 ORDER BY created_at ASC LIMIT $3 OFFSET $4",
		s.TenantID(), encounterID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query notes: %w", db.MapError(err))
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notes: %w", db.MapError(err))
	}
	return notes, total, nil
}

func (r *RepoPG) InsertVersion(ctx context.Context, s scope.Scope, v *NoteVersion) error {
	if err := scope.Require(s); err != nil {
		return err
	}
	return r.insertVersion(ctx, r.conn(ctx), v)
}

func (r *RepoPG) AdvanceHead(ctx context.Context, s scope.Scope, noteID uuid.UUID, fromVersion, toVersion int, status Status) error {
	if err := scope.Require(s); err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notes SET current_version = $4, status = $5, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND current_version = $3`,
		noteID, s.TenantID(), fromVersion, toVersion, status,
	)
	if err != nil {
		return fmt.Errorf("advance note head: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		if owner := r.ownerOf(ctx, noteID); owner != s.TenantID() {
			return scope.Classify(s, owner, db.ErrNotFound)
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *RepoPG) MarkFinalized(ctx context.Context, s scope.Scope, noteID uuid.UUID, version int, by uuid.UUID, at time.Time) error {
	if err := scope.Require(s); err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notes SET status = $4, finalized_by = $5, finalized_at = $6, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = $3 AND current_version = $7`,
		noteID, s.TenantID(), StatusDraft, StatusFinal, by, at, version,
	)
	if err != nil {
		return fmt.Errorf("finalize note: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		if owner := r.ownerOf(ctx, noteID); owner != s.TenantID() {
			return scope.Classify(s, owner, db.ErrNotFound)
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *RepoPG) Archive(ctx context.Context, s scope.Scope, noteID uuid.UUID, at time.Time) error {
	if err := scope.Require(s); err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notes SET status = $3, archived_at = $4, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status IN ($5, $6)`,
		noteID, s.TenantID(), StatusArchived, at, StatusFinal, StatusAmended,
	)
	if err != nil {
		return fmt.Errorf("archive note: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		if owner := r.ownerOf(ctx, noteID); owner != s.TenantID() {
			return scope.Classify(s, owner, db.ErrNotFound)
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *RepoPG) ListExpired(ctx context.Context, tenantID uuid.UUID, cutoff time.Time, limit int) ([]*Note, error) {
	rows, err := r.conn(ctx).Query(ctx,
		"SELECT "+noteCols+" FROM notes WHERE tenant_id = $1 AND status = $2 AND archived_at < $3 ORDER BY archived_at ASC LIMIT $4",
		tenantID, StatusArchived, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query expired notes: %w", db.MapError(err))
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired notes: %w", db.MapError(err))
	}
	return notes, nil
}

// Purge removes the note and its versions. Runs inside a transaction so
// the WORM trigger's purge flag stays scoped to this unit of work.
func (r *RepoPG) Purge(ctx context.Context, s scope.Scope, noteID uuid.UUID) (int, error) {
	if err := scope.Require(s); err != nil {
		return 0, err
	}
	c := r.conn(ctx)

	if _, err := c.Exec(ctx, "SELECT set_config('recordstore.purge', 'allow', true)"); err != nil {
		return 0, fmt.Errorf("arm purge flag: %w", db.MapError(err))
	}

	tag, err := c.Exec(ctx, `
		DELETE FROM note_versions WHERE note_id IN (
			SELECT id FROM notes WHERE id = $1 AND tenant_id = $2)`,
		noteID, s.TenantID())
	if err != nil {
		return 0, fmt.Errorf("purge note versions: %w", db.MapError(err))
	}
	removed := int(tag.RowsAffected())

	noteTag, err := c.Exec(ctx,
		"DELETE FROM notes WHERE id = $1 AND tenant_id = $2", noteID, s.TenantID())
	if err != nil {
		return 0, fmt.Errorf("purge note: %w", db.MapError(err))
	}
	if noteTag.RowsAffected() == 0 {
		return 0, scope.Classify(s, r.ownerOf(ctx, noteID), db.ErrNotFound)
	}
	return removed, nil
}
