package audit

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

// RepoPG stores audit events in the audit_events table. The table carries
// UNIQUE(tenant_id, seq) and UNIQUE(tenant_id, prev_hash) so a chain fork
// is impossible even if the advisory lock is bypassed.
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

const eventCols = `id, tenant_id, seq, event_type, actor_id, resource_type, resource_id,
	payload, created_at, prev_hash, current_hash, ip_address, user_agent`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	var actorID *uuid.UUID
	var ip, ua *string
	err := row.Scan(
		&e.ID, &e.TenantID, &e.Seq, &e.EventType, &actorID, &e.ResourceType, &e.ResourceID,
		&e.Payload, &e.CreatedAt, &e.PrevHash, &e.CurrentHash, &ip, &ua,
	)
	if err != nil {
		return nil, db.MapError(err)
	}
	if actorID != nil {
		e.ActorID = *actorID
	}
	if ip != nil {
		e.IPAddress = *ip
	}
	if ua != nil {
		e.UserAgent = *ua
	}
	return &e, nil
}

func (r *RepoPG) Insert(ctx context.Context, e *Event) error {
	var actorID *uuid.UUID
	if e.ActorID != uuid.Nil {
		actorID = &e.ActorID
	}
	var ip, ua *string
	if e.IPAddress != "" {
		ip = &e.IPAddress
	}
	if e.UserAgent != "" {
		ua = &e.UserAgent
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_events (
			id, tenant_id, seq, event_type, actor_id, resource_type, resource_id,
			payload, created_at, prev_hash, current_hash, ip_address, user_agent
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.TenantID, e.Seq, e.EventType, actorID, e.ResourceType, e.ResourceID,
		e.Payload, e.CreatedAt, e.PrevHash, e.CurrentHash, ip, ua,
	)
	if err != nil {
		mapped := db.MapError(err)
		if errors.Is(mapped, db.ErrDuplicateKey) {
			// Two appenders computed from the same tail.
			return ErrChainConflict
		}
		return fmt.Errorf("insert audit event: %w", mapped)
	}
	return nil
}

func (r *RepoPG) LastInChain(ctx context.Context, tenantID uuid.UUID) (*Event, error) {
	// Inside a transaction, take the tenant's advisory lock before reading
	// the tail. A FOR UPDATE on the tail row is not enough under read
	// committed: a waiter's snapshot predates the winner's new tail, so
	// both would hash from the same predecessor. The advisory lock is held
	// until commit, and once acquired the read below runs on a fresh
	// snapshot that sees the new tail.
	if tx := db.TxFromContext(ctx); tx != nil {
		if _, err := tx.Exec(ctx,
			"SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))", tenantID,
		); err != nil {
			return nil, fmt.Errorf("lock audit chain: %w", db.MapError(err))
		}
	}

	q := fmt.Sprintf("SELECT %s FROM audit_events WHERE tenant_id = $1 ORDER BY seq DESC LIMIT 1", eventCols)
	e, err := scanEvent(r.conn(ctx).QueryRow(ctx, q, tenantID))
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil // empty chain
	}
	if err != nil {
		return nil, fmt.Errorf("load chain tail: %w", err)
	}
	return e, nil
}

func (r *RepoPG) Range(ctx context.Context, s scope.Scope, fromSeq, toSeq int64) ([]*Event, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}
	if fromSeq < 1 {
		fromSeq = 1
	}

	q := fmt.Sprintf("SELECT %s FROM audit_events WHERE tenant_id = $1 AND seq >= $2", eventCols)
	args := []interface{}{s.TenantID(), fromSeq}
	if toSeq > 0 {
		q += " AND seq <= $3"
		args = append(args, toSeq)
	}
	q += " ORDER BY seq ASC"

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit range: %w", db.MapError(err))
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit range: %w", db.MapError(err))
	}
	return events, nil
}

func (r *RepoPG) GetBySeq(ctx context.Context, s scope.Scope, seq int64) (*Event, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM audit_events WHERE tenant_id = $1 AND seq = $2", eventCols)
	e, err := scanEvent(r.conn(ctx).QueryRow(ctx, q, s.TenantID(), seq))
	if err != nil {
		return nil, fmt.Errorf("get audit event %d: %w", seq, err)
	}
	return e, nil
}

func (r *RepoPG) ListByTime(ctx context.Context, s scope.Scope, from, to time.Time, limit, offset int) ([]*Event, int, error) {
	if err := scope.Require(s); err != nil {
		return nil, 0, err
	}

	where := "WHERE tenant_id = $1"
	args := []interface{}{s.TenantID()}
	idx := 2
	if !from.IsZero() {
		where += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, from)
		idx++
	}
	if !to.IsZero() {
		where += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, to)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM audit_events "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", db.MapError(err))
	}

	q := fmt.Sprintf("SELECT %s FROM audit_events %s ORDER BY created_at DESC, seq DESC LIMIT $%d OFFSET $%d",
		eventCols, where, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit timeline: %w", db.MapError(err))
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit timeline: %w", db.MapError(err))
	}
	return events, total, nil
}
