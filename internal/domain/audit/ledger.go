package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scribehealth/recordstore/internal/platform/scope"
)

// Ledger appends events to the per-tenant hash chain. Append is designed
// to run inside the transaction of the business mutation it documents:
// either both commit or both roll back, so the log can never disagree with
// the data about what happened.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Append computes the next chain position for the scope's tenant and
// inserts the event. Inside a transaction the repo serializes appenders on
// a per-tenant advisory lock, so seq is gap-free and strictly increasing
// per tenant; a conflict from an unserialized append surfaces as
// ErrChainConflict and the unit of work is retried by the caller.
func (l *Ledger) Append(ctx context.Context, s scope.Scope, p Payload, ref ResourceRef, meta RequestMeta) (*Event, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}

	payload, err := MarshalPayload(p)
	if err != nil {
		return nil, err
	}

	last, err := l.repo.LastInChain(ctx, s.TenantID())
	if err != nil {
		return nil, err
	}

	e := &Event{
		ID:           uuid.New(),
		TenantID:     s.TenantID(),
		EventType:    p.EventType(),
		ActorID:      s.ActorID(),
		ResourceType: ref.Type,
		ResourceID:   ref.ID,
		Payload:      payload,
		// Truncated to microseconds so the hashed timestamp survives the
		// round-trip through timestamptz exactly.
		CreatedAt: l.now().UTC().Truncate(time.Microsecond),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}

	if last == nil {
		e.Seq = 1
		e.PrevHash = nil
	} else {
		e.Seq = last.Seq + 1
		e.PrevHash = last.CurrentHash
	}

	e.CurrentHash, err = ComputeHash(e.PrevHash, e)
	if err != nil {
		return nil, fmt.Errorf("compute chain hash: %w", err)
	}

	if err := l.repo.Insert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// AppendCorrection records that a prior event was wrong. The original row
// is left untouched; the correction is an ordinary chained event that
// references it by sequence number.
func (l *Ledger) AppendCorrection(ctx context.Context, s scope.Scope, correctedSeq int64, reason string, meta RequestMeta) (*Event, error) {
	corrected, err := l.repo.GetBySeq(ctx, s, correctedSeq)
	if err != nil {
		return nil, err
	}
	return l.Append(ctx, s,
		EventCorrected{CorrectedSeq: correctedSeq, Reason: reason},
		ResourceRef{Type: ResourceAuditEvent, ID: corrected.ID},
		meta,
	)
}

// Timeline returns the tenant's audit history, newest first.
func (l *Ledger) Timeline(ctx context.Context, s scope.Scope, from, to time.Time, limit, offset int) ([]*Event, int, error) {
	return l.repo.ListByTime(ctx, s, from, to, limit, offset)
}

// Get returns one event by chain position.
func (l *Ledger) Get(ctx context.Context, s scope.Scope, seq int64) (*Event, error) {
	return l.repo.GetBySeq(ctx, s, seq)
}
