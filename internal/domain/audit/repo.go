package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scribehealth/recordstore/internal/platform/scope"
)

// Repository is the storage contract for the audit chain. It is
// deliberately append-only: no update or delete methods exist.
type Repository interface {
	// Insert persists a fully computed event. Must be called inside the
	// same transaction as the business mutation it documents.
	Insert(ctx context.Context, e *Event) error

	// LastInChain returns the tail of the tenant's chain, locking the row
	// against concurrent appenders when called inside a transaction.
	// Returns nil when the chain is empty.
	LastInChain(ctx context.Context, tenantID uuid.UUID) (*Event, error)

	// Range returns events with fromSeq <= seq <= toSeq in chain order.
	// toSeq <= 0 means "to the end of the chain".
	Range(ctx context.Context, s scope.Scope, fromSeq, toSeq int64) ([]*Event, error)

	// GetBySeq returns a single event of the scope's tenant.
	GetBySeq(ctx context.Context, s scope.Scope, seq int64) (*Event, error)

	// ListByTime returns the tenant's timeline between from and to,
	// newest first, with a total count for pagination.
	ListByTime(ctx context.Context, s scope.Scope, from, to time.Time, limit, offset int) ([]*Event, int, error)
}
