package note

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scribehealth/recordstore/internal/platform/scope"
)

type Repository interface {
	// Create inserts the head row and its first version together.
	Create(ctx context.Context, s scope.Scope, n *Note, first *NoteVersion) error

	GetByID(ctx context.Context, s scope.Scope, id uuid.UUID) (*Note, error)
	GetVersion(ctx context.Context, s scope.Scope, noteID uuid.UUID, version int) (*NoteVersion, error)
	ListVersions(ctx context.Context, s scope.Scope, noteID uuid.UUID) ([]*NoteVersion, error)
	ListByEncounter(ctx context.Context, s scope.Scope, encounterID uuid.UUID, limit, offset int) ([]*Note, int, error)

	// InsertVersion appends one immutable version row. A duplicate
	// (note_id, version) surfaces as ErrVersionConflict.
	InsertVersion(ctx context.Context, s scope.Scope, v *NoteVersion) error

	// AdvanceHead moves the version pointer with an optimistic check:
	// zero rows updated when the head moved underneath us is
	// ErrVersionConflict.
	AdvanceHead(ctx context.Context, s scope.Scope, noteID uuid.UUID, fromVersion, toVersion int, status Status) error

	// MarkFinalized flips draft to final; fails with ErrVersionConflict
	// when the note is no longer at (draft, version).
	MarkFinalized(ctx context.Context, s scope.Scope, noteID uuid.UUID, version int, by uuid.UUID, at time.Time) error

	// Archive moves a final or amended note into the archived state.
	Archive(ctx context.Context, s scope.Scope, noteID uuid.UUID, at time.Time) error

	// ListExpired returns archived notes whose archived_at is before the
	// cutoff, for the retention purge.
	ListExpired(ctx context.Context, tenantID uuid.UUID, cutoff time.Time, limit int) ([]*Note, error)

	// Purge removes a note and all its versions, returning the number of
	// version rows removed. The only delete path in the package.
	Purge(ctx context.Context, s scope.Scope, noteID uuid.UUID) (int, error)
}
