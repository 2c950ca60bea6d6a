package encounter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scribehealth/recordstore/internal/platform/scope"
)

type Repository interface {
	Create(ctx context.Context, s scope.Scope, e *Encounter) error
	GetByID(ctx context.Context, s scope.Scope, id uuid.UUID) (*Encounter, error)
	End(ctx context.Context, s scope.Scope, id uuid.UUID, endedAt time.Time) error
	ListByPatient(ctx context.Context, s scope.Scope, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error)
}
