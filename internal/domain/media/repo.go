package media

import (
	"context"

	"github.com/google/uuid"

	"github.com/scribehealth/recordstore/internal/platform/scope"
)

type Repository interface {
	Create(ctx context.Context, s scope.Scope, a *Asset) error
	GetByID(ctx context.Context, s scope.Scope, id uuid.UUID) (*Asset, error)
	ListByEncounter(ctx context.Context, s scope.Scope, encounterID uuid.UUID, limit, offset int) ([]*Asset, int, error)
	Delete(ctx context.Context, s scope.Scope, id uuid.UUID) error
}
