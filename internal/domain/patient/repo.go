package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/scribehealth/recordstore/internal/platform/scope"
)

type Repository interface {
	Create(ctx context.Context, s scope.Scope, p *Patient) error
	GetByID(ctx context.Context, s scope.Scope, id uuid.UUID) (*Patient, error)
	GetByMRN(ctx context.Context, s scope.Scope, mrn string) (*Patient, error)
	Update(ctx context.Context, s scope.Scope, p *Patient) error
	List(ctx context.Context, s scope.Scope, limit, offset int) ([]*Patient, int, error)
}
