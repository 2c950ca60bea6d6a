package tenant

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context, limit, offset int) ([]*Tenant, int, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// DeleteCascade removes the tenant row and every scoped entity under
	// it, returning the number of entity rows removed. Audit events are
	// never touched: the chain outlives the tenant.
	DeleteCascade(ctx context.Context, id uuid.UUID) (int64, error)
}
