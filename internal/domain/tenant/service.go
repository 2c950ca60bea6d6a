package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scribehealth/recordstore/internal/domain/audit"
	"github.com/scribehealth/recordstore/internal/platform/db"
	"github.com/scribehealth/recordstore/internal/platform/scope"
)

// Service manages the tenant lifecycle. Every mutation commits in one
// transaction with its audit event.
type Service struct {
	repo             Repository
	ledger           *audit.Ledger
	tx               db.TxRunner
	logger           zerolog.Logger
	defaultRetention int
}

func NewService(repo Repository, ledger *audit.Ledger, tx db.TxRunner, logger zerolog.Logger, defaultRetention int) *Service {
	return &Service{
		repo:             repo,
		ledger:           ledger,
		tx:               tx,
		logger:           logger,
		defaultRetention: defaultRetention,
	}
}

// Create provisions a tenant and writes the root event of its audit
// chain. actorID identifies the provisioning operator.
func (s *Service) Create(ctx context.Context, name, slug string, retentionYears int, actorID uuid.UUID, meta audit.RequestMeta) (*Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if !ValidSlug(slug) {
		return nil, fmt.Errorf("invalid slug %q: lowercase alphanumerics and hyphens only", slug)
	}
	if retentionYears <= 0 {
		retentionYears = s.defaultRetention
	}

	now := time.Now().UTC()
	t := &Tenant{
		ID:             uuid.New(),
		Name:           name,
		Slug:           slug,
		IsActive:       true,
		RetentionYears: retentionYears,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, t); err != nil {
			if errors.Is(err, db.ErrDuplicateKey) {
				return fmt.Errorf("slug %q already in use: %w", slug, err)
			}
			return err
		}
		_, err := s.ledger.Append(ctx, scope.New(t.ID, actorID),
			audit.TenantCreated{Name: t.Name, Slug: t.Slug},
			audit.ResourceRef{Type: audit.ResourceTenant, ID: t.ID}, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("tenant_id", t.ID.String()).Str("slug", t.Slug).Msg("tenant created")
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.repo.GetBySlug(ctx, slug)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Tenant, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Deactivate freezes the tenant: subsequent writes under its scope fail
// with ErrTenantInactive while reads keep working.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID, actorID uuid.UUID, meta audit.RequestMeta) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.SetActive(ctx, id, false); err != nil {
			return err
		}
		_, err := s.ledger.Append(ctx, scope.New(id, actorID),
			audit.TenantDeactivated{},
			audit.ResourceRef{Type: audit.ResourceTenant, ID: id}, meta)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Warn().Str("tenant_id", id.String()).Msg("tenant deactivated")
	return nil
}

// Delete removes the tenant and every scoped entity under it in one
// transaction. The audit chain is preserved and gets a final event
// recording the deletion, so the tombstoned chain still verifies.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID uuid.UUID, meta audit.RequestMeta) error {
	var removed int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.DeleteCascade(ctx, id)
		if err != nil {
			return err
		}
		removed = n
		_, err = s.ledger.Append(ctx, scope.New(id, actorID),
			audit.TenantDeleted{EntitiesRemoved: removed},
			audit.ResourceRef{Type: audit.ResourceTenant, ID: id}, meta)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Warn().
		Str("tenant_id", id.String()).
		Int64("entities_removed", removed).
		Msg("tenant deleted")
	return nil
}

// EnsureActive is the write gate used by the scoped domains: a write
// under a missing or frozen tenant is rejected before it reaches the
// store.
func (s *Service) EnsureActive(ctx context.Context, sc scope.Scope) error {
	if err := scope.Require(sc); err != nil {
		return err
	}
	t, err := s.repo.GetByID(ctx, sc.TenantID())
	if err != nil {
		return err
	}
	if !t.IsActive {
		return ErrTenantInactive
	}
	return nil
}
