package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scribehealth/recordstore/internal/domain/audit"
	"github.com/scribehealth/recordstore/internal/platform/db"
	"github.com/scribehealth/recordstore/internal/platform/scope"
)

type TenantGate interface {
	EnsureActive(ctx context.Context, s scope.Scope) error
}

type Service struct {
	repo   Repository
	ledger *audit.Ledger
	gate   TenantGate
	tx     db.TxRunner
}

func NewService(repo Repository, ledger *audit.Ledger, gate TenantGate, tx db.TxRunner) *Service {
	return &Service{repo: repo, ledger: ledger, gate: gate, tx: tx}
}

func (s *Service) Create(ctx context.Context, sc scope.Scope, a *Asset, meta audit.RequestMeta) error {
	if err := s.gate.EnsureActive(ctx, sc); err != nil {
		return err
	}
	if a.EncounterID == uuid.Nil {
		return fmt.Errorf("encounter_id is required")
	}
	if a.StorageKey == "" || a.ContentType == "" {
		return fmt.Errorf("storage_key and content_type are required")
	}

	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, sc, a); err != nil {
			if errors.Is(err, db.ErrForeignKeyViolation) {
				return fmt.Errorf("encounter %s not found under tenant: %w", a.EncounterID, db.ErrNotFound)
			}
			return err
		}
		_, err := s.ledger.Append(ctx, sc, audit.MediaAssetCreated{ContentType: a.ContentType},
			audit.ResourceRef{Type: audit.ResourceMediaAsset, ID: a.ID}, meta)
		return err
	})
}

func (s *Service) Get(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Asset, error) {
	return s.repo.GetByID(ctx, sc, id)
}

func (s *Service) ListByEncounter(ctx context.Context, sc scope.Scope, encounterID uuid.UUID, limit, offset int) ([]*Asset, int, error) {
	return s.repo.ListByEncounter(ctx, sc, encounterID, limit, offset)
}

func (s *Service) Delete(ctx context.Context, sc scope.Scope, id uuid.UUID, meta audit.RequestMeta) error {
	if err := s.gate.EnsureActive(ctx, sc); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, sc, id); err != nil {
			return err
		}
		_, err := s.ledger.Append(ctx, sc, audit.MediaAssetDeleted{},
			audit.ResourceRef{Type: audit.ResourceMediaAsset, ID: id}, meta)
		return err
	})
}
