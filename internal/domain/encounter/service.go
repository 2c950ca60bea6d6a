package encounter

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

// Create opens an encounter for a patient of the scope's tenant. The
// composite FK on (patient_id, tenant_id) makes linking to another
// tenant's patient structurally impossible.
func (s *Service) Create(ctx context.Context, sc scope.Scope, e *Encounter, meta audit.RequestMeta) error {
	if err := s.gate.EnsureActive(ctx, sc); err != nil {
		return err
	}
	if e.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}

	e.ID = uuid.New()
	now := time.Now().UTC()
	if e.StartedAt.IsZero() {
		e.StartedAt = now
	}
	e.CreatedAt, e.UpdatedAt = now, now

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, sc, e); err != nil {
			if errors.Is(err, db.ErrForeignKeyViolation) {
				return fmt.Errorf("patient %s not found under tenant: %w", e.PatientID, db.ErrNotFound)
			}
			return err
		}
		_, err := s.ledger.Append(ctx, sc, audit.EncounterCreated{PatientID: e.PatientID},
			audit.ResourceRef{Type: audit.ResourceEncounter, ID: e.ID}, meta)
		return err
	})
}

func (s *Service) Get(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Encounter, error) {
	return s.repo.GetByID(ctx, sc, id)
}

// End closes an open encounter. Idempotence is not offered: ending an
// already ended encounter is a not-found on the open row.
func (s *Service) End(ctx context.Context, sc scope.Scope, id uuid.UUID) error {
	if err := s.gate.EnsureActive(ctx, sc); err != nil {
		return err
	}
	return s.repo.End(ctx, sc, id, time.Now().UTC())
}

func (s *Service) ListByPatient(ctx context.Context, sc scope.Scope, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	return s.repo.ListByPatient(ctx, sc, patientID, limit, offset)
}
