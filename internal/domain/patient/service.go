package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scribehealth/recordstore/internal/domain/audit"
	"github.com/scribehealth/recordstore/internal/platform/db"
	"github.com/scribehealth/recordstore/internal/platform/scope"
)

// TenantGate guards writes under frozen or missing tenants.
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

func (s *Service) Create(ctx context.Context, sc scope.Scope, p *Patient, meta audit.RequestMeta) error {
	if err := s.gate.EnsureActive(ctx, sc); err != nil {
		return err
	}
	if p.MRN == "" {
		return fmt.Errorf("mrn is required")
	}
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}

	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, sc, p); err != nil {
			return err
		}
		_, err := s.ledger.Append(ctx, sc, audit.PatientCreated{},
			audit.ResourceRef{Type: audit.ResourcePatient, ID: p.ID}, meta)
		return err
	})
}

func (s *Service) Get(ctx context.Context, sc scope.Scope, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, sc, id)
}

func (s *Service) GetByMRN(ctx context.Context, sc scope.Scope, mrn string) (*Patient, error) {
	return s.repo.GetByMRN(ctx, sc, mrn)
}

func (s *Service) Update(ctx context.Context, sc scope.Scope, p *Patient, fields []string, meta audit.RequestMeta) error {
	if err := s.gate.EnsureActive(ctx, sc); err != nil {
		return err
	}
	if p.MRN == "" {
		return fmt.Errorf("mrn is required")
	}
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, sc, p); err != nil {
			return err
		}
		_, err := s.ledger.Append(ctx, sc, audit.PatientUpdated{Fields: fields},
			audit.ResourceRef{Type: audit.ResourcePatient, ID: p.ID}, meta)
		return err
	})
}

func (s *Service) List(ctx context.Context, sc scope.Scope, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, sc, limit, offset)
}
