package note

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scribehealth/recordstore/internal/domain/audit"
	"github.com/scribehealth/recordstore/internal/platform/db"
	"github.com/scribehealth/recordstore/internal/platform/scope"
)

type TenantGate interface {
	EnsureActive(ctx context.Context, s scope.Scope) error
}

// Service drives the note state machine. Every content change is a new
// immutable version plus an audit event in the same transaction; history
// is never rewritten.
type Service struct {
	repo   Repository
	ledger *audit.Ledger
	gate   TenantGate
	tx     db.TxRunner
	logger zerolog.Logger
}

func NewService(repo Repository, ledger *audit.Ledger, gate TenantGate, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, ledger: ledger, gate: gate, tx: tx, logger: logger}
}

// Create opens a draft note at version 1.
func (s *Service) Create(ctx context.Context, sc scope.Scope, encounterID uuid.UUID, content string, meta audit.RequestMeta) (*Note, error) {
	if err := s.gate.EnsureActive(ctx, sc); err != nil {
		return nil, err
	}
	if encounterID == uuid.Nil {
		return nil, fmt.Errorf("encounter_id is required")
	}
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}

	now := time.Now().UTC()
	n := &Note{
		ID:             uuid.New(),
		EncounterID:    encounterID,
		AuthorID:       sc.ActorID(),
		Status:         StatusDraft,
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	first := &NoteVersion{
		ID:        uuid.New(),
		NoteID:    n.ID,
		Version:   1,
		Content:   content,
		CreatedBy: sc.ActorID(),
		CreatedAt: now,
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, sc, n, first); err != nil {
			return err
		}
		_, err := s.ledger.Append(ctx, sc, audit.NoteCreated{EncounterID: encounterID},
			audit.ResourceRef{Type: audit.ResourceNote, ID: n.ID}, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// AppendVersion adds the next draft revision. Two writers racing from the
// same head produce one winner and one ErrVersionConflict; the loser
// re-reads and retries, so versions stay gap-free.
func (s *Service) AppendVersion(ctx context.Context, sc scope.Scope, noteID uuid.UUID, content string, meta audit.RequestMeta) (*NoteVersion, error) {
	if err := s.gate.EnsureActive(ctx, sc); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}

	n, err := s.repo.GetByID(ctx, sc, noteID)
	if err != nil {
		return nil, err
	}
	switch n.Status {
	case StatusDraft:
	case StatusArchived:
		return nil, ErrNoteArchived
	default:
		return nil, ErrNoteFinalized
	}

	return s.appendFrom(ctx, sc, noteID, n.CurrentVersion, content, meta)
}

// appendFrom lands the version after fromVersion. Split out so the
// optimistic check is testable with a deliberately stale head.
func (s *Service) appendFrom(ctx context.Context, sc scope.Scope, noteID uuid.UUID, fromVersion int, content string, meta audit.RequestMeta) (*NoteVersion, error) {
	v := &NoteVersion{
		ID:        uuid.New(),
		NoteID:    noteID,
		Version:   fromVersion + 1,
		Content:   content,
		CreatedBy: sc.ActorID(),
		CreatedAt: time.Now().UTC(),
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.InsertVersion(ctx, sc, v); err != nil {
			return err
		}
		if err := s.repo.AdvanceHead(ctx, sc, noteID, fromVersion, v.Version, StatusDraft); err != nil {
			return err
		}
		_, err := s.ledger.Append(ctx, sc, audit.NoteVersionAppended{Version: v.Version},
			audit.ResourceRef{Type: audit.ResourceNote, ID: noteID}, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Finalize freezes the draft. After this only amendments can change
// content.
func (s *Service) Finalize(ctx context.Context, sc scope.Scope, noteID uuid.UUID, meta audit.RequestMeta) (*Note, error) {
	if err := s.gate.EnsureActive(ctx, sc); err != nil {
		return nil, err
	}

	n, err := s.repo.GetByID(ctx, sc, noteID)
	if err != nil {
		return nil, err
	}
	switch n.Status {
	case StatusDraft:
	case StatusArchived:
		return nil, ErrNoteArchived
	default:
		return nil, ErrNoteFinalized
	}

	at := time.Now().UTC()
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.MarkFinalized(ctx, sc, noteID, n.CurrentVersion, sc.ActorID(), at); err != nil {
			return err
		}
		_, err := s.ledger.Append(ctx, sc, audit.NoteFinalized{Version: n.CurrentVersion},
			audit.ResourceRef{Type: audit.ResourceNote, ID: noteID}, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	by := sc.ActorID()
	n.Status = StatusFinal
	n.FinalizedBy = &by
	n.FinalizedAt = &at
	return n, nil
}

// Amend appends a post-finalization version. The change summary is
// mandatory: the policy is visible corrections, never silent rewrites.
func (s *Service) Amend(ctx context.Context, sc scope.Scope, noteID uuid.UUID, content, changeSummary string, meta audit.RequestMeta) (*NoteVersion, error) {
	if err := s.gate.EnsureActive(ctx, sc); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	if changeSummary == "" {
		return nil, ErrChangeSummaryRequired
	}

	n, err := s.repo.GetByID(ctx, sc, noteID)
	if err != nil {
		return nil, err
	}
	switch n.Status {
	case StatusFinal, StatusAmended:
	case StatusArchived:
		return nil, ErrNoteArchived
	default:
		return nil, ErrNotFinalized
	}

	v := &NoteVersion{
		ID:            uuid.New(),
		NoteID:        noteID,
		Version:       n.CurrentVersion + 1,
		Content:       content,
		ChangeSummary: changeSummary,
		CreatedBy:     sc.ActorID(),
		CreatedAt:     time.Now().UTC(),
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.InsertVersion(ctx, sc, v); err != nil {
			return err
		}
		if err := s.repo.AdvanceHead(ctx, sc, noteID, n.CurrentVersion, v.Version, StatusAmended); err != nil {
			return err
		}
		_, err := s.ledger.Append(ctx, sc,
			audit.NoteAmended{Version: v.Version, ChangeSummary: changeSummary},
			audit.ResourceRef{Type: audit.ResourceNote, ID: noteID}, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Archive retires a finalized note; content becomes read-only until the
// retention purge removes it.
func (s *Service) Archive(ctx context.Context, sc scope.Scope, noteID uuid.UUID, meta audit.RequestMeta) error {
	if err := s.gate.EnsureActive(ctx, sc); err != nil {
		return err
	}

	n, err := s.repo.GetByID(ctx, sc, noteID)
	if err != nil {
		return err
	}
	switch n.Status {
	case StatusFinal, StatusAmended:
	case StatusArchived:
		return ErrNoteArchived
	default:
		return ErrNotFinalized
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Archive(ctx, sc, noteID, time.Now().UTC()); err != nil {
			return err
		}
		_, err := s.ledger.Append(ctx, sc, audit.NoteArchived{Version: n.CurrentVersion},
			audit.ResourceRef{Type: audit.ResourceNote, ID: noteID}, meta)
		return err
	})
}

func (s *Service) Get(ctx context.Context, sc scope.Scope, noteID uuid.UUID) (*Note, error) {
	return s.repo.GetByID(ctx, sc, noteID)
}

func (s *Service) GetVersion(ctx context.Context, sc scope.Scope, noteID uuid.UUID, version int) (*NoteVersion, error) {
	return s.repo.GetVersion(ctx, sc, noteID, version)
}

func (s *Service) ListVersions(ctx context.Context, sc scope.Scope, noteID uuid.UUID) ([]*NoteVersion, error) {
	return s.repo.ListVersions(ctx, sc, noteID)
}

// CurrentContent resolves the head pointer to its version row.
func (s *Service) CurrentContent(ctx context.Context, sc scope.Scope, noteID uuid.UUID) (*Note, *NoteVersion, error) {
	n, err := s.repo.GetByID(ctx, sc, noteID)
	if err != nil {
		return nil, nil, err
	}
	v, err := s.repo.GetVersion(ctx, sc, noteID, n.CurrentVersion)
	if err != nil {
		return nil, nil, err
	}
	return n, v, nil
}

func (s *Service) ListByEncounter(ctx context.Context, sc scope.Scope, encounterID uuid.UUID, limit, offset int) ([]*Note, int, error) {
	return s.repo.ListByEncounter(ctx, sc, encounterID, limit, offset)
}

// PurgeExpired removes archived notes past the tenant's retention cutoff.
// Each purge is its own transaction: the versions go, the audit trail
// gains a note.purged event, and nothing else in the chain moves.
func (s *Service) PurgeExpired(ctx context.Context, sc scope.Scope, cutoff time.Time, limit int) (int, error) {
	if err := scope.Require(sc); err != nil {
		return 0, err
	}

	expired, err := s.repo.ListExpired(ctx, sc.TenantID(), cutoff, limit)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, n := range expired {
		err := s.tx.InTx(ctx, func(ctx context.Context) error {
			removed, err := s.repo.Purge(ctx, sc, n.ID)
			if err != nil {
				return err
			}
			_, err = s.ledger.Append(ctx, sc, audit.NotePurged{VersionsRemoved: removed},
				audit.ResourceRef{Type: audit.ResourceNote, ID: n.ID}, audit.RequestMeta{})
			return err
		})
		if err != nil {
			return purged, fmt.Errorf("purge note %s: %w", n.ID, err)
		}
		purged++
		s.logger.Info().
			Str("tenant_id", sc.TenantID().String()).
			Str("note_id", n.ID.String()).
			Msg("retention purge removed note")
	}
	return purged, nil
}
