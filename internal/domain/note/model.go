package note

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the note lifecycle state. Content moves strictly forward:
//
//	draft -(append)-> draft -(finalize)-> final -(amend)-> amended -(amend)-> amended
//	final/amended -(archive)-> archived
//
// Plain edits stop at finalization; amendments append new versions with a
// mandatory change summary and never touch prior versions.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusFinal    Status = "final"
	StatusAmended  Status = "amended"
	StatusArchived Status = "archived"
)

// Note is the mutable head record: a status and a pointer to the current
// version. All content lives in immutable NoteVersion rows.
type Note struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	EncounterID    uuid.UUID  `json:"encounter_id"`
	AuthorID       uuid.UUID  `json:"author_id"`
	Status         Status     `json:"status"`
	CurrentVersion int        `json:"current_version"`
	FinalizedBy    *uuid.UUID `json:"finalized_by,omitempty"`
	FinalizedAt    *time.Time `json:"finalized_at,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NoteVersion is write-once: inserted exactly once, never updated or
// deleted except by whole-note retention purge. Version numbers are
// gap-free and strictly increasing per note.
type NoteVersion struct {
	ID            uuid.UUID `json:"id"`
	NoteID        uuid.UUID `json:"note_id"`
	Version       int       `json:"version"`
	Content       string    `json:"content"`
	ChangeSummary string    `json:"change_summary,omitempty"` // amendments only
	CreatedBy     uuid.UUID `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

var (
	// ErrVersionConflict reports a lost race on the version pointer. The
	// losing writer re-reads and retries against the new head.
	ErrVersionConflict = errors.New("note version conflict")

	// ErrNoteFinalized rejects plain edits after finalization. Amendment
	// is the only way forward.
	ErrNoteFinalized = errors.New("note is finalized")

	// ErrNotFinalized rejects amendment of a note still in draft.
	ErrNotFinalized = errors.New("note is not finalized")

	// ErrNoteArchived rejects any content change on an archived note.
	ErrNoteArchived = errors.New("note is archived")

	// ErrChangeSummaryRequired enforces the amendment policy: no silent
	// post-finalization changes.
	ErrChangeSummaryRequired = errors.New("amendment requires a change summary")
)
