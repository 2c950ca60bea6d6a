package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is one entry in a tenant's append-only audit chain. Rows are
// insert-only: there is no update or delete path anywhere in this package,
// and the store backs that up with a WORM trigger. Each event's hash covers
// the previous event's hash, so retroactive insertion, deletion, or edit of
// any entry breaks verification from that point forward.
type Event struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Seq          int64     `json:"seq"`
	EventType    string    `json:"event_type"`
	ActorID      uuid.UUID `json:"actor_id"`
	ResourceType string    `json:"resource_type"`
	ResourceID   uuid.UUID `json:"resource_id"`
	Payload      []byte    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
	PrevHash     []byte    `json:"prev_hash,omitempty"` // nil only for the chain root
	CurrentHash  []byte    `json:"current_hash"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
}

// Resource kinds referenced by audit events. The reference is weak: audit
// history must survive deletion of the resource it describes.
const (
	ResourceTenant     = "tenant"
	ResourcePatient    = "patient"
	ResourceEncounter  = "encounter"
	ResourceNote       = "note"
	ResourceMediaAsset = "media_asset"
	ResourceAuditEvent = "audit_event"
)

// ErrChainConflict reports that two appenders raced on the chain tail.
// Transactional appends serialize on a per-tenant advisory lock, so this
// surfaces only for appends running outside a transaction; the unique
// constraints still prevent a fork. Retryable: the caller repeats the
// whole unit of work against the new tail.
var ErrChainConflict = errors.New("audit chain tail conflict")

// ResourceRef names the subject of an audit event.
type ResourceRef struct {
	Type string
	ID   uuid.UUID
}

// RequestMeta carries optional request-level context onto the event.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Payload is the closed set of typed event payloads. Each variant has a
// fixed event type and marshals to a small, PII-free JSON document; the
// canonical (sorted-key) form of that document is what gets hashed, so the
// hash input is reproducible across implementations.
type Payload interface {
	EventType() string
}

type TenantCreated struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (TenantCreated) EventType() string { return "tenant.created" }

type TenantDeactivated struct{}

func (TenantDeactivated) EventType() string { return "tenant.deactivated" }

type TenantDeleted struct {
	EntitiesRemoved int64 `json:"entities_removed"`
}

func (TenantDeleted) EventType() string { return "tenant.deleted" }

type PatientCreated struct{}

func (PatientCreated) EventType() string { return "patient.created" }

type PatientUpdated struct {
	Fields []string `json:"fields"`
}

func (PatientUpdated) EventType() string { return "patient.updated" }

type EncounterCreated struct {
	PatientID uuid.UUID `json:"patient_id"`
}

func (EncounterCreated) EventType() string { return "encounter.created" }

type NoteCreated struct {
	EncounterID uuid.UUID `json:"encounter_id"`
}

func (NoteCreated) EventType() string { return "note.created" }

type NoteVersionAppended struct {
	Version int `json:"version"`
}

func (NoteVersionAppended) EventType() string { return "note.version_appended" }

type NoteFinalized struct {
	Version int `json:"version"`
}

func (NoteFinalized) EventType() string { return "note.finalized" }

type NoteAmended struct {
	Version       int    `json:"version"`
	ChangeSummary string `json:"change_summary"`
}

func (NoteAmended) EventType() string { return "note.amended" }

type NoteArchived struct {
	Version int `json:"version"`
}

func (NoteArchived) EventType() string { return "note.archived" }

type NotePurged struct {
	VersionsRemoved int `json:"versions_removed"`
}

func (NotePurged) EventType() string { return "note.purged" }

type MediaAssetCreated struct {
	ContentType string `json:"content_type"`
}

func (MediaAssetCreated) EventType() string { return "media_asset.created" }

type MediaAssetDeleted struct{}

func (MediaAssetDeleted) EventType() string { return "media_asset.deleted" }

// EventCorrected is how mistakes in the log itself are handled: a new
// event pointing at the corrected one. Never an in-place edit.
type EventCorrected struct {
	CorrectedSeq int64  `json:"corrected_seq"`
	Reason       string `json:"reason"`
}

func (EventCorrected) EventType() string { return "audit_event.corrected" }
