package media

import (
	"time"

	"github.com/google/uuid"
)

// Asset is metadata for a stored media object (a visit recording, a
// scanned document). The bytes live in external object storage under
// StorageKey; only the pointer is tenant-scoped here.
type Asset struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	EncounterID uuid.UUID `json:"encounter_id"`
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}
