package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a tenant-scoped identity record. MRN uniqueness is scoped:
// two tenants may both hold MRN "12345" without colliding.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	MRN       string    `json:"mrn"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	BirthDate string    `json:"birth_date,omitempty"` // YYYY-MM-DD
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
