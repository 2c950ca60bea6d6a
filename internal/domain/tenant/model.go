package tenant

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolation boundary: every scoped entity and every audit
// chain belongs to exactly one tenant.
type Tenant struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	IsActive       bool      `json:"is_active"`
	RetentionYears int       `json:"retention_years"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ErrTenantInactive rejects writes under a deactivated tenant. Reads stay
// allowed so a frozen tenant's records remain inspectable.
var ErrTenantInactive = errors.New("tenant is deactivated")

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a usable tenant slug: lowercase
// alphanumerics and single hyphens, 1 to 63 characters.
func ValidSlug(s string) bool {
	return len(s) >= 1 && len(s) <= 63 && slugPattern.MatchString(s)
}

// RetentionCutoff returns the moment before which archived records are
// eligible for purge.
func (t *Tenant) RetentionCutoff(now time.Time) time.Time {
	return now.AddDate(-t.RetentionYears, 0, 0)
}
