// Package scope carries the authenticated tenant identity through one unit
// of work. A Scope is constructed once per request (or background job) and
// passed explicitly into every storage call; there is no ambient or global
// "current tenant". Every repository method takes a Scope and pins its SQL
// predicates to scope.TenantID(), which is what makes tenant isolation a
// structural property of the store rather than a per-call-site convention.
package scope

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrScopeMissing is returned when an operation is attempted without an
	// active scoping context. Never retried, never downgraded to an empty
	// result.
	ErrScopeMissing = errors.New("no active scoping context")

	// ErrCrossTenantViolation is returned when a caller attempts to touch a
	// resource owned by a different tenant. It is a hard rejection: callers
	// must surface it, not mask it as absence.
	ErrCrossTenantViolation = errors.New("cross-tenant access violation")
)

// Scope identifies "operations performed on behalf of tenant T by actor A"
// for the lifetime of one unit of work. Fields are unexported so a scope
// cannot be mutated mid-flight.
type Scope struct {
	tenantID uuid.UUID
	actorID  uuid.UUID
}

// New builds a scope from an authenticated identity. The authentication
// layer is the only intended caller.
func New(tenantID, actorID uuid.UUID) Scope {
	return Scope{tenantID: tenantID, actorID: actorID}
}

func (s Scope) TenantID() uuid.UUID { return s.tenantID }
func (s Scope) ActorID() uuid.UUID  { return s.actorID }

// Valid reports whether the scope carries a resolved tenant.
func (s Scope) Valid() bool {
	return s.tenantID != uuid.Nil
}

// Require fails fast with ErrScopeMissing when no valid scope is present.
// Every service operation calls this before touching the store.
func Require(s Scope) error {
	if !s.Valid() {
		return ErrScopeMissing
	}
	return nil
}

// CheckWrite validates that an entity already owned by ownerTenant may be
// written under s. Used by the write path of every repository: an entity
// belonging to another tenant is rejected outright instead of being
// silently filtered.
func CheckWrite(s Scope, ownerTenant uuid.UUID) error {
	if err := Require(s); err != nil {
		return err
	}
	if ownerTenant != uuid.Nil && ownerTenant != s.tenantID {
		return ErrCrossTenantViolation
	}
	return nil
}

// Classify distinguishes "the resource exists under another tenant" from
// genuine absence, so isolation violations stay observable. ownerTenant is
// resolved by a gate-internal ownership probe (never exposed to callers);
// uuid.Nil means the resource does not exist at all.
func Classify(s Scope, ownerTenant uuid.UUID, notFound error) error {
	if ownerTenant != uuid.Nil && ownerTenant != s.tenantID {
		return ErrCrossTenantViolation
	}
	return notFound
}
