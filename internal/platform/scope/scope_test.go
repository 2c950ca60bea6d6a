package scope

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequire_EmptyScope(t *testing.T) {
	if err := Require(Scope{}); !errors.Is(err, ErrScopeMissing) {
		t.Errorf("expected ErrScopeMissing, got %v", err)
	}
}

func TestRequire_ValidScope(t *testing.T) {
	s := New(uuid.New(), uuid.New())
	if err := Require(s); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestCheckWrite_SameTenant(t *testing.T) {
	tenant := uuid.New()
	s := New(tenant, uuid.New())
	if err := CheckWrite(s, tenant); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestCheckWrite_CrossTenant(t *testing.T) {
	s := New(uuid.New(), uuid.New())
	if err := CheckWrite(s, uuid.New()); !errors.Is(err, ErrCrossTenantViolation) {
		t.Errorf("expected ErrCrossTenantViolation, got %v", err)
	}
}

func TestCheckWrite_NewEntity(t *testing.T) {
	// uuid.Nil owner means the entity is being created; the gate assigns
	// the scope's tenant instead of rejecting.
	s := New(uuid.New(), uuid.New())
	if err := CheckWrite(s, uuid.Nil); err != nil {
		t.Errorf("expected nil for create, got %v", err)
	}
}

func TestCheckWrite_NoScope(t *testing.T) {
	if err := CheckWrite(Scope{}, uuid.New()); !errors.Is(err, ErrScopeMissing) {
		t.Errorf("expected ErrScopeMissing, got %v", err)
	}
}

func TestClassify_OtherTenantIsViolationNotAbsence(t *testing.T) {
	notFound := errors.New("not found")
	s := New(uuid.New(), uuid.New())

	if err := Classify(s, uuid.New(), notFound); !errors.Is(err, ErrCrossTenantViolation) {
		t.Errorf("expected ErrCrossTenantViolation, got %v", err)
	}
	if err := Classify(s, uuid.Nil, notFound); !errors.Is(err, notFound) {
		t.Errorf("expected notFound passthrough, got %v", err)
	}
	if err := Classify(s, s.TenantID(), notFound); !errors.Is(err, notFound) {
		t.Errorf("expected notFound for own tenant, got %v", err)
	}
}

func TestMiddleware_SetsScopeFromClaims(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	tenant := uuid.New()
	actor := uuid.New()
	c.Set("jwt_tenant_id", tenant.String())
	c.Set("jwt_actor_id", actor.String())

	var got Scope
	h := Middleware(zerolog.Nop())(func(c echo.Context) error {
		s, err := FromEcho(c)
		if err != nil {
			return err
		}
		got = s
		return nil
	})

	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TenantID() != tenant {
		t.Errorf("expected tenant %s, got %s", tenant, got.TenantID())
	}
	if got.ActorID() != actor {
		t.Errorf("expected actor %s, got %s", actor, got.ActorID())
	}
}

func TestMiddleware_RejectsMissingTenant(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := Middleware(zerolog.Nop())(func(c echo.Context) error { return nil })
	err := h(c)

	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestFromEcho_MissingScope(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if _, err := FromEcho(c); !errors.Is(err, ErrScopeMissing) {
		t.Errorf("expected ErrScopeMissing, got %v", err)
	}
}
