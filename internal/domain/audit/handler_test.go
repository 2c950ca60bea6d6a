package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/scribehealth/recordstore/internal/platform/scope"
)

// recordingTxRunner counts transactions so tests can assert an append ran
// inside one.
type recordingTxRunner struct {
	calls int
}

func (r *recordingTxRunner) InTx(ctx context.Context, fn func(context.Context) error) error {
	r.calls++
	return fn(ctx)
}

func TestCorrectEventRunsInTransaction(t *testing.T) {
	l, _ := newTestLedger()
	s := scope.New(uuid.New(), uuid.New())
	ctx := context.Background()

	orig, err := l.Append(ctx, s, PatientCreated{}, ResourceRef{Type: ResourcePatient, ID: uuid.New()}, RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}

	runner := &recordingTxRunner{}
	h := NewHandler(l, runner)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit-events/1/corrections",
		strings.NewReader(`{"reason":"attributed to wrong clinician"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("seq")
	c.SetParamValues("1")
	c.Set("jwt_tenant_id", s.TenantID().String())
	c.Set("jwt_actor_id", s.ActorID().String())

	handler := scope.Middleware(zerolog.Nop())(h.CorrectEvent)
	if err := handler(c); err != nil {
		t.Fatalf("CorrectEvent: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if runner.calls != 1 {
		t.Errorf("expected the correction to open one transaction, got %d", runner.calls)
	}

	corr, err := l.Get(ctx, s, orig.Seq+1)
	if err != nil {
		t.Fatalf("correction not appended: %v", err)
	}
	if corr.EventType != "audit_event.corrected" {
		t.Errorf("unexpected event type %q", corr.EventType)
	}
}

func TestCorrectEventRequiresReason(t *testing.T) {
	l, _ := newTestLedger()
	s := scope.New(uuid.New(), uuid.New())
	h := NewHandler(l, &recordingTxRunner{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit-events/1/corrections",
		strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("seq")
	c.SetParamValues("1")
	c.Set("jwt_tenant_id", s.TenantID().String())
	c.Set("jwt_actor_id", s.ActorID().String())

	handler := scope.Middleware(zerolog.Nop())(h.CorrectEvent)
	err := handler(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing reason, got %v", err)
	}
}
