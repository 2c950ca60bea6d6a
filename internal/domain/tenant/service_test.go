package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scribehealth/recordstore/internal/domain/audit"
	"github.com/scribehealth/recordstore/internal/platform/db"
	"github.com/scribehealth/recordstore/internal/platform/scope"
)

type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockRepo struct {
	tenants map[uuid.UUID]*Tenant
	slugs   map[string]uuid.UUID
	removed int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{tenants: make(map[uuid.UUID]*Tenant), slugs: make(map[string]uuid.UUID)}
}

func (m *mockRepo) Create(_ context.Context, t *Tenant) error {
	if _, taken := m.slugs[t.Slug]; taken {
		return db.ErrDuplicateKey
	}
	cp := *t
	m.tenants[t.ID] = &cp
	m.slugs[t.Slug] = t.ID
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Tenant, error) {
	t, ok := m.tenants[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockRepo) GetBySlug(_ context.Context, slug string) (*Tenant, error) {
	id, ok := m.slugs[slug]
	if !ok {
		return nil, db.ErrNotFound
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Tenant, int, error) {
	var out []*Tenant
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, len(out), nil
}

func (m *mockRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	t, ok := m.tenants[id]
	if !ok {
		return db.ErrNotFound
	}
	t.IsActive = active
	return nil
}

func (m *mockRepo) DeleteCascade(_ context.Context, id uuid.UUID) (int64, error) {
	if _, ok := m.tenants[id]; !ok {
		return 0, db.ErrNotFound
	}
	delete(m.slugs, m.tenants[id].Slug)
	delete(m.tenants, id)
	return m.removed, nil
}

// auditMem is a minimal in-memory audit store for wiring a real Ledger
// into these tests.
type auditMem struct {
	chains map[uuid.UUID][]*audit.Event
}

func newAuditMem() *auditMem {
	return &auditMem{chains: make(map[uuid.UUID][]*audit.Event)}
}

func (m *auditMem) Insert(_ context.Context, e *audit.Event) error {
	cp := *e
	m.chains[e.TenantID] = append(m.chains[e.TenantID], &cp)
	return nil
}

func (m *auditMem) LastInChain(_ context.Context, tenantID uuid.UUID) (*audit.Event, error) {
	chain := m.chains[tenantID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

func (m *auditMem) Range(_ context.Context, s scope.Scope, fromSeq, toSeq int64) ([]*audit.Event, error) {
	var out []*audit.Event
	for _, e := range m.chains[s.TenantID()] {
		if e.Seq >= fromSeq && (toSeq <= 0 || e.Seq <= toSeq) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *auditMem) GetBySeq(_ context.Context, s scope.Scope, seq int64) (*audit.Event, error) {
	for _, e := range m.chains[s.TenantID()] {
		if e.Seq == seq {
			return e, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *auditMem) ListByTime(_ context.Context, s scope.Scope, from, to time.Time, limit, offset int) ([]*audit.Event, int, error) {
	events := m.chains[s.TenantID()]
	return events, len(events), nil
}

func newTestService() (*Service, *mockRepo, *auditMem) {
	repo := newMockRepo()
	am := newAuditMem()
	svc := NewService(repo, audit.NewLedger(am), passthroughTx{}, zerolog.Nop(), 7)
	return svc, repo, am
}

func TestCreateTenant(t *testing.T) {
	svc, _, am := newTestService()
	actor := uuid.New()

	tn, err := svc.Create(context.Background(), "North Clinic", "north-clinic", 0, actor, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !tn.IsActive {
		t.Error("new tenant should be active")
	}
	if tn.RetentionYears != 7 {
		t.Errorf("expected default retention 7, got %d", tn.RetentionYears)
	}

	chain := am.chains[tn.ID]
	if len(chain) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(chain))
	}
	if chain[0].EventType != "tenant.created" {
		t.Errorf("unexpected event type %q", chain[0].EventType)
	}
	if chain[0].ActorID != actor {
		t.Error("audit event not attributed to the provisioning actor")
	}
}

func TestCreateTenantValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	actor := uuid.New()

	if _, err := svc.Create(ctx, "", "slug", 0, actor, audit.RequestMeta{}); err == nil {
		t.Error("expected error for empty name")
	}
	for _, slug := range []string{"", "Bad Slug", "UPPER", "trailing-", "-leading", "a--b"} {
		if _, err := svc.Create(ctx, "Clinic", slug, 0, actor, audit.RequestMeta{}); err == nil {
			t.Errorf("expected error for slug %q", slug)
		}
	}
}

func TestCreateTenantDuplicateSlug(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	actor := uuid.New()

	if _, err := svc.Create(ctx, "A", "clinic", 0, actor, audit.RequestMeta{}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Create(ctx, "B", "clinic", 0, actor, audit.RequestMeta{})
	if !errors.Is(err, db.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestDeactivateFreezesWrites(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	actor := uuid.New()

	tn, err := svc.Create(ctx, "Clinic", "clinic", 0, actor, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}
	sc := scope.New(tn.ID, actor)

	if err := svc.EnsureActive(ctx, sc); err != nil {
		t.Fatalf("active tenant should pass the gate: %v", err)
	}

	if err := svc.Deactivate(ctx, tn.ID, actor, audit.RequestMeta{}); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := svc.EnsureActive(ctx, sc); !errors.Is(err, ErrTenantInactive) {
		t.Errorf("expected ErrTenantInactive, got %v", err)
	}

	// Reads still work against a frozen tenant.
	if _, err := svc.Get(ctx, tn.ID); err != nil {
		t.Errorf("read after deactivation failed: %v", err)
	}
}

func TestEnsureActiveRequiresScope(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.EnsureActive(context.Background(), scope.Scope{}); !errors.Is(err, scope.ErrScopeMissing) {
		t.Errorf("expected ErrScopeMissing, got %v", err)
	}
}

func TestDeletePreservesAuditChain(t *testing.T) {
	svc, repo, am := newTestService()
	ctx := context.Background()
	actor := uuid.New()

	tn, err := svc.Create(ctx, "Clinic", "clinic", 0, actor, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}
	repo.removed = 12

	if err := svc.Delete(ctx, tn.ID, actor, audit.RequestMeta{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, tn.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("tenant should be gone, got %v", err)
	}

	chain := am.chains[tn.ID]
	if len(chain) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(chain))
	}
	last := chain[len(chain)-1]
	if last.EventType != "tenant.deleted" {
		t.Errorf("unexpected final event type %q", last.EventType)
	}

	// The tombstoned chain still verifies end to end.
	ledger := audit.NewLedger(am)
	res, err := ledger.VerifyChain(ctx, scope.New(tn.ID, actor), 1, 0)
	if err != nil {
		t.Fatalf("VerifyChain after delete: %v", err)
	}
	if !res.Intact || res.EventsChecked != 2 {
		t.Errorf("chain should verify after tenant deletion, got %+v", res)
	}
}

func TestRetentionCutoff(t *testing.T) {
	tn := &Tenant{RetentionYears: 7}
	now := time.Date(2033, 6, 1, 0, 0, 0, 0, time.UTC)
	want := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := tn.RetentionCutoff(now); !got.Equal(want) {
		t.Errorf("cutoff = %v, want %v", got, want)
	}
}
