package audit

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scribehealth/recordstore/internal/platform/db"
	"github.com/scribehealth/recordstore/internal/platform/scope"
)

// memRepo keeps per-tenant chains in memory for service tests.
type memRepo struct {
	chains map[uuid.UUID][]*Event
}

func newMemRepo() *memRepo {
	return &memRepo{chains: make(map[uuid.UUID][]*Event)}
}

func (m *memRepo) Insert(_ context.Context, e *Event) error {
	chain := m.chains[e.TenantID]
	for _, existing := range chain {
		if existing.Seq == e.Seq {
			return ErrChainConflict
		}
		if existing.PrevHash != nil && bytes.Equal(existing.PrevHash, e.PrevHash) {
			return ErrChainConflict
		}
	}
	cp := *e
	// Copy byte slices so rows are independent, as they would be in a real
	// database; the ledger links events by reusing the predecessor's
	// CurrentHash slice as the successor's PrevHash.
	cp.Payload = append([]byte(nil), e.Payload...)
	cp.PrevHash = append([]byte(nil), e.PrevHash...)
	cp.CurrentHash = append([]byte(nil), e.CurrentHash...)
	m.chains[e.TenantID] = append(chain, &cp)
	return nil
}

func (m *memRepo) LastInChain(_ context.Context, tenantID uuid.UUID) (*Event, error) {
	chain := m.chains[tenantID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

func (m *memRepo) Range(_ context.Context, s scope.Scope, fromSeq, toSeq int64) ([]*Event, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}
	var out []*Event
	for _, e := range m.chains[s.TenantID()] {
		if e.Seq >= fromSeq && (toSeq <= 0 || e.Seq <= toSeq) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memRepo) GetBySeq(_ context.Context, s scope.Scope, seq int64) (*Event, error) {
	if err := scope.Require(s); err != nil {
		return nil, err
	}
	for _, e := range m.chains[s.TenantID()] {
		if e.Seq == seq {
			return e, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memRepo) ListByTime(_ context.Context, s scope.Scope, from, to time.Time, limit, offset int) ([]*Event, int, error) {
	if err := scope.Require(s); err != nil {
		return nil, 0, err
	}
	var all []*Event
	for _, e := range m.chains[s.TenantID()] {
		if !from.IsZero() && e.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.CreatedAt.After(to) {
			continue
		}
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func newTestLedger() (*Ledger, *memRepo) {
	repo := newMemRepo()
	l := NewLedger(repo)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	n := 0
	l.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return l, repo
}

func TestAppendStartsChainAtSeqOne(t *testing.T) {
	l, _ := newTestLedger()
	s := scope.New(uuid.New(), uuid.New())

	e, err := l.Append(context.Background(), s, PatientCreated{}, ResourceRef{Type: ResourcePatient, ID: uuid.New()}, RequestMeta{})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.Seq != 1 {
		t.Errorf("expected seq 1, got %d", e.Seq)
	}
	if e.PrevHash != nil {
		t.Error("chain root must carry nil prev_hash")
	}
	if len(e.CurrentHash) != 32 {
		t.Errorf("expected 32-byte hash, got %d bytes", len(e.CurrentHash))
	}
	if e.TenantID != s.TenantID() || e.ActorID != s.ActorID() {
		t.Error("event not stamped with the scope's identity")
	}
}

func TestAppendLinksToPredecessor(t *testing.T) {
	l, _ := newTestLedger()
	s := scope.New(uuid.New(), uuid.New())
	ctx := context.Background()
	ref := ResourceRef{Type: ResourceNote, ID: uuid.New()}

	first, err := l.Append(ctx, s, NoteCreated{EncounterID: uuid.New()}, ref, RequestMeta{})
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	second, err := l.Append(ctx, s, NoteVersionAppended{Version: 2}, ref, RequestMeta{})
	if err != nil {
		t.Fatalf("second append: %v", err)
	}

	if second.Seq != first.Seq+1 {
		t.Errorf("expected seq %d, got %d", first.Seq+1, second.Seq)
	}
	if !bytes.Equal(second.PrevHash, first.CurrentHash) {
		t.Error("second event does not link to the first event's hash")
	}
}

func TestAppendRequiresScope(t *testing.T) {
	l, _ := newTestLedger()
	_, err := l.Append(context.Background(), scope.Scope{}, PatientCreated{}, ResourceRef{Type: ResourcePatient, ID: uuid.New()}, RequestMeta{})
	if !errors.Is(err, scope.ErrScopeMissing) {
		t.Errorf("expected ErrScopeMissing, got %v", err)
	}
}

func TestChainsAreIndependentPerTenant(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	s1 := scope.New(uuid.New(), uuid.New())
	s2 := scope.New(uuid.New(), uuid.New())
	ref := ResourceRef{Type: ResourcePatient, ID: uuid.New()}

	if _, err := l.Append(ctx, s1, PatientCreated{}, ref, RequestMeta{}); err != nil {
		t.Fatal(err)
	}
	e, err := l.Append(ctx, s2, PatientCreated{}, ref, RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if e.Seq != 1 {
		t.Errorf("second tenant's chain should start at 1, got seq %d", e.Seq)
	}
	if e.PrevHash != nil {
		t.Error("second tenant's root should not link into the first tenant's chain")
	}
}

func TestAppendStampsRequestMeta(t *testing.T) {
	l, _ := newTestLedger()
	s := scope.New(uuid.New(), uuid.New())
	meta := RequestMeta{IPAddress: "10.0.0.9", UserAgent: "recordstore-cli/1.0"}

	e, err := l.Append(context.Background(), s, TenantCreated{Name: "North Clinic", Slug: "north"}, ResourceRef{Type: ResourceTenant, ID: s.TenantID()}, meta)
	if err != nil {
		t.Fatal(err)
	}
	if e.IPAddress != meta.IPAddress || e.UserAgent != meta.UserAgent {
		t.Error("request metadata not recorded on the event")
	}
}

// staleTailRepo serves a captured earlier tail once, simulating an
// appender whose tail read raced another writer to the chain head.
type staleTailRepo struct {
	*memRepo
	stale *Event
	used  bool
}

func (r *staleTailRepo) LastInChain(ctx context.Context, tenantID uuid.UUID) (*Event, error) {
	if !r.used {
		r.used = true
		return r.stale, nil
	}
	return r.memRepo.LastInChain(ctx, tenantID)
}

func TestAppendFromStaleTailConflictsThenRetrySucceeds(t *testing.T) {
	mem := newMemRepo()
	winner := NewLedger(mem)
	s := scope.New(uuid.New(), uuid.New())
	ctx := context.Background()
	ref := ResourceRef{Type: ResourceNote, ID: uuid.New()}

	first, err := winner.Append(ctx, s, NoteCreated{EncounterID: uuid.New()}, ref, RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}
	head, err := winner.Append(ctx, s, NoteVersionAppended{Version: 2}, ref, RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}

	// The loser read seq 1 as the tail before the winner committed seq 2.
	loser := NewLedger(&staleTailRepo{memRepo: mem, stale: first})
	_, err = loser.Append(ctx, s, NoteVersionAppended{Version: 2}, ref, RequestMeta{})
	if !errors.Is(err, ErrChainConflict) {
		t.Fatalf("expected ErrChainConflict from stale tail, got %v", err)
	}

	// A retry re-reads the tail and lands after the winner.
	e, err := loser.Append(ctx, s, NoteVersionAppended{Version: 2}, ref, RequestMeta{})
	if err != nil {
		t.Fatalf("retry after conflict: %v", err)
	}
	if e.Seq != head.Seq+1 {
		t.Errorf("expected retry at seq %d, got %d", head.Seq+1, e.Seq)
	}
	if !bytes.Equal(e.PrevHash, head.CurrentHash) {
		t.Error("retried event does not link to the winner's hash")
	}
}

func TestAppendCorrectionReferencesOriginal(t *testing.T) {
	l, _ := newTestLedger()
	s := scope.New(uuid.New(), uuid.New())
	ctx := context.Background()

	orig, err := l.Append(ctx, s, PatientCreated{}, ResourceRef{Type: ResourcePatient, ID: uuid.New()}, RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}

	corr, err := l.AppendCorrection(ctx, s, orig.Seq, "event attributed to wrong clinician", RequestMeta{})
	if err != nil {
		t.Fatalf("AppendCorrection: %v", err)
	}
	if corr.EventType != "audit_event.corrected" {
		t.Errorf("unexpected event type %q", corr.EventType)
	}
	if corr.ResourceID != orig.ID {
		t.Error("correction does not reference the original event")
	}
	if corr.Seq != orig.Seq+1 {
		t.Errorf("correction should extend the chain, got seq %d", corr.Seq)
	}
}

func TestAppendCorrectionUnknownSeq(t *testing.T) {
	l, _ := newTestLedger()
	s := scope.New(uuid.New(), uuid.New())

	_, err := l.AppendCorrection(context.Background(), s, 42, "no such event", RequestMeta{})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTimelinePaginates(t *testing.T) {
	l, _ := newTestLedger()
	s := scope.New(uuid.New(), uuid.New())
	ctx := context.Background()
	ref := ResourceRef{Type: ResourcePatient, ID: uuid.New()}

	for i := 0; i < 5; i++ {
		if _, err := l.Append(ctx, s, PatientUpdated{Fields: []string{"mrn"}}, ref, RequestMeta{}); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := l.Timeline(ctx, s, time.Time{}, time.Time{}, 2, 2)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	// Newest first: page 2 of size 2 holds seq 3 and 2.
	if items[0].Seq != 3 || items[1].Seq != 2 {
		t.Errorf("unexpected page contents: seq %d, %d", items[0].Seq, items[1].Seq)
	}
}
