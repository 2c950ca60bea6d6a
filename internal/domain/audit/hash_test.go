package audit

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCanonicalJSONSortsKeys(t *testing.T) {
	raw := []byte(`{"b": 2, "a": {"z": true, "y": [3, 1]}, "c": "x"}`)
	got, err := CanonicalJSON(raw)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"a":{"y":[3,1],"z":true},"b":2,"c":"x"}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalJSONPreservesNumberLiterals(t *testing.T) {
	raw := []byte(`{"big": 9007199254740993, "frac": 0.1}`)
	got, err := CanonicalJSON(raw)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"big":9007199254740993,"frac":0.1}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalJSONStableUnderReordering(t *testing.T) {
	a, err := CanonicalJSON([]byte(`{"x": 1, "y": 2}`))
	if err != nil {
		t.Fatal(err)
	}
	b, err := CanonicalJSON([]byte(`{"y": 2, "x": 1}`))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("reordered input produced different canonical form: %s vs %s", a, b)
	}
}

func TestCanonicalJSONRejectsInvalidInput(t *testing.T) {
	if _, err := CanonicalJSON([]byte(`{"a":`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func testEvent(tenantID uuid.UUID, seq int64, payload string) *Event {
	return &Event{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Seq:          seq,
		EventType:    "note.created",
		ActorID:      uuid.New(),
		ResourceType: ResourceNote,
		ResourceID:   uuid.New(),
		Payload:      []byte(payload),
		CreatedAt:    time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC),
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	e := testEvent(uuid.New(), 1, `{"encounter_id":"abc"}`)
	h1, err := ComputeHash(nil, e)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	h2, err := ComputeHash(nil, e)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if !bytes.Equal(h1, h2) {
		t.Error("same event hashed to different values")
	}
	if len(h1) != 32 {
		t.Errorf("expected 32-byte SHA-256 digest, got %d bytes", len(h1))
	}
}

func TestComputeHashCoversPayload(t *testing.T) {
	tenantID := uuid.New()
	a := testEvent(tenantID, 1, `{"v":1}`)
	b := testEvent(tenantID, 1, `{"v":2}`)
	b.ID, b.ActorID, b.ResourceID = a.ID, a.ActorID, a.ResourceID

	ha, _ := ComputeHash(nil, a)
	hb, _ := ComputeHash(nil, b)
	if bytes.Equal(ha, hb) {
		t.Error("payload change did not change the hash")
	}
}

func TestComputeHashCoversPredecessor(t *testing.T) {
	e := testEvent(uuid.New(), 2, `{}`)
	root, _ := ComputeHash(nil, testEvent(e.TenantID, 1, `{}`))

	h1, _ := ComputeHash(root, e)
	h2, _ := ComputeHash(nil, e)
	if bytes.Equal(h1, h2) {
		t.Error("prev_hash change did not change the hash")
	}
}

func TestComputeHashIgnoresPayloadKeyOrder(t *testing.T) {
	tenantID := uuid.New()
	a := testEvent(tenantID, 1, `{"x":1,"y":2}`)
	b := testEvent(tenantID, 1, `{"y":2,"x":1}`)
	b.ID, b.ActorID, b.ResourceID = a.ID, a.ActorID, a.ResourceID

	ha, _ := ComputeHash(nil, a)
	hb, _ := ComputeHash(nil, b)
	if !bytes.Equal(ha, hb) {
		t.Error("payload key order changed the hash")
	}
}

func TestMarshalPayloadCanonical(t *testing.T) {
	got, err := MarshalPayload(NoteAmended{Version: 3, ChangeSummary: "fixed dosage"})
	if err != nil {
		t.Fatalf("MarshalPayload: %v", err)
	}
	want := `{"change_summary":"fixed dosage","version":3}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
