package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Hashing uses a canonical, deterministic encoding so any implementation
// can recompute the chain from stored rows:
//
//	current_hash = SHA-256(hex(prev_hash) || "\n" || tenant_id || "\n" ||
//	               seq || "\n" || event_type || "\n" || actor_id || "\n" ||
//	               resource_type || "\n" || resource_id || "\n" ||
//	               created_at(RFC3339Nano, UTC) || "\n" || canonical_payload)
//
// prev_hash contributes the empty string for the chain root. Payload JSON
// is re-canonicalized (lexicographically sorted keys, no insignificant
// whitespace) before hashing, so storage representations that do not
// preserve key order (JSONB) cannot change the hash.

// ComputeHash returns the chain hash for an event given its predecessor's
// current_hash (nil for the chain root).
func ComputeHash(prevHash []byte, e *Event) ([]byte, error) {
	payload, err := CanonicalJSON(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(hex.EncodeToString(prevHash))
	buf.WriteByte('\n')
	buf.WriteString(e.TenantID.String())
	buf.WriteByte('\n')
	buf.WriteString(strconv.FormatInt(e.Seq, 10))
	buf.WriteByte('\n')
	buf.WriteString(e.EventType)
	buf.WriteByte('\n')
	buf.WriteString(e.ActorID.String())
	buf.WriteByte('\n')
	buf.WriteString(e.ResourceType)
	buf.WriteByte('\n')
	buf.WriteString(e.ResourceID.String())
	buf.WriteByte('\n')
	buf.WriteString(e.CreatedAt.UTC().Format(time.RFC3339Nano))
	buf.WriteByte('\n')
	buf.Write(payload)

	sum := sha256.Sum256(buf.Bytes())
	return sum[:], nil
}

// MarshalPayload encodes a typed payload into its canonical JSON form.
func MarshalPayload(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload %s: %w", p.EventType(), err)
	}
	return CanonicalJSON(raw)
}

// CanonicalJSON re-encodes arbitrary JSON with lexicographically sorted
// object keys and no insignificant whitespace. Number literals are kept
// verbatim so canonicalization is stable under round-trips.
func CanonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case json.Number:
		buf.WriteString(val.String())
		return nil

	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
