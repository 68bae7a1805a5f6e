package transform

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTaggedRoundTripThroughJSON(t *testing.T) {
	ts := time.Date(2026, 10, 18, 12, 30, 0, 500, time.UTC)
	in := map[string]any{
		"at":    ts,
		"blob":  []byte{0x00, 0xff},
		"list":  []any{ts, "plain", 0},
		"count": 3.0,
	}
	tr := Tagged{}
	ser, err := tr.Serialize(in)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	b, err := json.Marshal(ser)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := tr.Deserialize(decoded)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	in["list"] = []any{ts, "plain", 0.0}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTaggedRejectsBadTag(t *testing.T) {
	_, err := Tagged{}.Deserialize(map[string]any{"$type": "date", "value": "yesterday"})
	if !errors.Is(err, ErrMalformedTag) {
		t.Fatalf("expected ErrMalformedTag, got %v", err)
	}
}

func TestByName(t *testing.T) {
	if tr, err := ByName(""); err != nil || tr != Identity {
		t.Fatalf("default should be identity: %v", err)
	}
	if _, err := ByName(" Tagged "); err != nil {
		t.Fatalf("tagged lookup: %v", err)
	}
	if _, err := ByName("superjson"); !errors.Is(err, ErrUnknownTransformer) {
		t.Fatalf("expected ErrUnknownTransformer, got %v", err)
	}
}
