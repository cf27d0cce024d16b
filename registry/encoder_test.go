package registry

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodePreservesLeaseFields(t *testing.T) {
	in := Record{
		AccountID:   "ignored",
		LeaseID:     "01HZX3K4Q8M2N7P5R6S9T0V1W2.ab12cd34",
		DeviceLabel: "macOS, Safari",
		IssuedAt:    time.Date(2026, 7, 1, 9, 0, 0, 123456789, time.UTC),
		Generation:  42,
	}

	blob, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if out.LeaseID != in.LeaseID || out.DeviceLabel != in.DeviceLabel || !out.IssuedAt.Equal(in.IssuedAt) {
		t.Fatalf("fields not preserved: %+v", out)
	}
	if out.AccountID != "" || out.Generation != 0 {
		t.Fatalf("account and generation must not be encoded: %+v", out)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	blob, err := Encode(Record{LeaseID: "a1", IssuedAt: time.Now()})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	blob[0] = 9
	if _, err := Decode(blob); err == nil {
		t.Fatal("expected version error")
	}
}

func TestDecodeRejectsTruncatedAndTrailing(t *testing.T) {
	blob, err := Encode(Record{LeaseID: "a1", DeviceLabel: "x", IssuedAt: time.Now()})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < len(blob); i++ {
		if _, err := Decode(blob[:i]); err == nil {
			t.Fatalf("expected error for truncated blob of length %d", i)
		}
	}
	if _, err := Decode(append(blob, 0)); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
}

func TestEncodeRejectsOversizedFields(t *testing.T) {
	if _, err := Encode(Record{LeaseID: strings.Repeat("x", 70000)}); err == nil {
		t.Fatal("expected oversized lease id to fail")
	}
}
