package client

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/MrEthical07/goLease/leaseid"
)

func TestFilePointerStoreLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "lease")
	store := NewFilePointerStore(path)

	if _, err := store.Load(); !errors.Is(err, ErrNoPointer) {
		t.Fatalf("expected ErrNoPointer before save, got %v", err)
	}

	id, err := leaseid.Mint(time.Now(), "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := store.Save(id); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil || got != id {
		t.Fatalf("load after save: %q %v", got, err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Fatalf("expected 0600, got %o", perm)
		}
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear must be a no-op: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoPointer) {
		t.Fatalf("expected ErrNoPointer after clear, got %v", err)
	}
}

func TestFilePointerStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lease")
	if err := os.WriteFile(path, []byte("not a lease\x00"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := NewFilePointerStore(path)
	if _, err := store.Load(); !errors.Is(err, ErrNoPointer) {
		t.Fatalf("garbage pointer must read as absent, got %v", err)
	}
	if err := store.Save("has space"); !errors.Is(err, ErrMalformedCandidate) {
		t.Fatalf("expected ErrMalformedCandidate, got %v", err)
	}
}

func TestMemoryPointerStore(t *testing.T) {
	store := NewMemoryPointerStore()
	if _, err := store.Load(); !errors.Is(err, ErrNoPointer) {
		t.Fatalf("expected ErrNoPointer, got %v", err)
	}
	if err := store.Save("01HZX.abcd1234"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got, _ := store.Load(); got != "01HZX.abcd1234" {
		t.Fatalf("unexpected pointer %q", got)
	}
	_ = store.Clear()
	if _, err := store.Load(); !errors.Is(err, ErrNoPointer) {
		t.Fatalf("expected ErrNoPointer after clear, got %v", err)
	}
}
