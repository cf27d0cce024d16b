package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MrEthical07/goLease/leaseid"
	"github.com/juju/utils/v4"
)

// ErrNoPointer is returned by Load when no usable pointer is stored.
var ErrNoPointer = errors.New("client: no session pointer")

// PointerStore persists the session pointer: the lease id this device
// believes is current. Implementations must make Save durable before
// returning.
type PointerStore interface {
	Load() (string, error)
	Save(leaseID string) error
	Clear() error
}

// FilePointerStore keeps the pointer in a single file readable only by the
// owner. Writes replace the file atomically, so a crash mid-write leaves
// either the old pointer or the new one.
type FilePointerStore struct {
	path string
}

// NewFilePointerStore returns a store backed by path.
func NewFilePointerStore(path string) *FilePointerStore {
	return &FilePointerStore{path: path}
}

// Path returns the backing file.
func (s *FilePointerStore) Path() string { return s.path }

// Load returns [ErrNoPointer] when the file is missing, empty, or does not
// hold a syntactically valid lease id.
func (s *FilePointerStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoPointer
	}
	if err != nil {
		return "", fmt.Errorf("read session pointer: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if !leaseid.Valid(id) {
		return "", ErrNoPointer
	}
	return id, nil
}

// Save writes leaseID with mode 0600.
func (s *FilePointerStore) Save(leaseID string) error {
	if !leaseid.Valid(leaseID) {
		return fmt.Errorf("save session pointer: %w", ErrMalformedCandidate)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("save session pointer: %w", err)
	}
	if err := utils.AtomicWriteFile(s.path, []byte(leaseID+"\n"), 0o600); err != nil {
		return fmt.Errorf("save session pointer: %w", err)
	}
	return nil
}

// Clear removes the file. A missing file is not an error.
func (s *FilePointerStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear session pointer: %w", err)
	}
	return nil
}

// MemoryPointerStore keeps the pointer in process memory. It does not
// survive a restart, which makes every restart a fresh login.
type MemoryPointerStore struct {
	mu      sync.Mutex
	leaseID string
}

// NewMemoryPointerStore returns an empty store.
func NewMemoryPointerStore() *MemoryPointerStore {
	return &MemoryPointerStore{}
}

func (s *MemoryPointerStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseID == "" {
		return "", ErrNoPointer
	}
	return s.leaseID, nil
}

func (s *MemoryPointerStore) Save(leaseID string) error {
	if !leaseid.Valid(leaseID) {
		return fmt.Errorf("save session pointer: %w", ErrMalformedCandidate)
	}
	s.mu.Lock()
	s.leaseID = leaseID
	s.mu.Unlock()
	return nil
}

func (s *MemoryPointerStore) Clear() error {
	s.mu.Lock()
	s.leaseID = ""
	s.mu.Unlock()
	return nil
}
