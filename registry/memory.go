package registry

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for tests and single-instance
// development. It gives no cross-process guarantee.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Put replaces the account's record under the store mutex.
func (s *MemoryStore) Put(ctx context.Context, rec Record) (PutResult, error) {
	if err := checkRecord(rec); err != nil {
		return PutResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.records[rec.AccountID]
	rec.Generation = prev.Generation + 1
	s.records[rec.AccountID] = rec

	out := PutResult{Record: rec}
	if had {
		out.PreviousLeaseID = prev.LeaseID
	}
	return out, nil
}

// Get returns the account's record or [ErrNotFound].
func (s *MemoryStore) Get(ctx context.Context, accountID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[accountID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Delete removes the account's record.
func (s *MemoryStore) Delete(ctx context.Context, accountID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.records[accountID]
	delete(s.records, accountID)
	return ok, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) (time.Duration, error) {
	return 0, nil
}
