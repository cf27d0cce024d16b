package registry

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the account has no Lease Record.
	ErrNotFound = errors.New("lease record not found")
	// ErrUnavailable wraps storage backend failures.
	ErrUnavailable = errors.New("lease store unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("lease record corrupt")
	// ErrInvalidRecord is returned for records missing an account or lease id.
	ErrInvalidRecord = errors.New("invalid lease record")
)

// Store persists Lease Records keyed by account id.
//
// Put must be linearizable per account: it atomically replaces the whole
// record and assigns the next generation. Get is a single point lookup.
// Delete is idempotent and reports whether a record existed.
type Store interface {
	Put(ctx context.Context, rec Record) (PutResult, error)
	Get(ctx context.Context, accountID string) (Record, error)
	Delete(ctx context.Context, accountID string) (bool, error)
	Ping(ctx context.Context) (time.Duration, error)
}

func checkRecord(rec Record) error {
	if rec.AccountID == "" || rec.LeaseID == "" {
		return ErrInvalidRecord
	}
	return nil
}
