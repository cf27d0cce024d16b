package registry

import "time"

// Record is the authoritative Lease Record for one account.
type Record struct {
	AccountID   string
	LeaseID     string
	DeviceLabel string
	IssuedAt    time.Time

	// Generation counts registrations since the record was created. It is
	// diagnostic only.
	Generation uint64
}

// PutResult describes the outcome of an overwrite.
type PutResult struct {
	Record Record

	// PreviousLeaseID is the lease that was current before the overwrite, or
	// empty when the account had no record.
	PreviousLeaseID string
}

// Evicted reports whether the overwrite displaced a different lease.
func (r PutResult) Evicted() bool {
	return r.PreviousLeaseID != "" && r.PreviousLeaseID != r.Record.LeaseID
}
