package goLease

import "time"

// Lease is the current lease of one account as installed by Register.
type Lease struct {
	AccountID   string    `json:"account_id"`
	LeaseID     string    `json:"lease_id"`
	DeviceLabel string    `json:"device_label,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`

	// Generation counts registrations since the record was created. Support
	// output only; it never participates in Validate.
	Generation uint64 `json:"generation"`
}
