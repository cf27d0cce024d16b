package goLease

import "errors"

var (
	// ErrMalformedCandidate is returned by Register when the candidate lease id
	// is empty, too long or contains characters outside the URL-safe set.
	ErrMalformedCandidate = errors.New("malformed candidate lease id")
	// ErrLeaseSuperseded is the single rejection signal of Validate. It covers
	// both "no record" and "different lease".
	ErrLeaseSuperseded = errors.New("lease superseded")
	// ErrRegistryUnavailable wraps storage failures. Callers must fail closed.
	ErrRegistryUnavailable = errors.New("lease registry unavailable")
	// ErrLeaseNotFound is returned by Current when the account has no record.
	ErrLeaseNotFound = errors.New("lease not found")
	// ErrAccountRequired is returned when the verified account id is empty.
	ErrAccountRequired = errors.New("account id required")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt
	// Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)
