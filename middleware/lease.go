package middleware

import (
	"context"
	"errors"

	goLease "github.com/MrEthical07/goLease"
	"github.com/MrEthical07/goLease/identity"
	"github.com/MrEthical07/goLease/leaseid"
)

const (
	// HeaderLeaseID carries the presented lease id.
	HeaderLeaseID = leaseid.Header
	// HeaderLeaseStatus is set to StatusSuperseded on rejection.
	HeaderLeaseStatus = leaseid.StatusHeader
	StatusSuperseded  = leaseid.StatusSuperseded

	// Error codes of the JSON error envelope and gRPC status messages.
	CodeUnauthenticated     = "unauthenticated"
	CodeLeaseSuperseded     = "lease_superseded"
	CodeRegistryUnavailable = "registry_unavailable"

	metadataLeaseID = leaseid.MetadataKey
)

// errUnauthenticated marks a missing or unverifiable identity.
var errUnauthenticated = errors.New("unauthenticated")

// LeaseValidator is the slice of [goLease.Engine] the adapters need.
type LeaseValidator interface {
	Validate(ctx context.Context, accountID, presentedLeaseID string) error
}

var _ LeaseValidator = (*goLease.Engine)(nil)

// outcome classifies a failed check into one of the three transport
// answers.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeUnauthenticated
	outcomeSuperseded
	outcomeUnavailable
)

func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, errUnauthenticated), errors.Is(err, goLease.ErrAccountRequired):
		return outcomeUnauthenticated
	case errors.Is(err, goLease.ErrLeaseSuperseded):
		return outcomeSuperseded
	default:
		return outcomeUnavailable
	}
}

func verifyIdentity(verifier identity.Verifier, authorization string) (string, error) {
	if verifier == nil {
		return "", errUnauthenticated
	}
	token, ok := identity.BearerToken(authorization)
	if !ok {
		return "", errUnauthenticated
	}
	accountID, err := verifier.Verify(token)
	if err != nil || accountID == "" {
		return "", errUnauthenticated
	}
	return accountID, nil
}

// checkLease runs identity verification followed by Validate and returns
// a context carrying the account and lease on success. A missing lease
// header is a rejection, not an identity failure.
func checkLease(
	ctx context.Context,
	verifier identity.Verifier,
	validator LeaseValidator,
	authorization string,
	leaseID string,
) (context.Context, error) {
	accountID, err := verifyIdentity(verifier, authorization)
	if err != nil {
		return ctx, err
	}
	if validator == nil {
		return ctx, goLease.ErrEngineNotReady
	}
	if leaseID == "" {
		return ctx, goLease.ErrLeaseSuperseded
	}
	if err := validator.Validate(ctx, accountID, leaseID); err != nil {
		return ctx, err
	}

	ctx = goLease.WithAccountID(ctx, accountID)
	ctx = goLease.WithLeaseID(ctx, leaseID)
	return ctx, nil
}
