package goLease

import "context"

type accountIDContextKey struct{}
type leaseIDContextKey struct{}
type clientIPContextKey struct{}

// WithAccountID attaches the verified account id to ctx. Transport adapters
// call it after the identity check so handlers downstream can read the
// account without re-parsing credentials.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDContextKey{}, accountID)
}

// AccountIDFromContext returns the account id stored by WithAccountID.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	accountID, _ := ctx.Value(accountIDContextKey{}).(string)
	return accountID, accountID != ""
}

// WithLeaseID attaches the validated lease id to ctx.
func WithLeaseID(ctx context.Context, leaseID string) context.Context {
	return context.WithValue(ctx, leaseIDContextKey{}, leaseID)
}

// LeaseIDFromContext returns the lease id stored by WithLeaseID.
func LeaseIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	leaseID, _ := ctx.Value(leaseIDContextKey{}).(string)
	return leaseID, leaseID != ""
}

// WithClientIP attaches the caller's IP address to ctx for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
