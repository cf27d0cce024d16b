// Package goLease enforces a single active session per account.
//
// Every successful login registers a fresh lease id for the account; the
// registration overwrites whatever lease was current, and every protected call
// presents its lease id for an inline [Engine.Validate]. A device whose lease
// was overwritten is rejected on its next call and must sign in again.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goLease is the public surface of the Lease Registry. It exposes [Engine],
// [Builder], [Config] and value types ([Lease], [MetricsSnapshot],
// [AuditEvent]). Persistence lives in the registry subpackage, lease id
// syntax in leaseid, transport enforcement in middleware and httpapi, and the
// device side in client.
//
// # What this package must NOT do
//
//   - Authenticate credentials or mint account ids; the verified account id
//     is always supplied by the caller.
//   - Tell a caller whether a rejection came from a missing record or from a
//     different lease.
//   - Retry a rejected lease or re-register on a device's behalf.
//
// # Performance contract
//
// Validate is the hot path: one point lookup against the store, a
// constant-time comparison and no writes. Register and Revoke are one store
// round trip each, bounded by Config.Lease.OperationTimeout.
package goLease
