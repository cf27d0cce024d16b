// Package middleware enforces the current lease inline on application calls.
//
// # Adapters
//
//   - [RequireLease]: net/http middleware.
//   - [GinRequireLease]: the same check as a gin.HandlerFunc.
//   - [UnaryLeaseInterceptor], [StreamLeaseInterceptor]: gRPC server
//     interceptors.
//   - [RequireIdentity]: identity only, for endpoints that establish or drop
//     a lease.
//
// Every adapter runs the same two steps: verify the bearer credential into
// an account id, then call Validate with the presented X-Lease-ID. A
// rejection is always the reserved superseded signal (HTTP 409 with
// X-Lease-Status: superseded, gRPC FailedPrecondition), never a 401, so the
// client can tell "signed in elsewhere" apart from "credentials expired".
//
// # What this package must NOT do
//
//   - Compare lease ids itself; the engine owns that decision.
//   - Let a request through when the registry cannot answer.
//   - Say whether a rejection came from a missing or a different lease.
package middleware
