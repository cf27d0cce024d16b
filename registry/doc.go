// Package registry provides the storage layer behind the Lease Registry: one
// Lease Record per account, replaced wholesale on every registration.
//
// # Consistency
//
// Every [Store] implementation offers a linearizable per-account write. The
// Redis store runs one Lua script per registration, the Postgres store locks
// the account row inside a single transaction and the memory store serialises
// under a mutex. Two concurrent Put calls for one account are therefore applied
// in a total order and the later one wins.
//
// # Binary encoding
//
// Redis values use a compact versioned binary layout (see [Encode]). Decoding
// rejects unknown versions instead of guessing.
//
// # What this package must NOT do
//
//   - Import goLease (no upward imports).
//   - Decide whether a presented lease id is acceptable; that is the engine's
//     comparison against [Record.LeaseID].
//   - Keep a history of superseded leases.
package registry
