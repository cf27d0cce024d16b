// Package leaseid mints and checks the lease identifiers exchanged between the
// Lease Client and the Lease Registry.
//
// # Format
//
// A minted id is "<ULID>.<fingerprint>": the ULID carries a millisecond
// timestamp and 80 bits from crypto/rand, the fingerprint is eight hex
// characters derived from stable, non-identifying environment attributes.
//
// # Architecture boundaries
//
// Uniqueness, not unforgeability, is the property an id provides. The registry
// record is the only trust anchor, so [Check] validates syntax and nothing else.
//
// # What this package must NOT do
//
//   - Treat the fingerprint as an authentication factor.
//   - Reject ids that were not minted by [Mint] but are syntactically valid.
package leaseid
