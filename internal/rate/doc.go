// Package rate throttles lease registration with Redis fixed-window
// counters.
//
// # Window semantics
//
// One Lua script per hit: INCR, then PEXPIRE when the key has no TTL, so a
// counter can never outlive its window. Key prefixes, after the configured
// registry prefix:
//   - rl:a: per account
//   - rl:i: per client IP
//
// # What this package must NOT do
//
//   - Touch lease records. A throttled register leaves the current lease in
//     place.
//   - Throttle Validate. Validation runs on every business call and has its
//     own latency contract.
package rate
