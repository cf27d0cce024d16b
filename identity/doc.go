// Package identity adapts the Identity Provider to the lease components.
//
// The registry trusts exactly one thing from the identity layer: a verified
// account id. [Manager] issues and verifies the bearer JWT that carries it in
// the sub claim; anything else that can turn a request into an account id
// may implement [Verifier] instead.
//
// # What this package must NOT do
//
//   - Check passwords or other credentials.
//   - Know anything about leases.
package identity
