// Package client is the device side of single-active-session enforcement.
//
// A [Client] logs in through an [Authenticator], registers a freshly minted
// lease with the registry, and persists the returned lease id as the session
// pointer. Every later call carries that pointer. When the registry answers
// that the lease was superseded, the client drops its local session and
// reports [ErrSignedInElsewhere]; it never re-registers on its own.
//
// # Failure model
//
//   - Transient failures (network, 5xx) are retried with backoff using the
//     same candidate lease id. When retries run out the caller gets
//     [ErrTransient] and the session pointer is untouched.
//   - A superseded lease is never retried.
//   - A crash between a successful register and the pointer write leaves no
//     pointer, so [Client.Resume] returns [ErrLoginRequired].
package client
