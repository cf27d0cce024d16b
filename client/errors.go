package client

import "errors"

var (
	// ErrUnauthenticated means the identity provider rejected the
	// credentials or the registry rejected the identity token.
	ErrUnauthenticated = errors.New("client: unauthenticated")
	// ErrSignedInElsewhere means the current lease was superseded by a
	// login on another device. The local session has been cleared.
	ErrSignedInElsewhere = errors.New("client: signed in on another device")
	// ErrTransient means the call could not complete after retries. The
	// session pointer is unchanged.
	ErrTransient = errors.New("client: registry unreachable")
	// ErrLoginRequired means there is no session pointer to attach.
	ErrLoginRequired = errors.New("client: login required")
	// ErrMalformedCandidate means the registry refused the candidate id.
	ErrMalformedCandidate = errors.New("client: malformed candidate lease id")
)

func isRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
