package middleware

import (
	"net/http"

	goLease "github.com/MrEthical07/goLease"
	"github.com/MrEthical07/goLease/identity"
)

// RequireLease rejects requests whose bearer identity or X-Lease-ID is not
// current. Accepted requests carry the account and lease in their context.
func RequireLease(validator LeaseValidator, verifier identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := checkLease(
				r.Context(),
				verifier,
				validator,
				r.Header.Get("Authorization"),
				r.Header.Get(HeaderLeaseID),
			)
			if o := classify(err); o != outcomeOK {
				writeOutcome(w, o)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity only verifies the bearer credential. It guards the
// endpoints that create or drop a lease, which cannot require one.
func RequireIdentity(verifier identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := verifyIdentity(verifier, r.Header.Get("Authorization"))
			if err != nil {
				writeOutcome(w, outcomeUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(goLease.WithAccountID(r.Context(), accountID)))
		})
	}
}
