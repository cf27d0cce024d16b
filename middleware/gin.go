package middleware

import (
	"net/http"

	"github.com/MrEthical07/goLease/identity"
	"github.com/gin-gonic/gin"
)

// GinRequireLease adapts [RequireLease] to Gin. Rejected requests are
// aborted after the error response is written.
func GinRequireLease(validator LeaseValidator, verifier identity.Verifier) gin.HandlerFunc {
	guard := RequireLease(validator, verifier)
	return func(c *gin.Context) {
		passed := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})

		guard(next).ServeHTTP(c.Writer, c.Request)

		if !passed {
			c.Abort()
		}
	}
}
