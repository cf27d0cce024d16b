// Package httpapi exposes the lease registry over HTTP/JSON.
//
// Routes:
//
//	POST   /v1/lease  register the caller's candidate lease
//	DELETE /v1/lease  revoke the caller's lease
//	GET    /healthz   liveness
//	GET    /readyz    store round trip
//
// Both lease routes require a bearer identity. They do not require a current
// lease: registering is how a device obtains one, and revoking an already
// superseded lease is harmless.
package httpapi
