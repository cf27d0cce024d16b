package middleware

import (
	"encoding/json"
	"net/http"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// WriteError writes the JSON error envelope shared by the middleware and
// the registry HTTP API.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: apiError{Code: code, Message: msg}})
}

// WriteSuperseded writes the reserved rejection signal.
func WriteSuperseded(w http.ResponseWriter) {
	w.Header().Set(HeaderLeaseStatus, StatusSuperseded)
	WriteError(w, http.StatusConflict, CodeLeaseSuperseded, "signed in on another device")
}

func writeOutcome(w http.ResponseWriter, o outcome) {
	switch o {
	case outcomeUnauthenticated:
		w.Header().Set("WWW-Authenticate", `Bearer realm="golease"`)
		WriteError(w, http.StatusUnauthorized, CodeUnauthenticated, "missing or invalid authorization")
	case outcomeSuperseded:
		WriteSuperseded(w)
	default:
		WriteError(w, http.StatusServiceUnavailable, CodeRegistryUnavailable, "lease registry unavailable")
	}
}
