package httpapi

import "time"

type registerRequest struct {
	CandidateLeaseID string `json:"candidate_lease_id"`
	DeviceLabel      string `json:"device_label"`
}

type registerResponse struct {
	LeaseID  string    `json:"lease_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// Error codes specific to the registry routes. The shared codes live in
// the middleware package.
const (
	codeInvalidJSON        = "invalid_json"
	codeMalformedCandidate = "malformed_candidate"
	codeRateLimited        = "rate_limited"
)
