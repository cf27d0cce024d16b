package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Identity is the verified identity handed out by the identity provider.
// Token is sent as a bearer credential; AccountID is informational on the
// device side, the registry derives the account from the token.
type Identity struct {
	AccountID string
	Token     string
}

func (id Identity) valid() bool {
	return id.Token != ""
}

// Registration is the registry's answer to a register call.
type Registration struct {
	LeaseID  string
	IssuedAt time.Time
}

// Registrar is the registry wire contract as seen from the device.
// Implementations wrap retryable failures with [ErrTransient].
type Registrar interface {
	Register(ctx context.Context, id Identity, candidateLeaseID, deviceLabel string) (Registration, error)
	Revoke(ctx context.Context, id Identity) error
}

// HTTPRegistrar talks to the registry's /v1/lease endpoint.
type HTTPRegistrar struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRegistrar returns a registrar for the registry at baseURL. A nil
// httpClient selects http.DefaultClient.
func NewHTTPRegistrar(baseURL string, httpClient *http.Client) *HTTPRegistrar {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPRegistrar{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

type registerBody struct {
	CandidateLeaseID string `json:"candidate_lease_id"`
	DeviceLabel      string `json:"device_label,omitempty"`
}

type registerReply struct {
	LeaseID  string    `json:"lease_id"`
	IssuedAt time.Time `json:"issued_at"`
}

type errorReply struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Register implements [Registrar].
func (r *HTTPRegistrar) Register(ctx context.Context, id Identity, candidateLeaseID, deviceLabel string) (Registration, error) {
	payload, err := json.Marshal(registerBody{CandidateLeaseID: candidateLeaseID, DeviceLabel: deviceLabel})
	if err != nil {
		return Registration{}, err
	}

	resp, err := r.send(ctx, http.MethodPost, id, payload)
	if err != nil {
		return Registration{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Registration{}, statusError(resp)
	}

	var reply registerReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&reply); err != nil {
		return Registration{}, fmt.Errorf("%w: decode register reply: %v", ErrTransient, err)
	}
	if reply.LeaseID != candidateLeaseID {
		return Registration{}, fmt.Errorf("client: registry installed %q, expected the candidate", reply.LeaseID)
	}
	return Registration{LeaseID: reply.LeaseID, IssuedAt: reply.IssuedAt}, nil
}

// Revoke implements [Registrar].
func (r *HTTPRegistrar) Revoke(ctx context.Context, id Identity) error {
	resp, err := r.send(ctx, http.MethodDelete, id, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

func (r *HTTPRegistrar) send(ctx context.Context, method string, id Identity, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+"/v1/lease", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+id.Token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	var reply errorReply
	_ = json.NewDecoder(io.LimitReader(resp.Body, 16<<10)).Decode(&reply)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthenticated
	case reply.Error.Code == "malformed_candidate":
		return ErrMalformedCandidate
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: registry returned %d", ErrTransient, resp.StatusCode)
	default:
		return errors.New("client: unexpected registry status " + resp.Status)
	}
}
