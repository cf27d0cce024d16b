package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	goLease "github.com/MrEthical07/goLease"
	"github.com/MrEthical07/goLease/identity"
	"github.com/MrEthical07/goLease/internal/rate"
	"github.com/MrEthical07/goLease/leaseid"
	"github.com/MrEthical07/goLease/middleware"
)

// Registry is the part of [goLease.Engine] served over HTTP.
type Registry interface {
	Register(ctx context.Context, accountID, candidateLeaseID, deviceLabel string) (goLease.Lease, error)
	Revoke(ctx context.Context, accountID string) error
	Ping(ctx context.Context) (time.Duration, error)
}

var _ Registry = (*goLease.Engine)(nil)

// RegisterLimiter throttles register attempts. It returns an error wrapping
// rate.ErrRateLimited, plus the wait, when a budget is spent.
type RegisterLimiter interface {
	AllowRegister(ctx context.Context, accountID, ip string) (time.Duration, error)
}

var _ RegisterLimiter = (*rate.Limiter)(nil)

// Config controls request handling.
type Config struct {
	MaxBodyBytes int64
	// TrustProxy takes the client IP from X-Forwarded-For. Enable only
	// behind a proxy that overwrites the header.
	TrustProxy   bool
	ReadyTimeout time.Duration
}

// DefaultConfig returns conservative request limits.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes: 4 << 10,
		ReadyTimeout: 2 * time.Second,
	}
}

// Handler wires the registry routes.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	registry Registry
	verifier identity.Verifier
	limiter  RegisterLimiter
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithRegisterLimiter throttles POST /v1/lease.
func WithRegisterLimiter(limiter RegisterLimiter) HandlerOption {
	return func(h *Handler) {
		if h == nil || limiter == nil {
			return
		}
		h.limiter = limiter
	}
}

// NewHandler constructs a Handler. Zero config fields take their defaults.
func NewHandler(log *slog.Logger, registry Registry, verifier identity.Verifier, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if registry == nil {
		return nil, errors.New("httpapi: nil registry")
	}
	if verifier == nil {
		return nil, errors.New("httpapi: nil identity verifier")
	}
	if log == nil {
		log = slog.Default()
	}

	def := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = def.ReadyTimeout
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		registry: registry,
		verifier: verifier,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires the routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	authed := middleware.RequireIdentity(h.verifier)

	mux.Handle("POST /v1/lease", authed(http.HandlerFunc(h.handleRegister)))
	mux.Handle("DELETE /v1/lease", authed(http.HandlerFunc(h.handleRevoke)))
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	accountID, _ := goLease.AccountIDFromContext(r.Context())

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "invalid request body")
		return
	}

	label := strings.TrimSpace(req.DeviceLabel)
	if label == "" {
		label = leaseid.LabelFromUserAgent(r.UserAgent())
	}

	ip := clientIP(r, h.cfg.TrustProxy)
	ctx := goLease.WithClientIP(r.Context(), ip)

	// Malformed candidates skip the throttle and are refused by Register, so
	// they cannot spend the account's budget.
	if h.limiter != nil && leaseid.Check(req.CandidateLeaseID, leaseid.MaxLength) == nil {
		if wait, err := h.limiter.AllowRegister(ctx, accountID, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				writeRateLimited(w, wait)
				return
			}
			h.log.ErrorContext(ctx, "lease.register.throttle.fail",
				"request_id", requestIDFromContext(ctx),
				"err", err,
			)
			writeError(w, http.StatusServiceUnavailable, middleware.CodeRegistryUnavailable, "lease registry unavailable")
			return
		}
	}

	lease, err := h.registry.Register(ctx, accountID, req.CandidateLeaseID, label)
	switch {
	case err == nil:
	case errors.Is(err, goLease.ErrMalformedCandidate):
		writeError(w, http.StatusBadRequest, codeMalformedCandidate, "candidate lease id is malformed")
		return
	case errors.Is(err, goLease.ErrAccountRequired):
		writeError(w, http.StatusUnauthorized, middleware.CodeUnauthenticated, "missing or invalid authorization")
		return
	default:
		h.log.ErrorContext(ctx, "lease.register.fail",
			"request_id", requestIDFromContext(ctx),
			"err", err,
		)
		writeError(w, http.StatusServiceUnavailable, middleware.CodeRegistryUnavailable, "lease registry unavailable")
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		LeaseID:  lease.LeaseID,
		IssuedAt: lease.IssuedAt,
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	accountID, _ := goLease.AccountIDFromContext(r.Context())
	ctx := goLease.WithClientIP(r.Context(), clientIP(r, h.cfg.TrustProxy))

	if err := h.registry.Revoke(ctx, accountID); err != nil {
		h.log.ErrorContext(ctx, "lease.revoke.fail",
			"request_id", requestIDFromContext(ctx),
			"err", err,
		)
		writeError(w, http.StatusServiceUnavailable, middleware.CodeRegistryUnavailable, "lease registry unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.ReadyTimeout)
	defer cancel()

	if _, err := h.registry.Ping(ctx); err != nil {
		h.log.InfoContext(ctx, "readyz.store.not_ready", "err", err)
		writeError(w, http.StatusServiceUnavailable, middleware.CodeRegistryUnavailable, "store not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

func writeRateLimited(w http.ResponseWriter, wait time.Duration) {
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many login attempts")
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
