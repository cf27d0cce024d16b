package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/goLease/leaseid"
	"github.com/juju/clock"
	"github.com/juju/retry"
)

// Credentials are passed through to the [Authenticator] untouched.
type Credentials struct {
	Username string
	Password string
}

// Authenticator is the identity provider. It returns a verified identity
// or an error; the client performs no credential logic itself.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (Identity, error)
}

// AuthenticatorFunc adapts a function to [Authenticator].
type AuthenticatorFunc func(ctx context.Context, creds Credentials) (Identity, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, creds Credentials) (Identity, error) {
	return f(ctx, creds)
}

// Options tunes a [Client]. Zero values take the defaults listed per field.
type Options struct {
	// App names the application in the lease fingerprint and the default
	// device label.
	App string
	// DeviceLabel defaults to a label built from the OS and architecture.
	DeviceLabel string

	// LoginTimeout bounds the whole register phase of Login, retries
	// included. Default 15s.
	LoginTimeout time.Duration
	// CallTimeout bounds each attempt of Do and each register attempt.
	// Default 10s.
	CallTimeout time.Duration

	// RetryAttempts is the total number of attempts for a transient
	// failure. Default 4.
	RetryAttempts int
	// RetryDelay is the first backoff delay, doubled per attempt up to
	// RetryMaxDelay. Defaults 200ms and 2s.
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	// OnSignedInElsewhere runs after the local session has been cleared
	// because the lease was superseded.
	OnSignedInElsewhere func()

	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.LoginTimeout <= 0 {
		o.LoginTimeout = 15 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 4
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 200 * time.Millisecond
	}
	if o.RetryMaxDelay < o.RetryDelay {
		o.RetryMaxDelay = 2 * time.Second
		if o.RetryMaxDelay < o.RetryDelay {
			o.RetryMaxDelay = o.RetryDelay
		}
	}
	if o.DeviceLabel == "" {
		o.DeviceLabel = leaseid.LocalDeviceLabel(o.App)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Session describes the lease a client currently holds.
type Session struct {
	AccountID string
	LeaseID   string
	// IssuedAt is zero for a session restored by Resume.
	IssuedAt time.Time
}

// Client is safe for concurrent use.
type Client struct {
	auth      Authenticator
	registrar Registrar
	pointers  PointerStore

	opts        Options
	fingerprint leaseid.Fingerprint
	logger      *slog.Logger

	mu       sync.Mutex
	identity Identity
	leaseID  string
}

// New returns a logged-out client.
func New(auth Authenticator, registrar Registrar, pointers PointerStore, opts Options) (*Client, error) {
	if auth == nil {
		return nil, errors.New("client: nil authenticator")
	}
	if registrar == nil {
		return nil, errors.New("client: nil registrar")
	}
	if pointers == nil {
		return nil, errors.New("client: nil pointer store")
	}
	opts = opts.withDefaults()

	return &Client{
		auth:        auth,
		registrar:   registrar,
		pointers:    pointers,
		opts:        opts,
		fingerprint: leaseid.LocalFingerprint(opts.App),
		logger:      opts.Logger.With(slog.String("component", "lease_client")),
	}, nil
}

// MintCandidate returns a fresh candidate lease id. It performs no I/O.
func (c *Client) MintCandidate() (string, error) {
	return leaseid.Mint(c.opts.Clock.Now(), c.fingerprint)
}

// Login authenticates, registers a new lease and persists it. The client
// is logged in only when every step succeeded; any failure leaves it
// logged out. LoginTimeout bounds the whole call, authentication included.
func (c *Client) Login(ctx context.Context, creds Credentials) (Session, error) {
	loginCtx, cancel := context.WithTimeout(ctx, c.opts.LoginTimeout)
	defer cancel()

	id, err := c.auth.Authenticate(loginCtx, creds)
	switch {
	case err == nil:
	case errors.Is(err, ErrTransient):
		return Session{}, err
	case loginCtx.Err() != nil:
		return Session{}, fmt.Errorf("%w: authenticate: %v", ErrTransient, err)
	default:
		return Session{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !id.valid() {
		return Session{}, fmt.Errorf("%w: identity provider returned no token", ErrUnauthenticated)
	}

	c.clearLocal()

	candidate, err := c.MintCandidate()
	if err != nil {
		return Session{}, err
	}

	var reg Registration
	err = c.withRetry(loginCtx, "register", c.opts.RetryAttempts, func() error {
		attemptCtx, cancelAttempt := context.WithTimeout(loginCtx, c.opts.CallTimeout)
		defer cancelAttempt()

		var err error
		reg, err = c.registrar.Register(attemptCtx, id, candidate, c.opts.DeviceLabel)
		return err
	})
	if err != nil {
		return Session{}, err
	}

	if err := c.pointers.Save(reg.LeaseID); err != nil {
		return Session{}, fmt.Errorf("client: persist session pointer: %w", err)
	}

	c.mu.Lock()
	c.identity = id
	c.leaseID = reg.LeaseID
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "lease registered",
		slog.String("account_id", id.AccountID),
		slog.Time("issued_at", reg.IssuedAt),
	)
	return Session{AccountID: id.AccountID, LeaseID: reg.LeaseID, IssuedAt: reg.IssuedAt}, nil
}

// Resume restores a session after an application restart. The identity
// comes from the identity provider's own persistence; the lease comes from
// the pointer store. Without a pointer the client stays logged out.
func (c *Client) Resume(id Identity) (Session, error) {
	if !id.valid() {
		return Session{}, ErrUnauthenticated
	}
	leaseID, err := c.pointers.Load()
	if errors.Is(err, ErrNoPointer) {
		return Session{}, ErrLoginRequired
	}
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrLoginRequired, err)
	}

	c.mu.Lock()
	c.identity = id
	c.leaseID = leaseID
	c.mu.Unlock()

	return Session{AccountID: id.AccountID, LeaseID: leaseID}, nil
}

// Attach sets the lease and identity headers on req. Without a session it
// returns [ErrLoginRequired] and req must not be sent.
func (c *Client) Attach(req *http.Request) error {
	_, err := c.attach(req)
	return err
}

func (c *Client) attach(req *http.Request) (string, error) {
	c.mu.Lock()
	id, leaseID := c.identity, c.leaseID
	c.mu.Unlock()

	if leaseID == "" || !id.valid() {
		return "", ErrLoginRequired
	}
	req.Header.Set(leaseid.Header, leaseID)
	req.Header.Set("Authorization", "Bearer "+id.Token)
	return leaseID, nil
}

// Do attaches the session to req and sends it. Transient failures are
// retried when the body can be replayed. A superseded lease clears the
// session and returns [ErrSignedInElsewhere]. Other responses, errors
// included, are returned to the caller unchanged.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	attempts := c.opts.RetryAttempts
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		attempts = 1
	}

	var resp *http.Response
	err := c.withRetry(req.Context(), "call", attempts, func() error {
		var err error
		resp, err = c.sendOnce(req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) sendOnce(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), c.opts.CallTimeout)
	out := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			cancel()
			return nil, err
		}
		out.Body = body
	}

	leaseID, err := c.attach(out)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := c.opts.HTTPClient.Do(out)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	switch {
	case IsRejection(resp):
		discard(resp)
		cancel()
		c.rejected(leaseID)
		return nil, ErrSignedInElsewhere
	case resp.StatusCode == http.StatusUnauthorized:
		discard(resp)
		cancel()
		return nil, ErrUnauthenticated
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		discard(resp)
		cancel()
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// IsRejection reports whether resp is the registry's superseded signal.
func IsRejection(resp *http.Response) bool {
	return resp != nil &&
		resp.StatusCode == http.StatusConflict &&
		resp.Header.Get(leaseid.StatusHeader) == leaseid.StatusSuperseded
}

// OnRejected clears the session pointer and cached identity, then runs
// the OnSignedInElsewhere hook. It does not re-register.
func (c *Client) OnRejected() {
	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()

	c.signedInElsewhere()
}

// rejected handles a rejection of leaseID. Only the lease the client holds
// right now can be rejected; a rejection for an older lease, or one that
// lands while a new login is in flight, is ignored.
func (c *Client) rejected(leaseID string) {
	c.mu.Lock()
	if c.leaseID == "" || c.leaseID != leaseID {
		c.mu.Unlock()
		c.logger.Debug("stale lease rejection ignored")
		return
	}
	c.clearLocked()
	c.mu.Unlock()

	c.signedInElsewhere()
}

func (c *Client) signedInElsewhere() {
	c.logger.Info("lease superseded, local session cleared")
	if c.opts.OnSignedInElsewhere != nil {
		c.opts.OnSignedInElsewhere()
	}
}

// Logout revokes the lease on a best-effort basis and always clears the
// local session. The revoke error, if any, is returned after the local
// state is gone.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	id, leaseID := c.identity, c.leaseID
	c.mu.Unlock()

	var revokeErr error
	if leaseID != "" && id.valid() {
		revokeCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		revokeErr = c.registrar.Revoke(revokeCtx, id)
		cancel()
	}

	c.clearLocal()

	if revokeErr != nil {
		c.logger.WarnContext(ctx, "lease revoke failed", slog.Any("error", revokeErr))
		return fmt.Errorf("client: revoke: %w", revokeErr)
	}
	return nil
}

// Session returns the current session, if any.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leaseID == "" {
		return Session{}, false
	}
	return Session{AccountID: c.identity.AccountID, LeaseID: c.leaseID}, true
}

func (c *Client) clearLocal() {
	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()
}

// clearLocked drops the session and its pointer. c.mu must be held so a
// concurrent login cannot save a pointer between the two steps.
func (c *Client) clearLocked() {
	c.identity = Identity{}
	c.leaseID = ""
	if err := c.pointers.Clear(); err != nil {
		c.logger.Warn("session pointer clear failed", slog.Any("error", err))
	}
}

// withRetry runs fn until it succeeds, fails with a non-transient error,
// runs out of attempts, or ctx is done. The returned error is the last
// error fn produced, wrapped with ErrTransient when the budget ran out.
func (c *Client) withRetry(ctx context.Context, op string, attempts int, fn func() error) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			lastErr = fn()
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return !isRetryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			c.logger.DebugContext(ctx, "retrying after transient failure",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		},
		Attempts:    attempts,
		Delay:       c.opts.RetryDelay,
		MaxDelay:    c.opts.RetryMaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.opts.Clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return nil
	}

	switch {
	case lastErr == nil:
		return fmt.Errorf("%w: %s: %v", ErrTransient, op, ctx.Err())
	case !isRetryable(lastErr):
		return lastErr
	default:
		return fmt.Errorf("%s: %w", op, lastErr)
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
