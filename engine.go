package goLease

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goLease/leaseid"
	"github.com/MrEthical07/goLease/registry"
	"github.com/juju/clock"
)

// Engine is the Lease Registry. It owns the account to current lease
// mapping through a [registry.Store] and answers Register, Validate and
// Revoke.
type Engine struct {
	config  Config
	store   registry.Store
	clock   clock.Clock
	logger  *slog.Logger
	audit   *auditDispatcher
	metrics *Metrics
}

// generationReader is implemented by stores whose plain Get omits the
// generation counter.
type generationReader interface {
	GetWithGeneration(ctx context.Context, accountID string) (registry.Record, error)
}

// Close drains the audit dispatcher. It does not close the store's client.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil
}

func (e *Engine) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.config.Lease.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.config.Lease.OperationTimeout)
}

// Register installs candidateLeaseID as the account's only valid lease,
// overwriting whatever lease was current. It never fails because another
// device holds a lease; that device is evicted and learns it on its next
// Validate.
//
// accountID must come from a verified identity. A malformed candidate
// returns [ErrMalformedCandidate] without touching the store. Store failures
// return [ErrRegistryUnavailable] and leave the previous record in place.
func (e *Engine) Register(ctx context.Context, accountID, candidateLeaseID, deviceLabel string) (Lease, error) {
	if !e.ready() {
		return Lease{}, ErrEngineNotReady
	}
	if accountID == "" {
		return Lease{}, ErrAccountRequired
	}

	if err := leaseid.Check(candidateLeaseID, e.config.Lease.MaxLeaseIDLength); err != nil {
		e.metricInc(MetricRegisterMalformed)
		e.emitAudit(ctx, auditEventRegisterFailure, false, accountID, "", "", ErrMalformedCandidate, nil)
		return Lease{}, ErrMalformedCandidate
	}

	label := normalizeDeviceLabel(deviceLabel, e.config.Lease.MaxDeviceLabelLength)

	opCtx, cancel := e.operationContext(ctx)
	defer cancel()

	res, err := e.store.Put(opCtx, registry.Record{
		AccountID:   accountID,
		LeaseID:     candidateLeaseID,
		DeviceLabel: label,
		IssuedAt:    e.clock.Now().UTC(),
	})
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		e.logger.WarnContext(ctx, "lease register failed",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
		wrapped := fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
		e.emitAudit(ctx, auditEventRegisterFailure, false, accountID, candidateLeaseID, label, wrapped, nil)
		return Lease{}, wrapped
	}

	lease := leaseFromRecord(res.Record)

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventLeaseRegistered, true, accountID, lease.LeaseID, label, nil, func() map[string]string {
		meta := map[string]string{
			"generation": strconv.FormatUint(lease.Generation, 10),
		}
		if info, ok := leaseid.Describe(lease.LeaseID); ok {
			meta["fingerprint"] = string(info.Fingerprint)
			meta["minted_at"] = info.MintedAt.Format(time.RFC3339Nano)
		}
		return meta
	})

	if res.Evicted() {
		e.metricInc(MetricLeaseEvicted)
		e.logger.InfoContext(ctx, "lease evicted",
			slog.String("account_id", accountID),
			slog.Uint64("generation", lease.Generation),
		)
		e.emitAudit(ctx, auditEventLeaseEvicted, true, accountID, res.PreviousLeaseID, "", nil, func() map[string]string {
			return map[string]string{
				"replaced_by":  lease.LeaseID,
				"device_label": label,
			}
		})
	}

	return lease, nil
}

// Validate reports whether presentedLeaseID is the account's current lease.
//
// It returns nil only when a record exists and its lease id equals
// presentedLeaseID. A missing record and a different lease both return
// [ErrLeaseSuperseded]. A record that cannot be decoded is also treated as
// superseded; the next Register overwrites it. Store failures return
// [ErrRegistryUnavailable] and must be treated as a denial.
//
//	Performance: one store point lookup, no writes.
func (e *Engine) Validate(ctx context.Context, accountID, presentedLeaseID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrAccountRequired
	}

	start := time.Now()
	err := e.validate(ctx, accountID, presentedLeaseID)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	switch {
	case err == nil:
		e.metricInc(MetricValidateOK)
	case errors.Is(err, ErrLeaseSuperseded):
		e.metricInc(MetricValidateRejected)
		e.emitAudit(ctx, auditEventLeaseRejected, false, accountID, presentedLeaseID, "", err, nil)
	default:
		e.metricInc(MetricValidateUnavailable)
	}
	return err
}

func (e *Engine) validate(ctx context.Context, accountID, presentedLeaseID string) error {
	// Ids Register would refuse can never be current.
	if presentedLeaseID == "" || len(presentedLeaseID) > e.config.Lease.MaxLeaseIDLength {
		return ErrLeaseSuperseded
	}

	opCtx, cancel := e.operationContext(ctx)
	defer cancel()

	rec, err := e.store.Get(opCtx, accountID)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrNotFound):
		return ErrLeaseSuperseded
	case errors.Is(err, registry.ErrCorrupt):
		e.metricInc(MetricCorruptRecord)
		e.logger.WarnContext(ctx, "corrupt lease record treated as superseded",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
		return ErrLeaseSuperseded
	default:
		e.logger.WarnContext(ctx, "lease validate failed",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	if subtle.ConstantTimeCompare([]byte(rec.LeaseID), []byte(presentedLeaseID)) != 1 {
		return ErrLeaseSuperseded
	}
	return nil
}

// Revoke deletes the account's lease. Revoking an account without a lease
// is a no-op and returns nil.
func (e *Engine) Revoke(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrAccountRequired
	}

	opCtx, cancel := e.operationContext(ctx)
	defer cancel()

	existed, err := e.store.Delete(opCtx, accountID)
	if err != nil {
		e.metricInc(MetricRevokeFailure)
		e.logger.WarnContext(ctx, "lease revoke failed",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	e.metricInc(MetricRevoke)
	e.emitAudit(ctx, auditEventLeaseRevoked, true, accountID, "", "", nil, func() map[string]string {
		return map[string]string{"existed": strconv.FormatBool(existed)}
	})
	return nil
}

// Current returns the account's lease for support and audit tooling. It is
// not meant for request paths; use Validate there.
func (e *Engine) Current(ctx context.Context, accountID string) (Lease, error) {
	if !e.ready() {
		return Lease{}, ErrEngineNotReady
	}
	if accountID == "" {
		return Lease{}, ErrAccountRequired
	}

	opCtx, cancel := e.operationContext(ctx)
	defer cancel()

	var (
		rec registry.Record
		err error
	)
	if gr, ok := e.store.(generationReader); ok {
		rec, err = gr.GetWithGeneration(opCtx, accountID)
	} else {
		rec, err = e.store.Get(opCtx, accountID)
	}

	switch {
	case err == nil:
		return leaseFromRecord(rec), nil
	case errors.Is(err, registry.ErrNotFound):
		return Lease{}, ErrLeaseNotFound
	case errors.Is(err, registry.ErrCorrupt):
		e.metricInc(MetricCorruptRecord)
		return Lease{}, ErrLeaseNotFound
	default:
		return Lease{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
}

// Ping checks the store and returns its round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	opCtx, cancel := e.operationContext(ctx)
	defer cancel()

	latency, err := e.store.Ping(opCtx)
	if err != nil {
		return latency, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return latency, nil
}

func leaseFromRecord(rec registry.Record) Lease {
	return Lease{
		AccountID:   rec.AccountID,
		LeaseID:     rec.LeaseID,
		DeviceLabel: rec.DeviceLabel,
		IssuedAt:    rec.IssuedAt,
		Generation:  rec.Generation,
	}
}

// normalizeDeviceLabel trims label and cuts it to at most limit bytes without
// splitting a UTF-8 sequence. Invalid UTF-8 is replaced.
func normalizeDeviceLabel(label string, limit int) string {
	label = strings.TrimSpace(strings.ToValidUTF8(label, "�"))
	if limit <= 0 {
		return ""
	}
	if len(label) <= limit {
		return label
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(label[cut]) {
		cut--
	}
	return strings.TrimSpace(label[:cut])
}
