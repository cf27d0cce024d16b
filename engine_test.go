package goLease

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goLease/leaseid"
	"github.com/MrEthical07/goLease/registry"
)

func mustMint(t *testing.T) string {
	t.Helper()
	id, err := leaseid.Mint(time.Now(), leaseid.NewFingerprint("linux", "amd64", "test"))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return id
}

func TestRegisterThenValidate(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()
	a1 := mustMint(t)

	lease, err := te.Register(ctx, "acct-1", a1, "  Linux, Firefox  ")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if lease.LeaseID != a1 {
		t.Fatalf("installed lease must equal candidate, got %q", lease.LeaseID)
	}
	if lease.DeviceLabel != "Linux, Firefox" {
		t.Fatalf("expected trimmed label, got %q", lease.DeviceLabel)
	}
	if !lease.IssuedAt.Equal(testEpoch) {
		t.Fatalf("issued_at must come from the registry clock, got %v", lease.IssuedAt)
	}
	if lease.Generation != 1 {
		t.Fatalf("expected generation 1, got %d", lease.Generation)
	}

	if err := te.Validate(ctx, "acct-1", a1); err != nil {
		t.Fatalf("validate current lease: %v", err)
	}
}

func TestValidateExclusivity(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()
	a1 := mustMint(t)

	if _, err := te.Register(ctx, "acct-1", a1, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, presented := range []string{mustMint(t), "", strings.ToUpper(a1) + "x", strings.Repeat("a", 4096)} {
		if err := te.Validate(ctx, "acct-1", presented); !errors.Is(err, ErrLeaseSuperseded) {
			t.Fatalf("expected ErrLeaseSuperseded for %q, got %v", presented, err)
		}
	}
}

func TestMissingAndDifferentLeaseAreIndistinguishable(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	if _, err := te.Register(ctx, "acct-1", mustMint(t), ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	presented := mustMint(t)
	errDifferent := te.Validate(ctx, "acct-1", presented)
	errMissing := te.Validate(ctx, "acct-unknown", presented)

	if errDifferent != errMissing || errDifferent != ErrLeaseSuperseded {
		t.Fatalf("expected identical rejection, got %v and %v", errDifferent, errMissing)
	}
}

func TestRegisterEvictsPreviousLease(t *testing.T) {
	sink := newCaptureSink(16)
	cfg := testConfig()
	cfg.Audit.Enabled = true
	te := newTestEngine(t, cfg, sink)
	ctx := context.Background()

	a1, b1 := mustMint(t), mustMint(t)
	if _, err := te.Register(ctx, "acct-1", a1, "Windows, Edge"); err != nil {
		t.Fatalf("register a1: %v", err)
	}
	te.clock.Advance(time.Minute)
	lease, err := te.Register(ctx, "acct-1", b1, "macOS, Safari")
	if err != nil {
		t.Fatalf("register b1: %v", err)
	}
	if !lease.IssuedAt.Equal(testEpoch.Add(time.Minute)) {
		t.Fatalf("unexpected issued_at %v", lease.IssuedAt)
	}

	if err := te.Validate(ctx, "acct-1", a1); !errors.Is(err, ErrLeaseSuperseded) {
		t.Fatalf("expected a1 superseded, got %v", err)
	}
	if err := te.Validate(ctx, "acct-1", b1); err != nil {
		t.Fatalf("expected b1 valid, got %v", err)
	}

	if got := te.MetricsSnapshot().Counters[MetricLeaseEvicted]; got != 1 {
		t.Fatalf("expected one eviction, got %d", got)
	}

	te.Close()
	var evicted *AuditEvent
	for _, ev := range drainEvents(sink) {
		if ev.EventType == auditEventLeaseEvicted {
			evicted = &ev
		}
	}
	if evicted == nil {
		t.Fatal("expected lease_evicted audit event")
	}
	if evicted.LeaseID != a1 || evicted.Metadata["replaced_by"] != b1 {
		t.Fatalf("unexpected eviction event %+v", evicted)
	}
}

func TestReRegisterSameLeaseIsNotEviction(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()
	a1 := mustMint(t)

	for i := 0; i < 3; i++ {
		if _, err := te.Register(ctx, "acct-1", a1, ""); err != nil {
			t.Fatalf("register #%d: %v", i, err)
		}
	}
	if err := te.Validate(ctx, "acct-1", a1); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricLeaseEvicted]; got != 0 {
		t.Fatalf("retrying the same candidate must not count as eviction, got %d", got)
	}
}

func TestRegisterRejectsMalformedCandidate(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()
	a1 := mustMint(t)

	if _, err := te.Register(ctx, "acct-1", a1, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, bad := range []string{"", "has space", "semi;colon", strings.Repeat("x", leaseid.MaxLength+1)} {
		if _, err := te.Register(ctx, "acct-1", bad, ""); !errors.Is(err, ErrMalformedCandidate) {
			t.Fatalf("expected ErrMalformedCandidate for %q, got %v", bad, err)
		}
	}

	if err := te.Validate(ctx, "acct-1", a1); err != nil {
		t.Fatalf("malformed registrations must not change state: %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricRegisterMalformed]; got != 4 {
		t.Fatalf("expected 4 malformed, got %d", got)
	}
}

func TestRegisterRequiresAccount(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	if _, err := te.Register(context.Background(), "", mustMint(t), ""); !errors.Is(err, ErrAccountRequired) {
		t.Fatalf("expected ErrAccountRequired, got %v", err)
	}
	if err := te.Validate(context.Background(), "", "x"); !errors.Is(err, ErrAccountRequired) {
		t.Fatalf("expected ErrAccountRequired, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()
	a1 := mustMint(t)

	if _, err := te.Register(ctx, "acct-1", a1, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := te.Revoke(ctx, "acct-1"); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if err := te.Revoke(ctx, "acct-1"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if err := te.Revoke(ctx, "never-registered"); err != nil {
		t.Fatalf("revoke of absent record: %v", err)
	}
	if err := te.Validate(ctx, "acct-1", a1); !errors.Is(err, ErrLeaseSuperseded) {
		t.Fatalf("expected superseded after revoke, got %v", err)
	}
}

func TestConcurrentRegisterTotalOrder(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	const devices = 16
	candidates := make([]string, devices)
	for i := range candidates {
		candidates[i] = mustMint(t)
	}

	var wg sync.WaitGroup
	errs := make(chan error, devices)
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := te.Register(ctx, "acct-race", id, "")
			errs <- err
		}(candidates[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("every concurrent register must succeed: %v", err)
		}
	}

	var valid int
	for _, id := range candidates {
		switch err := te.Validate(ctx, "acct-race", id); {
		case err == nil:
			valid++
		case errors.Is(err, ErrLeaseSuperseded):
		default:
			t.Fatalf("unexpected validate error: %v", err)
		}
	}
	if valid != 1 {
		t.Fatalf("expected exactly one valid lease, got %d", valid)
	}

	current, err := te.Current(ctx, "acct-race")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.Generation != devices {
		t.Fatalf("expected generation %d, got %d", devices, current.Generation)
	}
}

func TestValidateFailsClosedWhenStoreDown(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()
	a1 := mustMint(t)

	if _, err := te.Register(ctx, "acct-1", a1, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	te.mr.Close()

	err := te.Validate(ctx, "acct-1", a1)
	if !errors.Is(err, ErrRegistryUnavailable) {
		t.Fatalf("expected ErrRegistryUnavailable, got %v", err)
	}
	if errors.Is(err, ErrLeaseSuperseded) {
		t.Fatal("outage must not look like a rejection")
	}
	if _, err := te.Register(ctx, "acct-1", mustMint(t), ""); !errors.Is(err, ErrRegistryUnavailable) {
		t.Fatalf("expected register to fail with ErrRegistryUnavailable, got %v", err)
	}
	if _, err := te.Ping(ctx); !errors.Is(err, ErrRegistryUnavailable) {
		t.Fatalf("expected ping failure, got %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricValidateUnavailable]; got != 1 {
		t.Fatalf("expected one unavailable validate, got %d", got)
	}
}

func TestCorruptRecordIsRejectedAndHealedByRegister(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	if err := te.rdb.Set(ctx, "lr:{acct-1}", "\x07garbage", 0).Err(); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}
	if err := te.Validate(ctx, "acct-1", mustMint(t)); !errors.Is(err, ErrLeaseSuperseded) {
		t.Fatalf("expected corrupt record to reject, got %v", err)
	}
	if _, err := te.Current(ctx, "acct-1"); !errors.Is(err, ErrLeaseNotFound) {
		t.Fatalf("expected ErrLeaseNotFound for corrupt record, got %v", err)
	}

	a1 := mustMint(t)
	if _, err := te.Register(ctx, "acct-1", a1, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := te.Validate(ctx, "acct-1", a1); err != nil {
		t.Fatalf("expected healed record, got %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricCorruptRecord]; got != 2 {
		t.Fatalf("expected two corrupt reads, got %d", got)
	}
}

func TestCurrentReportsLease(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	if _, err := te.Current(ctx, "acct-1"); !errors.Is(err, ErrLeaseNotFound) {
		t.Fatalf("expected ErrLeaseNotFound, got %v", err)
	}

	a1 := mustMint(t)
	if _, err := te.Register(ctx, "acct-1", a1, "Android, Chrome"); err != nil {
		t.Fatalf("register: %v", err)
	}
	cur, err := te.Current(ctx, "acct-1")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.AccountID != "acct-1" || cur.LeaseID != a1 || cur.DeviceLabel != "Android, Chrome" || cur.Generation != 1 {
		t.Fatalf("unexpected current lease %+v", cur)
	}
}

func TestDeviceLabelTruncation(t *testing.T) {
	cfg := testConfig()
	cfg.Lease.MaxDeviceLabelLength = 5
	te := newTestEngine(t, cfg, nil)

	lease, err := te.Register(context.Background(), "acct-1", mustMint(t), "Linüx desktop")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if lease.DeviceLabel != "Linü" {
		t.Fatalf("expected rune-safe truncation, got %q", lease.DeviceLabel)
	}
}

func TestEngineWithMemoryStore(t *testing.T) {
	engine, err := New().WithStore(registry.NewMemoryStore()).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	a1 := mustMint(t)
	if _, err := engine.Register(ctx, "acct-1", a1, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := engine.Validate(ctx, "acct-1", a1); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if latency, err := engine.Ping(ctx); err != nil || latency != 0 {
		t.Fatalf("ping: %v %v", latency, err)
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var engine *Engine
	if err := engine.Validate(context.Background(), "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.Register(context.Background(), "a", "b", ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestBuilderSingleUseAndStoreRequired(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without a store")
	}

	b := New().WithStore(registry.NewMemoryStore())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

// Two devices, one account, alternating logins: every call from the device
// that logged in earlier is rejected until it logs in again.
func TestScenarioDeviceHandover(t *testing.T) {
	te := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	var current string
	for round := 0; round < 6; round++ {
		previous := current
		current = mustMint(t)
		if _, err := te.Register(ctx, "acct-1", current, fmt.Sprintf("device-%d", round%2)); err != nil {
			t.Fatalf("round %d register: %v", round, err)
		}
		if err := te.Validate(ctx, "acct-1", current); err != nil {
			t.Fatalf("round %d current lease rejected: %v", round, err)
		}
		if previous != "" {
			if err := te.Validate(ctx, "acct-1", previous); !errors.Is(err, ErrLeaseSuperseded) {
				t.Fatalf("round %d previous lease still accepted: %v", round, err)
			}
		}
	}
}
