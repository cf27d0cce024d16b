package goLease

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// drainEvents returns what the sink has received so far without blocking.
func drainEvents(s *captureSink) []AuditEvent {
	var out []AuditEvent
	for {
		select {
		case ev := <-s.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

type panicSink struct{}

func (panicSink) Emit(context.Context, AuditEvent) {
	panic("sink failure")
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false

	sink := &countingSink{}
	te := newTestEngine(t, cfg, sink)

	_, _ = te.Register(context.Background(), "acct-1", mustMint(t), "")
	te.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditRegisterEventShape(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	sink := newCaptureSink(8)
	te := newTestEngine(t, cfg, sink)

	a1 := mustMint(t)
	ctx := WithClientIP(context.Background(), "203.0.113.9")
	if _, err := te.Register(ctx, "acct-1", a1, "Linux, Firefox"); err != nil {
		t.Fatalf("register: %v", err)
	}
	te.Close()

	events := drainEvents(sink)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[0]
	if ev.EventType != auditEventLeaseRegistered || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, err := uuid.Parse(ev.EventID); err != nil {
		t.Fatalf("event id must be a uuid: %v", err)
	}
	if ev.AccountID != "acct-1" || ev.LeaseID != a1 || ev.IP != "203.0.113.9" {
		t.Fatalf("unexpected event identity fields %+v", ev)
	}
	if !ev.Timestamp.Equal(testEpoch) {
		t.Fatalf("expected timestamp from engine clock, got %v", ev.Timestamp)
	}
	if ev.Metadata["generation"] != "1" || ev.Metadata["fingerprint"] == "" {
		t.Fatalf("unexpected metadata %v", ev.Metadata)
	}
}

func TestAuditRejectionAndMalformedCodes(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	sink := newCaptureSink(8)
	te := newTestEngine(t, cfg, sink)
	ctx := context.Background()

	_ = te.Validate(ctx, "acct-1", mustMint(t))
	_, _ = te.Register(ctx, "acct-1", "bad id", "")
	te.Close()

	codes := map[string]string{}
	for _, ev := range drainEvents(sink) {
		codes[ev.EventType] = ev.Error
	}
	if codes[auditEventLeaseRejected] != string(auditErrLeaseSuperseded) {
		t.Fatalf("expected lease_superseded code, got %q", codes[auditEventLeaseRejected])
	}
	if codes[auditEventRegisterFailure] != string(auditErrMalformedCandidate) {
		t.Fatalf("expected malformed_candidate code, got %q", codes[auditEventRegisterFailure])
	}
}

func TestAuditDropIfFullCountsDrops(t *testing.T) {
	sink := newGateSink()
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a blocked sink")
	}

	close(sink.gate)
	d.Close()
}

func TestAuditBlockingEmitHonoursContext(t *testing.T) {
	sink := newGateSink()
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Emit(ctx, AuditEvent{EventType: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocking Emit ignored context cancellation")
	}
}

func TestAuditSinkPanicDoesNotKillDispatcher(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, panicSink{})
	d.Emit(context.Background(), AuditEvent{EventType: "a"})
	d.Emit(context.Background(), AuditEvent{EventType: "b"})
	d.Close()

	if got := d.SinkPanics(); got != 2 {
		t.Fatalf("expected 2 recovered panics, got %d", got)
	}
}

func TestAuditCloseIsIdempotentAndStopsEmit(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), AuditEvent{EventType: "a"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), AuditEvent{EventType: "late"})

	if sink.Count() != 1 {
		t.Fatalf("expected only the pre-close event, got %d", sink.Count())
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLeaseRevoked, AccountID: "acct-1", Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLeaseRejected, AccountID: "acct-1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EventType != auditEventLeaseRejected {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), AuditEvent{
		EventType: auditEventLeaseEvicted,
		AccountID: "acct-1",
		LeaseID:   "a1",
		Success:   true,
		Metadata:  map[string]string{"replaced_by": "b1"},
	})
	sink.Emit(context.Background(), AuditEvent{
		EventType: auditEventLeaseRejected,
		AccountID: "acct-1",
		Error:     string(auditErrLeaseSuperseded),
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first["level"] != "INFO" || first["meta.replaced_by"] != "b1" || first["component"] != "lease_audit" {
		t.Fatalf("unexpected first record %v", first)
	}
	if second["level"] != "WARN" || second["error"] != "lease_superseded" {
		t.Fatalf("unexpected second record %v", second)
	}
}
