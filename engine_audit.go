package goLease

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

const (
	auditEventLeaseRegistered = "lease_registered"
	auditEventLeaseEvicted    = "lease_evicted"
	auditEventLeaseRejected   = "lease_rejected"
	auditEventLeaseRevoked    = "lease_revoked"
	auditEventRegisterFailure = "lease_register_failure"
)

// AuditErrorCode is the stable error vocabulary of audit events.
type AuditErrorCode string

const (
	auditErrMalformedCandidate AuditErrorCode = "malformed_candidate"
	auditErrLeaseSuperseded    AuditErrorCode = "lease_superseded"
	auditErrAccountRequired    AuditErrorCode = "account_required"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	leaseID string,
	deviceLabel string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventID:     uuid.NewString(),
		Timestamp:   e.clock.Now().UTC(),
		EventType:   eventType,
		AccountID:   accountID,
		LeaseID:     leaseID,
		DeviceLabel: deviceLabel,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrMalformedCandidate):
		return auditErrMalformedCandidate
	case errors.Is(err, ErrLeaseSuperseded):
		return auditErrLeaseSuperseded
	case errors.Is(err, ErrAccountRequired):
		return auditErrAccountRequired
	case errors.Is(err, ErrRegistryUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
