package lockstep

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventPairIssued     = "pair_issued"
	auditEventIssueFailure   = "issue_failure"
	auditEventRotateSuccess  = "rotate_success"
	auditEventRotateInvalid  = "rotate_invalid"
	auditEventReuseDetected  = "refresh_reuse_detected"
	auditEventFamilyRevoked  = "family_revoked"
	auditEventSubjectRevoked = "subject_revoked"
	auditEventRecordsPurged  = "expired_records_purged"
)

// AuditErrorCode is the normalized error tag attached to audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized AuditErrorCode = "unauthorized"
	auditErrInvalidToken AuditErrorCode = "invalid_token"
	auditErrExpiredToken AuditErrorCode = "expired_token"
	auditErrRefreshReuse AuditErrorCode = "refresh_reuse"
	auditErrConflict     AuditErrorCode = "conflict"
	auditErrSigning      AuditErrorCode = "signing_failed"
	auditErrUnavailable  AuditErrorCode = "backend_unavailable"
	auditErrInternal     AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	familyID string,
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
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		FamilyID:  familyID,
		Success:   success,
		Metadata:  metadata,
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
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrTokenReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrTokenExpired):
		return auditErrExpiredToken
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrConflict):
		return auditErrConflict
	case errors.Is(err, ErrSigning):
		return auditErrSigning
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
