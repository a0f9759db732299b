package lockstep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lockstep-auth/lockstep/store"
	"github.com/lockstep-auth/lockstep/token"
)

// Engine is the refresh-token rotation state machine. Construct it through
// [Builder.Build]; a built Engine is immutable and safe for concurrent use.
//
// The engine is called concurrently per request with no global lock. The only
// shared mutable resource is the token store, and the single synchronization
// point is the store's atomic mark-used transition.
type Engine struct {
	config  Config
	signer  *token.Signer
	store   store.Store
	metrics *Metrics
	audit   *auditDispatcher
}

// Close releases engine resources. It flushes and stops the audit
// dispatcher; the token store's lifecycle belongs to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped on full buffers.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// IssuePair creates a new session family for subjectID and returns its first
// access/refresh pair. The caller must have authenticated the subject before
// calling; the engine trusts the identity it is given.
func (e *Engine) IssuePair(ctx context.Context, subjectID string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	familyID := uuid.NewString()
	pair, err := e.issue(ctx, subjectID, familyID)
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventIssueFailure, false, subjectID, familyID, err, nil)
		return TokenPair{}, err
	}

	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventPairIssued, true, subjectID, familyID, nil, nil)
	return pair, nil
}

// Rotate exchanges a valid, unused refresh token for a new pair in the same
// session family, retiring the presented token. Presenting an already-rotated
// token revokes the whole family and fails with [ErrTokenReuse]: the protocol
// cannot distinguish a legitimate retry from an attacker replay and treats
// both as compromise.
//
// Either the full verify→check→mark-used→create sequence succeeds and
// returns a new pair, or no new record is created and the old record's state
// reflects exactly what happened.
func (e *Engine) Rotate(ctx context.Context, presentedRefresh string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	start := time.Now()

	claims, err := e.signer.VerifyRefresh(presentedRefresh)
	if err != nil {
		mapped := ErrTokenInvalid
		reason := "verify_failed"
		if errors.Is(err, token.ErrExpired) {
			mapped = ErrTokenExpired
			reason = "expired"
		}
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRotateInvalid, false, "", "", mapped, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return TokenPair{}, mapped
	}

	hash := token.Digest(presentedRefresh)
	rec, err := e.store.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Never issued by this system, or already purged.
			e.metricInc(MetricRotateFailure)
			e.emitAudit(ctx, auditEventRotateInvalid, false, claims.UID, claims.Family, ErrUnauthorized, func() map[string]string {
				return map[string]string{"reason": "record_not_found"}
			})
			return TokenPair{}, ErrUnauthorized
		}
		e.metricInc(MetricRotateFailure)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if rec.Revoked {
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRotateInvalid, false, rec.SubjectID, rec.FamilyID, ErrUnauthorized, func() map[string]string {
			return map[string]string{"reason": "family_terminated"}
		})
		return TokenPair{}, ErrUnauthorized
	}

	if rec.Used {
		return TokenPair{}, e.failOnReuse(ctx, rec.SubjectID, rec.FamilyID)
	}

	won, err := e.store.MarkUsed(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Record expired between lookup and the conditional write.
			e.metricInc(MetricRotateFailure)
			return TokenPair{}, ErrUnauthorized
		}
		e.metricInc(MetricRotateFailure)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !won {
		// Lost the race to a concurrent rotation of the same token. Exactly
		// the reuse case: both callers passed the used==false check, only one
		// write transitioned.
		return TokenPair{}, e.failOnReuse(ctx, rec.SubjectID, rec.FamilyID)
	}

	// A loser's family revocation can land between the MarkUsed above and the
	// Create inside issue, leaving this fresh record unrevoked in an otherwise
	// revoked family. Family revocation is eventually consistent across
	// records; the loser's caller still got ErrTokenReuse.
	pair, err := e.issue(ctx, claims.UID, rec.FamilyID)
	if err != nil {
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRotateInvalid, false, rec.SubjectID, rec.FamilyID, err, func() map[string]string {
			return map[string]string{"reason": "issue_failed"}
		})
		return TokenPair{}, err
	}

	e.metricInc(MetricRotateSuccess)
	if e.metrics != nil {
		e.metrics.Observe(MetricRotateLatency, time.Since(start))
	}
	e.emitAudit(ctx, auditEventRotateSuccess, true, rec.SubjectID, rec.FamilyID, nil, nil)
	return pair, nil
}

// RevokeFamily terminates one session: every record sharing familyID is
// revoked and no token in the family can rotate again.
func (e *Engine) RevokeFamily(ctx context.Context, familyID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.store.RevokeFamily(ctx, familyID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricFamilyRevoked)
	e.emitAudit(ctx, auditEventFamilyRevoked, true, "", familyID, nil, nil)
	return nil
}

// RevokeAllForSubject logs the subject out everywhere: every record owned by
// subjectID is revoked across all families.
func (e *Engine) RevokeAllForSubject(ctx context.Context, subjectID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.store.RevokeSubject(ctx, subjectID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricSubjectRevoked)
	e.emitAudit(ctx, auditEventSubjectRevoked, true, subjectID, "", nil, nil)
	return nil
}

// Logout terminates the session the presented refresh token belongs to. The
// token itself is the session handle; callers never need to track family IDs.
func (e *Engine) Logout(ctx context.Context, presentedRefresh string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	claims, err := e.signer.VerifyRefresh(presentedRefresh)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	return e.RevokeFamily(ctx, claims.Family)
}

// LogoutAll terminates every session of the presented token's subject.
func (e *Engine) LogoutAll(ctx context.Context, presentedRefresh string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	claims, err := e.signer.VerifyRefresh(presentedRefresh)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	return e.RevokeAllForSubject(ctx, claims.UID)
}

// Validate verifies an access token's signature and expiry and returns its
// claims. Stateless: no store access, so revocation cannot cut short an
// already-issued access token — exposure is bounded by the short AccessTTL.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*token.AccessClaims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	_ = ctx

	claims, err := e.signer.VerifyAccess(accessToken)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	e.metricInc(MetricValidateSuccess)
	return claims, nil
}

// issue is the single issuance path shared by IssuePair and Rotate: sign the
// pair, persist the refresh record. Rotation and first issuance differ only
// in where the family ID comes from.
func (e *Engine) issue(ctx context.Context, subjectID, familyID string) (TokenPair, error) {
	access, err := e.signer.SignAccess(subjectID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	refresh, err := e.signer.SignRefresh(subjectID, familyID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	now := time.Now()
	rec := store.Record{
		TokenHash: token.Digest(refresh),
		SubjectID: subjectID,
		FamilyID:  familyID,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.JWT.RefreshTTL),
	}
	if err := e.store.Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return TokenPair{}, ErrConflict
		}
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// failOnReuse revokes the compromised family and returns ErrTokenReuse. The
// revocation is best effort: even when the bulk update fails the caller is
// still forced to re-authenticate, and the presented token itself can never
// rotate again.
func (e *Engine) failOnReuse(ctx context.Context, subjectID, familyID string) error {
	if err := e.store.RevokeFamily(ctx, familyID); err != nil {
		log.Print("lockstep: family revocation after reuse detection failed")
	}
	e.metricInc(MetricReuseDetected)
	e.metricInc(MetricFamilyRevoked)
	e.emitAudit(ctx, auditEventReuseDetected, false, subjectID, familyID, ErrTokenReuse, nil)
	return ErrTokenReuse
}
