package emergency

import (
	"context"
	"log/slog"
	"time"

	auditmodels "medgate/internal/audit/models"
	"medgate/internal/events"
	"medgate/internal/platform/metrics"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

// ProviderVerifier answers whether a principal is a verified provider.
type ProviderVerifier interface {
	IsVerified(ctx context.Context, principal id.Principal) (bool, error)
}

// AdminChecker answers whether a principal holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, principal id.Principal) (bool, error)
}

// AuditAppender writes top-level audit entries. Implemented by the audit
// service.
type AuditAppender interface {
	Append(ctx context.Context, entry auditmodels.Entry) (auditmodels.Entry, error)
}

type Service struct {
	store     Store
	verifier  ProviderVerifier
	admin     AdminChecker
	auditor   AuditAppender
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher events.Publisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(store Store, verifier ProviderVerifier, admin AdminChecker, auditor AuditAppender, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "emergency service requires a store")
	}
	if verifier == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "emergency service requires a provider verifier")
	}
	if admin == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "emergency service requires an admin checker")
	}
	if auditor == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "emergency service requires an audit appender")
	}
	s := &Service{
		store:    store,
		verifier: verifier,
		admin:    admin,
		auditor:  auditor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Grant creates a time-boxed emergency grant. The requester must be a
// verified provider or an admin, must attest to the emergency, and the
// grant cannot outlive 24 hours. Emergency contacts are notified and the
// notification is part of the grant's trail.
func (s *Service) Grant(ctx context.Context, requester, patient id.Principal, condition Condition, attestation string, durationSeconds uint64, contacts []id.Principal) (Access, error) {
	// A zero principal cannot be attributed, so this is the one failure
	// that produces no audit entry.
	if requester.IsZero() || patient.IsZero() {
		return Access{}, dErrors.New(dErrors.CodeInvalidInput, "emergency grant requires a requester and a patient")
	}
	if err := validateGrantRequest(condition, attestation, durationSeconds); err != nil {
		return Access{}, s.recordFailure(ctx, requester, patient, nil, auditmodels.ActionEmergencyAccess, err)
	}
	if err := s.requireVerifiedOrAdmin(ctx, requester); err != nil {
		return Access{}, s.recordFailure(ctx, requester, patient, nil, auditmodels.ActionEmergencyAccess, err)
	}

	now := requestcontext.Now(ctx)
	access := Access{
		Patient:     patient,
		Requester:   requester,
		Condition:   condition,
		Attestation: attestation,
		GrantedAt:   now,
		ExpiresAt:   now.Add(time.Duration(durationSeconds) * time.Second),
		Status:      StatusActive,
		Contacts:    contacts,
	}
	access, err := s.store.Create(ctx, access)
	if err != nil {
		return Access{}, err
	}

	s.appendTrail(ctx, TrailEntry{AccessID: access.ID, Actor: requester, Action: TrailGranted, Timestamp: now})
	for _, contact := range contacts {
		s.appendTrail(ctx, TrailEntry{AccessID: access.ID, Actor: contact, Action: TrailNotified, Timestamp: now})
		s.publish(ctx, events.EmergencyContactNotified{
			GrantID:    access.ID,
			Patient:    patient,
			Contact:    contact.String(),
			NotifiedAt: now,
		})
	}

	s.appendAudit(ctx, auditmodels.Entry{
		Actor:   requester,
		Patient: patient,
		Action:  auditmodels.ActionEmergencyAccess,
		Result:  auditmodels.ResultSuccess,
		Reason:  "emergency access granted: " + condition.String(),
	})
	s.publish(ctx, events.EmergencyGranted{
		GrantID:   access.ID,
		Patient:   patient,
		Provider:  requester,
		Condition: condition.String(),
		ExpiresAt: access.ExpiresAt,
	})
	if s.metrics != nil {
		s.metrics.EmergencyGrantsTotal.Inc()
	}

	s.logger.InfoContext(ctx, "emergency access granted",
		"access_id", access.ID,
		"patient", patient,
		"requester", requester,
		"condition", condition,
		"expires_at", access.ExpiresAt,
	)
	return access, nil
}

// CheckAccess returns the newest grant usable by the requester for this
// patient right now, or nil. Pure read: it never changes stored state.
func (s *Service) CheckAccess(ctx context.Context, patient, requester id.Principal) (*Access, error) {
	grants, err := s.store.ListByPatient(ctx, patient)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var newest *Access
	for i := range grants {
		g := grants[i]
		if g.Requester != requester || !g.Usable(now) {
			continue
		}
		if newest == nil || g.ID > newest.ID {
			newest = &grants[i]
		}
	}
	return newest, nil
}

// Use exercises an emergency grant to touch a record. It runs against the
// newest grant that is usable right now, so a later revoked or lapsed grant
// never shadows an older one that still holds. When nothing is usable the
// newest grant for the pair explains the failure: each mode keeps its own
// error code so callers can distinguish "never granted" from "revoked" from
// "expired".
func (s *Service) Use(ctx context.Context, requester, patient id.Principal, recordID *id.RecordID) error {
	grant, err := s.CheckAccess(ctx, patient, requester)
	if err != nil {
		return err
	}
	if grant == nil {
		return s.denyUse(ctx, requester, patient, recordID)
	}
	now := requestcontext.Now(ctx)

	s.appendTrail(ctx, TrailEntry{AccessID: grant.ID, Actor: requester, Action: TrailAccessed, Timestamp: now})
	s.appendAudit(ctx, auditmodels.Entry{
		Actor:    requester,
		Patient:  patient,
		RecordID: recordID,
		Action:   auditmodels.ActionEmergencyAccess,
		Result:   auditmodels.ResultSuccess,
	})
	s.publish(ctx, events.EmergencyAccessed{
		GrantID:    grant.ID,
		Provider:   requester,
		RecordID:   derefRecordID(recordID),
		AccessedAt: now,
	})
	if s.metrics != nil {
		s.metrics.EmergencyUsesTotal.Inc()
	}
	return nil
}

// denyUse explains a use with no usable grant. The newest grant for the
// pair carries the explanation; an active grant past its deadline is
// transitioned to Expired here, whether or not a sweep ever ran. Every
// branch writes an audit entry.
func (s *Service) denyUse(ctx context.Context, requester, patient id.Principal, recordID *id.RecordID) error {
	grant, err := s.newestGrant(ctx, patient, requester)
	if err != nil {
		return err
	}
	if grant == nil {
		return s.recordFailure(ctx, requester, patient, recordID, auditmodels.ActionEmergencyAccess,
			dErrors.Newf(dErrors.CodeEmergencyDenied, "no emergency grant for %s on %s", requester, patient))
	}
	switch grant.Status {
	case StatusRevoked:
		return s.recordFailure(ctx, requester, patient, recordID, auditmodels.ActionEmergencyAccess,
			dErrors.Newf(dErrors.CodeEmergencyRevoked, "emergency grant %d is revoked", grant.ID))
	case StatusExpired:
		return s.recordFailure(ctx, requester, patient, recordID, auditmodels.ActionEmergencyAccess,
			dErrors.Newf(dErrors.CodeEmergencyExpired, "emergency grant %d has expired", grant.ID))
	}
	if err := s.expire(ctx, grant); err != nil {
		return err
	}
	return s.recordFailure(ctx, requester, patient, recordID, auditmodels.ActionEmergencyAccess,
		dErrors.Newf(dErrors.CodeEmergencyExpired, "emergency grant %d has expired", grant.ID))
}

// HasActiveGrant reports whether the requester currently holds a usable
// grant for the patient.
func (s *Service) HasActiveGrant(ctx context.Context, patient, requester id.Principal) (bool, error) {
	grant, err := s.CheckAccess(ctx, patient, requester)
	if err != nil {
		return false, err
	}
	return grant != nil, nil
}

// Revoke terminates an active grant. Only the patient, the requester or an
// admin may revoke. Revoking is not idempotent: revoking a revoked grant
// and revoking an expired grant are distinct errors.
func (s *Service) Revoke(ctx context.Context, caller id.Principal, accessID uint64) error {
	grant, ok, err := s.store.Get(ctx, accessID)
	if err != nil {
		return err
	}
	if !ok {
		// Unknown grant, so the entry carries the caller on both sides.
		return s.recordFailure(ctx, caller, caller, nil, auditmodels.ActionRevokeAccess,
			dErrors.Newf(dErrors.CodeNotFound, "emergency access %d not found", accessID))
	}

	if caller != grant.Patient && caller != grant.Requester {
		isAdmin, err := s.admin.IsAdmin(ctx, caller)
		if err != nil {
			return err
		}
		if !isAdmin {
			return s.recordFailure(ctx, caller, grant.Patient, nil, auditmodels.ActionRevokeAccess,
				dErrors.Newf(dErrors.CodeUnauthorized, "%s may not revoke emergency access %d", caller, accessID))
		}
	}

	next, err := grant.Status.transition(StatusRevoked)
	if err != nil {
		return s.recordFailure(ctx, caller, grant.Patient, nil, auditmodels.ActionRevokeAccess, err)
	}
	grant.Status = next
	if err := s.store.Update(ctx, grant); err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	s.appendTrail(ctx, TrailEntry{AccessID: grant.ID, Actor: caller, Action: TrailRevoked, Timestamp: now})
	s.appendAudit(ctx, auditmodels.Entry{
		Actor:   caller,
		Patient: grant.Patient,
		Action:  auditmodels.ActionRevokeAccess,
		Result:  auditmodels.ResultSuccess,
		Reason:  "emergency access revoked",
	})
	s.publish(ctx, events.EmergencyRevoked{
		GrantID:   grant.ID,
		Patient:   grant.Patient,
		Provider:  grant.Requester,
		RevokedBy: caller,
		RevokedAt: now,
	})
	if s.metrics != nil {
		s.metrics.EmergencyRevokedTotal.Inc()
	}

	s.logger.InfoContext(ctx, "emergency access revoked",
		"access_id", grant.ID,
		"revoked_by", caller,
	)
	return nil
}

// ExpireSweep transitions every active grant past its deadline and returns
// how many it moved. Use-time expiry does not depend on this; the sweep
// only keeps listings tidy.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	now := requestcontext.Now(ctx)
	expired := 0
	for i := range active {
		if now.Before(active[i].ExpiresAt) {
			continue
		}
		if err := s.expire(ctx, &active[i]); err != nil {
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "emergency grants expired", "count", expired)
	}
	return expired, nil
}

// Get returns one grant, or NotFound.
func (s *Service) Get(ctx context.Context, accessID uint64) (Access, error) {
	grant, ok, err := s.store.Get(ctx, accessID)
	if err != nil {
		return Access{}, err
	}
	if !ok {
		return Access{}, dErrors.Newf(dErrors.CodeNotFound, "emergency access %d not found", accessID)
	}
	return grant, nil
}

// ListByPatient returns the patient's currently usable grants.
func (s *Service) ListByPatient(ctx context.Context, patient id.Principal) ([]Access, error) {
	grants, err := s.store.ListByPatient(ctx, patient)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	out := make([]Access, 0, len(grants))
	for _, g := range grants {
		if g.Usable(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

// Trail returns a grant's action history in append order.
func (s *Service) Trail(ctx context.Context, accessID uint64) ([]TrailEntry, error) {
	if _, ok, err := s.store.Get(ctx, accessID); err != nil {
		return nil, err
	} else if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "emergency access %d not found", accessID)
	}
	return s.store.Trail(ctx, accessID)
}

func (s *Service) newestGrant(ctx context.Context, patient, requester id.Principal) (*Access, error) {
	grants, err := s.store.ListByPatient(ctx, patient)
	if err != nil {
		return nil, err
	}
	var newest *Access
	for i := range grants {
		if grants[i].Requester != requester {
			continue
		}
		if newest == nil || grants[i].ID > newest.ID {
			newest = &grants[i]
		}
	}
	return newest, nil
}

func (s *Service) expire(ctx context.Context, grant *Access) error {
	next, err := grant.Status.transition(StatusExpired)
	if err != nil {
		return err
	}
	grant.Status = next
	if err := s.store.Update(ctx, *grant); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.EmergencyExpiredTotal.Inc()
	}
	return nil
}

// appendTrail tolerates a full trail: the grant keeps working, the history
// just stops growing.
func (s *Service) appendTrail(ctx context.Context, entry TrailEntry) {
	if err := s.store.AppendTrail(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "trail append rejected",
			"access_id", entry.AccessID,
			"action", entry.Action,
			"error", err,
		)
	}
}

// appendAudit writes the top-level audit entry for an emergency action.
// Audit failures are logged, not propagated: the clinical outcome of the
// call must not depend on audit storage.
func (s *Service) appendAudit(ctx context.Context, entry auditmodels.Entry) {
	if _, err := s.auditor.Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed",
			"actor", entry.Actor,
			"action", entry.Action,
			"error", err,
		)
	}
}

// recordFailure audits a failed emergency action and hands the error back.
func (s *Service) recordFailure(ctx context.Context, actor, patient id.Principal, recordID *id.RecordID, action auditmodels.Action, err error) error {
	s.appendAudit(ctx, auditmodels.Entry{
		Actor:    actor,
		Patient:  patient,
		RecordID: recordID,
		Action:   action,
		Result:   failureResult(err),
		Reason:   err.Error(),
	})
	return err
}

func failureResult(err error) auditmodels.Result {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnauthorized, dErrors.CodeEmergencyDenied, dErrors.CodeEmergencyRevoked:
		return auditmodels.ResultDenied
	case dErrors.CodeEmergencyExpired:
		return auditmodels.ResultExpired
	case dErrors.CodeNotFound:
		return auditmodels.ResultNotFound
	default:
		return auditmodels.ResultFailure
	}
}

func validateGrantRequest(condition Condition, attestation string, durationSeconds uint64) error {
	if !condition.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown emergency condition %q", condition)
	}
	if attestation == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "emergency grant requires an attestation")
	}
	return validateDuration(durationSeconds)
}

func (s *Service) requireVerifiedOrAdmin(ctx context.Context, requester id.Principal) error {
	verified, err := s.verifier.IsVerified(ctx, requester)
	if err != nil {
		return err
	}
	if verified {
		return nil
	}
	isAdmin, err := s.admin.IsAdmin(ctx, requester)
	if err != nil {
		return err
	}
	if !isAdmin {
		return dErrors.Newf(dErrors.CodeUnauthorized, "%s is not a verified provider", requester)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "emergency event publish failed",
			"topic", event.Topic(),
			"error", err,
		)
	}
}

func derefRecordID(rid *id.RecordID) id.RecordID {
	if rid == nil {
		return 0
	}
	return *rid
}
