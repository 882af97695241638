package access

import (
	"context"
	"log/slog"
	"time"

	"medgate/internal/events"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

// AdminChecker answers whether a principal holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, principal id.Principal) (bool, error)
}

type Service struct {
	store     Store
	admin     AdminChecker
	logger    *slog.Logger
	publisher events.Publisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(store Store, admin AdminChecker, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "access service requires a store")
	}
	if admin == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "access service requires an admin checker")
	}
	s := &Service{store: store, admin: admin, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Grant gives grantee time-boxed access to the patient's records. Only the
// patient or an admin may grant.
func (s *Service) Grant(ctx context.Context, caller, patient, grantee id.Principal, level Level, durationSeconds uint64) error {
	if err := s.requirePatientOrAdmin(ctx, caller, patient); err != nil {
		return err
	}
	if grantee.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "grant requires a grantee")
	}
	if !level.IsValid() || level == LevelNone {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid grant level %q", level)
	}
	if err := validateDuration(durationSeconds); err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	grant := Grant{
		Patient:   patient,
		Grantee:   grantee,
		Level:     level,
		GrantedAt: now,
		ExpiresAt: now.Add(time.Duration(durationSeconds) * time.Second),
	}
	if err := s.store.Put(ctx, grant); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "access granted",
		"patient", patient,
		"grantee", grantee,
		"level", level,
		"expires_at", grant.ExpiresAt,
	)
	s.publish(ctx, events.AccessGranted{
		Patient:   patient,
		Grantee:   grantee,
		Level:     level.String(),
		ExpiresAt: grant.ExpiresAt,
	})
	return nil
}

// Check returns the grantee's current level for the patient's records:
// the granted level while the grant is unexpired, None otherwise.
func (s *Service) Check(ctx context.Context, patient, grantee id.Principal) (Level, error) {
	grant, ok, err := s.store.Get(ctx, patient, grantee)
	if err != nil {
		return LevelNone, err
	}
	if !ok || !grant.ActiveAt(requestcontext.Now(ctx)) {
		return LevelNone, nil
	}
	return grant.Level, nil
}

// Revoke removes the grantee's access. Only the patient or an admin may
// revoke. Revoking a missing grant is NotFound.
func (s *Service) Revoke(ctx context.Context, caller, patient, grantee id.Principal) error {
	if err := s.requirePatientOrAdmin(ctx, caller, patient); err != nil {
		return err
	}
	removed, err := s.store.Delete(ctx, patient, grantee)
	if err != nil {
		return err
	}
	if !removed {
		return dErrors.Newf(dErrors.CodeNotFound, "no grant from %s to %s", patient, grantee)
	}

	s.logger.InfoContext(ctx, "access revoked",
		"patient", patient,
		"grantee", grantee,
		"revoked_by", caller,
	)
	s.publish(ctx, events.AccessRevoked{Patient: patient, Grantee: grantee})
	return nil
}

// ListByPatient returns every grant on the patient's records, expired ones
// included.
func (s *Service) ListByPatient(ctx context.Context, patient id.Principal) ([]Grant, error) {
	return s.store.ListByPatient(ctx, patient)
}

func (s *Service) requirePatientOrAdmin(ctx context.Context, caller, patient id.Principal) error {
	if caller == patient {
		return nil
	}
	isAdmin, err := s.admin.IsAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if !isAdmin {
		return dErrors.Newf(dErrors.CodeUnauthorized, "%s may not manage access for %s", caller, patient)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "access event publish failed",
			"topic", event.Topic(),
			"error", err,
		)
	}
}
