package provider

import (
	"context"
	"log/slog"

	"medgate/internal/events"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

// AdminChecker answers whether a principal holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, principal id.Principal) (bool, error)
}

// BypassSyncer aligns the rate-limit bypass flag with verification
// transitions. Implemented by the rate limiter.
type BypassSyncer interface {
	SyncVerifiedBypass(ctx context.Context, principal id.Principal, verified bool) error
}

type Service struct {
	store     Store
	admin     AdminChecker
	bypass    BypassSyncer
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

func NewService(store Store, admin AdminChecker, bypass BypassSyncer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "provider service requires a store")
	}
	if admin == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "provider service requires an admin checker")
	}
	if bypass == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "provider service requires a bypass syncer")
	}
	s := &Service{store: store, admin: admin, bypass: bypass, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register enrolls a provider in Pending status. Admin only.
func (s *Service) Register(ctx context.Context, caller, principal id.Principal, name string) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if principal.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "provider registration requires a principal")
	}
	if name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "provider registration requires a name")
	}
	if _, exists, err := s.store.Get(ctx, principal); err != nil {
		return err
	} else if exists {
		return dErrors.Newf(dErrors.CodeInvalidInput, "provider %s is already registered", principal)
	}

	p := Provider{
		Principal:    principal,
		Name:         name,
		Status:       StatusPending,
		RegisteredAt: requestcontext.Now(ctx),
	}
	if err := s.store.Put(ctx, p); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "provider registered",
		"provider", principal,
		"registered_by", caller,
	)
	return nil
}

// Verify moves a provider to a new verification status. Admin only.
// Landing on Verified turns the rate-limit bypass on; leaving it turns the
// bypass off.
func (s *Service) Verify(ctx context.Context, caller, principal id.Principal, status VerificationStatus) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if !status.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown verification status %q", status)
	}

	p, exists, err := s.store.Get(ctx, principal)
	if err != nil {
		return err
	}
	if !exists {
		return dErrors.Newf(dErrors.CodeNotFound, "provider %s is not registered", principal)
	}

	p.Status = status
	if status == StatusVerified {
		now := requestcontext.Now(ctx)
		p.VerifiedAt = &now
		p.VerifiedBy = &caller
	} else {
		p.VerifiedAt = nil
		p.VerifiedBy = nil
	}
	if err := s.store.Put(ctx, p); err != nil {
		return err
	}

	if err := s.bypass.SyncVerifiedBypass(ctx, principal, status == StatusVerified); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "provider verification updated",
		"provider", principal,
		"status", status,
		"verified_by", caller,
	)
	s.publish(ctx, events.ProviderVerified{
		Provider:   principal,
		Status:     status.String(),
		VerifiedBy: caller,
	})
	return nil
}

// Get returns the provider's registration, or NotFound.
func (s *Service) Get(ctx context.Context, principal id.Principal) (Provider, error) {
	p, exists, err := s.store.Get(ctx, principal)
	if err != nil {
		return Provider{}, err
	}
	if !exists {
		return Provider{}, dErrors.Newf(dErrors.CodeNotFound, "provider %s is not registered", principal)
	}
	return p, nil
}

// IsVerified reports whether the principal is a Verified provider.
// Unregistered principals are simply not verified.
func (s *Service) IsVerified(ctx context.Context, principal id.Principal) (bool, error) {
	p, exists, err := s.store.Get(ctx, principal)
	if err != nil {
		return false, err
	}
	return exists && p.Status == StatusVerified, nil
}

func (s *Service) requireAdmin(ctx context.Context, caller id.Principal) error {
	isAdmin, err := s.admin.IsAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if !isAdmin {
		return dErrors.Newf(dErrors.CodeUnauthorized, "%s is not an admin", caller)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "provider event publish failed",
			"topic", event.Topic(),
			"error", err,
		)
	}
}
