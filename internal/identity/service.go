package identity

import (
	"context"
	"log/slog"

	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService builds the registry and seeds the bootstrap admin so the first
// admin-gated call has someone to act as.
func NewService(ctx context.Context, store Store, bootstrapAdmin id.Principal, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity service requires a store")
	}
	if bootstrapAdmin.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity service requires a bootstrap admin")
	}
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := store.Set(ctx, bootstrapAdmin, RoleAdmin); err != nil {
		return nil, err
	}
	return s, nil
}

// Register assigns a role to a principal. Admin only.
func (s *Service) Register(ctx context.Context, caller, principal id.Principal, role Role) error {
	isAdmin, err := s.IsAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if !isAdmin {
		return dErrors.Newf(dErrors.CodeUnauthorized, "%s is not an admin", caller)
	}
	if principal.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "registration requires a principal")
	}
	if !role.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", role)
	}
	if err := s.store.Set(ctx, principal, role); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "principal registered",
		"principal", principal,
		"role", role,
		"registered_by", caller,
	)
	return nil
}

// RoleOf returns the principal's role, or NotFound if never registered.
func (s *Service) RoleOf(ctx context.Context, principal id.Principal) (Role, error) {
	role, ok, err := s.store.Get(ctx, principal)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", dErrors.Newf(dErrors.CodeNotFound, "principal %s is not registered", principal)
	}
	return role, nil
}

// IsAdmin reports whether the principal holds the admin role. Unregistered
// principals are simply not admins.
func (s *Service) IsAdmin(ctx context.Context, principal id.Principal) (bool, error) {
	role, ok, err := s.store.Get(ctx, principal)
	if err != nil {
		return false, err
	}
	return ok && role == RoleAdmin, nil
}
