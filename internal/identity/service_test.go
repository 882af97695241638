package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"medgate/internal/identity"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

const (
	adminID = id.Principal("admin")
	alice   = id.Principal("alice")
)

type ServiceSuite struct {
	suite.Suite
	svc *identity.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	svc, err := identity.NewService(context.Background(), identity.NewMemoryStore(), adminID)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) TestBootstrapAdminIsSeeded() {
	isAdmin, err := s.svc.IsAdmin(context.Background(), adminID)
	s.Require().NoError(err)
	s.True(isAdmin)

	role, err := s.svc.RoleOf(context.Background(), adminID)
	s.Require().NoError(err)
	s.Equal(identity.RoleAdmin, role)
}

func (s *ServiceSuite) TestRegisterIsAdminGated() {
	ctx := context.Background()

	err := s.svc.Register(ctx, alice, alice, identity.RolePatient)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))

	s.Require().NoError(s.svc.Register(ctx, adminID, alice, identity.RolePatient))
	role, err := s.svc.RoleOf(ctx, alice)
	s.Require().NoError(err)
	s.Equal(identity.RolePatient, role)
}

func (s *ServiceSuite) TestUnregisteredPrincipal() {
	ctx := context.Background()

	_, err := s.svc.RoleOf(ctx, id.Principal("ghost"))
	s.True(dErrors.Is(err, dErrors.CodeNotFound))

	isAdmin, err := s.svc.IsAdmin(ctx, id.Principal("ghost"))
	s.Require().NoError(err)
	s.False(isAdmin)
}

func (s *ServiceSuite) TestRegisterValidates() {
	ctx := context.Background()

	err := s.svc.Register(ctx, adminID, id.Principal(""), identity.RolePatient)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

	err = s.svc.Register(ctx, adminID, alice, identity.Role("WIZARD"))
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
}
