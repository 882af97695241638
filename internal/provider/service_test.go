package provider_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medgate/internal/events"
	"medgate/internal/identity"
	"medgate/internal/provider"
	ratelimitmodels "medgate/internal/ratelimit/models"
	ratelimitservice "medgate/internal/ratelimit/service"
	ratelimitmemory "medgate/internal/ratelimit/store/memory"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

const (
	adminID = id.Principal("admin")
	drChen  = id.Principal("dr-chen")
)

type ServiceSuite struct {
	suite.Suite

	limiter   *ratelimitservice.Service
	publisher *events.Memory
	svc       *provider.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	ids, err := identity.NewService(context.Background(), identity.NewMemoryStore(), adminID)
	s.Require().NoError(err)

	s.limiter, err = ratelimitservice.NewService(
		ratelimitmemory.NewConfigStore(), ratelimitmemory.NewCounterStore(), ratelimitmemory.NewBypassStore(), ids)
	s.Require().NoError(err)

	s.publisher = events.NewMemory()
	s.svc, err = provider.NewService(provider.NewMemoryStore(), ids, s.limiter,
		provider.WithPublisher(s.publisher))
	s.Require().NoError(err)
}

func ctxAt(unix int64) context.Context {
	return requestcontext.WithTime(context.Background(), time.Unix(unix, 0).UTC())
}

// === Registration ===

func (s *ServiceSuite) TestRegisterStartsPending() {
	s.Require().NoError(s.svc.Register(ctxAt(1000), adminID, drChen, "Dr. Chen"))

	p, err := s.svc.Get(ctxAt(1000), drChen)
	s.Require().NoError(err)
	s.Equal(provider.StatusPending, p.Status)
	s.Equal(time.Unix(1000, 0).UTC(), p.RegisteredAt)

	verified, err := s.svc.IsVerified(ctxAt(1000), drChen)
	s.Require().NoError(err)
	s.False(verified)
}

func (s *ServiceSuite) TestRegisterRequiresAdmin() {
	err := s.svc.Register(ctxAt(1000), drChen, drChen, "Dr. Chen")
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestRegisterRejectsDuplicates() {
	s.Require().NoError(s.svc.Register(ctxAt(1000), adminID, drChen, "Dr. Chen"))
	err := s.svc.Register(ctxAt(1001), adminID, drChen, "Dr. Chen")
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
}

// === Verification and the rate-limit bypass ===

func (s *ServiceSuite) TestVerifiedProviderBypassesRateLimit() {
	err := s.limiter.SetConfig(ctxAt(0), adminID, ratelimitmodels.Config{
		Operation: "add_record", MaxRequests: 10, WindowSeconds: 3600,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Register(ctxAt(1000), adminID, drChen, "Dr. Chen"))
	s.Require().NoError(s.svc.Verify(ctxAt(1100), adminID, drChen, provider.StatusVerified))

	// Well past the configured limit, every call is admitted.
	for i := 0; i < 15; i++ {
		s.NoError(s.limiter.CheckAndIncrement(ctxAt(2000), drChen, "add_record"))
	}

	p, err := s.svc.Get(ctxAt(2000), drChen)
	s.Require().NoError(err)
	s.Require().NotNil(p.VerifiedAt)
	s.Equal(adminID, *p.VerifiedBy)
}

func (s *ServiceSuite) TestSuspensionClearsBypass() {
	err := s.limiter.SetConfig(ctxAt(0), adminID, ratelimitmodels.Config{
		Operation: "add_record", MaxRequests: 2, WindowSeconds: 3600,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Register(ctxAt(1000), adminID, drChen, "Dr. Chen"))
	s.Require().NoError(s.svc.Verify(ctxAt(1100), adminID, drChen, provider.StatusVerified))
	s.Require().NoError(s.svc.Verify(ctxAt(1200), adminID, drChen, provider.StatusSuspended))

	s.NoError(s.limiter.CheckAndIncrement(ctxAt(2000), drChen, "add_record"))
	s.NoError(s.limiter.CheckAndIncrement(ctxAt(2000), drChen, "add_record"))
	s.True(dErrors.Is(s.limiter.CheckAndIncrement(ctxAt(2000), drChen, "add_record"), dErrors.CodeRateLimitExceeded))

	p, err := s.svc.Get(ctxAt(2000), drChen)
	s.Require().NoError(err)
	s.Nil(p.VerifiedAt)
	s.Nil(p.VerifiedBy)
}

func (s *ServiceSuite) TestVerifyRequiresAdminAndRegistration() {
	s.Require().NoError(s.svc.Register(ctxAt(1000), adminID, drChen, "Dr. Chen"))

	err := s.svc.Verify(ctxAt(1100), drChen, drChen, provider.StatusVerified)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))

	err = s.svc.Verify(ctxAt(1100), adminID, id.Principal("dr-ghost"), provider.StatusVerified)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestVerifyPublishesEvent() {
	s.Require().NoError(s.svc.Register(ctxAt(1000), adminID, drChen, "Dr. Chen"))
	s.Require().NoError(s.svc.Verify(ctxAt(1100), adminID, drChen, provider.StatusVerified))

	published := s.publisher.ByTopic(events.ProviderVerified{}.Topic())
	s.Require().Len(published, 1)
	event := published[0].(events.ProviderVerified)
	s.Equal(drChen, event.Provider)
	s.Equal(provider.StatusVerified.String(), event.Status)
}
