package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medgate/internal/events"
	"medgate/internal/identity"
	"medgate/internal/ratelimit/models"
	"medgate/internal/ratelimit/service"
	"medgate/internal/ratelimit/store/memory"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

const (
	adminID   = id.Principal("admin")
	drAdams   = id.Principal("dr-adams")
	drBaker   = id.Principal("dr-baker")
	addRecord = "add_record"
)

type ServiceSuite struct {
	suite.Suite

	counters  *memory.CounterStore
	publisher *events.Memory
	svc       *service.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	ids, err := identity.NewService(context.Background(), identity.NewMemoryStore(), adminID)
	s.Require().NoError(err)

	s.counters = memory.NewCounterStore()
	s.publisher = events.NewMemory()
	s.svc, err = service.NewService(
		memory.NewConfigStore(), s.counters, memory.NewBypassStore(), ids,
		service.WithPublisher(s.publisher),
	)
	s.Require().NoError(err)
}

func ctxAt(unix int64) context.Context {
	return requestcontext.WithTime(context.Background(), time.Unix(unix, 0).UTC())
}

func (s *ServiceSuite) setConfig(operation string, maxRequests uint32, windowSeconds uint64) {
	err := s.svc.SetConfig(ctxAt(0), adminID, models.Config{
		Operation:     operation,
		MaxRequests:   maxRequests,
		WindowSeconds: windowSeconds,
	})
	s.Require().NoError(err)
}

// === CheckAndIncrement ===

func (s *ServiceSuite) TestLimitEnforcedThenWindowRolls() {
	s.setConfig(addRecord, 5, 3600)

	for i := 0; i < 5; i++ {
		s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord))
	}

	err := s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord)
	s.Error(err)
	s.True(dErrors.Is(err, dErrors.CodeRateLimitExceeded))

	// Still inside the window one hour minus a second later.
	err = s.svc.CheckAndIncrement(ctxAt(1000+3599), drAdams, addRecord)
	s.True(dErrors.Is(err, dErrors.CodeRateLimitExceeded))

	// Past the window the next call starts a fresh one.
	s.NoError(s.svc.CheckAndIncrement(ctxAt(1000+3601), drAdams, addRecord))

	status, err := s.svc.GetStatus(ctxAt(1000+3601), drAdams, addRecord)
	s.Require().NoError(err)
	s.Equal(uint32(1), status.CurrentCount)
	s.Equal(time.Unix(4601, 0).UTC(), status.WindowStart)
}

func (s *ServiceSuite) TestWindowResetsExactlyAtBoundary() {
	s.setConfig(addRecord, 1, 10)

	s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord))
	s.True(dErrors.Is(s.svc.CheckAndIncrement(ctxAt(1005), drAdams, addRecord), dErrors.CodeRateLimitExceeded))
	s.True(dErrors.Is(s.svc.CheckAndIncrement(ctxAt(1009), drAdams, addRecord), dErrors.CodeRateLimitExceeded))

	// Window [1000, 1010) has lapsed by 1011.
	s.NoError(s.svc.CheckAndIncrement(ctxAt(1011), drAdams, addRecord))
}

func (s *ServiceSuite) TestDenialDoesNotSlideWindow() {
	s.setConfig(addRecord, 2, 100)

	s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord))
	s.NoError(s.svc.CheckAndIncrement(ctxAt(1001), drAdams, addRecord))

	// Hammering inside the window must not move its start or its count.
	for _, at := range []int64{1050, 1060, 1070, 1099} {
		s.True(dErrors.Is(s.svc.CheckAndIncrement(ctxAt(at), drAdams, addRecord), dErrors.CodeRateLimitExceeded))
	}
	counter, ok, err := s.counters.Get(context.Background(), drAdams, addRecord)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(uint32(2), counter.CurrentCount)
	s.Equal(time.Unix(1000, 0).UTC(), counter.WindowStart)

	// The original window still ends at 1100 under sustained denials.
	s.NoError(s.svc.CheckAndIncrement(ctxAt(1100), drAdams, addRecord))
}

func (s *ServiceSuite) TestUnconfiguredOperationIsUnthrottled() {
	for i := 0; i < 50; i++ {
		s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, "bulk_export"))
	}
}

func (s *ServiceSuite) TestPrincipalsAndOperationsAreIndependent() {
	s.setConfig(addRecord, 1, 3600)
	s.setConfig("get_record", 1, 3600)

	s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord))
	s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drBaker, addRecord))
	s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, "get_record"))

	s.True(dErrors.Is(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord), dErrors.CodeRateLimitExceeded))
}

func (s *ServiceSuite) TestDenialPublishesEvent() {
	s.setConfig(addRecord, 1, 3600)
	s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord))
	s.Error(s.svc.CheckAndIncrement(ctxAt(1001), drAdams, addRecord))

	published := s.publisher.ByTopic(events.RateLimitExceeded{}.Topic())
	s.Require().Len(published, 1)
	exceeded := published[0].(events.RateLimitExceeded)
	s.Equal(drAdams, exceeded.Principal)
	s.Equal(addRecord, exceeded.Operation)
}

// === Bypass ===

func (s *ServiceSuite) TestVerifiedBypassSkipsWindow() {
	s.setConfig(addRecord, 10, 3600)
	s.Require().NoError(s.svc.SetBypass(ctxAt(0), adminID, drAdams, true))

	for i := 0; i < 15; i++ {
		s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord))
	}

	// The bypass never touched the counter.
	_, ok, err := s.counters.Get(context.Background(), drAdams, addRecord)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ServiceSuite) TestBypassClearedRestoresLimit() {
	s.setConfig(addRecord, 2, 3600)
	s.Require().NoError(s.svc.SyncVerifiedBypass(ctxAt(0), drAdams, true))
	for i := 0; i < 5; i++ {
		s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord))
	}

	s.Require().NoError(s.svc.SyncVerifiedBypass(ctxAt(0), drAdams, false))
	s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord))
	s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord))
	s.True(dErrors.Is(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord), dErrors.CodeRateLimitExceeded))
}

// === Admin gating ===

func (s *ServiceSuite) TestSetConfigRequiresAdmin() {
	err := s.svc.SetConfig(ctxAt(0), drAdams, models.Config{
		Operation: addRecord, MaxRequests: 5, WindowSeconds: 3600,
	})
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestSetBypassRequiresAdmin() {
	err := s.svc.SetBypass(ctxAt(0), drAdams, drBaker, true)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestSetConfigValidates() {
	s.True(dErrors.Is(s.svc.SetConfig(ctxAt(0), adminID, models.Config{
		Operation: addRecord, MaxRequests: 0, WindowSeconds: 3600,
	}), dErrors.CodeInvalidInput))
	s.True(dErrors.Is(s.svc.SetConfig(ctxAt(0), adminID, models.Config{
		Operation: addRecord, MaxRequests: 5, WindowSeconds: 0,
	}), dErrors.CodeInvalidInput))
	s.True(dErrors.Is(s.svc.SetConfig(ctxAt(0), adminID, models.Config{
		MaxRequests: 5, WindowSeconds: 3600,
	}), dErrors.CodeInvalidInput))
}

// === Status ===

func (s *ServiceSuite) TestStatusReportsStaleWindowAsIs() {
	s.setConfig(addRecord, 5, 100)
	s.NoError(s.svc.CheckAndIncrement(ctxAt(1000), drAdams, addRecord))
	s.NoError(s.svc.CheckAndIncrement(ctxAt(1001), drAdams, addRecord))

	// Long after the window lapsed, nothing has rolled it: the stored
	// counts and a reset time in the past are reported untouched.
	status, err := s.svc.GetStatus(ctxAt(5000), drAdams, addRecord)
	s.Require().NoError(err)
	s.Equal(uint32(2), status.CurrentCount)
	s.Equal(time.Unix(1000, 0).UTC(), status.WindowStart)
	s.Equal(time.Unix(1100, 0).UTC(), status.ResetAt)
}

func (s *ServiceSuite) TestStatusZeroBeforeFirstCall() {
	s.setConfig(addRecord, 5, 100)
	status, err := s.svc.GetStatus(ctxAt(1000), drAdams, addRecord)
	s.Require().NoError(err)
	s.Equal(uint32(0), status.CurrentCount)
	s.Equal(uint32(5), status.MaxRequests)
}

func (s *ServiceSuite) TestStatusUnknownOperation() {
	_, err := s.svc.GetStatus(ctxAt(1000), drAdams, "unknown")
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}
