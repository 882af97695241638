package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medgate/internal/audit/models"
	"medgate/internal/audit/service"
	"medgate/internal/audit/store/memory"
	"medgate/internal/events"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	publisher *events.Memory
	svc       *service.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.publisher = events.NewMemory()
	svc, err := service.NewService(memory.NewStore(), service.WithPublisher(s.publisher))
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) TestAppendStampsFromRequestContext() {
	ctx := requestcontext.WithTime(context.Background(), time.Unix(1000, 0).UTC())
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.9", "Chrome/126.0")

	entry, err := s.svc.Append(ctx, models.Entry{
		Actor:   id.Principal("dr-adams"),
		Patient: id.Principal("patient-1"),
		Action:  models.ActionRead,
		Result:  models.ResultSuccess,
	})
	s.Require().NoError(err)

	s.Equal(uint64(1), entry.ID)
	s.Equal(time.Unix(1000, 0).UTC(), entry.Timestamp)
	s.Equal("10.0.0.9", entry.IPAddress)
	s.Equal("Chrome/126.0", entry.UserAgent)

	published := s.publisher.ByTopic(events.AuditEntryCreated{}.Topic())
	s.Require().Len(published, 1)
	created := published[0].(events.AuditEntryCreated)
	s.Equal(entry.ID, created.EntryID)
}

func (s *ServiceSuite) TestAppendValidates() {
	ctx := context.Background()

	_, err := s.svc.Append(ctx, models.Entry{
		Patient: id.Principal("patient-1"),
		Action:  models.ActionRead,
		Result:  models.ResultSuccess,
	})
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

	_, err = s.svc.Append(ctx, models.Entry{
		Actor:   id.Principal("dr-adams"),
		Patient: id.Principal("patient-1"),
		Action:  models.Action("PEEK"),
		Result:  models.ResultSuccess,
	})
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestListByTimeRangeRejectsInvertedRange() {
	_, err := s.svc.ListByTimeRange(context.Background(), models.TimeRange{
		Start: time.Unix(2000, 0).UTC(),
		End:   time.Unix(1000, 0).UTC(),
	})
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
}
