package emergency_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	auditmodels "medgate/internal/audit/models"
	auditservice "medgate/internal/audit/service"
	auditmemory "medgate/internal/audit/store/memory"
	"medgate/internal/emergency"
	"medgate/internal/events"
	"medgate/internal/identity"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

const (
	adminID = id.Principal("admin")
	patient = id.Principal("patient-1")
	drLee   = id.Principal("dr-lee")
	contact = id.Principal("spouse-1")
)

type stubVerifier map[id.Principal]bool

func (v stubVerifier) IsVerified(_ context.Context, p id.Principal) (bool, error) {
	return v[p], nil
}

type ServiceSuite struct {
	suite.Suite

	store      *emergency.MemoryStore
	verifier   stubVerifier
	auditStore *auditmemory.Store
	publisher  *events.Memory
	svc        *emergency.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	ids, err := identity.NewService(context.Background(), identity.NewMemoryStore(), adminID)
	s.Require().NoError(err)

	s.store = emergency.NewMemoryStore()
	s.verifier = stubVerifier{drLee: true}
	s.auditStore = auditmemory.NewStore()
	s.publisher = events.NewMemory()

	auditSvc, err := auditservice.NewService(s.auditStore)
	s.Require().NoError(err)

	s.svc, err = emergency.NewService(s.store, s.verifier, ids, auditSvc,
		emergency.WithPublisher(s.publisher))
	s.Require().NoError(err)
}

func ctxAt(unix int64) context.Context {
	return requestcontext.WithTime(context.Background(), time.Unix(unix, 0).UTC())
}

func (s *ServiceSuite) grantAt(unix int64, durationSeconds uint64) emergency.Access {
	access, err := s.svc.Grant(ctxAt(unix), drLee, patient,
		emergency.ConditionLifeThreatening, "attending physician, patient unconscious on arrival",
		durationSeconds, []id.Principal{contact})
	s.Require().NoError(err)
	return access
}

// === Grant ===

func (s *ServiceSuite) TestGrantCreatesActiveAccess() {
	access := s.grantAt(1000, 3600)

	s.Equal(uint64(1), access.ID)
	s.Equal(emergency.StatusActive, access.Status)
	s.Equal(time.Unix(1000, 0).UTC(), access.GrantedAt)
	s.Equal(time.Unix(4600, 0).UTC(), access.ExpiresAt)

	trail, err := s.svc.Trail(ctxAt(1000), access.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 2)
	s.Equal(emergency.TrailGranted, trail[0].Action)
	s.Equal(drLee, trail[0].Actor)
	s.Equal(emergency.TrailNotified, trail[1].Action)
	s.Equal(contact, trail[1].Actor)

	s.Len(s.publisher.ByTopic(events.EmergencyGranted{}.Topic()), 1)
	s.Len(s.publisher.ByTopic(events.EmergencyContactNotified{}.Topic()), 1)

	entries, err := s.auditStore.ListByActor(context.Background(), drLee)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(auditmodels.ActionEmergencyAccess, entries[0].Action)
	s.Equal(auditmodels.ResultSuccess, entries[0].Result)
}

func (s *ServiceSuite) TestGrantByAdminWithoutVerification() {
	_, err := s.svc.Grant(ctxAt(1000), adminID, patient,
		emergency.ConditionMassCasualties, "incident commander authorization", 600, nil)
	s.NoError(err)
}

func (s *ServiceSuite) TestGrantValidation() {
	unverified := id.Principal("dr-unknown")

	_, err := s.svc.Grant(ctxAt(1000), unverified, patient,
		emergency.ConditionUnconscious, "attestation", 600, nil)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))

	_, err = s.svc.Grant(ctxAt(1000), drLee, patient,
		emergency.ConditionUnconscious, "", 600, nil)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

	_, err = s.svc.Grant(ctxAt(1000), drLee, patient,
		emergency.ConditionUnconscious, "attestation", 0, nil)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

	_, err = s.svc.Grant(ctxAt(1000), drLee, patient,
		emergency.ConditionUnconscious, "attestation", 86401, nil)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

	_, err = s.svc.Grant(ctxAt(1000), drLee, patient,
		emergency.Condition("SNIFFLES"), "attestation", 600, nil)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestGrantFailuresAreAudited() {
	_, err := s.svc.Grant(ctxAt(1000), id.Principal("dr-unknown"), patient,
		emergency.ConditionUnconscious, "attestation", 600, nil)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))

	_, err = s.svc.Grant(ctxAt(1000), drLee, patient,
		emergency.ConditionUnconscious, "", 600, nil)
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

	entries, err := s.auditStore.ListByPatient(context.Background(), patient)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(auditmodels.ActionEmergencyAccess, entries[0].Action)
	s.Equal(auditmodels.ResultDenied, entries[0].Result)
	s.Equal(auditmodels.ResultFailure, entries[1].Result)
}

// === Use ===

func (s *ServiceSuite) TestUseInsideWindowThenLazyExpiry() {
	s.grantAt(1000, 3600)

	// One second before the deadline the grant still works.
	s.NoError(s.svc.Use(ctxAt(4599), drLee, patient, nil))

	// One second after, the use itself expires the grant. No sweep ran.
	err := s.svc.Use(ctxAt(4601), drLee, patient, nil)
	s.True(dErrors.Is(err, dErrors.CodeEmergencyExpired))

	got, err := s.svc.Get(ctxAt(4601), 1)
	s.Require().NoError(err)
	s.Equal(emergency.StatusExpired, got.Status)

	// Later uses keep reporting expiry rather than "no grant".
	err = s.svc.Use(ctxAt(5000), drLee, patient, nil)
	s.True(dErrors.Is(err, dErrors.CodeEmergencyExpired))
}

func (s *ServiceSuite) TestUseWithoutGrantIsDenied() {
	err := s.svc.Use(ctxAt(1000), drLee, patient, nil)
	s.True(dErrors.Is(err, dErrors.CodeEmergencyDenied))

	entries, err := s.auditStore.ListByActor(context.Background(), drLee)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(auditmodels.ResultDenied, entries[0].Result)
}

func (s *ServiceSuite) TestUseAppendsAccessedAndAudit() {
	access := s.grantAt(1000, 3600)
	rid := id.RecordID(42)
	s.NoError(s.svc.Use(ctxAt(2000), drLee, patient, &rid))

	trail, err := s.svc.Trail(ctxAt(2000), access.ID)
	s.Require().NoError(err)
	s.Equal(emergency.TrailAccessed, trail[len(trail)-1].Action)

	entries, err := s.auditStore.ListByPatient(context.Background(), patient)
	s.Require().NoError(err)
	last := entries[len(entries)-1]
	s.Equal(auditmodels.ResultSuccess, last.Result)
	s.Require().NotNil(last.RecordID)
	s.Equal(rid, *last.RecordID)

	s.Len(s.publisher.ByTopic(events.EmergencyAccessed{}.Topic()), 1)
}

func (s *ServiceSuite) TestUseFallsBackToOlderActiveGrant() {
	first := s.grantAt(1000, 3600)
	second := s.grantAt(1100, 3600)
	s.Require().NoError(s.svc.Revoke(ctxAt(1200), patient, second.ID))

	// The revoked newer grant must not shadow the older one that still
	// holds.
	s.NoError(s.svc.Use(ctxAt(1300), drLee, patient, nil))

	trail, err := s.svc.Trail(ctxAt(1300), first.ID)
	s.Require().NoError(err)
	s.Equal(emergency.TrailAccessed, trail[len(trail)-1].Action)
}

// === Revoke ===

func (s *ServiceSuite) TestPatientRevokesAndProviderLosesAccess() {
	access := s.grantAt(1000, 3600)

	s.Require().NoError(s.svc.Revoke(ctxAt(1500), patient, access.ID))

	err := s.svc.Use(ctxAt(1600), drLee, patient, nil)
	s.True(dErrors.Is(err, dErrors.CodeEmergencyRevoked))

	trail, err := s.svc.Trail(ctxAt(1600), access.ID)
	s.Require().NoError(err)
	actions := make([]emergency.TrailAction, 0, len(trail))
	for _, e := range trail {
		actions = append(actions, e.Action)
	}
	s.Equal([]emergency.TrailAction{emergency.TrailGranted, emergency.TrailNotified, emergency.TrailRevoked}, actions)
	s.NotContains(actions, emergency.TrailAccessed)
}

func (s *ServiceSuite) TestRevokeIsNotIdempotent() {
	access := s.grantAt(1000, 3600)
	s.Require().NoError(s.svc.Revoke(ctxAt(1500), patient, access.ID))

	err := s.svc.Revoke(ctxAt(1600), patient, access.ID)
	s.True(dErrors.Is(err, dErrors.CodeEmergencyRevoked))
}

func (s *ServiceSuite) TestRevokeExpiredGrantFails() {
	access := s.grantAt(1000, 60)
	_, err := s.svc.ExpireSweep(ctxAt(2000))
	s.Require().NoError(err)

	err = s.svc.Revoke(ctxAt(2100), patient, access.ID)
	s.True(dErrors.Is(err, dErrors.CodeEmergencyExpired))
}

func (s *ServiceSuite) TestRevokeAuthorization() {
	access := s.grantAt(1000, 3600)

	err := s.svc.Revoke(ctxAt(1500), id.Principal("stranger"), access.ID)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))

	// Requester and admin may both revoke.
	s.NoError(s.svc.Revoke(ctxAt(1500), drLee, access.ID))

	second := s.grantAt(1600, 3600)
	s.NoError(s.svc.Revoke(ctxAt(1700), adminID, second.ID))
}

func (s *ServiceSuite) TestRevokeUnknownGrant() {
	err := s.svc.Revoke(ctxAt(1000), patient, 99)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestRevokeFailuresAreAudited() {
	access := s.grantAt(1000, 3600)

	err := s.svc.Revoke(ctxAt(1100), id.Principal("stranger"), access.ID)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))

	err = s.svc.Revoke(ctxAt(1100), patient, 99)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))

	s.Require().NoError(s.svc.Revoke(ctxAt(1200), patient, access.ID))
	err = s.svc.Revoke(ctxAt(1300), patient, access.ID)
	s.True(dErrors.Is(err, dErrors.CodeEmergencyRevoked))

	entries, err := s.auditStore.ListByAction(context.Background(), auditmodels.ActionRevokeAccess)
	s.Require().NoError(err)
	s.Require().Len(entries, 4)
	s.Equal(auditmodels.ResultDenied, entries[0].Result)
	s.Equal(auditmodels.ResultNotFound, entries[1].Result)
	s.Equal(auditmodels.ResultSuccess, entries[2].Result)
	s.Equal(auditmodels.ResultDenied, entries[3].Result)
}

// === CheckAccess and listing ===

func (s *ServiceSuite) TestCheckAccessIsPureRead() {
	s.grantAt(1000, 60)

	access, err := s.svc.CheckAccess(ctxAt(2000), patient, drLee)
	s.Require().NoError(err)
	s.Nil(access)

	// The lapsed grant is still stored Active until something uses or
	// sweeps it.
	stored, err := s.svc.Get(ctxAt(2000), 1)
	s.Require().NoError(err)
	s.Equal(emergency.StatusActive, stored.Status)
}

func (s *ServiceSuite) TestCheckAccessReturnsNewestUsable() {
	s.grantAt(1000, 3600)
	second := s.grantAt(1100, 3600)

	access, err := s.svc.CheckAccess(ctxAt(1200), patient, drLee)
	s.Require().NoError(err)
	s.Require().NotNil(access)
	s.Equal(second.ID, access.ID)
}

func (s *ServiceSuite) TestListByPatientFiltersUnusable() {
	revoked := s.grantAt(1000, 3600)
	s.Require().NoError(s.svc.Revoke(ctxAt(1100), patient, revoked.ID))
	s.grantAt(1200, 3600)

	grants, err := s.svc.ListByPatient(ctxAt(1300), patient)
	s.Require().NoError(err)
	s.Require().Len(grants, 1)
	s.Equal(uint64(2), grants[0].ID)
}

// === ExpireSweep ===

func (s *ServiceSuite) TestExpireSweepCountsTransitions() {
	s.grantAt(1000, 60)
	s.grantAt(1000, 120)
	keeper := s.grantAt(1000, 86400)

	count, err := s.svc.ExpireSweep(ctxAt(2000))
	s.Require().NoError(err)
	s.Equal(2, count)

	kept, err := s.svc.Get(ctxAt(2000), keeper.ID)
	s.Require().NoError(err)
	s.Equal(emergency.StatusActive, kept.Status)

	// A second sweep finds nothing left to do.
	count, err = s.svc.ExpireSweep(ctxAt(2000))
	s.Require().NoError(err)
	s.Zero(count)
}

// === Trail cap ===

func (s *ServiceSuite) TestTrailCapRejectsAppendsButUseProceeds() {
	access, err := s.svc.Grant(ctxAt(1000), drLee, patient,
		emergency.ConditionSurgicalEmergency, "prolonged surgical case", 86400, nil)
	s.Require().NoError(err)

	// The grant wrote one trail entry; 999 uses fill the trail to the cap.
	for i := 0; i < 999; i++ {
		s.Require().NoError(s.svc.Use(ctxAt(1001+int64(i)), drLee, patient, nil))
	}
	trail, err := s.svc.Trail(ctxAt(3000), access.ID)
	s.Require().NoError(err)
	s.Len(trail, 1000)

	// Past the cap the history stops growing but access keeps working and
	// the top-level audit entry is still written.
	before, err := s.auditStore.Count(context.Background())
	s.Require().NoError(err)

	s.NoError(s.svc.Use(ctxAt(5000), drLee, patient, nil))

	trail, err = s.svc.Trail(ctxAt(5000), access.ID)
	s.Require().NoError(err)
	s.Len(trail, 1000)

	after, err := s.auditStore.Count(context.Background())
	s.Require().NoError(err)
	s.Equal(before+1, after)
}
