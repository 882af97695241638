package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"medgate/internal/identity"
	"medgate/internal/ratelimit/handler"
	"medgate/internal/ratelimit/service"
	"medgate/internal/ratelimit/store/memory"
	id "medgate/pkg/domain"
	"medgate/pkg/requestcontext"
)

const adminID = id.Principal("admin")

type HandlerSuite struct {
	suite.Suite
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ids, err := identity.NewService(context.Background(), identity.NewMemoryStore(), adminID)
	s.Require().NoError(err)

	svc, err := service.NewService(
		memory.NewConfigStore(), memory.NewCounterStore(), memory.NewBypassStore(), ids)
	s.Require().NoError(err)

	s.router = chi.NewRouter()
	handler.NewHandler(svc, slog.Default()).Register(s.router)
}

func (s *HandlerSuite) do(actor id.Principal, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(requestcontext.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestAdminSetsAndReadsConfig() {
	rec := s.do(adminID, http.MethodPut, "/ratelimit/configs/add_record",
		`{"max_requests":5,"window_seconds":3600}`)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(adminID, http.MethodGet, "/ratelimit/configs/add_record", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"max_requests":5`)
}

func (s *HandlerSuite) TestNonAdminCannotSetConfig() {
	rec := s.do(id.Principal("dr-adams"), http.MethodPut, "/ratelimit/configs/add_record",
		`{"max_requests":5,"window_seconds":3600}`)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestUnknownConfigIs404() {
	rec := s.do(adminID, http.MethodGet, "/ratelimit/configs/unknown", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestBypassRoundTrip() {
	rec := s.do(adminID, http.MethodPut, "/ratelimit/bypass/dr-adams", `{"enabled":true}`)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(adminID, http.MethodGet, "/ratelimit/bypass/dr-adams", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"enabled":true`)
}

func (s *HandlerSuite) TestStatusEndpoint() {
	s.do(adminID, http.MethodPut, "/ratelimit/configs/add_record",
		`{"max_requests":5,"window_seconds":3600}`)

	rec := s.do(adminID, http.MethodGet, "/ratelimit/status/dr-adams/add_record", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"current_count":0`)
}
