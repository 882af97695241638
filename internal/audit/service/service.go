// Package service implements the audit log operations on top of a Store.
package service

import (
	"context"
	"log/slog"

	"medgate/internal/audit/models"
	"medgate/internal/audit/ports"
	"medgate/internal/events"
	"medgate/internal/platform/metrics"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

type Service struct {
	store     ports.Store
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

func NewService(store ports.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "audit service requires a store")
	}
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Append validates and persists one audit entry. The timestamp comes from
// the request clock and the client metadata from the request context, so
// every entry written during one call carries the same instant.
func (s *Service) Append(ctx context.Context, entry models.Entry) (models.Entry, error) {
	entry.Timestamp = requestcontext.Now(ctx)
	if entry.IPAddress == "" {
		entry.IPAddress = requestcontext.ClientIP(ctx)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}

	if err := entry.Validate(); err != nil {
		return models.Entry{}, err
	}

	stored, err := s.store.Append(ctx, entry)
	if err != nil {
		return models.Entry{}, err
	}

	s.metrics.RecordAuditEntry(stored.Action.String(), stored.Result.String())
	s.publish(ctx, events.AuditEntryCreated{
		EntryID:   stored.ID,
		Actor:     stored.Actor,
		Action:    stored.Action.String(),
		Result:    stored.Result.String(),
		RecordID:  derefRecordID(stored.RecordID),
		Timestamp: stored.Timestamp,
	})

	s.logger.InfoContext(ctx, "audit entry appended",
		"entry_id", stored.ID,
		"actor", stored.Actor,
		"action", stored.Action,
		"result", stored.Result,
	)
	return stored, nil
}

func (s *Service) GetByID(ctx context.Context, entryID uint64) (models.Entry, error) {
	return s.store.GetByID(ctx, entryID)
}

func (s *Service) ListByRecord(ctx context.Context, recordID id.RecordID) ([]models.Entry, error) {
	return s.store.ListByRecord(ctx, recordID)
}

func (s *Service) ListByActor(ctx context.Context, actor id.Principal) ([]models.Entry, error) {
	return s.store.ListByActor(ctx, actor)
}

func (s *Service) ListByPatient(ctx context.Context, patient id.Principal) ([]models.Entry, error) {
	return s.store.ListByPatient(ctx, patient)
}

func (s *Service) ListByAction(ctx context.Context, action models.Action) ([]models.Entry, error) {
	if !action.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid audit action %q", action)
	}
	return s.store.ListByAction(ctx, action)
}

func (s *Service) ListByResult(ctx context.Context, result models.Result) ([]models.Entry, error) {
	if !result.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid audit result %q", result)
	}
	return s.store.ListByResult(ctx, result)
}

func (s *Service) ListByTimeRange(ctx context.Context, tr models.TimeRange) ([]models.Entry, error) {
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListByTimeRange(ctx, tr)
}

func (s *Service) ListRecent(ctx context.Context, limit int) ([]models.Entry, error) {
	return s.store.ListRecent(ctx, limit)
}

func (s *Service) Count(ctx context.Context) (uint64, error) {
	return s.store.Count(ctx)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit event publish failed",
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
