package records

import (
	"context"
	"log/slog"

	"medgate/internal/events"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

type Service struct {
	store     Store
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

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "records service requires a store")
	}
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Add stores new record metadata. Authorization and auditing happen in the
// permission gate; by the time this runs the caller has already been
// admitted.
func (s *Service) Add(ctx context.Context, record Record) (Record, error) {
	if err := record.validate(); err != nil {
		return Record{}, err
	}
	record.CreatedAt = requestcontext.Now(ctx)

	stored, err := s.store.Create(ctx, record)
	if err != nil {
		return Record{}, err
	}

	s.logger.InfoContext(ctx, "record added",
		"record_id", stored.ID,
		"patient", stored.Patient,
		"provider", stored.Provider,
	)
	if s.publisher != nil {
		event := events.RecordAdded{RecordID: stored.ID, Patient: stored.Patient, AddedBy: stored.Provider}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "record event publish failed", "topic", event.Topic(), "error", err)
		}
	}
	return stored, nil
}

// Get returns a record's metadata, or NotFound.
func (s *Service) Get(ctx context.Context, recordID id.RecordID) (Record, error) {
	r, ok, err := s.store.Get(ctx, recordID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, dErrors.Newf(dErrors.CodeNotFound, "record %d not found", recordID)
	}
	return r, nil
}

// Exists reports whether a record with this ID has been added.
func (s *Service) Exists(ctx context.Context, recordID id.RecordID) (bool, error) {
	_, ok, err := s.store.Get(ctx, recordID)
	return ok, err
}

// ListByPatient returns the patient's records in creation order.
func (s *Service) ListByPatient(ctx context.Context, patient id.Principal) ([]Record, error) {
	return s.store.ListByPatient(ctx, patient)
}
