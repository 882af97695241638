// Package service implements the fixed-window rate limiter.
package service

import (
	"context"
	"log/slog"
	"time"

	"medgate/internal/events"
	"medgate/internal/platform/metrics"
	"medgate/internal/ratelimit/models"
	"medgate/internal/ratelimit/ports"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
	"medgate/pkg/requestcontext"
)

// SystemActor marks bypass updates driven by verification transitions
// rather than an admin request.
const SystemActor = id.Principal("system")

type Service struct {
	configs   ports.ConfigStore
	counters  ports.CounterStore
	bypass    ports.BypassStore
	admin     ports.AdminChecker
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

func NewService(configs ports.ConfigStore, counters ports.CounterStore, bypass ports.BypassStore, admin ports.AdminChecker, opts ...Option) (*Service, error) {
	if configs == nil || counters == nil || bypass == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rate limit service requires config, counter and bypass stores")
	}
	if admin == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rate limit service requires an admin checker")
	}
	s := &Service{
		configs:  configs,
		counters: counters,
		bypass:   bypass,
		admin:    admin,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckAndIncrement applies the fixed-window limit for one attempt:
//
//  1. A bypassed principal is admitted without touching any counter.
//  2. An operation with no config is unthrottled.
//  3. If the stored window has lapsed, a fresh window starts at the
//     request instant with this attempt as its first count.
//  4. Inside the window, the attempt is counted while capacity remains.
//  5. At capacity the attempt is denied; neither the count nor the window
//     start changes, so the window does not slide under sustained traffic.
//
// A non-nil error with code RATE_LIMIT_EXCEEDED means denied; any other
// error is a storage fault and the caller decides whether to fail open.
func (s *Service) CheckAndIncrement(ctx context.Context, principal id.Principal, operation string) error {
	bypassed, err := s.bypass.Has(ctx, principal)
	if err != nil {
		return err
	}
	if bypassed {
		s.metrics.RecordBypass()
		s.metrics.RecordRateLimitDecision(operation, "bypass")
		return nil
	}

	cfg, ok, err := s.configs.Get(ctx, operation)
	if err != nil {
		return err
	}
	if !ok {
		s.metrics.RecordRateLimitDecision(operation, "unlimited")
		return nil
	}

	now := requestcontext.Now(ctx)
	counter, exists, err := s.counters.Get(ctx, principal, operation)
	if err != nil {
		return err
	}

	if !exists || counter.Expired(now, cfg.WindowSeconds) {
		counter = models.Counter{
			Principal:    principal,
			Operation:    operation,
			CurrentCount: 1,
			WindowStart:  now,
		}
		if err := s.counters.Put(ctx, counter); err != nil {
			return err
		}
		s.metrics.RecordRateLimitDecision(operation, "allowed")
		return nil
	}

	if counter.CurrentCount < cfg.MaxRequests {
		counter.CurrentCount++
		if err := s.counters.Put(ctx, counter); err != nil {
			return err
		}
		s.metrics.RecordRateLimitDecision(operation, "allowed")
		return nil
	}

	s.metrics.RecordRateLimitDecision(operation, "denied")
	s.logger.WarnContext(ctx, "rate limit exceeded",
		"principal", principal,
		"operation", operation,
		"count", counter.CurrentCount,
		"max_requests", cfg.MaxRequests,
	)
	s.publish(ctx, events.RateLimitExceeded{
		Principal:  principal,
		Operation:  operation,
		Count:      counter.CurrentCount,
		MaxActions: cfg.MaxRequests,
		DeniedAt:   now,
	})
	return dErrors.Newf(dErrors.CodeRateLimitExceeded,
		"rate limit exceeded for %s on %s: %d per %ds", principal, operation, cfg.MaxRequests, cfg.WindowSeconds)
}

// SetConfig installs or replaces the limit for one operation. Admin only.
func (s *Service) SetConfig(ctx context.Context, actor id.Principal, cfg models.Config) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.configs.Set(ctx, cfg); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "rate limit config updated",
		"operation", cfg.Operation,
		"max_requests", cfg.MaxRequests,
		"window_seconds", cfg.WindowSeconds,
		"updated_by", actor,
	)
	s.publish(ctx, events.RateLimitConfigUpdated{
		Operation:     cfg.Operation,
		MaxActions:    cfg.MaxRequests,
		WindowSeconds: cfg.WindowSeconds,
		UpdatedBy:     actor,
	})
	return nil
}

// SetBypass manually overrides a principal's bypass flag. Admin only. The
// override stands until the next verification transition rewrites it.
func (s *Service) SetBypass(ctx context.Context, actor id.Principal, principal id.Principal, enabled bool) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	return s.writeBypass(ctx, actor, principal, enabled)
}

// SyncVerifiedBypass aligns the bypass flag with a verification transition.
// Called by the provider registry, not by admins.
func (s *Service) SyncVerifiedBypass(ctx context.Context, principal id.Principal, verified bool) error {
	return s.writeBypass(ctx, SystemActor, principal, verified)
}

func (s *Service) writeBypass(ctx context.Context, actor, principal id.Principal, enabled bool) error {
	if principal.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "bypass requires a principal")
	}
	if err := s.bypass.Set(ctx, principal, enabled); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "rate limit bypass updated",
		"principal", principal,
		"enabled", enabled,
		"updated_by", actor,
	)
	s.publish(ctx, events.RateLimitBypassUpdated{
		Principal: principal,
		Enabled:   enabled,
		UpdatedBy: actor,
	})
	return nil
}

// GetStatus reports a principal's standing for one operation. The stored
// window is reported as-is: a lapsed window that no call has rolled yet
// shows its original counts with a ResetAt in the past.
func (s *Service) GetStatus(ctx context.Context, principal id.Principal, operation string) (models.Status, error) {
	cfg, ok, err := s.configs.Get(ctx, operation)
	if err != nil {
		return models.Status{}, err
	}
	if !ok {
		return models.Status{}, dErrors.Newf(dErrors.CodeNotFound, "no rate limit configured for %s", operation)
	}

	bypassed, err := s.bypass.Has(ctx, principal)
	if err != nil {
		return models.Status{}, err
	}

	counter, exists, err := s.counters.Get(ctx, principal, operation)
	if err != nil {
		return models.Status{}, err
	}
	if !exists {
		now := requestcontext.Now(ctx)
		return models.Status{
			Operation:    operation,
			CurrentCount: 0,
			MaxRequests:  cfg.MaxRequests,
			WindowStart:  now,
			ResetAt:      now.Add(time.Duration(cfg.WindowSeconds) * time.Second),
			Bypass:       bypassed,
		}, nil
	}

	return models.Status{
		Operation:    operation,
		CurrentCount: counter.CurrentCount,
		MaxRequests:  cfg.MaxRequests,
		WindowStart:  counter.WindowStart,
		ResetAt:      counter.WindowStart.Add(time.Duration(cfg.WindowSeconds) * time.Second),
		Bypass:       bypassed,
	}, nil
}

func (s *Service) GetConfig(ctx context.Context, operation string) (models.Config, error) {
	cfg, ok, err := s.configs.Get(ctx, operation)
	if err != nil {
		return models.Config{}, err
	}
	if !ok {
		return models.Config{}, dErrors.Newf(dErrors.CodeNotFound, "no rate limit configured for %s", operation)
	}
	return cfg, nil
}

func (s *Service) AllConfigs(ctx context.Context) ([]models.Config, error) {
	return s.configs.All(ctx)
}

func (s *Service) HasBypass(ctx context.Context, principal id.Principal) (bool, error) {
	return s.bypass.Has(ctx, principal)
}

func (s *Service) requireAdmin(ctx context.Context, actor id.Principal) error {
	isAdmin, err := s.admin.IsAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !isAdmin {
		return dErrors.Newf(dErrors.CodeUnauthorized, "%s is not an admin", actor)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "rate limit event publish failed",
			"topic", event.Topic(),
			"error", err,
		)
	}
}
