// Package ports declares the rate limiter's storage and authorization
// contracts.
package ports

import (
	"context"

	"medgate/internal/ratelimit/models"
	id "medgate/pkg/domain"
)

// ConfigStore holds per-operation limits.
type ConfigStore interface {
	Set(ctx context.Context, cfg models.Config) error
	Get(ctx context.Context, operation string) (models.Config, bool, error)
	All(ctx context.Context) ([]models.Config, error)
}

// CounterStore holds per-(principal, operation) window counters.
type CounterStore interface {
	Get(ctx context.Context, principal id.Principal, operation string) (models.Counter, bool, error)
	Put(ctx context.Context, counter models.Counter) error
}

// BypassStore holds the verified-identity bypass flags.
type BypassStore interface {
	Set(ctx context.Context, principal id.Principal, enabled bool) error
	Has(ctx context.Context, principal id.Principal) (bool, error)
}

// AdminChecker answers whether a principal holds the admin role. Implemented
// by the identity registry; declared here so the limiter does not import it.
type AdminChecker interface {
	IsAdmin(ctx context.Context, principal id.Principal) (bool, error)
}
