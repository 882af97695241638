// Package ports declares the audit module's storage contract.
package ports

import (
	"context"

	"medgate/internal/audit/models"
	id "medgate/pkg/domain"
)

// Store persists audit entries. Append assigns the next ID; all list methods
// return entries in ascending ID order except ListRecent, which returns the
// newest first.
type Store interface {
	Append(ctx context.Context, entry models.Entry) (models.Entry, error)
	GetByID(ctx context.Context, entryID uint64) (models.Entry, error)
	ListByRecord(ctx context.Context, recordID id.RecordID) ([]models.Entry, error)
	ListByActor(ctx context.Context, actor id.Principal) ([]models.Entry, error)
	ListByPatient(ctx context.Context, patient id.Principal) ([]models.Entry, error)
	ListByAction(ctx context.Context, action models.Action) ([]models.Entry, error)
	ListByResult(ctx context.Context, result models.Result) ([]models.Entry, error)
	ListByTimeRange(ctx context.Context, tr models.TimeRange) ([]models.Entry, error)
	ListRecent(ctx context.Context, limit int) ([]models.Entry, error)
	Count(ctx context.Context) (uint64, error)
}
