// Package postgres backs the audit log with a Postgres table. The table is
// append-only: nothing in this package updates or deletes rows.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medgate/internal/audit/models"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    ts         TIMESTAMPTZ NOT NULL,
    actor      TEXT NOT NULL,
    patient    TEXT NOT NULL,
    record_id  BIGINT,
    action     TEXT NOT NULL,
    result     TEXT NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    ip_address TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_entries_actor_idx ON audit_entries (actor, id);
CREATE INDEX IF NOT EXISTS audit_entries_patient_idx ON audit_entries (patient, id);
CREATE INDEX IF NOT EXISTS audit_entries_record_idx ON audit_entries (record_id, id) WHERE record_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS audit_entries_ts_idx ON audit_entries (ts);
`

const selectColumns = `id, ts, actor, patient, record_id, action, result, reason, ip_address, user_agent`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the audit table and its indices.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry models.Entry) (models.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO audit_entries (ts, actor, patient, record_id, action, result, reason, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		entry.Timestamp, entry.Actor.String(), entry.Patient.String(), entry.RecordID,
		entry.Action.String(), entry.Result.String(), entry.Reason, entry.IPAddress, entry.UserAgent,
	)
	if err := row.Scan(&entry.ID); err != nil {
		return models.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
	}
	return entry, nil
}

func (s *Store) GetByID(ctx context.Context, entryID uint64) (models.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM audit_entries WHERE id = $1`, entryID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Entry{}, dErrors.Newf(dErrors.CodeNotFound, "audit entry %d not found", entryID)
	}
	if err != nil {
		return models.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "get audit entry")
	}
	return entry, nil
}

func (s *Store) ListByRecord(ctx context.Context, recordID id.RecordID) ([]models.Entry, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM audit_entries WHERE record_id = $1 ORDER BY id`, recordID)
}

func (s *Store) ListByActor(ctx context.Context, actor id.Principal) ([]models.Entry, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM audit_entries WHERE actor = $1 ORDER BY id`, actor.String())
}

func (s *Store) ListByPatient(ctx context.Context, patient id.Principal) ([]models.Entry, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM audit_entries WHERE patient = $1 ORDER BY id`, patient.String())
}

func (s *Store) ListByAction(ctx context.Context, action models.Action) ([]models.Entry, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM audit_entries WHERE action = $1 ORDER BY id`, action.String())
}

func (s *Store) ListByResult(ctx context.Context, result models.Result) ([]models.Entry, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM audit_entries WHERE result = $1 ORDER BY id`, result.String())
}

func (s *Store) ListByTimeRange(ctx context.Context, tr models.TimeRange) ([]models.Entry, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM audit_entries WHERE ts >= $1 AND ts <= $2 ORDER BY id`,
		tr.Start, tr.End)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]models.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM audit_entries ORDER BY id DESC LIMIT $1`, limit)
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	var count uint64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_entries`).Scan(&count); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "count audit entries")
	}
	return count, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]models.Entry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query audit entries")
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan audit entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "iterate audit entries")
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (models.Entry, error) {
	var (
		entry    models.Entry
		recordID *int64
		actor    string
		patient  string
		action   string
		result   string
	)
	err := row.Scan(&entry.ID, &entry.Timestamp, &actor, &patient, &recordID,
		&action, &result, &entry.Reason, &entry.IPAddress, &entry.UserAgent)
	if err != nil {
		return models.Entry{}, err
	}
	entry.Actor = id.Principal(actor)
	entry.Patient = id.Principal(patient)
	entry.Action = models.Action(action)
	entry.Result = models.Result(result)
	if recordID != nil {
		rid := id.RecordID(*recordID)
		entry.RecordID = &rid
	}
	return entry, nil
}
