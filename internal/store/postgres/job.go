package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maxbates/molecular-design-toolkit/pkg/jobs"
)

// ErrNotFound is returned when no record exists for a job id.
var ErrNotFound = errors.New("job record not found")

// Record implements jobs.RecordSink. Transitions upsert on job id so the row
// always mirrors the latest known state.
func (s *Store) Record(ctx context.Context, rec jobs.Record) error {
	query := `
		INSERT INTO job_records (id, fingerprint, method, state, attempts, created_at, started_at, ended_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			attempts = EXCLUDED.attempts,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			error = EXCLUDED.error
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Fingerprint, rec.Method, string(rec.State), rec.Attempts,
		rec.CreatedAt, nullTime(rec.StartedAt), nullTime(rec.EndedAt), nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("upsert job record %s: %w", rec.ID, err)
	}
	return nil
}

// GetJob returns the stored record for a job id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*jobs.Record, error) {
	query := `
		SELECT id, fingerprint, method, state, attempts, created_at, started_at, ended_at, error
		FROM job_records
		WHERE id = $1
	`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job record %s: %w", id, err)
	}
	return rec, nil
}

// ListJobs returns up to limit records, most recently created first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]jobs.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, fingerprint, method, state, attempts, created_at, started_at, ended_at, error
		FROM job_records
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list job records: %w", err)
	}
	defer rows.Close()

	var out []jobs.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*jobs.Record, error) {
	var (
		rec       jobs.Record
		state     string
		startedAt sql.NullTime
		endedAt   sql.NullTime
		errMsg    sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Fingerprint, &rec.Method, &state, &rec.Attempts,
		&rec.CreatedAt, &startedAt, &endedAt, &errMsg); err != nil {
		return nil, err
	}
	rec.State = jobs.State(state)
	if startedAt.Valid {
		rec.StartedAt = startedAt.Time
	}
	if endedAt.Valid {
		rec.EndedAt = endedAt.Time
	}
	if errMsg.Valid {
		rec.Error = errMsg.String
	}
	return &rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
