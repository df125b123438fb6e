package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"call-router/internal/calls"
)

// SQLStore persists call records via database/sql.
//
// It works against sqlite (default) and postgres: every statement uses plain
// portable SQL, and the upsert is a read-modify-write merge executed inside a
// single lane operation rather than engine-specific ON CONFLICT syntax. The
// lane makes the read-modify-write safe without any row locking.
type SQLStore struct {
	db   *sql.DB
	lane *Lane
}

func NewSQLStore(db *sql.DB, lane *Lane) *SQLStore {
	return &SQLStore{db: db, lane: lane}
}

const schema = `
CREATE TABLE IF NOT EXISTS call_records (
  call_id           TEXT PRIMARY KEY,
  direction         TEXT NOT NULL DEFAULT '',
  from_number       TEXT NOT NULL DEFAULT '',
  to_number         TEXT NOT NULL DEFAULT '',
  status            TEXT NOT NULL DEFAULT '',
  start_time        TIMESTAMP,
  end_time          TIMESTAMP,
  duration          INTEGER,
  recording_url     TEXT,
  transcript        TEXT,
  call_type         TEXT NOT NULL DEFAULT '',
  customer_name     TEXT,
  customer_zip_code TEXT,
  lead_quality      TEXT,
  notes             TEXT,
  zapier_sent       BOOLEAN NOT NULL DEFAULT FALSE,
  zapier_sent_at    TIMESTAMP
)`

const indexes = `
CREATE INDEX IF NOT EXISTS idx_call_records_start_time ON call_records (start_time);
CREATE INDEX IF NOT EXISTS idx_call_records_call_type ON call_records (call_type)`

// Init creates the schema if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	return s.lane.Submit(ctx, func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("store: create schema: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, indexes); err != nil {
			return fmt.Errorf("store: create indexes: %w", err)
		}
		return nil
	})
}

const selectColumns = `
SELECT call_id, direction, from_number, to_number, status,
       start_time, end_time, duration, recording_url, transcript, call_type,
       customer_name, customer_zip_code, lead_quality, notes,
       zapier_sent, zapier_sent_at
FROM call_records
`

func (s *SQLStore) Upsert(ctx context.Context, rec calls.CallRecord) (calls.CallRecord, error) {
	if rec.CallID == "" {
		return calls.CallRecord{}, ErrInvalidArgument
	}

	var out calls.CallRecord
	err := s.lane.Submit(ctx, func(ctx context.Context) error {
		existing, err := getRecord(ctx, s.db, rec.CallID)
		switch {
		case errors.Is(err, ErrNotFound):
			out = rec
			return insertRecord(ctx, s.db, out)
		case err != nil:
			return err
		}
		out = calls.Merge(existing, rec)
		return updateRecord(ctx, s.db, out)
	})
	if err != nil {
		return calls.CallRecord{}, err
	}
	return out, nil
}

func (s *SQLStore) Get(ctx context.Context, callID string) (calls.CallRecord, error) {
	if callID == "" {
		return calls.CallRecord{}, ErrInvalidArgument
	}
	var out calls.CallRecord
	err := s.lane.Submit(ctx, func(ctx context.Context) error {
		var err error
		out, err = getRecord(ctx, s.db, callID)
		return err
	})
	return out, err
}

func (s *SQLStore) List(ctx context.Context, f ListFilter) ([]calls.CallRecord, error) {
	f = f.withDefaults()

	var out []calls.CallRecord
	err := s.lane.Submit(ctx, func(ctx context.Context) error {
		q := selectColumns
		args := []any{}
		n := 1
		if f.CallType != "" {
			q += fmt.Sprintf("WHERE call_type = $%d\n", n)
			args = append(args, string(f.CallType))
			n++
		}
		q += fmt.Sprintf("ORDER BY start_time DESC LIMIT $%d OFFSET $%d", n, n+1)
		args = append(args, f.Limit, f.Offset)

		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

func (s *SQLStore) MarkNotified(ctx context.Context, callID string, at time.Time) error {
	if callID == "" {
		return ErrInvalidArgument
	}
	return s.lane.Submit(ctx, func(ctx context.Context) error {
		existing, err := getRecord(ctx, s.db, callID)
		if err != nil {
			return err
		}
		if existing.ZapierSent {
			return ErrAlreadyNotified
		}
		existing.ZapierSent = true
		existing.ZapierSentAt = calls.TimePtr(at.UTC())
		return updateRecord(ctx, s.db, existing)
	})
}

// --- row-level helpers (run only inside lane operations) ---

type rowScanner interface {
	Scan(dest ...any) error
}

func getRecord(ctx context.Context, db *sql.DB, callID string) (calls.CallRecord, error) {
	row := db.QueryRowContext(ctx, selectColumns+"WHERE call_id = $1", callID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return calls.CallRecord{}, ErrNotFound
	}
	return rec, err
}

func scanRecord(row rowScanner) (calls.CallRecord, error) {
	var rec calls.CallRecord
	var (
		startTime, endTime, sentAt        sql.NullTime
		duration                          sql.NullInt64
		recordingURL, transcript          sql.NullString
		customerName, zip, quality, notes sql.NullString
	)
	err := row.Scan(
		&rec.CallID,
		&rec.Direction,
		&rec.FromNumber,
		&rec.ToNumber,
		&rec.Status,
		&startTime,
		&endTime,
		&duration,
		&recordingURL,
		&transcript,
		&rec.CallType,
		&customerName,
		&zip,
		&quality,
		&notes,
		&rec.ZapierSent,
		&sentAt,
	)
	if err != nil {
		return calls.CallRecord{}, err
	}

	if startTime.Valid {
		rec.StartTime = calls.TimePtr(startTime.Time.UTC())
	}
	if endTime.Valid {
		rec.EndTime = calls.TimePtr(endTime.Time.UTC())
	}
	if duration.Valid {
		rec.DurationSeconds = calls.IntPtr(int(duration.Int64))
	}
	if recordingURL.Valid {
		rec.RecordingURL = &recordingURL.String
	}
	if transcript.Valid {
		rec.Transcript = &transcript.String
	}
	if customerName.Valid {
		rec.CustomerName = &customerName.String
	}
	if zip.Valid {
		rec.CustomerZipCode = &zip.String
	}
	if quality.Valid {
		rec.LeadQuality = &quality.String
	}
	if notes.Valid {
		rec.Notes = &notes.String
	}
	if sentAt.Valid {
		rec.ZapierSentAt = calls.TimePtr(sentAt.Time.UTC())
	}
	return rec, nil
}

func insertRecord(ctx context.Context, db *sql.DB, rec calls.CallRecord) error {
	const q = `
INSERT INTO call_records (
  call_id, direction, from_number, to_number, status,
  start_time, end_time, duration, recording_url, transcript, call_type,
  customer_name, customer_zip_code, lead_quality, notes,
  zapier_sent, zapier_sent_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
)`
	_, err := db.ExecContext(ctx, q,
		rec.CallID,
		string(rec.Direction),
		rec.FromNumber,
		rec.ToNumber,
		string(rec.Status),
		nullTime(rec.StartTime),
		nullTime(rec.EndTime),
		nullInt(rec.DurationSeconds),
		nullString(rec.RecordingURL),
		nullString(rec.Transcript),
		string(rec.CallType),
		nullString(rec.CustomerName),
		nullString(rec.CustomerZipCode),
		nullString(rec.LeadQuality),
		nullString(rec.Notes),
		rec.ZapierSent,
		nullTime(rec.ZapierSentAt),
	)
	return err
}

func updateRecord(ctx context.Context, db *sql.DB, rec calls.CallRecord) error {
	const q = `
UPDATE call_records SET
  direction = $1,
  from_number = $2,
  to_number = $3,
  status = $4,
  start_time = $5,
  end_time = $6,
  duration = $7,
  recording_url = $8,
  transcript = $9,
  call_type = $10,
  customer_name = $11,
  customer_zip_code = $12,
  lead_quality = $13,
  notes = $14,
  zapier_sent = $15,
  zapier_sent_at = $16
WHERE call_id = $17`
	_, err := db.ExecContext(ctx, q,
		string(rec.Direction),
		rec.FromNumber,
		rec.ToNumber,
		string(rec.Status),
		nullTime(rec.StartTime),
		nullTime(rec.EndTime),
		nullInt(rec.DurationSeconds),
		nullString(rec.RecordingURL),
		nullString(rec.Transcript),
		string(rec.CallType),
		nullString(rec.CustomerName),
		nullString(rec.CustomerZipCode),
		nullString(rec.LeadQuality),
		nullString(rec.Notes),
		rec.ZapierSent,
		nullTime(rec.ZapierSentAt),
		rec.CallID,
	)
	return err
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}
