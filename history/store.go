package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/dental-ai/realtime-api/models"
)

// Record is one finished /predict request.
type Record struct {
	RequestID  string         `json:"request_id"`
	CreatedAt  time.Time      `json:"created_at"`
	DurationMs float64        `json:"duration_ms"`
	Status     string         `json:"status"`
	Results    models.Results `json:"results,omitempty"`
	Error      string         `json:"error,omitempty"`
}

const StatusOK = "ok"

// Store journals prediction outcomes in SQLite.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open history database")
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate history database")
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS predictions (
  request_id TEXT PRIMARY KEY,
  created_at DATETIME NOT NULL,
  duration_ms REAL NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  results TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS predictions_created_at ON predictions(created_at);
`)
	return err
}

func (s *Store) Add(ctx context.Context, r Record) error {
	if s.db == nil {
		return nil
	}

	var results string
	if len(r.Results) > 0 {
		b, err := json.Marshal(r.Results)
		if err != nil {
			return errors.Wrap(err, "encode results")
		}
		results = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO predictions(request_id, created_at, duration_ms, status, results, error)
VALUES(?, ?, ?, ?, ?, ?);
`, r.RequestID, r.CreatedAt.UTC(), r.DurationMs, r.Status, results, r.Error)
	return errors.Wrap(err, "insert prediction")
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT request_id, created_at, duration_ms, status, results, error
FROM predictions ORDER BY created_at DESC, rowid DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query predictions")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var results string
		if err := rows.Scan(&r.RequestID, &r.CreatedAt, &r.DurationMs, &r.Status, &results, &r.Error); err != nil {
			return nil, errors.Wrap(err, "scan prediction")
		}
		if results != "" {
			if err := json.Unmarshal([]byte(results), &r.Results); err != nil {
				return nil, errors.Wrap(err, "decode results")
			}
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate predictions")
}
