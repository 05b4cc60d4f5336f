// Package runstore persists run history, per-run report rows and the
// schedule fingerprint.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("run not found")

// FingerprintKey is the state key of the last previewed schedule fingerprint
const FingerprintKey = "schedule_fingerprint"

// Fingerprints stores the last previewed schedule fingerprint
type Fingerprints interface {
	Fingerprint(ctx context.Context, key string) (string, error)
	SaveFingerprint(ctx context.Context, key, value string) error
}

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

var _ Fingerprints = (*Store)(nil)

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts or updates a run
func (s *Store) SaveRun(ctx context.Context, run *domain.Run) error {
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, status, started_at, finished_at, fingerprint, counts, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			fingerprint = excluded.fingerprint,
			counts = excluded.counts,
			message = excluded.message
	`,
		run.ID,
		string(run.Mode),
		string(run.Status),
		run.StartedAt.UTC(),
		nullTime(run.FinishedAt),
		run.Fingerprint,
		string(counts),
		run.Message,
	)
	return err
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, status, started_at, finished_at, fingerprint, counts, message
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// ListOptions specifies filters for listing runs
type ListOptions struct {
	Status domain.RunStatus
	Since  time.Time
	Limit  int
}

// ListRuns returns runs newest first
func (s *Store) ListRuns(ctx context.Context, opts ListOptions) ([]*domain.Run, error) {
	query := `SELECT id, mode, status, started_at, finished_at, fingerprint, counts, message FROM runs WHERE 1=1`
	var args []any

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if !opts.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, opts.Since.UTC())
	}
	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveResults stores the report rows of a run in one transaction
func (s *Store) SaveResults(ctx context.Context, runID string, kind domain.ResultKind, rows []domain.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (run_id, kind, timestamp, campaign, asset_group, member_type, member, scheduled, action, status, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, string(kind), r.Timestamp, r.Campaign, r.AssetGroup,
			r.MemberType, r.Member, r.Scheduled, r.Action, string(r.Status), r.Message); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return tx.Commit()
}

// Results returns the stored rows of a run in insertion order
func (s *Store) Results(ctx context.Context, runID string) ([]domain.StoredResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, kind, timestamp, campaign, asset_group, member_type, member, scheduled, action, status, message
		FROM results WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StoredResult
	for rows.Next() {
		var r domain.StoredResult
		var kind, status string
		if err := rows.Scan(&r.ID, &r.RunID, &kind, &r.Timestamp, &r.Campaign, &r.AssetGroup,
			&r.MemberType, &r.Member, &r.Scheduled, &r.Action, &status, &r.Message); err != nil {
			return nil, err
		}
		r.Kind = domain.ResultKind(kind)
		r.Status = domain.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Fingerprint returns a stored state value, or "" when none is stored
func (s *Store) Fingerprint(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SaveFingerprint stores a state value
func (s *Store) SaveFingerprint(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var run domain.Run
	var mode, status string
	var finished sql.NullTime
	var fingerprint, counts, message sql.NullString

	if err := row.Scan(&run.ID, &mode, &status, &run.StartedAt, &finished, &fingerprint, &counts, &message); err != nil {
		return nil, err
	}
	run.Mode = domain.RunMode(mode)
	run.Status = domain.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	run.Fingerprint = fingerprint.String
	run.Message = message.String
	if counts.Valid && counts.String != "" {
		if err := json.Unmarshal([]byte(counts.String), &run.Counts); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
