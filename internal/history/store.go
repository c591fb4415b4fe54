// Package history provides a SQLite-backed record of finished simulation runs.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/cointie/internal/simulator"
	"github.com/lox/cointie/internal/statistics"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a run id is not recorded.
var ErrNotFound = errors.New("run not found")

// Store persists simulation results in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite history store and applies the embedded schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record inserts one finished run.
func (s *Store) Record(ctx context.Context, r *simulator.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if r == nil || strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("run id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO runs (
		   id,
		   trials,
		   flips_per_player,
		   equal_count,
		   probability,
		   expected,
		   z_score,
		   seed,
		   workers,
		   batch_size,
		   started_at,
		   elapsed_ns
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.Trials,
		r.FlipsPerPlayer,
		r.Equal,
		r.Probability,
		r.Expected,
		r.ZScore,
		r.Seed,
		r.Workers,
		r.BatchSize,
		toMillis(r.StartedAt),
		int64(r.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

const selectRun = `SELECT
	id, trials, flips_per_player, equal_count, probability, expected, z_score,
	seed, workers, batch_size, started_at, elapsed_ns
FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*simulator.Result, error) {
	var (
		r         simulator.Result
		startedAt int64
		elapsed   int64
	)
	if err := row.Scan(
		&r.ID,
		&r.Trials,
		&r.FlipsPerPlayer,
		&r.Equal,
		&r.Probability,
		&r.Expected,
		&r.ZScore,
		&r.Seed,
		&r.Workers,
		&r.BatchSize,
		&startedAt,
		&elapsed,
	); err != nil {
		return nil, err
	}
	r.StartedAt = fromMillis(startedAt)
	r.Elapsed = time.Duration(elapsed)

	tally := r.Tally()
	r.StdError = tally.StdError()
	r.CILow, r.CIHigh = tally.ConfidenceInterval95()
	r.ChiSquared = statistics.ChiSquared(tally, r.Expected)
	return &r, nil
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, id string) (*simulator.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// List returns up to limit runs, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]*simulator.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*simulator.Result
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
